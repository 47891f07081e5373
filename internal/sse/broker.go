// Package sse streams task change notifications to board clients as
// Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/starford/raido/internal/task"
	"github.com/starford/raido/internal/taskservice"
)

const (
	keepAlive  = 15 * time.Second
	retryDelay = 3 * time.Second
	clientBuf  = 64
)

// Event is one message on the stream. An empty Team reaches every client.
type Event struct {
	Type string
	Team string
	Data any
}

// TaskEvent is the payload of task.created, task.updated and task.deleted.
type TaskEvent struct {
	ID   string `json:"id"`
	Team string `json:"team"`
}

// BoardEvent is the payload of board.updated: the team's board should be refetched.
type BoardEvent struct {
	Team string `json:"team"`
}

// Subscription is one connected client. Messages arrive on C already framed.
type Subscription struct {
	C    <-chan []byte
	ch   chan []byte
	team string
}

func (s *Subscription) wants(team string) bool {
	return s.team == "" || team == "" || s.team == team
}

// Broker fans task events out to subscribers.
//
// A single loop goroutine owns the subscriber set, the event sequence and the
// pending board refreshes; public methods talk to it over channels.
// board.updated is coalesced per team: at most one per boardMin, with the
// trailing refresh delivered when the window closes.
type Broker struct {
	boardMin time.Duration

	subscribeCh   chan *Subscription
	unsubscribeCh chan *Subscription
	publishCh     chan Event
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that emits board.updated at most once per
// boardThrottle.
func NewBroker(boardThrottle time.Duration) *Broker {
	if boardThrottle <= 0 {
		boardThrottle = 2 * time.Second
	}
	b := &Broker{
		boardMin:      boardThrottle,
		subscribeCh:   make(chan *Subscription),
		unsubscribeCh: make(chan *Subscription),
		publishCh:     make(chan Event, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	subs := make(map[*Subscription]struct{})
	var seq uint64

	dirty := make(map[string]struct{})
	var lastBoard time.Time
	var timer *time.Timer
	var timerC <-chan time.Time

	send := func(ev Event) {
		payload, err := json.Marshal(ev.Data)
		if err != nil {
			return
		}
		seq++
		msg := []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, ev.Type, payload))
		for s := range subs {
			if !s.wants(ev.Team) {
				continue
			}
			select {
			case s.ch <- msg:
			default:
				// slow client, drop
			}
		}
	}

	flushBoard := func() {
		for team := range dirty {
			send(Event{Type: "board.updated", Team: team, Data: BoardEvent{Team: team}})
		}
		clear(dirty)
		lastBoard = time.Now()
		timer, timerC = nil, nil
	}

	for {
		select {
		case <-b.stopCh:
			if timer != nil {
				timer.Stop()
			}
			for s := range subs {
				close(s.ch)
			}
			return

		case s := <-b.subscribeCh:
			subs[s] = struct{}{}

		case s := <-b.unsubscribeCh:
			if _, ok := subs[s]; ok {
				delete(subs, s)
				close(s.ch)
			}

		case ev := <-b.publishCh:
			send(ev)
			if !isTaskEvent(ev.Type) {
				continue
			}
			dirty[ev.Team] = struct{}{}
			if wait := b.boardMin - time.Since(lastBoard); wait <= 0 {
				flushBoard()
			} else if timer == nil {
				timer = time.NewTimer(wait)
				timerC = timer.C
			}

		case <-timerC:
			flushBoard()

		case resp := <-b.countReqCh:
			resp <- len(subs)
		}
	}
}

func isTaskEvent(typ string) bool {
	switch typ {
	case "task." + taskservice.EventCreated, "task." + taskservice.EventUpdated, "task." + taskservice.EventDeleted:
		return true
	}
	return false
}

// Close stops the loop and closes every subscription. It is safe to call twice.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a client for team ("" for all teams).
func (b *Broker) Subscribe(team string) *Subscription {
	ch := make(chan []byte, clientBuf)
	s := &Subscription{C: ch, ch: ch, team: team}
	if b.closed.Load() {
		close(ch)
		return s
	}
	select {
	case b.subscribeCh <- s:
	case <-b.stopped:
		close(ch)
	}
	return s
}

// Unsubscribe removes s and closes its channel.
func (b *Broker) Unsubscribe(s *Subscription) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- s:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish queues ev for delivery.
func (b *Broker) Publish(ev Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- ev:
	case <-b.stopped:
	}
}

// PublishTaskEvent publishes task.<kind> for id and schedules a board refresh
// for its team. Unknown kinds and malformed ids are ignored. The signature
// matches taskservice.Notifier.
func (b *Broker) PublishTaskEvent(kind, id string) {
	typ := "task." + kind
	if !isTaskEvent(typ) {
		return
	}
	team, _, err := task.ParseID(id)
	if err != nil {
		return
	}
	b.Publish(Event{Type: typ, Team: team, Data: TaskEvent{ID: id, Team: team}})
}

// ServeHTTP is the SSE endpoint (GET /api/events[?team=<team>]).
// A comment line is written every keepAlive so proxies keep the stream open.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	team := r.URL.Query().Get("team")
	if team != "" {
		if err := task.ValidateTeam(team); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("retry: " + strconv.FormatInt(retryDelay.Milliseconds(), 10) + "\n\n"))
	flusher.Flush()

	sub := b.Subscribe(team)
	defer b.Unsubscribe(sub)

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
