package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// drain collects the messages already queued for s, waiting briefly for the loop.
func drain(s *Subscription, wait time.Duration) []string {
	time.Sleep(wait)
	var out []string
	for {
		select {
		case msg, ok := <-s.C:
			if !ok {
				return out
			}
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func count(msgs []string, event string) int {
	n := 0
	for _, m := range msgs {
		if strings.Contains(m, "event: "+event+"\n") {
			n++
		}
	}
	return n
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	s := b.Subscribe("")
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(s)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	s := b.Subscribe("")
	defer b.Unsubscribe(s)

	b.Publish(Event{Type: "notice", Data: map[string]string{"msg": "hello"}})
	b.Publish(Event{Type: "notice", Data: map[string]string{"msg": "again"}})

	msgs := drain(s, 50*time.Millisecond)
	if len(msgs) != 2 {
		t.Fatalf("messages = %q", msgs)
	}
	if msgs[0] != "id: 1\nevent: notice\ndata: {\"msg\":\"hello\"}\n\n" {
		t.Errorf("first frame = %q", msgs[0])
	}
	if !strings.HasPrefix(msgs[1], "id: 2\n") {
		t.Errorf("sequence not increasing: %q", msgs[1])
	}
}

func TestPublishTaskEvent(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	s := b.Subscribe("")
	defer b.Unsubscribe(s)

	b.PublishTaskEvent("created", "eng-1")
	b.PublishTaskEvent("renamed", "eng-1")
	b.PublishTaskEvent("updated", "not an id")

	msgs := drain(s, 50*time.Millisecond)
	if count(msgs, "task.created") != 1 || len(msgs) != 2 {
		t.Fatalf("messages = %q, want task.created + board.updated", msgs)
	}
	if !strings.Contains(msgs[0], `{"id":"eng-1","team":"eng"}`) {
		t.Errorf("payload = %q", msgs[0])
	}
	if !strings.Contains(msgs[1], `{"team":"eng"}`) {
		t.Errorf("board payload = %q", msgs[1])
	}
}

func TestBoardUpdatedCoalescedWithTrailingFlush(t *testing.T) {
	b := NewBroker(200 * time.Millisecond)
	defer b.Close()
	s := b.Subscribe("")
	defer b.Unsubscribe(s)

	b.PublishTaskEvent("created", "eng-1")
	b.PublishTaskEvent("updated", "eng-1")
	b.PublishTaskEvent("updated", "eng-2")
	b.PublishTaskEvent("created", "ops-1")

	first := drain(s, 50*time.Millisecond)
	if got := count(first, "board.updated"); got != 1 {
		t.Fatalf("board events inside the window = %d, want 1: %q", got, first)
	}
	if got := count(first, "task.updated") + count(first, "task.created"); got != 4 {
		t.Errorf("task events = %d, want 4", got)
	}

	trailing := drain(s, 300*time.Millisecond)
	if got := count(trailing, "board.updated"); got != 2 {
		t.Fatalf("trailing board events = %d, want one per dirty team: %q", got, trailing)
	}
	joined := strings.Join(trailing, "")
	if !strings.Contains(joined, `{"team":"eng"}`) || !strings.Contains(joined, `{"team":"ops"}`) {
		t.Errorf("trailing = %q", trailing)
	}
}

func TestTeamSubscription(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	eng := b.Subscribe("eng")
	defer b.Unsubscribe(eng)
	all := b.Subscribe("")
	defer b.Unsubscribe(all)

	b.PublishTaskEvent("created", "ops-1")
	b.PublishTaskEvent("created", "eng-1")
	b.Publish(Event{Type: "notice", Data: "x"})

	engMsgs := drain(eng, 50*time.Millisecond)
	for _, m := range engMsgs {
		if strings.Contains(m, "ops") {
			t.Errorf("eng subscriber got %q", m)
		}
	}
	if count(engMsgs, "task.created") != 1 || count(engMsgs, "notice") != 1 {
		t.Errorf("eng messages = %q", engMsgs)
	}
	if got := count(drain(all, 0), "task.created"); got != 2 {
		t.Errorf("all-team subscriber task events = %d, want 2", got)
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events?team=eng", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.PublishTaskEvent("updated", "ops-2")
	b.PublishTaskEvent("updated", "eng-2")
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	body := w.Body.String()
	if !strings.HasPrefix(body, "retry: 3000\n\n") {
		t.Errorf("missing retry hint: %q", body)
	}
	if !strings.Contains(body, `"id":"eng-2"`) || strings.Contains(body, "ops-2") {
		t.Errorf("handler output = %q", body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestSSEHandlerRejectsBadTeam(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	w := httptest.NewRecorder()
	b.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/events?team=Bad_Team", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	s := b.Subscribe("")
	defer b.Unsubscribe(s)

	for i := 0; i < clientBuf+10; i++ {
		b.Publish(Event{Type: "notice", Data: i})
	}
	if got := len(drain(s, 50*time.Millisecond)); got != clientBuf {
		t.Errorf("delivered = %d, want %d", got, clientBuf)
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	s := b.Subscribe("")
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()
	b.Close()

	select {
	case _, ok := <-s.C:
		if ok {
			t.Fatal("expected subscription channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	b.Publish(Event{Type: "notice"})
	b.PublishTaskEvent("updated", "eng-2")
	if _, ok := <-b.Subscribe("").C; ok {
		t.Error("subscribe after close should return a closed channel")
	}
}
