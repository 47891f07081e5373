// Package testutil provides shared test helpers for setting up repositories and services.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/starford/raido/internal/identity"
	"github.com/starford/raido/internal/system"
	"github.com/starford/raido/internal/taskservice"
)

// Clock returns a deterministic clock that advances one second per call.
func Clock() func() time.Time {
	t := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

// Logger discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Identity generates a signing identity for tests.
func Identity(t *testing.T) *identity.Identity {
	t.Helper()
	id, err := identity.Generate("Test User", "test@example.com")
	if err != nil {
		t.Fatal(err)
	}
	return id
}

// TestSystem creates a repository in a temporary directory and opens a
// system on it with a test identity. It is closed on cleanup.
func TestSystem(t *testing.T) *system.System {
	t.Helper()
	sys, err := system.Init(t.TempDir(),
		system.WithIdentity(Identity(t)),
		system.WithLogger(Logger()),
		system.WithClock(Clock()),
		system.WithMaxConns(2),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { sys.Close() })
	return sys
}

// TestService binds a task service on a fresh TestSystem.
func TestService(t *testing.T, opts ...taskservice.Option) *taskservice.Service {
	t.Helper()
	opts = append([]taskservice.Option{taskservice.WithLogger(Logger())}, opts...)
	svc, err := taskservice.New(context.Background(), TestSystem(t), opts...)
	if err != nil {
		t.Fatal(err)
	}
	return svc
}
