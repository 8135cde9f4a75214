package sentry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/yldrmabdullah/shopguard"
)

type captured struct {
	mu     sync.Mutex
	events []*sentry.Event
}

func (c *captured) beforeSend(ev *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	return nil
}

func (c *captured) all() []*sentry.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*sentry.Event(nil), c.events...)
}

func newTestHub(t *testing.T) (*sentry.Hub, *captured) {
	t.Helper()
	c := &captured{}
	client, err := sentry.NewClient(sentry.ClientOptions{BeforeSend: c.beforeSend})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return sentry.NewHub(client, sentry.NewScope()), c
}

func TestSinkReportsSelectedFailures(t *testing.T) {
	hub, c := newTestHub(t)
	sink := New(hub, Options{})
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	sink.Emit(context.Background(), shopguard.AuditEvent{EventType: "signin_success", Success: true})
	sink.Emit(context.Background(), shopguard.AuditEvent{EventType: "signin_failure", Error: "invalid_credentials"})
	sink.Emit(context.Background(), shopguard.AuditEvent{
		Timestamp: ts,
		EventType: "lockout_tripped",
		Account:   "alice@example.com",
		IP:        "203.0.113.4",
		Error:     "account_locked",
		Metadata:  map[string]string{"failures": "5"},
	})

	events := c.all()
	if len(events) != 1 {
		t.Fatalf("expected 1 reported event, got %d", len(events))
	}
	ev := events[0]
	if ev.Level != sentry.LevelWarning || ev.Message != "shopguard: lockout_tripped" {
		t.Fatalf("unexpected event level=%s message=%q", ev.Level, ev.Message)
	}
	if ev.Tags["event_type"] != "lockout_tripped" || ev.Tags["error"] != "account_locked" {
		t.Fatalf("unexpected tags %v", ev.Tags)
	}
	if ev.User.IPAddress != "203.0.113.4" {
		t.Fatalf("expected ip on user, got %+v", ev.User)
	}
	if ev.User.Email != "" {
		t.Fatal("expected account email to be withheld by default")
	}
	if ev.Extra["failures"] != "5" {
		t.Fatalf("expected metadata in extra, got %v", ev.Extra)
	}
	if !ev.Timestamp.Equal(ts) {
		t.Fatalf("expected audit timestamp, got %v", ev.Timestamp)
	}
}

func TestSinkCustomTypesAndAccount(t *testing.T) {
	hub, c := newTestHub(t)
	sink := New(hub, Options{EventTypes: []string{"signin_failure"}, SendAccount: true, Level: sentry.LevelError})

	sink.Emit(context.Background(), shopguard.AuditEvent{EventType: "lockout_tripped"})
	sink.Emit(context.Background(), shopguard.AuditEvent{EventType: "signin_failure", Account: "bob@example.com"})

	events := c.all()
	if len(events) != 1 {
		t.Fatalf("expected 1 reported event, got %d", len(events))
	}
	if events[0].Level != sentry.LevelError || events[0].User.Email != "bob@example.com" {
		t.Fatalf("unexpected event %+v", events[0])
	}
}

func TestSinkBehindEngineDispatcher(t *testing.T) {
	hub, c := newTestHub(t)

	cfg := shopguard.DefaultConfig()
	cfg.Token.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Audit.Enabled = true
	engine, err := shopguard.New().WithConfig(cfg).WithAuditSink(New(hub, Options{})).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	engine.Classify(context.Background(), "../../etc/shadow")
	engine.Close()

	events := c.all()
	if len(events) != 1 || events[0].Tags["event_type"] != "threat_detected" {
		t.Fatalf("expected one threat event, got %d", len(events))
	}
	// Dots and slashes are SQL metacharacters too.
	if events[0].Extra["categories"] != "sql_injection,path_traversal" {
		t.Fatalf("unexpected categories %v", events[0].Extra)
	}
}
