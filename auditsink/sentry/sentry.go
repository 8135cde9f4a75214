// Package sentry forwards shopguard audit events to Sentry.
//
// Only failed outcomes are reported, and by default only the event types an
// operator would want paged on. Account emails are not sent unless
// Options.SendAccount is set.
package sentry

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/yldrmabdullah/shopguard"
)

var _ shopguard.AuditSink = (*Sink)(nil)

// DefaultEventTypes are reported when Options.EventTypes is empty.
var DefaultEventTypes = []string{
	"lockout_tripped",
	"signin_locked",
	"threat_detected",
	"rate_limit_triggered",
}

// Options configure a Sink.
type Options struct {
	// EventTypes lists the audit event types to report. Empty selects DefaultEventTypes.
	EventTypes []string
	// SendAccount attaches the account email as the Sentry user email.
	SendAccount bool
	// Level is the Sentry level for reported events. Empty selects warning.
	Level sentry.Level
}

// Sink reports audit events through a Sentry hub.
type Sink struct {
	hub         *sentry.Hub
	types       map[string]struct{}
	sendAccount bool
	level       sentry.Level
}

// New creates a Sink on hub. A nil hub selects sentry.CurrentHub().
func New(hub *sentry.Hub, opts Options) *Sink {
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	types := opts.EventTypes
	if len(types) == 0 {
		types = DefaultEventTypes
	}
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	level := opts.Level
	if level == "" {
		level = sentry.LevelWarning
	}
	return &Sink{hub: hub, types: set, sendAccount: opts.SendAccount, level: level}
}

// Emit implements shopguard.AuditSink.
func (s *Sink) Emit(_ context.Context, event shopguard.AuditEvent) {
	if event.Success {
		return
	}
	if _, ok := s.types[event.EventType]; !ok {
		return
	}

	ev := sentry.NewEvent()
	ev.Level = s.level
	ev.Message = "shopguard: " + event.EventType
	ev.Timestamp = event.Timestamp
	ev.Logger = "shopguard.audit"
	ev.Tags = map[string]string{"event_type": event.EventType}
	if event.Error != "" {
		ev.Tags["error"] = event.Error
	}
	ev.User = sentry.User{ID: event.UserID, IPAddress: event.IP}
	if s.sendAccount {
		ev.User.Email = event.Account
	}
	if len(event.Metadata) > 0 {
		extra := make(map[string]interface{}, len(event.Metadata))
		for k, v := range event.Metadata {
			extra[k] = v
		}
		ev.Extra = extra
	}
	ev.Fingerprint = []string{"shopguard", event.EventType}

	s.hub.CaptureEvent(ev)
}

// Flush waits up to timeout for queued events to be sent.
func (s *Sink) Flush(timeout time.Duration) bool {
	return s.hub.Flush(timeout)
}
