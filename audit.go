package shopguard

import (
	"context"
	"io"

	internalaudit "github.com/yldrmabdullah/shopguard/internal/audit"
	"go.uber.org/zap"
)

// AuditEvent is one security-relevant outcome. It never carries passwords or
// raw tokens.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the engine's dispatcher goroutine.
type AuditSink = internalaudit.Sink

// NoOpSink discards events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink exposes events through a buffered channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// MultiSink fans events out to several sinks.
type MultiSink = internalaudit.MultiSink

// NewChannelSink creates a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a JSONWriterSink over w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// ZapSink writes audit events as structured log entries. Failed outcomes log
// at Warn, successes at Info.
type ZapSink struct {
	logger *zap.Logger
}

// NewZapSink creates a ZapSink. A nil logger selects zap.L().
func NewZapSink(logger *zap.Logger) *ZapSink {
	if logger == nil {
		logger = zap.L()
	}
	return &ZapSink{logger: logger.Named("audit")}
}

// Emit implements AuditSink.
func (s *ZapSink) Emit(_ context.Context, event AuditEvent) {
	fields := make([]zap.Field, 0, 6+len(event.Metadata))
	fields = append(fields,
		zap.Time("timestamp", event.Timestamp),
		zap.Bool("success", event.Success),
	)
	if event.UserID != "" {
		fields = append(fields, zap.String("user_id", event.UserID))
	}
	if event.Account != "" {
		fields = append(fields, zap.String("account", event.Account))
	}
	if event.IP != "" {
		fields = append(fields, zap.String("ip", event.IP))
	}
	if event.Error != "" {
		fields = append(fields, zap.String("error", event.Error))
	}
	for k, v := range event.Metadata {
		fields = append(fields, zap.String("meta."+k, v))
	}

	if event.Success {
		s.logger.Info(event.EventType, fields...)
		return
	}
	s.logger.Warn(event.EventType, fields...)
}
