// Package analytics records one event per pipeline turn, tagged with the
// reply source. Recording is best-effort: a failed write is logged and
// never disturbs the conversation.
package analytics

import (
	"context"
	"log/slog"
)

type Sink interface {
	RecordAnalyticsEvent(ctx context.Context, sessionID, source, channel string, detail map[string]any) error
}

type Recorder struct {
	sink   Sink
	logger *slog.Logger
}

func NewRecorder(sink Sink, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		sink:   sink,
		logger: logger.With("component", "analytics"),
	}
}

func (r *Recorder) Record(ctx context.Context, sessionID, source, channel string, detail map[string]any) {
	if r == nil || r.sink == nil {
		return
	}
	if err := r.sink.RecordAnalyticsEvent(ctx, sessionID, source, channel, detail); err != nil {
		r.logger.Error("analytics event dropped", "session", sessionID, "source", source, "error", err)
	}
}
