package journal

import (
	"context"

	"go.uber.org/zap"

	"liquidity-engine/engine"
	"liquidity-engine/infrastructure/logger"
)

// Recorder drains an event subscription into a Journaler. A failed write is
// logged and skipped; the engine never blocks on the journal.
type Recorder struct {
	journal Journaler
	events  <-chan engine.Event
	log     *logger.Logger
}

// NewRecorder subscribes to the engine's publisher.
func NewRecorder(j Journaler, eng *engine.Engine, log *logger.Logger) *Recorder {
	if log == nil {
		log = logger.Nop()
	}
	return &Recorder{
		journal: j,
		events:  eng.Events().Subscribe(256),
		log:     log,
	}
}

// Run consumes events until the context ends.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-r.events:
			if err := r.journal.Record(ctx, ev); err != nil {
				r.log.Warn("journal write failed",
					zap.String("event_type", string(ev.Type)),
					zap.Error(err))
			}
		}
	}
}
