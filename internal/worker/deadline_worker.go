package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stemsi/aptitest-backend/internal/model"
	"github.com/stemsi/aptitest-backend/internal/timer"
)

const (
	DeadlineBatchSize   = 100
	DeadlineParallelism = 8
	DeadlineRetryDelay  = 3 * time.Second
)

// Expirer closes the active unit of a session whose deadline fired.
type Expirer interface {
	ExpireTimer(ctx context.Context, key model.SessionKey) error
}

// DeadlineWorker polls the deadline scheduler and expires due units.
type DeadlineWorker struct {
	deadlines timer.Scheduler
	expirer   Expirer
	poll      time.Duration
	log       zerolog.Logger
	now       func() time.Time
}

// NewDeadlineWorker creates a new DeadlineWorker.
func NewDeadlineWorker(deadlines timer.Scheduler, expirer Expirer, poll time.Duration, log zerolog.Logger) *DeadlineWorker {
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	return &DeadlineWorker{
		deadlines: deadlines,
		expirer:   expirer,
		poll:      poll,
		log:       log.With().Str("component", "deadline_worker").Logger(),
		now:       time.Now,
	}
}

// Start polls until ctx is cancelled. Call in a goroutine.
func (w *DeadlineWorker) Start(ctx context.Context) {
	w.log.Info().Dur("poll", w.poll).Msg("Worker started")

	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		case <-ticker.C:
			// Keep going while full batches come back.
			for ctx.Err() == nil {
				if w.Tick(ctx) < DeadlineBatchSize {
					break
				}
			}
		}
	}
}

// Tick expires one batch of due sessions and returns how many were claimed.
func (w *DeadlineWorker) Tick(ctx context.Context) int {
	due, err := w.deadlines.Due(ctx, w.now(), DeadlineBatchSize)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error().Err(err).Msg("Failed to fetch due deadlines")
		}
		return 0
	}
	if len(due) == 0 {
		return 0
	}

	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	g.SetLimit(DeadlineParallelism)
	for _, d := range due {
		g.Go(func() error {
			if err := w.expirer.ExpireTimer(gctx, d.Key); err != nil {
				w.log.Warn().Err(err).
					Str("session", d.Key.String()).
					Time("deadline", d.At).
					Msg("Expire failed, rescheduling")
				// Due already removed the entry.
				if serr := w.deadlines.Schedule(gctx, d.Key, w.now().Add(DeadlineRetryDelay)); serr != nil {
					w.log.Error().Err(serr).Str("session", d.Key.String()).Msg("Failed to reschedule deadline")
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	w.log.Debug().Int("count", len(due)).Msg("Processed due deadlines")
	return len(due)
}
