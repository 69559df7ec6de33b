package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/aptitest-backend/internal/config"
	"github.com/stemsi/aptitest-backend/internal/repository"
)

// CodeMarker marks one-time codes as used.
type CodeMarker interface {
	MarkUsed(ctx context.Context, value string, at time.Time) error
}

type codeUsedPayload struct {
	Code   string    `json:"code"`
	UsedAt time.Time `json:"used_at"`
}

// CodeUsedQueue pushes deferred code-used marks onto mark_code_used_queue.
type CodeUsedQueue struct {
	rdb *redis.Client
}

// NewCodeUsedQueue creates a new CodeUsedQueue.
func NewCodeUsedQueue(rdb *redis.Client) *CodeUsedQueue {
	return &CodeUsedQueue{rdb: rdb}
}

// Enqueue schedules code to be marked used at the given time.
func (q *CodeUsedQueue) Enqueue(ctx context.Context, code string, at time.Time) error {
	raw, err := json.Marshal(codeUsedPayload{Code: code, UsedAt: at})
	if err != nil {
		return err
	}
	return q.rdb.RPush(ctx, config.WorkerKey.MarkCodeUsedQueue, raw).Err()
}

// CodeUsedWorker consumes mark_code_used_queue and retries code-used marks
// that failed inline on test completion.
type CodeUsedWorker struct {
	codes      CodeMarker
	rdb        *redis.Client
	retryDelay time.Duration
	log        zerolog.Logger
}

// NewCodeUsedWorker creates a new CodeUsedWorker.
func NewCodeUsedWorker(codes CodeMarker, rdb *redis.Client, log zerolog.Logger) *CodeUsedWorker {
	return &CodeUsedWorker{
		codes:      codes,
		rdb:        rdb,
		retryDelay: 5 * time.Second,
		log:        log.With().Str("component", "code_used_worker").Logger(),
	}
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *CodeUsedWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			// Drain remaining items before exit.
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *CodeUsedWorker) processNext(ctx context.Context) {
	// BLPop blocks until an item is available or timeout (1 second).
	result, err := w.rdb.BLPop(ctx, time.Second, config.WorkerKey.MarkCodeUsedQueue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}
	if len(result) < 2 {
		return
	}

	if err := w.handle(ctx, result[1]); err != nil {
		w.log.Error().Err(err).Msg("Mark code used failed, retrying")
		// Push back to queue for retry.
		w.rdb.RPush(context.Background(), config.WorkerKey.MarkCodeUsedQueue, result[1])
		select {
		case <-ctx.Done():
		case <-time.After(w.retryDelay):
		}
	}
}

// handle applies one payload. Malformed payloads and unknown codes are
// dropped; only storage errors are returned for retry.
func (w *CodeUsedWorker) handle(ctx context.Context, raw string) error {
	var p codeUsedPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		w.log.Error().Err(err).Msg("Unmarshal error")
		return nil
	}

	err := w.codes.MarkUsed(ctx, p.Code, p.UsedAt)
	if errors.Is(err, repository.ErrNotFound) {
		w.log.Warn().Str("code", p.Code).Msg("Code no longer exists, dropping")
		return nil
	}
	if err != nil {
		return err
	}
	w.log.Debug().Str("code", p.Code).Msg("Code marked used")
	return nil
}

// drain processes all remaining items in the queue before shutdown.
func (w *CodeUsedWorker) drain(ctx context.Context) {
	drained := 0
	for {
		result, err := w.rdb.LPop(ctx, config.WorkerKey.MarkCodeUsedQueue).Result()
		if err != nil {
			break
		}
		if err := w.handle(ctx, result); err != nil {
			w.log.Error().Err(err).Msg("Drain mark error")
			w.rdb.RPush(ctx, config.WorkerKey.MarkCodeUsedQueue, result)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
