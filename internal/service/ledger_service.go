package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/aptitest-backend/internal/model"
	"github.com/stemsi/aptitest-backend/internal/phase"
	"github.com/stemsi/aptitest-backend/internal/repository"
)

// LedgerService owns every write to the answer ledger.
type LedgerService struct {
	ledgers      LedgerStore
	codes        CodeStore
	participants ParticipantStore
	queue        CodeUsedQueue
	log          zerolog.Logger
	now          func() time.Time
}

// NewLedgerService creates a new LedgerService. queue may be nil, in which
// case failed code-used marks are only logged.
func NewLedgerService(ledgers LedgerStore, codes CodeStore, participants ParticipantStore, queue CodeUsedQueue, log zerolog.Logger) *LedgerService {
	return &LedgerService{
		ledgers:      ledgers,
		codes:        codes,
		participants: participants,
		queue:        queue,
		log:          log.With().Str("component", "ledger_service").Logger(),
		now:          time.Now,
	}
}

// Get returns the ledger of one test-taker.
func (s *LedgerService) Get(ctx context.Context, sc model.SurveyContext, userCode string) (*model.AnswerLedger, error) {
	l, err := s.ledgers.Get(ctx, sc, userCode)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: no answers recorded for %s", model.ErrNotFound, userCode)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load ledger: %w", model.ErrPersistence, err)
	}
	return l, nil
}

// UpsertAnswers overwrites exactly the given slots of phase p, creating the
// ledger on first write. A nil value clears its slot.
func (s *LedgerService) UpsertAnswers(ctx context.Context, sc model.SurveyContext, userCode string, p phase.Phase, values map[int]*string) (*model.AnswerLedger, error) {
	l, err := s.loadOrNew(ctx, sc, userCode)
	if err != nil {
		return nil, err
	}
	if err := l.Apply(p, values, s.now()); err != nil {
		return nil, err
	}
	if err := s.ledgers.Save(ctx, l); err != nil {
		return nil, fmt.Errorf("%w: save ledger: %w", model.ErrPersistence, err)
	}
	return l, nil
}

// MarkCompleted sets the completion marker once and then fires the
// completion side effects: the code is marked used and the participant
// record receives the answered count. Calling it again changes nothing.
func (s *LedgerService) MarkCompleted(ctx context.Context, sc model.SurveyContext, userCode string) (*model.AnswerLedger, error) {
	l, err := s.loadOrNew(ctx, sc, userCode)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if !l.MarkCompleted(now) {
		return l, nil
	}
	if err := s.ledgers.Save(ctx, l); err != nil {
		return nil, fmt.Errorf("%w: save ledger: %w", model.ErrPersistence, err)
	}

	s.markCodeUsed(ctx, userCode, now)

	if err := s.participants.SetAnsweredCount(ctx, sc, userCode, l.TotalAnswered); err != nil {
		s.log.Error().Err(err).
			Str("survey_type", sc.SurveyType).
			Str("user_code", userCode).
			Msg("Failed to copy answered count to participant")
	}

	s.log.Info().
		Str("survey_type", sc.SurveyType).
		Str("user_code", userCode).
		Int("total_answered", l.TotalAnswered).
		Msg("Test completed")
	return l, nil
}

// markCodeUsed is at-least-once: a failed write goes to the retry queue.
func (s *LedgerService) markCodeUsed(ctx context.Context, code string, at time.Time) {
	err := s.codes.MarkUsed(ctx, code, at)
	if err == nil {
		return
	}
	if errors.Is(err, repository.ErrNotFound) {
		// Admin bypass codes are not stored.
		s.log.Debug().Str("user_code", code).Msg("No stored code to mark as used")
		return
	}

	s.log.Warn().Err(err).Str("user_code", code).Msg("Mark code used failed, queueing retry")
	if s.queue == nil {
		return
	}
	if qerr := s.queue.Enqueue(ctx, code, at); qerr != nil {
		s.log.Error().Err(qerr).Str("user_code", code).Msg("Failed to queue code-used retry")
	}
}

func (s *LedgerService) loadOrNew(ctx context.Context, sc model.SurveyContext, userCode string) (*model.AnswerLedger, error) {
	l, err := s.ledgers.Get(ctx, sc, userCode)
	if errors.Is(err, repository.ErrNotFound) {
		return model.NewAnswerLedger(sc, userCode, s.now()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load ledger: %w", model.ErrPersistence, err)
	}
	return l, nil
}
