package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/stemsi/aptitest-backend/internal/model"
	"github.com/stemsi/aptitest-backend/internal/repository"
)

const (
	// codeAlphabet leaves out characters that are easy to misread on paper.
	codeAlphabet   = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength     = 7
	maxCodeBatch   = 500
	maxCodeRetries = 3
	defaultListLim = 100
)

// CodeAdminStore creates and lists one-time codes.
type CodeAdminStore interface {
	CreateBatch(ctx context.Context, values []string) error
	List(ctx context.Context, used *bool, limit int) ([]model.Code, error)
}

// CodeService issues one-time login codes.
type CodeService struct {
	codes CodeAdminStore
	log   zerolog.Logger
}

// NewCodeService creates a new CodeService.
func NewCodeService(codes CodeAdminStore, log zerolog.Logger) *CodeService {
	return &CodeService{
		codes: codes,
		log:   log.With().Str("component", "code_service").Logger(),
	}
}

// Generate creates count fresh codes. A batch that collides with an
// existing code is regenerated as a whole.
func (s *CodeService) Generate(ctx context.Context, count int) ([]string, error) {
	if count < 1 || count > maxCodeBatch {
		return nil, fmt.Errorf("%w: count must be between 1 and %d", model.ErrValidation, maxCodeBatch)
	}

	for attempt := 1; attempt <= maxCodeRetries; attempt++ {
		values, err := randomCodes(count)
		if err != nil {
			return nil, err
		}
		err = s.codes.CreateBatch(ctx, values)
		if err == nil {
			s.log.Info().Int("count", count).Msg("Codes generated")
			return values, nil
		}
		if !errors.Is(err, repository.ErrDuplicateCode) {
			return nil, fmt.Errorf("%w: create codes: %w", model.ErrPersistence, err)
		}
		s.log.Warn().Int("attempt", attempt).Msg("Generated code collided, retrying batch")
	}
	return nil, fmt.Errorf("%w: could not generate unique codes", model.ErrPersistence)
}

// List returns codes newest first. used filters by usage when non-nil.
func (s *CodeService) List(ctx context.Context, used *bool, limit int) ([]model.Code, error) {
	if limit <= 0 || limit > maxCodeBatch {
		limit = defaultListLim
	}
	codes, err := s.codes.List(ctx, used, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list codes: %w", model.ErrPersistence, err)
	}
	if codes == nil {
		codes = []model.Code{}
	}
	return codes, nil
}

func randomCodes(count int) ([]string, error) {
	seen := make(map[string]struct{}, count)
	out := make([]string, 0, count)
	buf := make([]byte, codeLength)
	for len(out) < count {
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("read random: %w", err)
		}
		code := make([]byte, codeLength)
		for i, b := range buf {
			// 256 is a multiple of len(codeAlphabet), so the modulo is unbiased.
			code[i] = codeAlphabet[int(b)%len(codeAlphabet)]
		}
		if _, dup := seen[string(code)]; dup {
			continue
		}
		seen[string(code)] = struct{}{}
		out = append(out, string(code))
	}
	return out, nil
}
