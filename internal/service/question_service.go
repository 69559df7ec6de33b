package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/stemsi/aptitest-backend/internal/config"
	"github.com/stemsi/aptitest-backend/internal/model"
	"github.com/stemsi/aptitest-backend/internal/phase"
)

// QuestionService serves question units without their answer keys.
type QuestionService struct {
	questions    QuestionStore
	rdb          *redis.Client
	group        singleflight.Group
	ttl          time.Duration
	assetBaseURL string
	log          zerolog.Logger
}

// NewQuestionService creates a new QuestionService. rdb may be nil to serve
// every request from the store.
func NewQuestionService(questions QuestionStore, rdb *redis.Client, ttl time.Duration, assetBaseURL string, log zerolog.Logger) *QuestionService {
	return &QuestionService{
		questions:    questions,
		rdb:          rdb,
		ttl:          ttl,
		assetBaseURL: strings.TrimRight(assetBaseURL, "/"),
		log:          log.With().Str("component", "question_service").Logger(),
	}
}

// Fetch returns the unit at index unit of the given phase.
func (s *QuestionService) Fetch(ctx context.Context, sc model.SurveyContext, phaseName string, unit int) (*model.UnitPayload, error) {
	p, err := phase.Parse(phaseName)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrValidation, err)
	}
	u, err := resolveUnit(p, unit)
	if err != nil {
		return nil, err
	}

	key := config.CacheKey.QuestionUnitKey(sc.SurveyType, string(p), u.Index)
	if cached := s.fromCache(ctx, key); cached != nil {
		return cached, nil
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		payload, err := s.build(ctx, sc, u)
		if err != nil {
			return nil, err
		}
		s.toCache(ctx, key, payload)
		return payload, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.UnitPayload), nil
}

// Prewarm renders every unit of every survey type into the cache. Units
// with missing content are skipped.
func (s *QuestionService) Prewarm(ctx context.Context, surveyTypes []string) {
	if s.rdb == nil {
		return
	}
	start := time.Now()
	pipe := s.rdb.Pipeline()
	warmed, missing := 0, 0

	for _, st := range surveyTypes {
		sc := model.SurveyContext{SurveyType: st}
		for _, p := range phase.All() {
			for _, u := range phase.MustShape(p).Units() {
				payload, err := s.build(ctx, sc, u)
				if err != nil {
					if !errors.Is(err, model.ErrNotFound) {
						s.log.Warn().Err(err).Str("survey_type", st).Str("phase", string(p)).Int("unit", u.Index).Msg("Prewarm failed")
					}
					missing++
					continue
				}
				raw, err := json.Marshal(payload)
				if err != nil {
					continue
				}
				pipe.Set(ctx, config.CacheKey.QuestionUnitKey(st, string(p), u.Index), raw, s.ttl)
				warmed++
			}
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Error().Err(err).Msg("Question prewarm pipeline failed")
		return
	}
	s.log.Info().
		Int("units", warmed).
		Int("missing", missing).
		Dur("took", time.Since(start)).
		Msg("Question cache prewarmed")
}

func (s *QuestionService) build(ctx context.Context, sc model.SurveyContext, u phase.Unit) (*model.UnitPayload, error) {
	questions, err := s.questions.ListByNumbers(ctx, sc, u.Phase, u.Members)
	if err != nil {
		return nil, fmt.Errorf("%w: load questions: %w", model.ErrPersistence, err)
	}
	if len(questions) != len(u.Members) {
		return nil, fmt.Errorf("%w: type %s question %d has %d of %d questions", model.ErrNotFound, u.Phase, u.Index, len(questions), len(u.Members))
	}

	payload := &model.UnitPayload{
		Phase:            u.Phase,
		Unit:             u.Index,
		IsBlock:          u.IsBlock(),
		Members:          make([]model.QuestionView, 0, len(questions)),
		TimeLimitSeconds: int(u.TimeLimit / time.Second),
	}
	var shared model.SharedContext
	seen := make(map[string]bool)

	for i, q := range questions {
		if q.ProblemNumber != u.Members[i] {
			return nil, fmt.Errorf("%w: type %s question %d content is out of order", model.ErrNotFound, u.Phase, u.Index)
		}
		payload.Members = append(payload.Members, model.QuestionView{
			QuestionNumber: q.ProblemNumber,
			CategoryMain:   q.CategoryMain,
			CategorySub:    q.CategorySub,
			QuestionText:   q.QuestionText,
			Passage:        q.Passage,
			Options:        q.Options,
			ImageURL:       s.assetURL(q.ImagePath),
		})
		if shared.Passage == "" {
			shared.Passage = q.CommonPassage
		}
		for _, img := range q.CommonImages {
			if !seen[img] {
				seen[img] = true
				shared.Images = append(shared.Images, s.assetURL(img))
			}
		}
	}

	if shared.Passage != "" || len(shared.Images) > 0 {
		payload.SharedContext = &shared
	}
	return payload, nil
}

// assetURL resolves a stored image path against the asset base URL.
// Absolute URLs are kept as is.
func (s *QuestionService) assetURL(path string) string {
	if path == "" {
		return ""
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return s.assetBaseURL + "/" + strings.TrimLeft(path, "/")
}

func (s *QuestionService) fromCache(ctx context.Context, key string) *model.UnitPayload {
	if s.rdb == nil {
		return nil
	}
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn().Err(err).Str("key", key).Msg("Question cache read failed")
		}
		return nil
	}
	var payload model.UnitPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil
	}
	return &payload
}

func (s *QuestionService) toCache(ctx context.Context, key string, payload *model.UnitPayload) {
	if s.rdb == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, key, raw, s.ttl).Err(); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Question cache write failed")
	}
}

// resolveUnit looks up unit index of p. Block members only reachable through
// their block are InvalidAccess; anything else out of shape is Validation.
func resolveUnit(p phase.Phase, index int) (phase.Unit, error) {
	u, err := phase.MustShape(p).UnitAt(index)
	if err != nil {
		var bm *phase.BlockMemberError
		if errors.As(err, &bm) {
			return phase.Unit{}, fmt.Errorf("%w: %w", model.ErrInvalidAccess, err)
		}
		return phase.Unit{}, fmt.Errorf("%w: %w", model.ErrValidation, err)
	}
	return u, nil
}
