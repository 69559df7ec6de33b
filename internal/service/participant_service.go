package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/stemsi/aptitest-backend/internal/model"
	"github.com/stemsi/aptitest-backend/internal/repository"
)

// ParticipantService handles the demographic intake form.
type ParticipantService struct {
	participants ParticipantStore
	log          zerolog.Logger
}

// NewParticipantService creates a new ParticipantService.
func NewParticipantService(participants ParticipantStore, log zerolog.Logger) *ParticipantService {
	return &ParticipantService{
		participants: participants,
		log:          log.With().Str("component", "participant_service").Logger(),
	}
}

// SaveInfo stores the intake form of a test-taker. Submitting it again
// replaces the earlier answers but keeps the answered count.
func (s *ParticipantService) SaveInfo(ctx context.Context, sc model.SurveyContext, userCode string, req *model.ParticipantInfoRequest) (*model.Participant, error) {
	p := &model.Participant{
		SurveyType:        sc.SurveyType,
		UserCode:          userCode,
		UserName:          strings.TrimSpace(req.UserName),
		School:            strings.TrimSpace(req.School),
		Grade:             req.Grade,
		Gender:            req.Gender,
		Region:            strings.TrimSpace(req.Region),
		DesiredHighSchool: strings.TrimSpace(req.DesiredHighSchool),
		StudentPhone:      strings.TrimSpace(req.StudentPhone),
		ParentPhone:       strings.TrimSpace(req.ParentPhone),
	}
	if req.BGradeSubjectsCount != nil {
		p.BGradeSubjectsCount = *req.BGradeSubjectsCount
	}

	if err := s.participants.Upsert(ctx, p); err != nil {
		return nil, fmt.Errorf("%w: save participant: %w", model.ErrPersistence, err)
	}

	s.log.Info().
		Str("survey_type", sc.SurveyType).
		Str("user_code", userCode).
		Int("participant_id", p.ID).
		Msg("Participant info saved")
	return p, nil
}

// Get returns the intake record of a test-taker.
func (s *ParticipantService) Get(ctx context.Context, sc model.SurveyContext, userCode string) (*model.Participant, error) {
	p, err := s.participants.GetByCode(ctx, sc, userCode)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: no participant info for %s", model.ErrNotFound, userCode)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load participant: %w", model.ErrPersistence, err)
	}
	return p, nil
}
