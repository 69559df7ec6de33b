package model

import (
	"math"
	"time"

	"github.com/stemsi/aptitest-backend/internal/phase"
)

// SessionState enumerates the progression states of a test session.
type SessionState string

const (
	SessionStateAwaitingAnswer SessionState = "AWAITING_ANSWER"
	SessionStateCommitting     SessionState = "COMMITTING"
	SessionStateCompleted      SessionState = "COMPLETED"
)

// TestSession is the live progression state of one test-taker.
type TestSession struct {
	SurveyType     string         `json:"survey_type"`
	UserCode       string         `json:"user_code"`
	Phase          phase.Phase    `json:"phase"`
	Unit           int            `json:"unit"`
	State          SessionState   `json:"state"`
	PendingAnswers map[int]string `json:"pending_answers,omitempty"`
	Deadline       *time.Time     `json:"deadline,omitempty"`
	Commits        int            `json:"commits"`
	StartedAt      time.Time      `json:"started_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Key returns the session's addressing key.
func (s *TestSession) Key() SessionKey {
	return SessionKey{SurveyType: s.SurveyType, UserCode: s.UserCode}
}

// Completed reports whether the session reached its terminal state.
func (s *TestSession) Completed() bool {
	return s.State == SessionStateCompleted
}

// RemainingSeconds returns the whole seconds left on the active unit, or -1
// while the unit is being committed or the session is complete.
func (s *TestSession) RemainingSeconds(now time.Time) int {
	if s.State != SessionStateAwaitingAnswer || s.Deadline == nil {
		return -1
	}
	left := s.Deadline.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Seconds()))
}

// SessionView is the client-facing state snapshot.
type SessionView struct {
	Phase            phase.Phase    `json:"phase"`
	Unit             int            `json:"unit"`
	State            SessionState   `json:"state"`
	IsBlock          bool           `json:"is_block"`
	PendingAnswers   map[int]string `json:"pending_answers,omitempty"`
	RemainingSeconds int            `json:"remaining_seconds"`
	Progress         LedgerProgress `json:"progress"`
}

// SessionEventType enumerates pushed session events.
type SessionEventType string

const (
	EventUnitAdvanced  SessionEventType = "unit_advanced"
	EventPhaseAdvanced SessionEventType = "phase_advanced"
	EventAnswerPending SessionEventType = "answer_pending"
	EventUnitExpired   SessionEventType = "unit_expired"
	EventCompleted     SessionEventType = "completed"
	EventAdminJump     SessionEventType = "admin_jump"
)

// SessionEvent is published after every state change of a session.
type SessionEvent struct {
	Type    SessionEventType `json:"type"`
	Session SessionView      `json:"session"`
	At      time.Time        `json:"at"`
}
