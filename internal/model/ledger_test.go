package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/aptitest-backend/internal/phase"
)

var now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func str(v string) *string { return &v }

func TestNewAnswerLedgerIsEmpty(t *testing.T) {
	l := NewAnswerLedger(SurveyContext{SurveyType: "v1"}, "ABC1234", now)
	assert.Len(t, l.TypeA, 240)
	assert.Len(t, l.TypeB, 10)
	assert.Len(t, l.TypeC, 10)
	assert.Zero(t, l.TotalAnswered)
	assert.False(t, l.Completed())
}

func TestApplyOverwritesOnlyGivenSlots(t *testing.T) {
	l := NewAnswerLedger(SurveyContext{SurveyType: "v1"}, "ABC1234", now)

	require.NoError(t, l.Apply(phase.A, map[int]*string{200: str("3")}, now))
	assert.Equal(t, "3", *l.TypeA[199])
	assert.Equal(t, 1, l.TotalAnswered)

	require.NoError(t, l.Apply(phase.B, map[int]*string{8: str("A"), 9: str("C")}, now))
	assert.Equal(t, 3, l.TotalAnswered)

	require.NoError(t, l.Apply(phase.B, map[int]*string{9: nil}, now))
	assert.Nil(t, l.TypeB[8])
	assert.Equal(t, "A", *l.TypeB[7])
	assert.Equal(t, 2, l.TotalAnswered)
}

func TestApplyRejectsInvalidWithoutWriting(t *testing.T) {
	l := NewAnswerLedger(SurveyContext{SurveyType: "v1"}, "ABC1234", now)

	err := l.Apply(phase.C, map[int]*string{1: str("B"), 2: str("Z")}, now)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Nil(t, l.TypeC[0])

	err = l.Apply(phase.B, map[int]*string{11: str("A")}, now)
	assert.ErrorIs(t, err, ErrValidation)

	err = l.Apply(phase.Complete, map[int]*string{1: str("A")}, now)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Zero(t, l.TotalAnswered)
}

func TestNormalizePadsShortRows(t *testing.T) {
	l := &AnswerLedger{TypeA: []*string{str("1"), nil, str("5")}, TypeB: []*string{str("A")}}
	l.Normalize()
	assert.Len(t, l.TypeA, 240)
	assert.Len(t, l.TypeB, 10)
	assert.Len(t, l.TypeC, 10)
	assert.Equal(t, 3, l.TotalAnswered)
}

func TestMarkCompletedOnce(t *testing.T) {
	l := NewAnswerLedger(SurveyContext{SurveyType: "v1"}, "ABC1234", now)
	assert.True(t, l.MarkCompleted(now))
	assert.False(t, l.MarkCompleted(now.Add(time.Hour)))
	assert.Equal(t, now, *l.CompletedAt)
}

func TestProgressOfNilLedger(t *testing.T) {
	var l *AnswerLedger
	p := l.Progress()
	assert.Equal(t, 260, p.TotalQuestions)
	assert.Zero(t, p.TotalAnswered)
}

func TestDecodeAnswer(t *testing.T) {
	n := 200
	a, err := DecodeAnswer(&n, json.RawMessage(`"3"`))
	require.NoError(t, err)
	assert.Equal(t, SingleAnswer{QuestionNumber: 200, Value: "3"}, a)

	a, err = DecodeAnswer(nil, json.RawMessage(`{"8":"A","9":null,"10":""}`))
	require.NoError(t, err)
	assert.Equal(t, BlockAnswer{Values: map[int]string{8: "A"}}, a)

	_, err = DecodeAnswer(&n, json.RawMessage(`{"8":"A"}`))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = DecodeAnswer(nil, json.RawMessage(`{"x":"A"}`))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = DecodeAnswer(nil, json.RawMessage(`null`))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSessionKeyRoundTrip(t *testing.T) {
	k := NewSessionKey(SurveyContext{SurveyType: "v2"}, "XYZ0001")
	parsed, err := ParseSessionKey(k.String())
	require.NoError(t, err)
	assert.Equal(t, k, parsed)

	_, err = ParseSessionKey("nocolon")
	assert.Error(t, err)
}

func TestRemainingSeconds(t *testing.T) {
	deadline := now.Add(9500 * time.Millisecond)
	s := &TestSession{State: SessionStateAwaitingAnswer, Deadline: &deadline}
	assert.Equal(t, 10, s.RemainingSeconds(now))
	assert.Equal(t, 0, s.RemainingSeconds(now.Add(time.Minute)))

	s.State = SessionStateCommitting
	assert.Equal(t, -1, s.RemainingSeconds(now))
}
