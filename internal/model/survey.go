package model

import (
	"fmt"
	"strings"
)

// DefaultSurveyType is used when a request carries no survey type.
const DefaultSurveyType = "v1"

// SurveyContext identifies which survey edition a request belongs to. It is
// resolved once per request and passed explicitly into every core operation.
type SurveyContext struct {
	SurveyType string `json:"survey_type"`
}

// SessionKey addresses one test-taker within one survey edition.
type SessionKey struct {
	SurveyType string `json:"survey_type"`
	UserCode   string `json:"user_code"`
}

// NewSessionKey builds a SessionKey from a survey context and user code.
func NewSessionKey(sc SurveyContext, userCode string) SessionKey {
	return SessionKey{SurveyType: sc.SurveyType, UserCode: userCode}
}

// Survey returns the survey context the key belongs to.
func (k SessionKey) Survey() SurveyContext {
	return SurveyContext{SurveyType: k.SurveyType}
}

// String encodes the key as "survey_type:user_code".
func (k SessionKey) String() string {
	return k.SurveyType + ":" + k.UserCode
}

// ParseSessionKey reverses SessionKey.String.
func ParseSessionKey(s string) (SessionKey, error) {
	survey, code, ok := strings.Cut(s, ":")
	if !ok || survey == "" || code == "" {
		return SessionKey{}, fmt.Errorf("malformed session key %q", s)
	}
	return SessionKey{SurveyType: survey, UserCode: code}, nil
}
