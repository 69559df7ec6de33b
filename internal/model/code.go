package model

import "time"

// Code is a one-time login code handed to a test-taker.
type Code struct {
	ID        int        `json:"id"`
	CodeValue string     `json:"code_value"`
	IsUsed    bool       `json:"is_used"`
	CreatedAt time.Time  `json:"created_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
}

// LoginRequest is the payload for code-based login.
type LoginRequest struct {
	Name       string `json:"name" binding:"required,min=1,max=100"`
	Code       string `json:"code" binding:"required,min=4,max=50"`
	SurveyType string `json:"survey_type" binding:"omitempty,survey_type"`
}

// LoginResponse is returned after a successful login.
type LoginResponse struct {
	Token      string       `json:"token"`
	IsAdmin    bool         `json:"is_admin"`
	SurveyType string       `json:"survey_type"`
	Session    *SessionView `json:"session,omitempty"`
}

// GenerateCodesRequest is the payload for issuing a batch of codes.
type GenerateCodesRequest struct {
	Count int `json:"count" binding:"required,min=1,max=500"`
}
