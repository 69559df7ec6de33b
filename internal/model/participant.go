package model

import "time"

// Participant is the demographic intake record of a test-taker.
type Participant struct {
	ID                  int       `json:"id"`
	SurveyType          string    `json:"survey_type"`
	UserCode            string    `json:"user_code"`
	UserName            string    `json:"user_name"`
	School              string    `json:"school"`
	Grade               int       `json:"grade"`
	Gender              string    `json:"gender"`
	Region              string    `json:"region"`
	BGradeSubjectsCount int       `json:"b_grade_subjects_count"`
	DesiredHighSchool   string    `json:"desired_high_school"`
	StudentPhone        string    `json:"student_phone"`
	ParentPhone         string    `json:"parent_phone"`
	AnsweredCount       int       `json:"answered_count"`
	CreatedAt           time.Time `json:"created_at"`
}

// ParticipantInfoRequest is the intake form payload.
type ParticipantInfoRequest struct {
	UserName            string `json:"user_name" binding:"required,min=1,max=100"`
	School              string `json:"school" binding:"required,max=100"`
	Grade               int    `json:"grade" binding:"required,min=1,max=12"`
	Gender              string `json:"gender" binding:"required,max=50"`
	Region              string `json:"region" binding:"required,max=100"`
	BGradeSubjectsCount *int   `json:"b_grade_subjects_count" binding:"required,min=0,max=50"`
	DesiredHighSchool   string `json:"desired_high_school" binding:"required,max=100"`
	StudentPhone        string `json:"student_phone" binding:"required,max=20"`
	ParentPhone         string `json:"parent_phone" binding:"required,max=20"`
}
