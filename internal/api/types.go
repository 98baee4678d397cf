package api

import "AkanHealth/internal/session"

// AuthResponse is the login/signup envelope. User may be absent on some
// deployments; Signup falls back to /auth/me when it is.
type AuthResponse struct {
	AccessToken string               `json:"access_token"`
	TokenType   string               `json:"token_type"`
	ExpiresIn   int                  `json:"expires_in"`
	User        *session.UserProfile `json:"user"`
}

// SignupRequest registers a new account.
type SignupRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	FullName          string `json:"full_name,omitempty"`
	PreferredLanguage string `json:"preferred_language,omitempty"`
}

// ProfileUpdate carries the editable profile fields.
type ProfileUpdate struct {
	FullName          string `json:"full_name,omitempty"`
	PreferredLanguage string `json:"preferred_language,omitempty"`
}

type healthQueryRequest struct {
	Question string `json:"question"`
	Language string `json:"language,omitempty"`
}

// HealthAnswer is the response to a text health question.
type HealthAnswer struct {
	Response      string            `json:"response"`
	Confidence    *float64          `json:"confidence,omitempty"`
	Language      string            `json:"language"`
	ModelUsed     string            `json:"model_used,omitempty"`
	QueryID       string            `json:"query_id,omitempty"`
	Translation   map[string]string `json:"translation,omitempty"`
	SearchResults int               `json:"search_results,omitempty"`
}

// AudioAnswer is the response to an audio health question.
type AudioAnswer struct {
	Transcription         string   `json:"transcription"`
	TranscriptionLanguage string   `json:"transcription_language"`
	Response              string   `json:"response"`
	Confidence            *float64 `json:"confidence,omitempty"`
	Language              string   `json:"language"`
	ModelUsed             string   `json:"model_used,omitempty"`
	QueryID               string   `json:"query_id,omitempty"`
}

// HistoryItem is one past query from /user/history.
type HistoryItem struct {
	ID               string `json:"id"`
	QueryText        string `json:"query_text"`
	QueryLanguage    string `json:"query_language"`
	ResponseText     string `json:"response_text"`
	ResponseLanguage string `json:"response_language"`
	ConfidenceScore  string `json:"confidence_score,omitempty"`
	ModelUsed        string `json:"model_used,omitempty"`
	CreatedAt        string `json:"created_at"`
}

// HistoryPage is a page of past queries.
type HistoryPage struct {
	Queries    []HistoryItem `json:"queries"`
	TotalCount int           `json:"total_count"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
	TotalPages int           `json:"total_pages"`
}

// UsageAnalytics is the per-user usage summary from /logs/analytics.
type UsageAnalytics struct {
	AverageProcessingTime float64        `json:"average_processing_time"`
	ModelUsage            map[string]int `json:"model_usage"`
	DailyActivity         map[string]int `json:"daily_activity"`
}
