package http

import (
	"time"

	"github.com/programme-lv/anytime/submstore"
)

type rootResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
	Version string `json:"version"`
	Storage string `json:"storage"`
}

type healthAttempt struct {
	Backend string `json:"backend"`
	Outcome string `json:"outcome"`
	Reason  string `json:"reason,omitempty"`
}

type healthResponse struct {
	Status        string          `json:"status"`
	Environment   string          `json:"environment"`
	Database      string          `json:"database"`
	StorageMethod string          `json:"storage_method"`
	LastError     string          `json:"last_error,omitempty"`
	Attempts      []healthAttempt `json:"attempts,omitempty"`
	CorsOrigins   []string        `json:"cors_origins"`
	Timestamp     string          `json:"timestamp"`
}

type submitRequest struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Answer string `json:"answer"`
	// Timestamp is accepted for compatibility with older forms and
	// ignored, the store assigns the time.
	Timestamp string `json:"timestamp,omitempty"`
}

type submitResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	SubmissionID string `json:"submission_id,omitempty"`
}

type countResponse struct {
	TotalSubmissions int64  `json:"total_submissions"`
	StorageMethod    string `json:"storage_method"`
	Timestamp        string `json:"timestamp"`
}

type Submission struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Answer    string `json:"answer"`
	Timestamp string `json:"timestamp"`
}

type backupResponse struct {
	TotalSubmissions int          `json:"total_submissions"`
	Submissions      []Submission `json:"submissions"`
	StorageMethod    string       `json:"storage_method"`
	Timestamp        string       `json:"timestamp"`
}

func mapSubm(s submstore.Submission) Submission {
	return Submission{
		ID:        s.ID,
		Name:      s.Name,
		Email:     s.Email,
		Answer:    s.Answer,
		Timestamp: formatTime(s.Timestamp),
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nowString() string {
	return formatTime(time.Now())
}

