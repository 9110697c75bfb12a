package selector

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/programme-lv/anytime/submstore"
)

const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// Report is the health view of the active backend.
type Report struct {
	Status        string
	Database      submstore.HealthStatus
	StorageMethod submstore.Kind
	LastError     string
	Attempts      []AttemptReport
	SelectedAt    time.Time
	Timestamp     time.Time
}

type AttemptReport struct {
	Backend submstore.Kind
	Outcome string
	Reason  string
}

// Report checks the active backend synchronously. Before selection it
// reports degraded with an unreachable database.
func (s *Selector) Report(ctx context.Context) Report {
	h := s.Active()
	if h == nil {
		return Report{
			Status:    StatusDegraded,
			Database:  submstore.Unreachable,
			LastError: "storage backend not selected",
			Timestamp: s.now().UTC(),
		}
	}

	db := h.CheckHealth(ctx)
	r := Report{
		Status:        StatusDegraded,
		Database:      db,
		StorageMethod: h.Kind(),
		SelectedAt:    h.SelectedAt(),
		Timestamp:     s.now().UTC(),
	}
	if db == submstore.Connected {
		r.Status = StatusHealthy
	}
	if err := h.LastError(); err != nil {
		r.LastError = sanitizeErrorMessage(err.Error())
	}
	for _, a := range h.Attempts() {
		r.Attempts = append(r.Attempts, AttemptReport{
			Backend: a.Backend,
			Outcome: a.Outcome,
			Reason:  a.ReasonCode(),
		})
	}
	return r
}

var (
	urlRegex        = regexp.MustCompile(`[a-z][a-z0-9+.-]*://[^\s]+`)
	credentialRegex = regexp.MustCompile(`(?i)(password|token|key|secret|apikey)[^a-zA-Z\s]*[:=][^,\s}]+`)
)

// sanitizeErrorMessage strips urls and credential-looking values, which
// may embed connection strings or api keys.
func sanitizeErrorMessage(msg string) string {
	msg = urlRegex.ReplaceAllString(msg, "[URL]")
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "password") || strings.Contains(lower, "key") ||
		strings.Contains(lower, "token") || strings.Contains(lower, "secret") {
		msg = credentialRegex.ReplaceAllString(msg, "[REDACTED]")
	}
	return msg
}
