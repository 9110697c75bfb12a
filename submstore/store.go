// Package submstore persists contest submissions in one of several
// interchangeable backends: a hosted document store (Supabase REST), a
// Google spreadsheet, a PostgreSQL database or process memory.
package submstore

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type Kind string

const (
	KindSupabase Kind = "supabase"
	KindSheets   Kind = "sheets"
	KindPostgres Kind = "postgres"
	KindMemory   Kind = "memory"
)

// DefaultOrder is the fallback priority used when no preference is set.
var DefaultOrder = []Kind{KindSupabase, KindSheets, KindPostgres, KindMemory}

func (k Kind) String() string { return string(k) }

// ParseKind maps a configured backend name to a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case KindSupabase, KindSheets, KindPostgres, KindMemory:
		return k, nil
	}
	return "", fmt.Errorf("unknown storage backend %q", s)
}

type HealthStatus string

const (
	Connected   HealthStatus = "connected"
	Degraded    HealthStatus = "degraded"
	Unreachable HealthStatus = "unreachable"
)

// ProbeTimeout bounds a single connectivity probe when the caller's
// context carries no earlier deadline.
const ProbeTimeout = 5 * time.Second

// Store is the storage contract every backend satisfies. Implementations
// are safe for concurrent use. Count and List of networked stores follow
// the provider's own consistency, so a just created submission may not be
// visible to them immediately.
type Store interface {
	Kind() Kind
	Create(ctx context.Context, subm NewSubmission) (Submission, error)
	Count(ctx context.Context) (int64, error)
	// List returns at most limit submissions, newest first.
	List(ctx context.Context, limit int) ([]Submission, error)
	// Health performs an on-demand connectivity check.
	Health(ctx context.Context) HealthStatus
	Close() error
}

// Credentials carries the configuration of every backend. Each backend
// reads only its own fields.
type Credentials struct {
	SupabaseURL     string
	SupabaseAnonKey string

	SheetsAPIKey          string
	SheetsCredentialsFile string
	SheetID               string
	SheetRange            string

	DatabaseURL   string
	DBPoolMaxSize int32

	ProbeTimeout time.Duration
}

func (c Credentials) probeTimeout() time.Duration {
	if c.ProbeTimeout <= 0 {
		return ProbeTimeout
	}
	return c.ProbeTimeout
}
