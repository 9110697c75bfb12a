package submstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultPgPoolMaxSize  = 10
	pgPoolMaxConnIdleTime = 300 * time.Second
)

// PgStore persists submissions in a PostgreSQL "submissions" table that
// has been provisioned in advance (see migrate/).
type PgStore struct {
	pool    *pgxpool.Pool
	timeout time.Duration // bounds health checks
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool, timeout: ProbeTimeout}
}

// OpenPgStore connects to DatabaseURL and checks that the submissions
// table exists. It never creates or alters the schema.
func OpenPgStore(ctx context.Context, creds Credentials) (Store, error) {
	if creds.DatabaseURL == "" {
		return nil, missingCredential(KindPostgres, "DATABASE_URL is not set")
	}
	cfg, err := pgxpool.ParseConfig(creds.DatabaseURL)
	if err != nil {
		return nil, missingCredential(KindPostgres, "parse DATABASE_URL: %w", err)
	}
	cfg.MaxConns = defaultPgPoolMaxSize
	if creds.DBPoolMaxSize > 0 {
		cfg.MaxConns = creds.DBPoolMaxSize
	}
	cfg.MinConns = 1
	cfg.MaxConnIdleTime = pgPoolMaxConnIdleTime
	cfg.ConnConfig.ConnectTimeout = creds.probeTimeout()

	probeCtx, cancel := context.WithTimeout(ctx, creds.probeTimeout())
	defer cancel()

	pool, err := pgxpool.NewWithConfig(probeCtx, cfg)
	if err != nil {
		return nil, unreachable(KindPostgres, err)
	}
	if err := pool.Ping(probeCtx); err != nil {
		pool.Close()
		if isPgAuthErr(err) {
			return nil, authRejected(KindPostgres, err)
		}
		return nil, unreachable(KindPostgres, err)
	}

	store := NewPgStore(pool)
	store.timeout = creds.probeTimeout()
	exists, err := store.tableExists(probeCtx)
	if err != nil {
		pool.Close()
		return nil, unreachable(KindPostgres, err)
	}
	if !exists {
		pool.Close()
		return nil, unreachable(KindPostgres, errors.New("table submissions does not exist"))
	}
	return store, nil
}

func (s *PgStore) Kind() Kind { return KindPostgres }

func (s *PgStore) tableExists(ctx context.Context) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT to_regclass('public.submissions') IS NOT NULL`).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check submissions table: %w", err)
	}
	return exists, nil
}

// Create stores the submission with the database clock as its timestamp.
func (s *PgStore) Create(ctx context.Context, in NewSubmission) (Submission, error) {
	insertQuery := `
		INSERT INTO submissions (id, name, email, answer, "timestamp")
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING "timestamp"
	`
	subm := Submission{
		ID:     newSubmID(),
		Name:   in.Name,
		Email:  in.Email,
		Answer: in.Answer,
	}
	err := s.pool.QueryRow(ctx, insertQuery, subm.ID, subm.Name, subm.Email, subm.Answer).Scan(&subm.Timestamp)
	if err != nil {
		err = fmt.Errorf("failed to insert submission: %w", err)
		if isPgDataErr(err) {
			return Submission{}, writeRejected(KindPostgres, err)
		}
		return Submission{}, writeTransient(KindPostgres, err)
	}
	subm.Timestamp = subm.Timestamp.UTC()
	return subm, nil
}

func (s *PgStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM submissions`).Scan(&count)
	if err != nil {
		return 0, readTransient(KindPostgres, fmt.Errorf("failed to count submissions: %w", err))
	}
	return count, nil
}

func (s *PgStore) List(ctx context.Context, limit int) ([]Submission, error) {
	listQuery := `
		SELECT id, name, email, answer, "timestamp"
		FROM submissions
		ORDER BY "timestamp" DESC
		LIMIT $1
	`
	rows, err := s.pool.Query(ctx, listQuery, limit)
	if err != nil {
		return nil, readTransient(KindPostgres, fmt.Errorf("failed to query submissions: %w", err))
	}
	defer rows.Close()

	var subms []Submission
	for rows.Next() {
		var subm Submission
		err := rows.Scan(&subm.ID, &subm.Name, &subm.Email, &subm.Answer, &subm.Timestamp)
		if err != nil {
			return nil, readTransient(KindPostgres, fmt.Errorf("failed to scan submission: %w", err))
		}
		subm.Timestamp = subm.Timestamp.UTC()
		subms = append(subms, subm)
	}
	if err := rows.Err(); err != nil {
		return nil, readTransient(KindPostgres, fmt.Errorf("error iterating submissions: %w", err))
	}
	return subms, nil
}

func (s *PgStore) Health(ctx context.Context) HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.pool.Ping(ctx); err != nil {
		return Unreachable
	}
	exists, err := s.tableExists(ctx)
	if err != nil || !exists {
		return Degraded
	}
	return Connected
}

func (s *PgStore) Close() error {
	s.pool.Close()
	return nil
}

// isPgAuthErr reports SQLSTATE class 28 (invalid authorization).
func isPgAuthErr(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "28")
}

// isPgDataErr reports SQLSTATE classes 22 (data exception) and 23
// (integrity constraint violation).
func isPgDataErr(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return strings.HasPrefix(pgErr.Code, "22") || strings.HasPrefix(pgErr.Code, "23")
}
