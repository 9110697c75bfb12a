package submstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

const supabaseTable = "submissions"

// SupabaseStore talks to the PostgREST API of a Supabase project. The
// table must already exist with columns id, name, email, answer and
// timestamp (default now()).
type SupabaseStore struct {
	baseURL *url.URL
	key     string
	client  *http.Client
	timeout time.Duration // bounds probes and health checks
}

// OpenSupabaseStore validates the project URL and anon key and performs an
// authenticated one-row select against the submissions table.
func OpenSupabaseStore(ctx context.Context, creds Credentials) (Store, error) {
	if creds.SupabaseURL == "" {
		return nil, missingCredential(KindSupabase, "SUPABASE_URL is not set")
	}
	if creds.SupabaseAnonKey == "" {
		return nil, missingCredential(KindSupabase, "SUPABASE_ANON_KEY is not set")
	}
	u, err := url.Parse(strings.TrimRight(creds.SupabaseURL, "/"))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, missingCredential(KindSupabase, "SUPABASE_URL must be an absolute http(s) url")
	}

	s := &SupabaseStore{
		baseURL: u,
		key:     creds.SupabaseAnonKey,
		client:  cleanhttp.DefaultPooledClient(),
		timeout: creds.probeTimeout(),
	}

	probeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.do(probeCtx, http.MethodGet, url.Values{"select": {"id"}, "limit": {"1"}}, nil, nil)
	if err != nil {
		return nil, unreachable(KindSupabase, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, authRejected(KindSupabase, responseErr(resp))
	case resp.StatusCode >= 300:
		return nil, unreachable(KindSupabase, responseErr(resp))
	}
	return s, nil
}

func (s *SupabaseStore) Kind() Kind { return KindSupabase }

type supabaseRow struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Email     string       `json:"email"`
	Answer    string       `json:"answer"`
	Timestamp supabaseTime `json:"timestamp"`
}

func (r supabaseRow) toSubmission() Submission {
	return Submission{
		ID:        r.ID,
		Name:      r.Name,
		Email:     r.Email,
		Answer:    r.Answer,
		Timestamp: time.Time(r.Timestamp).UTC(),
	}
}

// supabaseTime accepts both timestamptz and timestamp renderings.
type supabaseTime time.Time

var supabaseTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02 15:04:05",
}

func (t *supabaseTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*t = supabaseTime{}
		return nil
	}
	for _, layout := range supabaseTimeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t = supabaseTime(parsed)
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

// Create inserts the row without a timestamp so that the column default
// assigns the database time, then reads it back from the representation.
func (s *SupabaseStore) Create(ctx context.Context, in NewSubmission) (Submission, error) {
	payload := map[string]string{
		"id":     newSubmID(),
		"name":   in.Name,
		"email":  in.Email,
		"answer": in.Answer,
	}
	body, err := json.Marshal([]map[string]string{payload})
	if err != nil {
		return Submission{}, writeRejected(KindSupabase, err)
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Prefer", "return=representation")
	resp, err := s.do(ctx, http.MethodPost, nil, header, body)
	if err != nil {
		return Submission{}, writeTransient(KindSupabase, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		err := responseErr(resp)
		if isTransientStatus(resp.StatusCode) {
			return Submission{}, writeTransient(KindSupabase, err)
		}
		return Submission{}, writeRejected(KindSupabase, err)
	}

	var rows []supabaseRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return Submission{}, writeTransient(KindSupabase, fmt.Errorf("decode insert response: %w", err))
	}
	if len(rows) == 0 {
		return Submission{}, writeRejected(KindSupabase, errors.New("no data returned from insert"))
	}
	subm := rows[0].toSubmission()
	if subm.Timestamp.IsZero() {
		subm.Timestamp = time.Now().UTC()
	}
	return subm, nil
}

// Count uses PostgREST exact counting. Supabase read replicas may lag
// behind the primary, so the number is eventually consistent.
func (s *SupabaseStore) Count(ctx context.Context) (int64, error) {
	header := http.Header{}
	header.Set("Prefer", "count=exact")
	header.Set("Range-Unit", "items")
	header.Set("Range", "0-0")
	resp, err := s.do(ctx, http.MethodHead, url.Values{"select": {"id"}}, header, nil)
	if err != nil {
		return 0, readTransient(KindSupabase, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return 0, readTransient(KindSupabase, responseErr(resp))
	}
	count, err := parseContentRangeTotal(resp.Header.Get("Content-Range"))
	if err != nil {
		return 0, readTransient(KindSupabase, err)
	}
	return count, nil
}

func (s *SupabaseStore) List(ctx context.Context, limit int) ([]Submission, error) {
	query := url.Values{
		"select": {"*"},
		"order":  {"timestamp.desc"},
		"limit":  {strconv.Itoa(limit)},
	}
	resp, err := s.do(ctx, http.MethodGet, query, nil, nil)
	if err != nil {
		return nil, readTransient(KindSupabase, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, readTransient(KindSupabase, responseErr(resp))
	}

	var rows []supabaseRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, readTransient(KindSupabase, fmt.Errorf("decode list response: %w", err))
	}
	subms := make([]Submission, 0, len(rows))
	for _, row := range rows {
		subms = append(subms, row.toSubmission())
	}
	return subms, nil
}

func (s *SupabaseStore) Health(ctx context.Context) HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	resp, err := s.do(ctx, http.MethodGet, url.Values{"select": {"id"}, "limit": {"1"}}, nil, nil)
	if err != nil {
		return Unreachable
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return Degraded
	}
	return Connected
}

func (s *SupabaseStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *SupabaseStore) do(
	ctx context.Context,
	method string,
	query url.Values,
	header http.Header,
	body []byte,
) (*http.Response, error) {
	u := s.baseURL.JoinPath("rest", "v1", supabaseTable)
	u.RawQuery = query.Encode()

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return nil, err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("apikey", s.key)
	req.Header.Set("Authorization", "Bearer "+s.key)
	req.Header.Set("Accept", "application/json")
	return s.client.Do(req)
}

func responseErr(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var pgrstErr struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	}
	if json.Unmarshal(msg, &pgrstErr) == nil && pgrstErr.Message != "" {
		return fmt.Errorf("status %d: %s (%s)", resp.StatusCode, pgrstErr.Message, pgrstErr.Code)
	}
	return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
}

func isTransientStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500
}

// parseContentRangeTotal reads the total from "0-0/42" or "*/0".
func parseContentRangeTotal(v string) (int64, error) {
	i := strings.LastIndexByte(v, '/')
	if i < 0 || i == len(v)-1 {
		return 0, fmt.Errorf("content-range %q carries no total", v)
	}
	total := v[i+1:]
	if total == "*" {
		return 0, fmt.Errorf("content-range %q carries no exact count", v)
	}
	n, err := strconv.ParseInt(total, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse content-range %q: %w", v, err)
	}
	return n, nil
}
