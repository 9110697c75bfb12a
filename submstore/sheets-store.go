package submstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const DefaultSheetRange = "Sheet1!A:E"

// The Sheets API allows 100 requests per 100 seconds per user. Health
// checks get their own limiter of one upstream call per 30s, which spends
// at most 4 requests of a window. Data calls may burst 10 and refill at
// 0.85/s, so together they never exceed the quota in any 100s window.
const (
	sheetsDataBurst   = 10
	sheetsDataRate    = rate.Limit(0.85)
	sheetsHealthEvery = 30 * time.Second
)

func newSheetsLimiters() (data, health *rate.Limiter) {
	return rate.NewLimiter(sheetsDataRate, sheetsDataBurst),
		rate.NewLimiter(rate.Every(sheetsHealthEvery), 1)
}

var sheetRangeRe = regexp.MustCompile(`^('[^']+'|[^!']+)![A-Za-z]+[0-9]*:[A-Za-z]+[0-9]*$`)

// SheetsStore appends submissions as rows of a Google spreadsheet. The
// range columns are id, name, email, answer, timestamp and the header row
// is provisioned by hand.
type SheetsStore struct {
	srv        *sheets.Service
	sheetID    string
	sheetRange string
	limiter    *rate.Limiter // data calls
	healthLim  *rate.Limiter
	timeout    time.Duration
	lastHealth atomic.Value // HealthStatus
}

// OpenSheetsStore validates the sheet coordinates and fetches the
// spreadsheet id as a cheap authenticated probe.
func OpenSheetsStore(ctx context.Context, creds Credentials, opts ...option.ClientOption) (Store, error) {
	if creds.SheetsAPIKey == "" && creds.SheetsCredentialsFile == "" {
		return nil, missingCredential(KindSheets, "GOOGLE_SHEETS_API_KEY is not set")
	}
	if creds.SheetID == "" {
		return nil, missingCredential(KindSheets, "GOOGLE_SHEET_ID is not set")
	}
	sheetRange := creds.SheetRange
	if sheetRange == "" {
		sheetRange = DefaultSheetRange
	}
	if !sheetRangeRe.MatchString(sheetRange) {
		return nil, missingCredential(KindSheets, "GOOGLE_SHEET_RANGE %q is not of the form SheetName!A:E", sheetRange)
	}

	if creds.SheetsCredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(creds.SheetsCredentialsFile))
	} else {
		opts = append(opts, option.WithAPIKey(creds.SheetsAPIKey))
	}
	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, missingCredential(KindSheets, "create sheets client: %w", err)
	}

	s := &SheetsStore{
		srv:        srv,
		sheetID:    creds.SheetID,
		sheetRange: sheetRange,
		timeout:    creds.probeTimeout(),
	}
	s.limiter, s.healthLim = newSheetsLimiters()

	probeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.probe(probeCtx); err != nil {
		if isGoogleAuthErr(err) {
			return nil, authRejected(KindSheets, err)
		}
		return nil, unreachable(KindSheets, err)
	}
	s.lastHealth.Store(Connected)
	return s, nil
}

func (s *SheetsStore) Kind() Kind { return KindSheets }

func (s *SheetsStore) probe(ctx context.Context) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := s.srv.Spreadsheets.Get(s.sheetID).Fields("spreadsheetId").Context(ctx).Do()
	return err
}

func (s *SheetsStore) Create(ctx context.Context, in NewSubmission) (Submission, error) {
	subm := Submission{
		ID:        newSubmID(),
		Name:      in.Name,
		Email:     in.Email,
		Answer:    in.Answer,
		Timestamp: time.Now().UTC(),
	}
	row := []interface{}{subm.ID, subm.Name, subm.Email, subm.Answer, subm.Timestamp.Format(time.RFC3339Nano)}

	if err := s.limiter.Wait(ctx); err != nil {
		return Submission{}, writeTransient(KindSheets, fmt.Errorf("sheets quota: %w", err))
	}
	resp, err := s.srv.Spreadsheets.Values.Append(s.sheetID, s.sheetRange, &sheets.ValueRange{
		Values: [][]interface{}{row},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code < 500 && gerr.Code != http.StatusTooManyRequests {
			return Submission{}, writeRejected(KindSheets, err)
		}
		return Submission{}, writeTransient(KindSheets, err)
	}
	if resp.Updates == nil || resp.Updates.UpdatedRows != 1 {
		return Submission{}, writeTransient(KindSheets, errors.New("append was not acknowledged for exactly one row"))
	}
	return subm, nil
}

func (s *SheetsStore) rows(ctx context.Context) ([][]interface{}, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("sheets quota: %w", err)
	}
	vr, err := s.srv.Spreadsheets.Values.Get(s.sheetID, s.sheetRange).MajorDimension("ROWS").Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	rows := vr.Values
	if len(rows) > 0 && len(rows[0]) > 0 && strings.EqualFold(fmt.Sprint(rows[0][0]), "id") {
		rows = rows[1:]
	}
	return rows, nil
}

// Count returns the number of data rows. Values read right after an
// append may not include it yet.
func (s *SheetsStore) Count(ctx context.Context) (int64, error) {
	rows, err := s.rows(ctx)
	if err != nil {
		return 0, readTransient(KindSheets, err)
	}
	return int64(len(rows)), nil
}

func (s *SheetsStore) List(ctx context.Context, limit int) ([]Submission, error) {
	rows, err := s.rows(ctx)
	if err != nil {
		return nil, readTransient(KindSheets, err)
	}
	subms := make([]Submission, 0, min(len(rows), max(limit, 0)))
	for i := len(rows) - 1; i >= 0 && len(subms) < limit; i-- {
		subms = append(subms, rowToSubmission(rows[i]))
	}
	return subms, nil
}

func rowToSubmission(row []interface{}) Submission {
	cell := func(i int) string {
		if i < len(row) {
			return fmt.Sprint(row[i])
		}
		return ""
	}
	ts, _ := time.Parse(time.RFC3339Nano, cell(4))
	return Submission{
		ID:        cell(0),
		Name:      cell(1),
		Email:     cell(2),
		Answer:    cell(3),
		Timestamp: ts,
	}
}

// Health calls the API at most once per sheetsHealthEvery and answers
// with the previous result in between. It never draws from the quota of
// submissions.
func (s *SheetsStore) Health(ctx context.Context) HealthStatus {
	if !s.healthLim.Allow() {
		if last, ok := s.lastHealth.Load().(HealthStatus); ok {
			return last
		}
		return Degraded
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	status := Connected
	_, err := s.srv.Spreadsheets.Get(s.sheetID).Fields("spreadsheetId").Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			status = Degraded
		} else {
			status = Unreachable
		}
	}
	s.lastHealth.Store(status)
	return status
}

func (s *SheetsStore) Close() error {
	return nil
}

func isGoogleAuthErr(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	return gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden
}
