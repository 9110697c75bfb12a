package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/programme-lv/anytime/submstore"
)

var storageVars = []struct {
	key, desc string
}{
	{"STORAGE_BACKEND", "storage backend selection"},
	{"SUPABASE_URL", "Supabase project URL (if using Supabase)"},
	{"SUPABASE_ANON_KEY", "Supabase anonymous key (if using Supabase)"},
	{"GOOGLE_SHEETS_API_KEY", "Google Sheets API key (if using Sheets)"},
	{"GOOGLE_SHEETS_CREDENTIALS_FILE", "service account file (if using Sheets without an API key)"},
	{"GOOGLE_SHEET_ID", "Google Sheets ID (if using Sheets)"},
	{"DATABASE_URL", "PostgreSQL connection string (if using PostgreSQL)"},
}

// mask keeps only a short prefix so that secrets never reach the terminal.
func mask(v string) string {
	if len(v) <= 8 {
		return strings.Repeat("*", len(v))
	}
	return v[:4] + "..."
}

func reportEnv(out io.Writer, getenv func(string) string) (configured int) {
	fmt.Fprintln(out, "Environment variables")
	var missing []string
	for _, v := range storageVars {
		val := getenv(v.key)
		if val == "" {
			fmt.Fprintf(out, "  - %s: not set (%s)\n", v.key, v.desc)
			missing = append(missing, v.key)
			continue
		}
		if v.key == "STORAGE_BACKEND" {
			fmt.Fprintf(out, "  + %s: %s\n", v.key, val)
		} else {
			fmt.Fprintf(out, "  + %s: %s\n", v.key, mask(val))
		}
		configured++
	}
	fmt.Fprintf(out, "  configured %d/%d\n", configured, len(storageVars))
	if len(missing) > 0 {
		fmt.Fprintf(out, "  missing: %s\n", strings.Join(missing, ", "))
	}
	return configured
}

func printHints(out io.Writer, backend string) {
	fmt.Fprintln(out, "\nSetup instructions")
	kind, err := submstore.ParseKind(backend)
	if err != nil {
		kind = submstore.KindMemory
	}
	var lines []string
	switch kind {
	case submstore.KindSupabase:
		lines = []string{
			"1. Create a Supabase project at https://supabase.com",
			"2. Create a table called 'submissions' with columns:",
			"   id TEXT PRIMARY KEY, name TEXT NOT NULL, email TEXT NOT NULL,",
			"   answer TEXT NOT NULL, timestamp TIMESTAMPTZ DEFAULT NOW()",
			"3. Set SUPABASE_URL and SUPABASE_ANON_KEY",
		}
	case submstore.KindSheets:
		lines = []string{
			"1. Create a Google Sheet with headers: ID, Name, Email, Answer, Timestamp",
			"2. Enable the Google Sheets API in the Google Cloud Console",
			"3. Create an API key restricted to the Sheets API",
			"4. Set GOOGLE_SHEETS_API_KEY and GOOGLE_SHEET_ID",
		}
	case submstore.KindPostgres:
		lines = []string{
			"1. Set up a PostgreSQL database",
			"2. Apply the migrations in migrate/",
			"3. Set DATABASE_URL",
		}
	default:
		lines = []string{
			"In-memory storage is active, data is lost on restart.",
			"Set up Supabase, Google Sheets or PostgreSQL for persistent storage.",
		}
	}
	for _, l := range lines {
		fmt.Fprintln(out, "  "+l)
	}
}
