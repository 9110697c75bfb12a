// Package conf reads the process configuration from the environment once
// at startup.
package conf

import (
	"context"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/programme-lv/anytime/submstore"
)

// Env looks up one configuration key, os.Getenv in production.
type Env func(key string) string

type Config struct {
	Environment string
	Host        string
	Port        int

	StorageBackend   string
	Storage          submstore.Credentials
	ReprobeInterval  time.Duration
	BackupEnabled    bool
	AllowedOrigins   []string
	AllowOriginRegex string
}

func (c Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

var defaultOrigins = []string{
	"http://localhost:3000",
	"http://127.0.0.1:3000",
	"http://localhost",
	"http://127.0.0.1",
}

const defaultOriginRegex = `https://.*\.vercel\.app`

// FromEnv loads the configuration from the process environment.
func FromEnv(ctx context.Context) (Config, error) {
	return Load(ctx, os.Getenv, GetSecretFromAWS)
}

func Load(ctx context.Context, getenv Env, secrets SecretFunc) (Config, error) {
	cfg := Config{
		Environment:      orDefault(getenv("ENVIRONMENT"), "development"),
		Host:             orDefault(getenv("HOST"), "0.0.0.0"),
		StorageBackend:   strings.ToLower(strings.TrimSpace(getenv("STORAGE_BACKEND"))),
		AllowOriginRegex: orDefault(getenv("CORS_ALLOW_ORIGIN_REGEX"), defaultOriginRegex),
	}

	var err error
	if cfg.Port, err = intFromEnv(getenv, "PORT", 8000, 65535); err != nil {
		return Config{}, err
	}

	poolSize, err := intFromEnv(getenv, "DB_POOL_MAX_SIZE", 10, math.MaxInt32)
	if err != nil {
		return Config{}, err
	}
	probeTimeout, err := durationFromEnv(getenv, "STORAGE_PROBE_TIMEOUT", submstore.ProbeTimeout)
	if err != nil {
		return Config{}, err
	}
	if cfg.ReprobeInterval, err = durationFromEnv(getenv, "STORAGE_REPROBE_INTERVAL", 0); err != nil {
		return Config{}, err
	}
	dbURL, err := databaseURL(ctx, getenv, secrets)
	if err != nil {
		return Config{}, err
	}

	cfg.Storage = submstore.Credentials{
		SupabaseURL:           getenv("SUPABASE_URL"),
		SupabaseAnonKey:       getenv("SUPABASE_ANON_KEY"),
		SheetsAPIKey:          getenv("GOOGLE_SHEETS_API_KEY"),
		SheetsCredentialsFile: getenv("GOOGLE_SHEETS_CREDENTIALS_FILE"),
		SheetID:               getenv("GOOGLE_SHEET_ID"),
		SheetRange:            orDefault(getenv("GOOGLE_SHEET_RANGE"), submstore.DefaultSheetRange),
		DatabaseURL:           dbURL,
		DBPoolMaxSize:         int32(poolSize),
		ProbeTimeout:          probeTimeout,
	}

	cfg.BackupEnabled = cfg.IsDevelopment()
	if v := getenv("BACKUP_ENDPOINT_ENABLED"); v != "" {
		if cfg.BackupEnabled, err = strconv.ParseBool(v); err != nil {
			return Config{}, fmt.Errorf("BACKUP_ENDPOINT_ENABLED: %w", err)
		}
	}

	origins := getenv("FRONTEND_ORIGINS")
	if origins == "" {
		origins = getenv("FRONTEND_ORIGIN")
	}
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
		}
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = append([]string(nil), defaultOrigins...)
	}

	return cfg, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// intFromEnv parses key as an integer in [0, limit].
func intFromEnv(getenv Env, key string, def, limit int) (int, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 || n > limit {
		return 0, fmt.Errorf("%s must be an integer between 0 and %d, got %q", key, limit, v)
	}
	return n, nil
}

// durationFromEnv accepts Go durations ("5s") and plain seconds ("5").
func durationFromEnv(getenv Env, key string, def time.Duration) (time.Duration, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%s must be a duration, got %q", key, v)
	}
	return d, nil
}
