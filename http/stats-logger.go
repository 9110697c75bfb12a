package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

type endpointStats struct {
	count     int
	errors    int
	totalTime time.Duration
}

// statsLogger periodically logs request counts and average latency per
// route.
type statsLogger struct {
	logger        *slog.Logger
	stats         map[string]*endpointStats
	mu            sync.Mutex
	flushInterval time.Duration
	done          chan struct{}
	stopOnce      sync.Once
}

func newStatsLogger(logger *slog.Logger, flushInterval time.Duration) *statsLogger {
	sl := &statsLogger{
		logger:        logger,
		stats:         make(map[string]*endpointStats),
		flushInterval: flushInterval,
		done:          make(chan struct{}),
	}
	go sl.periodicFlush()
	return sl
}

func (sl *statsLogger) periodicFlush() {
	ticker := time.NewTicker(sl.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			sl.flushStats()
		case <-sl.done:
			sl.flushStats()
			return
		}
	}
}

func (sl *statsLogger) stop() {
	sl.stopOnce.Do(func() { close(sl.done) })
}

func (sl *statsLogger) flushStats() {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	for endpoint, stats := range sl.stats {
		if stats.count == 0 {
			continue
		}
		avgTimeMs := float64(stats.totalTime.Microseconds()) / float64(stats.count) / 1000.0
		sl.logger.Info("endpoint stats",
			"endpoint", endpoint,
			"count", stats.count,
			"errors", stats.errors,
			"avg_time_ms", fmt.Sprintf("%.2f", avgTimeMs),
			"period", sl.flushInterval,
		)
		delete(sl.stats, endpoint)
	}
}

func (sl *statsLogger) record(endpoint string, status int, took time.Duration) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	st, ok := sl.stats[endpoint]
	if !ok {
		st = &endpointStats{}
		sl.stats[endpoint] = st
	}
	st.count++
	st.totalTime += took
	if status >= http.StatusInternalServerError {
		st.errors++
	}
}

func (sl *statsLogger) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		// the route pattern keeps unknown paths from growing the map
		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unmatched"
		}
		sl.record(fmt.Sprintf("%s %s", r.Method, pattern), sw.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
