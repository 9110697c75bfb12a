package http

import (
	"log/slog"
	"net/http"
	"regexp"
	"slices"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/programme-lv/anytime/logger"
	"github.com/programme-lv/anytime/submsrvc"
	"golang.org/x/sync/singleflight"
)

const apiVersion = "5.0.0"

type Options struct {
	Environment      string
	AllowedOrigins   []string
	AllowOriginRegex string
	BackupEnabled    bool
	// StatsInterval is how often endpoint stats are logged, zero disables.
	StatsInterval time.Duration
	Logger        *slog.Logger
}

type HttpServer struct {
	submSrvc *submsrvc.SubmSrvc
	router   *chi.Mux
	opts     Options
	logger   *slog.Logger
	stats    *statsLogger

	counts     *cache.Cache
	countGroup singleflight.Group
	countGen   atomic.Uint64 // bumped by every stored submission
}

func NewHttpServer(submSrvc *submsrvc.SubmSrvc, opts Options) (*HttpServer, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	var originRegex *regexp.Regexp
	if opts.AllowOriginRegex != "" {
		re, err := regexp.Compile("^" + opts.AllowOriginRegex + "$")
		if err != nil {
			return nil, err
		}
		originRegex = re
	}

	router := chi.NewRouter()

	reqLogger := httplog.NewLogger("anytime", httplog.Options{
		LogLevel:         slog.LevelInfo,
		JSON:             opts.Environment != "development",
		Concise:          true,
		RequestHeaders:   false,
		MessageFieldName: "message",
		QuietDownRoutes:  []string{"/health", "/metrics"},
		QuietDownPeriod:  time.Minute,
		Tags: map[string]string{
			"version": apiVersion,
			"env":     opts.Environment,
		},
	})

	router.Use(middleware.RequestID)
	router.Use(requestContextLogger(opts.Logger))
	router.Use(httplog.RequestLogger(reqLogger))
	router.Use(middleware.Recoverer)

	router.Use(cors.Handler(cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			if slices.Contains(opts.AllowedOrigins, origin) {
				return true
			}
			return originRegex != nil && originRegex.MatchString(origin)
		},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           3000,
	}))
	router.Use(securityHeaders)

	server := &HttpServer{
		submSrvc: submSrvc,
		router:   router,
		opts:     opts,
		logger:   opts.Logger,
		counts:   cache.New(countCacheTTL, 10*countCacheTTL),
	}

	if opts.StatsInterval > 0 {
		server.stats = newStatsLogger(opts.Logger, opts.StatsInterval)
		router.Use(server.stats.middleware)
	}

	server.routes()

	opts.Logger.Info("CORS configured",
		"allowed_origins", opts.AllowedOrigins,
		"allow_origin_regex", opts.AllowOriginRegex)

	return server, nil
}

func (httpserver *HttpServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	httpserver.router.ServeHTTP(w, r)
}

// Close stops the background stats logger.
func (httpserver *HttpServer) Close() {
	if httpserver.stats != nil {
		httpserver.stats.stop()
	}
}

func (httpserver *HttpServer) routes() {
	r := httpserver.router
	r.Get("/", httpserver.root)
	r.Get("/health", httpserver.health)
	r.Post("/submit", httpserver.createSubmission)
	r.Options("/submit", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/submissions/count", httpserver.countSubmissions)
	if httpserver.opts.BackupEnabled {
		r.Get("/submissions/backup", httpserver.backupSubmissions)
	}
	r.Handle("/metrics", promhttp.Handler())
}

// requestContextLogger puts a logger carrying the request id into the
// request context for the service layer.
func requestContextLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := logger.WithLogger(r.Context(), base)
			ctx = logger.WithRequestID(ctx, middleware.GetReqID(r.Context()))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

