package http

import (
	"net/http"

	"github.com/programme-lv/anytime/httpjson"
)

func (httpserver *HttpServer) root(w http.ResponseWriter, r *http.Request) {
	httpjson.WriteJson(w, http.StatusOK, rootResponse{
		Message: "ANYTIME Contest API is running",
		Status:  "healthy",
		Version: apiVersion,
		Storage: string(httpserver.submSrvc.StorageMethod()),
	})
}

// health always answers 200, a degraded backend is reported in the body.
func (httpserver *HttpServer) health(w http.ResponseWriter, r *http.Request) {
	report := httpserver.submSrvc.Health(r.Context())

	resp := healthResponse{
		Status:        report.Status,
		Environment:   httpserver.opts.Environment,
		Database:      string(report.Database),
		StorageMethod: string(report.StorageMethod),
		LastError:     report.LastError,
		CorsOrigins:   httpserver.opts.AllowedOrigins,
		Timestamp:     formatTime(report.Timestamp),
	}
	for _, a := range report.Attempts {
		resp.Attempts = append(resp.Attempts, healthAttempt{
			Backend: string(a.Backend),
			Outcome: a.Outcome,
			Reason:  a.Reason,
		})
	}
	if resp.CorsOrigins == nil {
		resp.CorsOrigins = []string{}
	}

	httpjson.WriteJson(w, http.StatusOK, resp)
}
