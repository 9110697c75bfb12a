// Package httpjson writes JSON responses and maps service errors to them.
package httpjson

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/programme-lv/anytime/srvcerror"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Status  string `json:"status"` // always "error"
	ErrCode string `json:"code"`
	ErrMsg  string `json:"message"`
}

// WriteJson writes body as-is. Successful responses keep the flat shapes
// the contest form consumes, so there is no success envelope.
func WriteJson(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

func WriteErrorJson(w http.ResponseWriter, errMsg string, statusCode int, errCode string) {
	WriteJson(w, statusCode, ErrorResponse{
		Status:  "error",
		ErrMsg:  errMsg,
		ErrCode: errCode,
	})
}

// HandleError writes err as an error response. Errors that are not
// *srvcerror.Error become a generic internal error so that nothing
// internal leaks to the client.
func HandleError(logger *slog.Logger, w http.ResponseWriter, err error) {
	srvcErr := &srvcerror.Error{}
	if !errors.As(err, &srvcErr) {
		srvcErr = srvcerror.Internal(err)
	}

	level := slog.LevelWarn
	if srvcErr.HttpStatusCode() >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logger.Log(context.Background(), level, "request failed", "error", srvcErr)

	WriteErrorJson(w, srvcErr.Error(), srvcErr.HttpStatusCode(), srvcErr.ErrorCode())
}
