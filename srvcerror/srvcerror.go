// Package srvcerror carries user facing errors from the service layer to
// the transport. Only the code and message are ever sent to the client.
package srvcerror

import (
	"log/slog"
	"net/http"
)

type Error struct {
	code   string
	msg    string
	status int
	debug  error // logged, never returned to the client
}

func New(code string, msgToUser string) *Error {
	return &Error{code: code, msg: msgToUser}
}

func (e *Error) Error() string {
	return e.msg
}

func (e *Error) ErrorCode() string {
	return e.code
}

func (e *Error) DebugInfo() error {
	return e.debug
}

func (e *Error) Unwrap() error {
	return e.debug
}

// Is matches errors by code, so a freshly constructed error can be used
// as a target.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.code == e.code
}

func (e *Error) SetDebug(err error) *Error {
	e.debug = err
	return e
}

func (e *Error) HttpStatusCode() int {
	if e.status == 0 {
		return http.StatusInternalServerError
	}
	return e.status
}

func (e *Error) SetHttpStatusCode(code int) *Error {
	e.status = code
	return e
}

func (e *Error) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("code", e.code),
		slog.Int("status", e.HttpStatusCode()),
		slog.String("message", e.msg),
	}
	if e.debug != nil {
		attrs = append(attrs, slog.String("debug", e.debug.Error()))
	}
	return slog.GroupValue(attrs...)
}

const ErrCodeInternalServerError = "internal_server_error"

// Internal wraps an unexpected error.
func Internal(err error) *Error {
	return New(ErrCodeInternalServerError, "internal server error").
		SetHttpStatusCode(http.StatusInternalServerError).
		SetDebug(err)
}
