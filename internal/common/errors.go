package common

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound           = errors.New("requested resource not found")
	ErrUnauthorized       = errors.New("unauthorized access")
	ErrForbidden          = errors.New("forbidden access")
	ErrBadRequest         = errors.New("bad request")
	ErrConflict           = errors.New("resource conflict")
	ErrInternalServer     = errors.New("internal server error")
	ErrServiceUnavailable = errors.New("service unavailable")
)

// Evaluation pipeline failures.
var (
	ErrInvalidRequest     = errors.New("invalid request")
	ErrJudgeUnavailable   = errors.New("judge0 is not available")
	ErrJudgeUnreachable   = errors.New("judge0 unreachable")
	ErrJudgeProtocol      = errors.New("unexpected judge0 response")
	ErrNoTokensReceived   = errors.New("judge0 returned no submission tokens")
	ErrTimeoutExceeded    = errors.New("timed out waiting for judge0 results")
	ErrBackendRejected    = errors.New("backend rejected the results")
	ErrBackendUnreachable = errors.New("backend unreachable")
)

var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrInvalidRequest, "InvalidRequest"},
	{ErrJudgeUnavailable, "JudgeUnavailable"},
	{ErrJudgeUnreachable, "JudgeUnreachable"},
	{ErrJudgeProtocol, "JudgeProtocolError"},
	{ErrNoTokensReceived, "NoTokensReceived"},
	{ErrTimeoutExceeded, "TimeoutExceeded"},
	{ErrBackendRejected, "BackendRejected"},
	{ErrBackendUnreachable, "BackendUnreachable"},
	{ErrNotFound, "NotFound"},
	{ErrBadRequest, "InvalidRequest"},
}

// ErrorKind names the failure category of err. Unknown errors are "Internal".
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "Internal"
}

// HTTPStatusFromError maps domain errors to HTTP status codes.
func HTTPStatusFromError(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrUnauthorized) {
		return http.StatusUnauthorized
	}
	if errors.Is(err, ErrForbidden) {
		return http.StatusForbidden
	}
	if errors.Is(err, ErrBadRequest) || errors.Is(err, ErrInvalidRequest) {
		return http.StatusBadRequest
	}
	if errors.Is(err, ErrConflict) {
		return http.StatusConflict
	}
	if errors.Is(err, ErrServiceUnavailable) || errors.Is(err, ErrJudgeUnavailable) {
		return http.StatusServiceUnavailable
	}
	if errors.Is(err, ErrJudgeUnreachable) || errors.Is(err, ErrJudgeProtocol) ||
		errors.Is(err, ErrBackendRejected) || errors.Is(err, ErrBackendUnreachable) {
		return http.StatusBadGateway
	}
	if errors.Is(err, ErrTimeoutExceeded) {
		return http.StatusGatewayTimeout
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" { // unique violation
			return http.StatusConflict
		}
	}

	return http.StatusInternalServerError
}

// Errorf creates a new error with formatting, useful for wrapping.
func Errorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
