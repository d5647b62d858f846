package common

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestErrorKind(t *testing.T) {
	require.Equal(t, "", ErrorKind(nil))
	require.Equal(t, "TimeoutExceeded", ErrorKind(fmt.Errorf("batch: %w", ErrTimeoutExceeded)))
	require.Equal(t, "JudgeProtocolError", ErrorKind(fmt.Errorf("get batch: %w", ErrJudgeProtocol)))
	require.Equal(t, "InvalidRequest", ErrorKind(ErrBadRequest))
	require.Equal(t, "Internal", ErrorKind(errors.New("boom")))
}

func TestHTTPStatusFromError(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{fmt.Errorf("x: %w", ErrNotFound), http.StatusNotFound},
		{ErrInvalidRequest, http.StatusBadRequest},
		{ErrJudgeUnavailable, http.StatusServiceUnavailable},
		{ErrJudgeUnreachable, http.StatusBadGateway},
		{ErrTimeoutExceeded, http.StatusGatewayTimeout},
		{&pgconn.PgError{Code: "23505"}, http.StatusConflict},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		require.Equal(t, c.want, HTTPStatusFromError(c.err), "%v", c.err)
	}
}
