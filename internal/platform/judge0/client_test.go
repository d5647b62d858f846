package judge0

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anheplast/curiosmaze/internal/common"
	"github.com/anheplast/curiosmaze/internal/domain/model"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Options{BaseURL: srv.URL + "/", AuthToken: "secret", HTTPTimeout: 5 * time.Second})
}

func TestCheckAvailability(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/statuses", r.URL.Path)
		require.Equal(t, "secret", r.Header.Get("X-Auth-Token"))
		w.Write([]byte(`[{"id":1,"description":"In Queue"}]`))
	})
	av := c.CheckAvailability(context.Background())
	require.True(t, av.IsAvailable)
	require.NotEmpty(t, av.Message)

	down := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	av = down.CheckAvailability(context.Background())
	require.False(t, av.IsAvailable)
	require.Contains(t, av.Message, "502")

	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	av = NewClient(Options{BaseURL: srv.URL, ProbeTimeout: time.Second}).CheckAvailability(context.Background())
	require.False(t, av.IsAvailable)
}

func TestDescribeIgnoresLanguageFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/languages" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`[]`))
	})
	av := c.Describe(context.Background())
	require.True(t, av.IsAvailable)
	require.Empty(t, av.Languages)

	c = newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/languages" {
			w.Write([]byte(`[{"id":71,"name":"Python (3.8.1)"},{"id":63,"name":"JavaScript (Node.js 12.14.0)"}]`))
			return
		}
		w.Write([]byte(`[]`))
	})
	av = c.Describe(context.Background())
	require.Len(t, av.Languages, 2)
	require.Contains(t, av.Message, "2 languages")
}

func TestCreateSubmissionAppliesDefaults(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/submissions", r.URL.Path)
		require.Equal(t, "false", r.URL.Query().Get("base64_encoded"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "print(1)", body["source_code"])
		require.EqualValues(t, 71, body["language_id"])
		require.EqualValues(t, 5, body["cpu_time_limit"])
		require.EqualValues(t, 1, body["cpu_extra_time"])
		require.EqualValues(t, 15, body["wall_time_limit"])
		require.EqualValues(t, 256000, body["memory_limit"])
		require.EqualValues(t, 64000, body["stack_limit"])
		require.EqualValues(t, 60, body["max_processes_and_or_threads"])
		require.Equal(t, false, body["enable_network"])
		require.Equal(t, false, body["base64_encoded"])
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"token":"abc"}`))
	})
	token, err := c.CreateSubmission(context.Background(), model.Submission{SourceCode: "print(1)"})
	require.NoError(t, err)
	require.Equal(t, "abc", token)
}

func TestCreateSubmissionWithoutToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	_, err := c.CreateSubmission(context.Background(), model.Submission{SourceCode: "x"})
	require.ErrorIs(t, err, common.ErrJudgeProtocol)
}

func TestCreateSubmissionTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	_, err := NewClient(Options{BaseURL: srv.URL}).CreateSubmission(context.Background(), model.Submission{})
	require.ErrorIs(t, err, common.ErrJudgeUnreachable)
}

func TestCreateBatchKeepsAlignment(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/submissions/batch", r.URL.Path)
		var body struct {
			Submissions []model.Submission `json:"submissions"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Submissions, 3)
		require.Equal(t, 63, body.Submissions[1].LanguageID)
		w.Write([]byte(`[{"token":"t1"},{"language_id":["is not included in the list"]},{"token":"t3"}]`))
	})
	items, err := c.CreateBatch(context.Background(), []model.Submission{
		{SourceCode: "a"},
		{SourceCode: "b", LanguageID: 63},
		{SourceCode: "c"},
	})
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.Equal(t, "t1", items[0].Token)
	require.Empty(t, items[1].Token)
	require.Contains(t, items[1].Error, "language_id")
	require.Equal(t, "t3", items[2].Token)
	require.Equal(t, []string{"t1", "t3"}, Tokens(items))
}

func TestGetBatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "t1,t2", r.URL.Query().Get("tokens"))
		require.Equal(t, "false", r.URL.Query().Get("base64_encoded"))
		w.Write([]byte(`{"submissions":[
			{"token":"t1","status":{"id":3,"description":"Accepted"},"stdout":"5\n","time":"0.01","memory":3000},
			{"token":"t2","status":{"id":2,"description":"Processing"},"stdout":null}
		]}`))
	})
	got, err := c.GetBatch(context.Background(), []string{"t1", "t2"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.True(t, got[0].IsAccepted())
	require.Equal(t, "5\n", got[0].Stdout)
	require.Equal(t, 3000, got[0].Memory)
	require.True(t, got[1].IsPending())
}

func TestGetBatchMissingCollection(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"something"}`))
	})
	_, err := c.GetBatch(context.Background(), []string{"t1"})
	require.ErrorIs(t, err, common.ErrJudgeProtocol)
}

func TestGetSubmission(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/submissions/tok", r.URL.Path)
		require.Equal(t, "*", r.URL.Query().Get("fields"))
		io.WriteString(w, `{"status":{"id":6,"description":"Compilation Error"},"compile_output":"boom"}`)
	})
	got, err := c.GetSubmission(context.Background(), "tok")
	require.NoError(t, err)
	require.Equal(t, "tok", got.Token)
	require.Equal(t, model.StatusCompilationError, got.Status.ID)
	require.Equal(t, "boom", got.ErrorOutput())
}

func TestServerErrorsAreUnreachable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	_, err := c.GetSubmission(context.Background(), "tok")
	require.ErrorIs(t, err, common.ErrJudgeUnreachable)
	require.True(t, IsRetryable(err))

	c = newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"bad"}`))
	})
	_, err = c.GetSubmission(context.Background(), "tok")
	require.ErrorIs(t, err, common.ErrJudgeProtocol)
}
