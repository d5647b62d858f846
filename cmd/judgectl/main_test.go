package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/anheplast/curiosmaze/internal/domain/model"
	"github.com/anheplast/curiosmaze/internal/platform/config"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

// echoSumJudge answers every run with the sum of the two numbers on stdin.
func echoSumJudge(t *testing.T) *httptest.Server {
	t.Helper()
	var (
		mu        sync.Mutex
		lastStdin string
	)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /statuses", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`[]`)) })
	mux.HandleFunc("GET /languages", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":71,"name":"Python (3.8.1)"}]`))
	})
	mux.HandleFunc("POST /submissions", func(w http.ResponseWriter, r *http.Request) {
		var sub model.Submission
		require.NoError(t, json.NewDecoder(r.Body).Decode(&sub))
		mu.Lock()
		lastStdin = sub.Stdin
		mu.Unlock()
		w.Write([]byte(`{"token":"x"}`))
	})
	mux.HandleFunc("GET /submissions/{token}", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		out := map[string]string{"1 2": "3\n", "2 2": "4\n"}[lastStdin]
		mu.Unlock()
		json.NewEncoder(w).Encode(model.SubmissionResult{Stdout: out, Time: "0.01", Status: model.Status{ID: model.StatusAccepted}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	cfg := config.FromEnv()
	app := newApp(cfg)
	var buf bytes.Buffer
	app.Writer = &buf
	require.NoError(t, app.Run(context.Background(), append([]string{"judgectl"}, args...)))
	return buf.String()
}

func TestStatusAndLanguages(t *testing.T) {
	srv := echoSumJudge(t)
	out := run(t, "--judge-url", srv.URL, "status")
	require.Contains(t, out, "Judge0 is ready (1 languages)")

	out = run(t, "--judge-url", srv.URL, "languages")
	require.Contains(t, out, "71  Python (3.8.1)")
}

func TestVerify(t *testing.T) {
	srv := echoSumJudge(t)
	dir := t.TempDir()
	code := filepath.Join(dir, "main.py")
	cases := filepath.Join(dir, "cases.toml")
	require.NoError(t, os.WriteFile(code, []byte("print(sum(map(int, input().split())))"), 0o644))
	require.NoError(t, os.WriteFile(cases, []byte(`
language = "python"

[[cases]]
in = "1 2"
out = "3"

[[cases]]
in = "2 2"
out = "4"
`), 0o644))

	out := run(t, "--judge-url", srv.URL, "--timeout", "2s", "verify", "--cases", cases, code)
	require.Equal(t, 2, strings.Count(out, "✓ CORRECT"))
	require.Contains(t, out, "2/2 examples correct (100.00%)")
}

func TestLoadCases(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cases.toml")
	require.NoError(t, os.WriteFile(path, []byte("[[cases]]\nin = \"5\"\nout = \"25\"\n"), 0o644))
	examples, lang, err := loadCases(path)
	require.NoError(t, err)
	require.Empty(t, lang)
	require.Equal(t, []model.Example{{Input: "5", ExpectedOutput: "25"}}, examples)

	empty := filepath.Join(t.TempDir(), "empty.toml")
	require.NoError(t, os.WriteFile(empty, []byte("language = \"js\"\n"), 0o644))
	_, _, err = loadCases(empty)
	require.Error(t, err)
}

func TestParseLanguage(t *testing.T) {
	require.Equal(t, model.LanguageJavaScript, parseLanguage("node").ID())
	require.Equal(t, model.LanguageCpp, parseLanguage("54").ID())
	require.Equal(t, model.DefaultLanguageID, parseLanguage("").ID())
}

func TestToken(t *testing.T) {
	out := run(t, "token", "--user", "42")
	require.Equal(t, 2, strings.Count(strings.TrimSpace(out), "."))
}
