// File: cmd/helpers_test.go
package cmd

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/signupflow/internal/flow"
)

const testConfirmURL = "https://client.example.io/confirmation-token/3fa85f64-5717-4562-b3fc-2c963f66afa6"

// fakeMailProvider serves the subset of the mail.tm API the commands use.
type fakeMailProvider struct {
	accounts atomic.Int32
}

func newFakeMailProvider(t *testing.T) *httptest.Server {
	t.Helper()
	p := &fakeMailProvider{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/domains":
			_, _ = w.Write([]byte(`{"hydra:member":[{"id":"d1","domain":"mail.example","isActive":true,"isPrivate":false}]}`))
		case r.Method == http.MethodPost && r.URL.Path == "/accounts":
			p.accounts.Add(1)
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"acc-1","address":"x@mail.example"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/token":
			_, _ = w.Write([]byte(`{"token":"tok-1","id":"acc-1"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/messages":
			assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`[{"id":"m1","subject":"Confirm your account"}]`))
		case r.Method == http.MethodGet && r.URL.Path == "/messages/m1":
			_, _ = w.Write([]byte(`{"id":"m1","text":"Confirm here: ` + testConfirmURL + `"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// execute runs a fresh command tree with args and returns its stdout.
func execute(t *testing.T, launch flow.Launcher, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand(launch)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	// Keep the test run independent of any .env or config.yaml in the package dir.
	root.SetArgs(append([]string{"--env-file=", "--config=" + emptyConfig(t)}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func emptyConfig(t *testing.T) string {
	t.Helper()
	return writeFile(t, "config.yaml", "logger:\n  level: error\n")
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
