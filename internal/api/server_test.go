// internal/api/server_test.go
package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/meterhub/internal/status"
	"github.com/tamzrod/meterhub/internal/trace"
)

type fakeHub struct {
	last      trace.Record
	published []map[string]any
	commands  []string
}

func (f *fakeHub) Last() trace.Record { return f.last }

func (f *fakeHub) Publish(values map[string]any) []string {
	f.published = append(f.published, values)
	var keys []string
	for k := range values {
		keys = append(keys, k)
	}
	return keys
}

func (f *fakeHub) Command(target, query string) bool {
	if target != "goe" {
		return false
	}
	f.commands = append(f.commands, query)
	return true
}

type fakeArchive struct {
	buf   string
	saves int
	err   error
}

func (f *fakeArchive) Buffer() string { return f.buf }

func (f *fakeArchive) Save() error {
	f.saves++
	return f.err
}

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	srv, err := NewServer(cfg)
	require.NoError(t, err)
	return srv
}

func do(srv *Server, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	srv.mux.ServeHTTP(w, req)
	return w
}

func TestNewServer_NeedsHub(t *testing.T) {
	_, err := NewServer(Config{})
	assert.Error(t, err)
}

func TestRecord_NotFoundBeforeFirstCycle(t *testing.T) {
	srv := newTestServer(t, Config{Hub: &fakeHub{}})

	w := do(srv, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "null", strings.TrimSpace(w.Body.String()))
}

func TestRecord_Get(t *testing.T) {
	hub := &fakeHub{last: trace.Record{"grid_p": 304, "time": "2022-09-24 22:05:57"}}
	srv := newTestServer(t, Config{Hub: hub})

	w := do(srv, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"grid_p":304,"time":"2022-09-24 22:05:57"}`, w.Body.String())
}

func TestRecord_PostPublishes(t *testing.T) {
	hub := &fakeHub{last: trace.Record{"bat_soc": 46.0}}
	srv := newTestServer(t, Config{Hub: hub})

	w := do(srv, http.MethodPost, "/", `{"bat_soc":46}`)
	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, hub.published, 1)
	assert.Equal(t, 46.0, hub.published[0]["bat_soc"])
}

func TestRecord_PostBadBodyStillAnswers(t *testing.T) {
	hub := &fakeHub{last: trace.Record{"x": 1}}
	srv := newTestServer(t, Config{Hub: hub})

	w := do(srv, http.MethodPost, "/", `[1,2`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, hub.published)
}

func TestRecord_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, Config{Hub: &fakeHub{}})

	w := do(srv, http.MethodDelete, "/", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestVersion(t *testing.T) {
	srv := newTestServer(t, Config{Hub: &fakeHub{}, Version: "1.0.1"})

	w := do(srv, http.MethodGet, "/version", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"name":"meterhub","version":"1.0.1"}`, w.Body.String())
}

func TestCommand_PassesRawQuery(t *testing.T) {
	hub := &fakeHub{last: trace.Record{"x": 1}}
	srv := newTestServer(t, Config{Hub: hub})

	w := do(srv, http.MethodGet, "/command/goe?amp=6&frc=2", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"amp=6&frc=2"}, hub.commands)

	do(srv, http.MethodGet, "/command/heater?on=1", "")
	assert.Len(t, hub.commands, 1, "unknown target is ignored")
}

func TestTrace(t *testing.T) {
	ring := trace.New(3)
	ring.Push(trace.Record{"time": "t1", "timestamp": 1, "p": 10})
	ring.Push(trace.Record{"time": "t2", "timestamp": 2, "p": nil})
	srv := newTestServer(t, Config{Hub: &fakeHub{}, Trace: ring})

	w := do(srv, http.MethodGet, "/trace/csv", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "time;timestamp;p\nt1;1;10\nt2;2;\n", w.Body.String())

	w = do(srv, http.MethodGet, "/trace/json", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"t2"`)

	w = do(srv, http.MethodGet, "/trace/size/1", "")
	assert.Equal(t, "trace.size=1", w.Body.String())
	assert.Len(t, ring.Records(), 1)

	w = do(srv, http.MethodGet, "/trace/size/abc", "")
	assert.Equal(t, "trace.size=1", w.Body.String())

	w = do(srv, http.MethodGet, "/trace/size/-4", "")
	assert.Equal(t, "trace.size=1", w.Body.String())
}

func TestTrace_LegacyPaths(t *testing.T) {
	ring := trace.New(3)
	ring.Push(trace.Record{"time": "t1", "timestamp": 1, "p": 10})
	srv := newTestServer(t, Config{Hub: &fakeHub{}, Trace: ring})

	w := do(srv, http.MethodGet, "/trace/2", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "trace.size=2", w.Body.String())
	assert.Equal(t, 2, ring.Size())

	// literal segments win over the size alias
	w = do(srv, http.MethodGet, "/trace/csv", "")
	assert.Equal(t, "time;timestamp;p\nt1;1;10\n", w.Body.String())
	assert.Equal(t, 2, ring.Size())
}

func TestTrace_NotRoutedWithoutRing(t *testing.T) {
	srv := newTestServer(t, Config{Hub: &fakeHub{}})

	w := do(srv, http.MethodGet, "/trace/csv", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatus(t *testing.T) {
	tr := status.NewTracker()
	tr.Add("grid", nil)
	tr.Observe("grid", nil, time.Now())
	srv := newTestServer(t, Config{Hub: &fakeHub{}, Status: tr})

	w := do(srv, http.MethodGet, "/status", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"source":"grid"`)
}

func TestArchive(t *testing.T) {
	arc := &fakeArchive{buf: "time;p\n2022-09-24 22:05:00;304\n"}
	srv := newTestServer(t, Config{Hub: &fakeHub{}, Archive: arc})

	w := do(srv, http.MethodGet, "/archive", "")
	assert.Equal(t, arc.buf, w.Body.String())

	w = do(srv, http.MethodPost, "/archive/save", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, arc.saves)

	arc.err = errors.New("archive: nothing to save")
	w = do(srv, http.MethodGet, "/archive/save", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(srv, http.MethodDelete, "/archive/save", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestArchive_BackupPaths(t *testing.T) {
	arc := &fakeArchive{buf: "time;p\n2022-09-24 22:05:00;304\n"}
	srv := newTestServer(t, Config{Hub: &fakeHub{}, Archive: arc})

	w := do(srv, http.MethodGet, "/backup", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, arc.buf, w.Body.String())

	w = do(srv, http.MethodGet, "/backup/save", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, arc.saves)
}

func TestLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meterhub.log")
	require.NoError(t, os.WriteFile(path, []byte("level=info msg=started\n"), 0o644))
	srv := newTestServer(t, Config{Hub: &fakeHub{}, LogFile: path})

	w := do(srv, http.MethodGet, "/log", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "level=info msg=started\n", w.Body.String())

	require.NoError(t, os.Remove(path))
	w = do(srv, http.MethodGet, "/log", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
