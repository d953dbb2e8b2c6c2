// internal/api/server.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tamzrod/meterhub/internal/metrics"
	"github.com/tamzrod/meterhub/internal/status"
	"github.com/tamzrod/meterhub/internal/trace"
)

const (
	Name = "meterhub"

	maxPublishBody = 64 << 10
)

// Hub is the part of the orchestrator the front end talks to.
type Hub interface {
	Last() trace.Record
	Publish(values map[string]any) []string
	Command(target, query string) bool
}

// Archive exposes the CSV day buffer.
type Archive interface {
	Buffer() string
	Save() error
}

// StatusReporter lists per-source health.
type StatusReporter interface {
	Reports(now time.Time) []status.Report
}

// Config holds the front end collaborators. Trace, Archive, Status are optional.
type Config struct {
	Addr    string
	Version string
	Hub     Hub
	Trace   *trace.Ring
	Archive Archive
	Status  StatusReporter
	Metrics bool
	LogFile string
	Log     *logrus.Entry
}

// Server is the HTTP front end of the hub.
type Server struct {
	cfg    Config
	mux    *http.ServeMux
	server *http.Server
	log    *logrus.Entry
}

// NewServer creates a server with all routes registered.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Hub == nil {
		return nil, errors.New("api: hub required")
	}
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	s := &Server{
		cfg: cfg,
		mux: http.NewServeMux(),
		log: log.WithField("component", "api"),
	}
	s.registerRoutes()

	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// Handler returns the route multiplexer.
func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe blocks until the server stops. A shutdown is not an error.
func (s *Server) ListenAndServe() error {
	s.log.WithField("addr", s.cfg.Addr).Info("listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/{$}", s.handleRecord)
	s.mux.HandleFunc("GET /version", s.handleVersion)
	s.mux.HandleFunc("GET /command/{target}", s.handleCommand)
	s.mux.HandleFunc("GET /status", s.handleStatus)

	if s.cfg.Trace != nil {
		s.mux.HandleFunc("GET /trace", s.handleTraceSize)
		s.mux.HandleFunc("GET /trace/size/{n}", s.handleTraceSize)
		s.mux.HandleFunc("GET /trace/{n}", s.handleTraceSize) // legacy
		s.mux.HandleFunc("GET /trace/json", s.handleTraceJSON)
		s.mux.HandleFunc("GET /trace/csv", s.handleTraceCSV)
	}
	if s.cfg.Archive != nil {
		for _, base := range []string{"/archive", "/backup"} {
			s.mux.HandleFunc("GET "+base, s.handleArchive)
			s.mux.HandleFunc(base+"/save", s.handleArchiveSave)
		}
	}
	if s.cfg.Metrics {
		s.mux.Handle("GET /metrics", metrics.Handler())
	}
	if s.cfg.LogFile != "" {
		s.mux.HandleFunc("GET /log", s.handleLog)
	}
}

// handleRecord returns the latest record. A POST body is published first.
func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		s.publish(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeRecord(w)
}

func (s *Server) publish(w http.ResponseWriter, r *http.Request) {
	var values map[string]any
	body := http.MaxBytesReader(w, r.Body, maxPublishBody)
	if err := json.NewDecoder(body).Decode(&values); err != nil {
		s.log.WithError(err).Debug("publish: bad body")
		return
	}
	accepted := s.cfg.Hub.Publish(values)
	s.log.WithField("keys", accepted).Debug("publish received")
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	s.cfg.Hub.Command(r.PathValue("target"), r.URL.RawQuery)
	s.writeRecord(w)
}

// writeRecord answers with the latest record, 404 with null before the first cycle.
func (s *Server) writeRecord(w http.ResponseWriter) {
	rec := s.cfg.Hub.Last()
	if rec == nil {
		writeJSON(w, http.StatusNotFound, nil)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	version := s.cfg.Version
	if version == "" {
		version = "dev"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"name":    Name,
		"version": version,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Status == nil {
		writeJSON(w, http.StatusOK, []status.Report{})
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Status.Reports(time.Now()))
}

// ---- trace ----

// handleTraceSize sets the ring size from {n}; a non-numeric value only
// reports the current size.
func (s *Server) handleTraceSize(w http.ResponseWriter, r *http.Request) {
	size := s.cfg.Trace.Size()
	if n, err := strconv.Atoi(r.PathValue("n")); err == nil {
		size = s.cfg.Trace.SetSize(n)
	}
	writeText(w, http.StatusOK, "trace.size="+strconv.Itoa(size))
}

func (s *Server) handleTraceJSON(w http.ResponseWriter, r *http.Request) {
	b, err := s.cfg.Trace.JSON()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func (s *Server) handleTraceCSV(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, s.cfg.Trace.CSV())
}

// ---- archive ----

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, s.cfg.Archive.Buffer())
}

func (s *Server) handleArchiveSave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.cfg.Archive.Save(); err != nil {
		writeText(w, http.StatusConflict, err.Error())
		return
	}
	writeText(w, http.StatusOK, "archive saved")
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	f, err := os.Open(s.cfg.LogFile)
	if err != nil {
		http.Error(w, "log not available", http.StatusNotFound)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, f)
}

// ---- helpers ----

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, text)
}
