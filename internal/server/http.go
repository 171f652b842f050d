// Package server exposes the query engine over a read-only HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/coffersTech/filelog/internal/engine"
	"github.com/coffersTech/filelog/internal/registry"
)

const (
	defaultLimit    = 100
	defaultInterval = time.Minute
	requestIDHeader = "X-Request-ID"
)

// Options configures a QueryServer.
type Options struct {
	// Dir resolves logger names to <Dir>/<name>.log.
	Dir string
	// TokenHash is a bcrypt hash of the bearer token. Empty disables auth.
	TokenHash string
	Log       zerolog.Logger
}

// QueryServer serves search, stats and histogram queries plus metrics.
type QueryServer struct {
	qe        *engine.QueryEngine
	dir       string
	tokenHash []byte
	log       zerolog.Logger

	mu       sync.Mutex
	srv      *http.Server
	shutdown bool
}

func NewQueryServer(qe *engine.QueryEngine, opts Options) *QueryServer {
	s := &QueryServer{
		qe:  qe,
		dir: opts.Dir,
		log: opts.Log,
	}
	if opts.TokenHash != "" {
		s.tokenHash = []byte(opts.TokenHash)
	}
	return s
}

// Handler returns the routed handler with request IDs and access logging.
func (s *QueryServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/api/search", s.AuthMiddleware(http.HandlerFunc(s.handleSearch)))
	mux.Handle("/api/stats", s.AuthMiddleware(http.HandlerFunc(s.handleStats)))
	mux.Handle("/api/histogram", s.AuthMiddleware(http.HandlerFunc(s.handleHistogram)))
	mux.Handle("/metrics", promhttp.Handler())

	return s.accessLog(mux)
}

// Start runs the HTTP server until Shutdown.
func (s *QueryServer) Start(addr string) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.srv = srv
	s.mu.Unlock()

	s.log.Info().Str("addr", addr).Msg("query server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server. A later Start returns
// immediately.
func (s *QueryServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.shutdown = true
	srv := s.srv
	s.mu.Unlock()

	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

// AuthMiddleware checks the bearer token (or ?token=) against the configured
// bcrypt hash. Without a hash every request passes.
func (s *QueryServer) AuthMiddleware(next http.Handler) http.Handler {
	if len(s.tokenHash) == 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			token = strings.TrimPrefix(auth, "Bearer ")
		}

		if token == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="filelog"`)
			http.Error(w, "Unauthorized: Missing token", http.StatusUnauthorized)
			return
		}
		if bcrypt.CompareHashAndPassword(s.tokenHash, []byte(token)) != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="filelog"`)
			http.Error(w, "Unauthorized: Invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *QueryServer) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		s.log.Info().
			Str("request_id", id).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

type searchResponse struct {
	Logger string   `json:"logger"`
	Count  int      `json:"count"`
	Lines  []string `json:"lines"`
}

func (s *QueryServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name, path, err := s.resolveLogger(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	f, err := s.filterFromQuery(r, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var lines []string
	if r.URL.Query().Get("segments") == "1" {
		lines, err = s.qe.ScanSegments(path, f)
	} else {
		lines, err = s.qe.Scan(path, f)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if lines == nil {
		lines = []string{}
	}

	s.writeJSON(w, searchResponse{Logger: name, Count: len(lines), Lines: lines})
}

func (s *QueryServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	_, path, err := s.resolveLogger(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	f, err := s.filterFromQuery(r, false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	sum, err := s.qe.Summarize(path, f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, sum)
}

func (s *QueryServer) handleHistogram(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	_, path, err := s.resolveLogger(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	f, err := s.filterFromQuery(r, false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	interval := defaultInterval
	if raw := r.URL.Query().Get("interval"); raw != "" {
		interval, err = parseInterval(raw)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	points, err := s.qe.Histogram(path, f, interval)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, points)
}

// parseInterval accepts a Go duration ("90s") or a bare number of seconds.
func parseInterval(raw string) (time.Duration, error) {
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, &engine.ValidationError{Field: "interval", Value: raw, Err: err}
	}
	return d, nil
}

// resolveLogger maps ?logger= to its active file.
func (s *QueryServer) resolveLogger(r *http.Request) (string, string, error) {
	name := strings.TrimSpace(r.URL.Query().Get("logger"))
	if name == "" {
		return "", "", &engine.ValidationError{Field: "logger", Err: errors.New("required")}
	}
	path, err := registry.LogFile(s.dir, name)
	if err != nil {
		return "", "", &engine.ValidationError{Field: "logger", Value: name, Err: err}
	}
	return name, path, nil
}

// filterFromQuery reads start/end or last, level, source and (when
// withLimit) limit. Without a window the filter covers all time.
func (s *QueryServer) filterFromQuery(r *http.Request, withLimit bool) (engine.Filter, error) {
	q := r.URL.Query()

	var opts []engine.FilterOption
	if lvl := q.Get("level"); lvl != "" {
		opts = append(opts, engine.WithLevel(lvl))
	}
	if src := q.Get("source"); src != "" {
		opts = append(opts, engine.WithSource(src))
	}
	if withLimit {
		limit := defaultLimit
		if raw := q.Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return engine.Filter{}, &engine.ValidationError{Field: "limit", Value: raw, Err: err}
			}
			limit = n
		}
		opts = append(opts, engine.WithLimit(limit))
	}

	start, end, last := q.Get("start"), q.Get("end"), q.Get("last")
	switch {
	case last != "":
		d, err := time.ParseDuration(last)
		if err != nil {
			return engine.Filter{}, &engine.ValidationError{Field: "last", Value: last, Err: err}
		}
		return s.qe.Window(d, opts...)
	case start != "" || end != "":
		if start == "" || end == "" {
			return engine.Filter{}, &engine.ValidationError{Field: "time range", Err: errors.New("start and end go together")}
		}
		return s.qe.Filter(start, end, opts...)
	default:
		var f engine.Filter
		for _, opt := range opts {
			opt(&f)
		}
		return f, f.Validate()
	}
}

func (s *QueryServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case engine.IsValidation(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, fs.ErrNotExist):
		http.Error(w, "log file not found", http.StatusNotFound)
	default:
		s.log.Error().Err(err).Str("request_id", w.Header().Get(requestIDHeader)).Str("path", r.URL.Path).Msg("query failed")
		http.Error(w, "Query failed", http.StatusInternalServerError)
	}
}

func (s *QueryServer) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn().Err(err).Msg("JSON encode error")
	}
}

// String describes the server for startup logs.
func (s *QueryServer) String() string {
	return fmt.Sprintf("QueryServer(dir=%s, auth=%t)", s.dir, len(s.tokenHash) > 0)
}
