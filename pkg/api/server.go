package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	stdsync "sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/burrow/pkg/health"
	"github.com/cuemby/burrow/pkg/jobs"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/publish"
	"github.com/cuemby/burrow/pkg/query"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/sync"
	"github.com/cuemby/burrow/pkg/types"
)

const (
	// maxBodyBytes bounds request bodies. Records are small; anything
	// near this limit is abuse.
	maxBodyBytes = 10 * 1024 * 1024

	shutdownTimeout = 5 * time.Second

	// heightCacheTTL spaces out gateway height probes. /records reports
	// indexing progress against the chain head; per-request probes
	// would hammer the gateway.
	heightCacheTTL     = 30 * time.Second
	heightFetchTimeout = 3 * time.Second
)

// HeightSource reports the blockchain gateway's current height.
// *arweave.Client satisfies it.
type HeightSource interface {
	Height(ctx context.Context) (int64, error)
}

// Config carries the collaborators the server exposes over HTTP.
// Optional fields may be nil; the matching endpoints then degrade.
// A nil Auth puts the daemon in single-operator mode (anonymous
// reads, open writes); a nil Heights makes indexing progress report
// "unknown".
type Config struct {
	Store     storage.Store
	Query     *query.Engine
	Publisher *publish.Publisher
	Jobs      *jobs.Tracker
	Indexer   *sync.Indexer
	Health    *health.Registry
	Auth      Authenticator
	Heights   HeightSource

	QueryDefaults query.Defaults
	Version       string
}

// Server is the daemon's HTTP surface: the record query and publish
// API for clients, the soul/registry contract for peers, and the
// health and metrics endpoints for operators.
type Server struct {
	cfg    Config
	mux    *http.ServeMux
	logger zerolog.Logger

	mu         stdsync.Mutex
	listener   net.Listener
	httpServer *http.Server
	lastHeight int64
	heightAt   time.Time
}

// NewServer wires the routes. Call Start to begin serving.
func NewServer(cfg Config) *Server {
	s := &Server{
		cfg:    cfg,
		mux:    http.NewServeMux(),
		logger: log.WithComponent("api"),
	}

	s.mux.HandleFunc("/records", s.handleQueryRecords)
	s.mux.HandleFunc("/records/newRecord", s.handlePublish)
	s.mux.HandleFunc("/records/newRecord/async", s.handlePublishAsync)
	s.mux.HandleFunc("/jobs", s.handleListJobs)
	s.mux.HandleFunc("/jobs/", s.handleJob)

	// Peer-sync contract, served to other daemons.
	s.mux.HandleFunc("/get", s.handlePeerGet)
	s.mux.HandleFunc("/put", s.handlePeerPut)
	s.mux.HandleFunc("/registry", s.handlePeerRegistry)

	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.Handle("/metrics", metrics.Handler())

	return s
}

// Start binds addr and serves in the background. It returns once the
// listener is bound, so callers can read Addr immediately; ":0" picks
// a free port in tests.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("api listen on %s: %w", addr, err)
	}

	httpServer := &http.Server{
		Handler:      s.instrument(s.mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.mu.Lock()
	s.listener = listener
	s.httpServer = httpServer
	s.mu.Unlock()

	s.logger.Info().Str("addr", listener.Addr().String()).Msg("API listening")

	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("API server stopped")
		}
	}()

	return nil
}

// Stop drains in-flight requests and closes the listener.
func (s *Server) Stop() {
	s.mu.Lock()
	httpServer := s.httpServer
	s.mu.Unlock()
	if httpServer == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("API shutdown incomplete")
	}
	s.logger.Info().Msg("API stopped")
}

// Addr returns the bound address, empty before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// instrument records request counts and latency per method and status.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.APIRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
		timer.ObserveDurationVec(metrics.APIRequestDuration, r.Method)
	})
}

// statusRecorder captures the status code a handler writes.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn().Err(err).Msg("Response write failed")
	}
}

// writeError maps an error to its HTTP status via the shared error
// kinds and emits {"error": "..."}.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Int("status", status).Msg("Request failed")
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, types.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrOwnershipDenied):
		return http.StatusForbidden
	case errors.Is(err, types.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, types.ErrCapacityExceeded):
		return http.StatusServiceUnavailable
	case errors.Is(err, types.ErrUpstreamUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// observedHeight returns the last known gateway height, refreshing at
// most once per heightCacheTTL. A failed probe keeps the stale value
// and still advances the clock so an unreachable gateway is polled at
// the same bounded rate. Zero means no height has ever been observed.
func (s *Server) observedHeight(ctx context.Context) int64 {
	if s.cfg.Heights == nil {
		return 0
	}

	s.mu.Lock()
	fresh := time.Since(s.heightAt) < heightCacheTTL
	height := s.lastHeight
	s.mu.Unlock()
	if fresh {
		return height
	}

	fetchCtx, cancel := context.WithTimeout(ctx, heightFetchTimeout)
	defer cancel()
	latest, err := s.cfg.Heights.Height(fetchCtx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.heightAt = time.Now()
	if err != nil {
		s.logger.Debug().Err(err).Msg("Gateway height probe failed")
		return s.lastHeight
	}
	s.lastHeight = latest
	return latest
}

type healthCheck struct {
	Healthy   bool      `json:"healthy"`
	Message   string    `json:"message,omitempty"`
	LastCheck time.Time `json:"lastCheck"`
}

type healthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version,omitempty"`
	Checks  map[string]healthCheck `json:"checks,omitempty"`
}

// handleHealth reports per-dependency status from the health registry.
// 503 when any dependency is unhealthy, so load balancers can rotate
// the daemon out while it keeps serving whoever still asks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := healthResponse{Status: "healthy", Version: s.cfg.Version}
	status := http.StatusOK

	if s.cfg.Health != nil {
		snapshot := s.cfg.Health.Snapshot()
		resp.Checks = make(map[string]healthCheck, len(snapshot))
		for name, st := range snapshot {
			resp.Checks[name] = healthCheck{
				Healthy:   st.Healthy,
				Message:   st.LastResult.Message,
				LastCheck: st.LastCheck,
			}
		}
		if !s.cfg.Health.Healthy() {
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		}
	}

	s.writeJSON(w, status, resp)
}
