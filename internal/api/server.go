// Package api exposes manifest assembly over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zsiec/vodindex/internal/indexerr"
	"github.com/zsiec/vodindex/internal/manifest"
	"github.com/zsiec/vodindex/internal/segment"
)

const maxPayloadBytes = 8 << 20

// Builder assembles manifests from payloads.
type Builder interface {
	Build(p *manifest.Payload, opts manifest.Options) (*manifest.Manifest, error)
}

// Config configures the API server.
type Config struct {
	Addr string
	// VideoEnabled is the default when a request omits ?video.
	VideoEnabled bool
	// PrepareTimeout bounds segment index creation for ?prepare=1.
	PrepareTimeout time.Duration
	Gatherer       prometheus.Gatherer
}

// Server serves the manifest API, health and metrics.
type Server struct {
	cfg        Config
	builder    Builder
	httpServer *http.Server
	log        *slog.Logger
}

// NewServer creates a server. If log is nil, slog.Default() is used.
func NewServer(cfg Config, builder Builder, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	if cfg.PrepareTimeout <= 0 {
		cfg.PrepareTimeout = 30 * time.Second
	}
	s := &Server{
		cfg:     cfg,
		builder: builder,
		log:     log.With("component", "api"),
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the route multiplexer.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/manifest", s.handleManifest)
	mux.HandleFunc("GET /api/healthz", s.handleHealth)
	if s.cfg.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.log.Info("API server listening", "addr", s.cfg.Addr)

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	})
	defer stop()

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) || ctx.Err() != nil {
		return nil
	}
	return err
}

type manifestResponse struct {
	Manifest *manifest.Manifest `json:"manifest"`
	// SegmentIndexes maps stream id to references, present with ?prepare=1.
	SegmentIndexes map[int][]segment.Reference `json:"segmentIndexes,omitempty"`
	// StreamErrors maps stream id to the reason its index did not build.
	// A failed stream does not fail the response.
	StreamErrors map[int]string `json:"streamErrors,omitempty"`
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	opts := manifest.Options{VideoEnabled: s.cfg.VideoEnabled}
	switch r.URL.Query().Get("video") {
	case "0", "false":
		opts.VideoEnabled = false
	case "1", "true":
		opts.VideoEnabled = true
	}

	p, err := manifest.ParsePayload(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	m, err := s.builder.Build(p, opts)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	defer m.Close()

	resp := manifestResponse{Manifest: m}
	if r.URL.Query().Get("prepare") == "1" {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.PrepareTimeout)
		defer cancel()
		if err := m.PrepareAll(ctx); err != nil {
			s.log.Warn("some segment indexes failed", "error", err)
			resp.StreamErrors = make(map[int]string)
			for id, serr := range manifest.StreamErrors(err) {
				resp.StreamErrors[id] = serr.Error()
			}
		}
		resp.SegmentIndexes = make(map[int][]segment.Reference)
		for _, st := range m.Streams() {
			if ix, ok := st.SegmentIndex(); ok {
				resp.SegmentIndexes[st.ID] = ix.References()
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps an error category to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, indexerr.ErrBadDescriptor):
		return http.StatusBadRequest
	case errors.Is(err, indexerr.ErrNetworkFailure):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, indexerr.ErrMalformedContainer),
		errors.Is(err, indexerr.ErrUnsupportedFeature),
		errors.Is(err, indexerr.ErrZeroTimescale),
		errors.Is(err, indexerr.ErrBadFloatSize),
		errors.Is(err, indexerr.ErrOverflow):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
