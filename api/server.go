// Package api exposes the scorer over JSON-RPC 2.0 on HTTP.
//
// Methods:
//   - get_vp:   params inter.Request, result inter.Result plus a cache flag
//   - validate: params inter.ValidateRequest, result bool
//
// Errors are answered with an HTTP status chosen by error kind and a body of
// the form {"jsonrpc":"2.0","error":{"code":<status>,"message":"unauthorized","data":<reason>},"id":<id>}.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/rony4d/go-score/inter"
	"github.com/rony4d/go-score/metrics"
)

// Method names.
const (
	MethodGetVp    = "get_vp"
	MethodValidate = "validate"
)

const maxBodyBytes = 4 << 20

// Service is the scoring backend.
type Service interface {
	GetVp(ctx context.Context, req inter.Request) (inter.Result, bool, error)
	Validate(ctx context.Context, req inter.ValidateRequest) (bool, error)
}

// Config holds the HTTP settings.
type Config struct {
	Addr           string
	RequestTimeout time.Duration
	CORSOrigins    []string
	Version        string
	Strategies     []string

	// Gatherer enables GET /metrics when set.
	Gatherer prometheus.Gatherer
}

// Server routes HTTP requests to the service.
type Server struct {
	cfg     Config
	svc     Service
	log     logrus.FieldLogger
	metrics *metrics.Metrics
	router  *mux.Router
}

// NewServer creates the server and its routes.
func NewServer(cfg Config, svc Service, log logrus.FieldLogger, m *metrics.Metrics) *Server {
	s := &Server{
		cfg:     cfg,
		svc:     svc,
		log:     log,
		metrics: m,
		router:  mux.NewRouter(),
	}
	s.router.HandleFunc("/", s.handleInfo).Methods(http.MethodGet)
	s.router.HandleFunc("/", s.handleRPC).Methods(http.MethodPost)
	if cfg.Gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	return s
}

// Handler returns the root handler with CORS applied.
func (s *Server) Handler() http.Handler {
	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(s.router)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.cfg.Addr).Info("HTTP server started")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		s.log.Info("HTTP server stopped")
		return nil
	}
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      json.RawMessage `json:"id"`
}

type rpcSuccess struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  interface{}     `json:"result"`
	ID      json.RawMessage `json:"id"`
	Cache   bool            `json:"cache"`
}

type rpcErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data"`
}

type rpcFailure struct {
	JSONRPC string          `json:"jsonrpc"`
	Error   rpcErrorBody    `json:"error"`
	ID      json.RawMessage `json:"id"`
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":    s.cfg.Version,
		"strategies": s.cfg.Strategies,
	})
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req rpcRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		s.fail(w, r, req, start, inter.Rejected("invalid request body: %v", err))
		return
	}
	if len(req.ID) == 0 {
		req.ID = json.RawMessage("null")
	}

	ctx := r.Context()
	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}

	switch req.Method {
	case MethodGetVp:
		var params inter.Request
		if err := decodeParams(req.Params, &params); err != nil {
			s.fail(w, r, req, start, err)
			return
		}
		res, fromCache, err := s.svc.GetVp(ctx, params)
		if err != nil {
			s.fail(w, r, req, start, err)
			return
		}
		s.succeed(w, r, req, start, res, fromCache)

	case MethodValidate:
		var params inter.ValidateRequest
		if err := decodeParams(req.Params, &params); err != nil {
			s.fail(w, r, req, start, err)
			return
		}
		ok, err := s.svc.Validate(ctx, params)
		if err != nil {
			s.fail(w, r, req, start, err)
			return
		}
		s.succeed(w, r, req, start, ok, false)

	default:
		s.fail(w, r, req, start, inter.NotFound("wrong method %q", req.Method))
	}
}

func decodeParams(raw json.RawMessage, out interface{}) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return inter.Rejected("missing params")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return inter.Rejected("invalid params: %v", err)
	}
	return nil
}

func (s *Server) succeed(w http.ResponseWriter, r *http.Request, req rpcRequest, start time.Time, result interface{}, fromCache bool) {
	s.metrics.Request(req.Method, http.StatusOK)
	s.log.WithFields(logrus.Fields{
		"ip":       ClientIP(r),
		"method":   req.Method,
		"cache":    fromCache,
		"duration": time.Since(start),
	}).Info("Request served")

	s.writeJSON(w, http.StatusOK, rpcSuccess{
		JSONRPC: "2.0",
		Result:  result,
		ID:      req.ID,
		Cache:   fromCache,
	})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, req rpcRequest, start time.Time, err error) {
	code := StatusFor(err)
	s.metrics.Request(req.Method, code)

	entry := s.log.WithFields(logrus.Fields{
		"ip":       ClientIP(r),
		"method":   req.Method,
		"code":     code,
		"duration": time.Since(start),
	}).WithError(err)
	if code >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Info("Request rejected")
	}

	id := req.ID
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	s.writeJSON(w, code, rpcFailure{
		JSONRPC: "2.0",
		Error: rpcErrorBody{
			Code:    code,
			Message: "unauthorized",
			Data:    err.Error(),
		},
		ID: id,
	})
}

// StatusFor maps an error kind to an HTTP status.
func StatusFor(err error) int {
	switch inter.KindOf(err) {
	case inter.KindRejectedInput:
		return http.StatusBadRequest
	case inter.KindNotFound:
		return http.StatusNotFound
	default:
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return http.StatusInternalServerError
	}
}

// ClientIP returns the caller's address, preferring proxy headers over the
// socket address. Only the first entry of a list is used.
func ClientIP(r *http.Request) string {
	raw := ""
	for _, h := range []string{"Cf-Connecting-Ip", "X-Real-Ip", "X-Forwarded-For"} {
		if v := r.Header.Get(h); v != "" {
			raw = v
			break
		}
	}
	if raw == "" {
		raw = r.RemoteAddr
		if host, _, err := net.SplitHostPort(raw); err == nil {
			raw = host
		}
	}
	return strings.TrimSpace(strings.Split(raw, ",")[0])
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.WithError(err).Debug("Failed to write response")
	}
}
