package main

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/lychee-technology/schemata"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server exposes a schemata.Engine over HTTP.
type Server struct {
	engine   schemata.Engine
	registry schemata.Registry
	metrics  *prometheus.Registry
	maxBody  int64
	mux      *http.ServeMux
}

func NewServer(engine schemata.Engine, registry schemata.Registry, metrics *prometheus.Registry, maxBody int64) *Server {
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &Server{
		engine:   engine,
		registry: registry,
		metrics:  metrics,
		maxBody:  maxBody,
		mux:      http.NewServeMux(),
	}
}

// RegisterRoutes registers all routes
func (s *Server) RegisterRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{}))
	}
	s.mux.HandleFunc("POST /sync/{handle}", s.handleSync)
	s.mux.HandleFunc("GET /sync/{handle}", s.handleDefinition)
	s.mux.HandleFunc("/apps/{handle}/{rest...}", s.handleApp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleApp forwards /apps/{handle}/<path> to the application as <path>.
func (s *Server) handleApp(w http.ResponseWriter, r *http.Request) {
	method, err := schemata.ParseMethod(r.Method)
	if err != nil {
		writeError(w, http.StatusMethodNotAllowed, err.Error())
		return
	}
	body, err := s.readBody(w, r)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}

	req := &schemata.Request{
		Method:        method,
		Path:          "/" + r.PathValue("rest"),
		Query:         r.URL.Query(),
		Body:          body,
		Authorization: r.Header.Get("Authorization"),
	}
	resp, err := s.engine.Handle(r.Context(), r.PathValue("handle"), req)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	w.Header().Set("Content-Type", resp.ContentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(resp.Body); err != nil {
		zap.S().Warnw("failed to write response", "error", err)
	}
}

// handleSync installs a new definition. The caller must present the
// application's admin token.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	handle := r.PathValue("handle")
	if !s.authorizeAdmin(w, r, handle) {
		return
	}
	body, err := s.readBody(w, r)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	def, err := s.engine.Sync(r.Context(), handle, body)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: map[string]any{
		"name":      def.Name,
		"models":    len(def.Models),
		"endpoints": len(def.API.Endpoints),
	}})
}

func (s *Server) handleDefinition(w http.ResponseWriter, r *http.Request) {
	handle := r.PathValue("handle")
	if !s.authorizeAdmin(w, r, handle) {
		return
	}
	def, err := s.engine.Definition(r.Context(), handle)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: def})
}

func (s *Server) authorizeAdmin(w http.ResponseWriter, r *http.Request, handle string) bool {
	app, err := s.registry.GetApp(r.Context(), handle)
	if err != nil {
		writeEngineError(w, err)
		return false
	}
	parts := strings.Split(r.Header.Get("Authorization"), " ")
	if len(parts) != 2 || subtle.ConstantTimeCompare([]byte(parts[1]), []byte(app.AdminToken)) != 1 {
		writeEngineError(w, schemata.NewPermissionError("admin token required"))
		return false
	}
	return true
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
}

// statusFor maps an engine error to an HTTP status.
func statusFor(err error) int {
	t, ok := schemata.TypeOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch t {
	case schemata.ErrorTypeValidation, schemata.ErrorTypeMissingField, schemata.ErrorTypeUnsupportedQuery:
		return http.StatusBadRequest
	case schemata.ErrorTypePermission:
		return http.StatusForbidden
	case schemata.ErrorTypeNotFound:
		return http.StatusNotFound
	case schemata.ErrorTypeBusy:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeEngineError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Success: false, Error: err.Error()}
	var e *schemata.Error
	if errors.As(err, &e) {
		resp.Error = e.Message
		resp.Type = string(e.Type)
		resp.Code = e.Code
		resp.Model = e.Model
		resp.Field = e.Field
		resp.Details = e.Details
	}
	if status >= http.StatusInternalServerError {
		zap.S().Errorw("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, resp)
}
