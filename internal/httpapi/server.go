// Package httpapi exposes the voice service over HTTP: generation, health,
// and cache administration. The transport owns status-code mapping; the
// gateway owns all generation semantics.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/voice-service/internal/audio"
	"github.com/book-expert/voice-service/internal/core"
	"github.com/book-expert/voice-service/internal/gateway"
)

// Wire constants.
const (
	headerContentType      = "Content-Type"
	headerAudioSeconds     = "X-Audio-Seconds"
	headerSampleRate       = "X-Sample-Rate"
	headerGenerationSecond = "X-Generation-Seconds"
	contentTypeJSON        = "application/json"
	contentTypeWAV         = "audio/wav"
)

// Error codes surfaced in JSON error bodies.
const (
	codeBadRequest        = "BAD_REQUEST"
	codeEngineNotReady    = "ENGINE_NOT_READY"
	codeGenerationTimeout = "GENERATION_TIMEOUT"
	codeEngineFailure     = "ENGINE_FAILURE"
	codeStoreUnavailable  = "STORE_UNAVAILABLE"
)

// Server timeouts.
const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// maxRequestBody bounds the /generate request body.
const maxRequestBody = 1 << 20

// serviceName identifies the service in the info document.
const serviceName = "voice-service"

// generateRequest is the body of POST /generate.
type generateRequest struct {
	Text     string `json:"text"`
	Voice    string `json:"voice,omitempty"`
	UseCache *bool  `json:"use_cache,omitempty"`
}

// errorBody is the structured JSON error shape.
type errorBody struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code"`
}

// healthBody is the response of GET /health.
type healthBody struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	Model       string `json:"model"`
	Voice       string `json:"voice"`
}

// clearBody is the response of POST /cache/clear.
type clearBody struct {
	RemovedCount int `json:"removed_count"`
}

// Server serves the REST API over a generation gateway.
type Server struct {
	gateway    *gateway.Gateway
	voice      core.VoiceProfile
	modelName  string
	log        *logger.Logger
	httpServer *http.Server
}

// New creates a server bound to addr (host:port). The voice profile is the
// default applied when a request names no voice, and modelName is reported in
// health and info documents.
func New(
	addr string,
	gw *gateway.Gateway,
	voice core.VoiceProfile,
	modelName string,
	log *logger.Logger,
) *Server {
	server := &Server{
		gateway:    gw,
		voice:      voice,
		modelName:  modelName,
		log:        log,
		httpServer: nil,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /", server.handleInfo)
	mux.HandleFunc("POST /generate", server.handleGenerate)
	mux.HandleFunc("GET /health", server.handleHealth)
	mux.HandleFunc("GET /cache/stats", server.handleCacheStats)
	mux.HandleFunc("POST /cache/clear", server.handleCacheClear)
	mux.HandleFunc("POST /reload", server.handleReload)

	server.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return server
}

// Handler exposes the routing for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe runs the server until the context is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		shutdownErr := s.httpServer.Shutdown(shutdownCtx)
		if shutdownErr != nil {
			s.log.Warn("HTTP server shutdown: %v", shutdownErr)
		}
	}()

	s.log.System("HTTP API listening on %s", s.httpServer.Addr)

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http listen: %w", err)
	}

	return nil
}

func (s *Server) handleGenerate(responseWriter http.ResponseWriter, request *http.Request) {
	var body generateRequest

	decoder := json.NewDecoder(http.MaxBytesReader(responseWriter, request.Body, maxRequestBody))

	decodeErr := decoder.Decode(&body)
	if decodeErr != nil {
		s.writeError(responseWriter, http.StatusBadRequest, codeBadRequest,
			"invalid request body: "+decodeErr.Error())

		return
	}

	if body.Text == "" {
		s.writeError(responseWriter, http.StatusBadRequest, codeBadRequest, "text is required")

		return
	}

	voice := s.voice
	if body.Voice != "" {
		voice.ID = body.Voice
	}

	useCache := true
	if body.UseCache != nil {
		useCache = *body.UseCache
	}

	started := time.Now()

	audioData, err := s.gateway.Generate(request.Context(), body.Text, voice, useCache)
	if err != nil {
		s.writeGenerateError(responseWriter, err)

		return
	}

	responseWriter.Header().Set(headerContentType, contentTypeWAV)
	responseWriter.Header().Set(headerGenerationSecond,
		strconv.FormatFloat(time.Since(started).Seconds(), 'f', 3, 64))

	info, inspectErr := audio.Inspect(audioData)
	if inspectErr == nil {
		responseWriter.Header().Set(headerSampleRate, strconv.Itoa(info.SampleRate))
		responseWriter.Header().Set(headerAudioSeconds,
			strconv.FormatFloat(info.Duration().Seconds(), 'f', 3, 64))
	}

	responseWriter.WriteHeader(http.StatusOK)

	_, writeErr := responseWriter.Write(audioData)
	if writeErr != nil {
		s.log.Warn("Failed to write audio response: %v", writeErr)
	}
}

// writeGenerateError maps the core error taxonomy onto HTTP status codes. A
// caller must be able to tell "engine still loading" from "request failed".
func (s *Server) writeGenerateError(responseWriter http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, gateway.ErrTextEmpty):
		s.writeError(responseWriter, http.StatusBadRequest, codeBadRequest, err.Error())
	case errors.Is(err, core.ErrEngineNotReady):
		s.writeError(responseWriter, http.StatusServiceUnavailable, codeEngineNotReady, err.Error())
	case errors.Is(err, core.ErrGenerationTimeout):
		s.writeError(responseWriter, http.StatusGatewayTimeout, codeGenerationTimeout, err.Error())
	default:
		s.writeError(responseWriter, http.StatusInternalServerError, codeEngineFailure, err.Error())
	}
}

func (s *Server) handleHealth(responseWriter http.ResponseWriter, _ *http.Request) {
	state, detail := s.gateway.State()

	status := state.String()
	if state == core.StateFailed && detail != "" {
		status = fmt.Sprintf("failed: %s", detail)
	}

	body := healthBody{
		Status:      status,
		ModelLoaded: state == core.StateReady,
		Model:       s.modelName,
		Voice:       s.voice.ID,
	}

	statusCode := http.StatusOK
	if state != core.StateReady {
		statusCode = http.StatusServiceUnavailable
	}

	s.writeJSON(responseWriter, statusCode, body)
}

// handleReload re-runs the engine startup probe so a FAILED engine can be
// brought back without restarting the service. The probe loop runs in the
// background; health reports the outcome.
func (s *Server) handleReload(responseWriter http.ResponseWriter, request *http.Request) {
	// The poll loop must outlive this request.
	reloadCtx := context.WithoutCancel(request.Context())

	go func() {
		reloadErr := s.gateway.Reload(reloadCtx)
		if reloadErr != nil {
			s.log.Error("Engine reload failed: %v", reloadErr)
		}
	}()

	state, _ := s.gateway.State()
	s.writeJSON(responseWriter, http.StatusAccepted, map[string]string{
		"status": state.String(),
	})
}

func (s *Server) handleCacheStats(responseWriter http.ResponseWriter, _ *http.Request) {
	stats, err := s.gateway.Stats()
	if err != nil {
		s.writeError(responseWriter, http.StatusInternalServerError, codeStoreUnavailable, err.Error())

		return
	}

	s.writeJSON(responseWriter, http.StatusOK, stats)
}

func (s *Server) handleCacheClear(responseWriter http.ResponseWriter, _ *http.Request) {
	removed, err := s.gateway.Clear()
	if err != nil {
		s.writeError(responseWriter, http.StatusInternalServerError, codeStoreUnavailable, err.Error())

		return
	}

	s.log.Info("Cache cleared: %d entries removed", removed)
	s.writeJSON(responseWriter, http.StatusOK, clearBody{RemovedCount: removed})
}

// handleInfo serves the service information document at the root.
func (s *Server) handleInfo(responseWriter http.ResponseWriter, request *http.Request) {
	// "GET /" also matches every unrouted path; only the root is an
	// info document.
	if request.URL.Path != "/" {
		http.NotFound(responseWriter, request)

		return
	}

	s.writeJSON(responseWriter, http.StatusOK, map[string]any{
		"service": serviceName,
		"model":   s.modelName,
		"voice":   s.voice.ID,
		"endpoints": map[string]string{
			"generate":    "POST /generate",
			"health":      "GET /health",
			"cache_stats": "GET /cache/stats",
			"cache_clear": "POST /cache/clear",
			"reload":      "POST /reload",
		},
	})
}

func (s *Server) writeError(
	responseWriter http.ResponseWriter,
	statusCode int,
	errorCode, detail string,
) {
	s.writeJSON(responseWriter, statusCode, errorBody{Detail: detail, ErrorCode: errorCode})
}

func (s *Server) writeJSON(responseWriter http.ResponseWriter, statusCode int, payload any) {
	responseWriter.Header().Set(headerContentType, contentTypeJSON)
	responseWriter.WriteHeader(statusCode)

	encodeErr := json.NewEncoder(responseWriter).Encode(payload)
	if encodeErr != nil {
		s.log.Warn("Failed to encode response: %v", encodeErr)
	}
}
