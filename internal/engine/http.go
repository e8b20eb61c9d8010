// Package engine provides the speech engine collaborators of the voice
// service: an HTTP client for a standalone inference service and a local
// subprocess engine for piper voice models.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/book-expert/voice-service/internal/core"
)

// API endpoints and paths.
const (
	apiGenerateSpeech = "/v1/generate/speech"
	apiHealth         = "/health"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
	contentTypeWAV    = "audio/wav"
)

// Error messages.
const (
	errFmtUnexpectedContentType = "%w: expected audio/wav, got %s"
	errFmtServiceErrorWithCode  = "%w: %s: %s (code: %s)"
	errFmtServiceNonOKStatus    = "%w: non-OK status %s, body: %s"
)

// Static errors.
var (
	ErrTextEmpty         = errors.New("text cannot be empty")
	ErrEmptyAudio        = errors.New("received empty audio data")
	ErrEngineUnhealthy   = errors.New("engine health check failed")
	ErrEngineModelAbsent = errors.New("engine model not loaded")
)

// HTTPEngine is a core.SpeechEngine backed by a standalone TTS inference
// service speaking the /v1/generate/speech contract.
type HTTPEngine struct {
	httpClient *http.Client
	baseURL    string
}

// synthesisRequest is the JSON payload for a generation request.
type synthesisRequest struct {
	// Text is the (already normalized) text to synthesize.
	Text string `json:"text"`

	// Voice names the voice preset on the inference side.
	Voice string `json:"voice"`

	// SampleRate is the requested output rate in Hz.
	SampleRate int `json:"sample_rate,omitempty"`

	// Options carries opaque synthesis parameters (style, emotion, pace).
	Options map[string]string `json:"options,omitempty"`
}

// errorResponse is the structured error body the inference service returns.
type errorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

// healthResponse is the body of the inference service's health probe.
type healthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

// NewHTTPEngine creates a client for the inference service at baseURL
// (protocol and port included, e.g. "http://localhost:8000"). The timeout
// bounds every HTTP request made by this client.
func NewHTTPEngine(baseURL string, timeout time.Duration) *HTTPEngine {
	return &HTTPEngine{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Synthesize sends a generation request and returns the raw WAV bytes.
// Invocation failures wrap core.ErrEngineFailure so the gateway and the
// transports can classify them without string matching.
func (e *HTTPEngine) Synthesize(ctx context.Context, text string, voice core.VoiceProfile) ([]byte, error) {
	if text == "" {
		return nil, ErrTextEmpty
	}

	requestBody, err := json.Marshal(synthesisRequest{
		Text:       text,
		Voice:      voice.ID,
		SampleRate: voice.SampleRate,
		Options:    voice.Options,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := e.baseURL + apiGenerateSpeech

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		url,
		bytes.NewBuffer(requestBody),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, contentTypeWAV)

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf(
			"%w: sending request to engine at %s: %w",
			core.ErrEngineFailure,
			e.baseURL,
			err,
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, e.parseErrorResponse(resp)
	}

	contentType := resp.Header.Get(headerContentType)
	if contentType != contentTypeWAV {
		return nil, fmt.Errorf(errFmtUnexpectedContentType, core.ErrEngineFailure, contentType)
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading audio data: %w", core.ErrEngineFailure, err)
	}

	if len(audioData) == 0 {
		return nil, fmt.Errorf("%w: %w", core.ErrEngineFailure, ErrEmptyAudio)
	}

	return audioData, nil
}

// Probe verifies the inference service is up and its model is loaded. The
// gateway polls this to drive the engine health state machine.
func (e *HTTPEngine) Probe(ctx context.Context) error {
	url := e.baseURL + apiHealth

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: engine at %s: %w", ErrEngineUnhealthy, e.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %s", ErrEngineUnhealthy, resp.Status)
	}

	var health healthResponse

	decodeErr := json.NewDecoder(resp.Body).Decode(&health)
	if decodeErr != nil {
		return fmt.Errorf("%w: decoding health response: %w", ErrEngineUnhealthy, decodeErr)
	}

	// A reachable service that has not finished loading its model is a
	// transient condition; the gateway keeps polling instead of failing.
	if !health.ModelLoaded {
		return fmt.Errorf("%w: %w (status: %s)", core.ErrEngineLoading, ErrEngineModelAbsent, health.Status)
	}

	return nil
}

// parseErrorResponse attempts to decode a structured JSON error from the
// service, falling back to the raw body so diagnostics are never lost.
func (e *HTTPEngine) parseErrorResponse(resp *http.Response) error {
	var errorResp errorResponse

	err := json.NewDecoder(resp.Body).Decode(&errorResp)
	if err == nil {
		return fmt.Errorf(errFmtServiceErrorWithCode,
			core.ErrEngineFailure, resp.Status, errorResp.Detail, errorResp.ErrorCode)
	}

	body, _ := io.ReadAll(resp.Body)

	return fmt.Errorf(errFmtServiceNonOKStatus, core.ErrEngineFailure, resp.Status, string(body))
}
