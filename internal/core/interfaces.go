// Package core defines the shared contract between the cache, the generation
// gateway, and the transports of the voice service.
package core

import (
	"context"
	"errors"
)

// Error taxonomy for the generation path. Transports map these onto their own
// status codes; nothing below this package should invent parallel sentinels.
var (
	// ErrEngineNotReady indicates the speech engine has not reached the READY state.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrEngineLoading indicates a probe reached the engine but its model is
	// still loading. Startup keeps polling instead of failing.
	ErrEngineLoading = errors.New("engine model is still loading")
	// ErrEngineFailure indicates the speech engine accepted a request and failed.
	ErrEngineFailure = errors.New("engine invocation failed")
	// ErrGenerationTimeout indicates a caller waited past the generation budget.
	ErrGenerationTimeout = errors.New("generation timed out")
	// ErrStoreUnavailable indicates the audio store failed at the I/O level.
	ErrStoreUnavailable = errors.New("audio store unavailable")
	// ErrNotFound indicates the requested fingerprint has no stored entry.
	ErrNotFound = errors.New("audio not found in store")
)

// VoiceProfile describes the target voice for a synthesis request. It is pure
// data: immutable once constructed, and every field participates in cache key
// derivation so two requests with identical profiles derive identical keys.
type VoiceProfile struct {
	// ID names the voice preset (for example "holly").
	ID string
	// SampleRate is the output sample rate in Hz.
	SampleRate int
	// Options carries opaque synthesis parameters (style, emotion, pace).
	Options map[string]string
}

// StoreStats is the raw size accounting reported by an AudioStore.
type StoreStats struct {
	EntryCount     int
	TotalSizeBytes int64
}

// AudioStore is a persistent fingerprint-to-audio mapping. Entries are
// content-addressed and write-once: a second Write for an existing fingerprint
// with identical bytes is a no-op, and a Write with different bytes is an
// invariant violation that implementations log without accepting.
type AudioStore interface {
	Exists(fingerprint string) (bool, error)
	Read(fingerprint string) ([]byte, error)
	Write(fingerprint string, audio []byte) error
	DeleteAll() (int, error)
	Stats() (StoreStats, error)
}

// SpeechEngine is the expensive external synthesis collaborator.
type SpeechEngine interface {
	// Synthesize converts text to WAV audio. Failures wrap ErrEngineFailure.
	Synthesize(ctx context.Context, text string, voice VoiceProfile) ([]byte, error)
	// Probe reports whether the engine is loaded and able to serve requests.
	Probe(ctx context.Context) error
}

// ObjectStore is a key-value blob store used to move audio through the
// processing pipeline (as opposed to the local generation cache).
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// EngineState tracks the lifecycle of the underlying speech engine.
type EngineState int32

const (
	// StateUninitialized is the state before any load has been triggered.
	StateUninitialized EngineState = iota
	// StateLoading means a load or reload is in progress.
	StateLoading
	// StateReady is the only state from which generation is accepted.
	StateReady
	// StateFailed is terminal until an explicit reload re-enters StateLoading.
	StateFailed
)

// String returns the lowercase name used in health responses and logs.
func (s EngineState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
