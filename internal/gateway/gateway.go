// Package gateway orchestrates speech generation: cache lookup, concurrent
// request deduplication, engine invocation, result persistence, and the
// health state machine of the underlying speech engine.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/voice-service/internal/audio"
	"github.com/book-expert/voice-service/internal/cache"
	"github.com/book-expert/voice-service/internal/core"
	"github.com/book-expert/voice-service/internal/inflight"
	"github.com/book-expert/voice-service/internal/text"
)

// Defaults applied when the configuration leaves a knob unset.
const (
	DefaultGenerationTimeout = 120 * time.Second
	DefaultFollowerMargin    = 5 * time.Second
	DefaultEngineConcurrency = 1
	DefaultProbeInterval     = 3 * time.Second
)

const bytesPerMegabyte = 1024 * 1024

// Log formats.
const (
	logFmtStoreDegraded    = "Audio store unavailable, regenerating without cache: %v"
	logFmtStoreWriteSkip   = "Failed to persist generated audio for %s: %v"
	logFmtInvalidEngineWAV = "Engine returned non-WAV payload for %s: %v"
	logFmtCacheHit         = "Cache hit for %s (%d bytes)"
	logFmtGenerated        = "Generated %s in %s (%d bytes)"
	logFmtEngineReady      = "Speech engine ready"
	logFmtEngineLoading    = "Speech engine still loading: %v"
	logFmtEngineFailed     = "Speech engine load failed: %v"
	logFmtWarmPhraseFail   = "Warmup generation failed for %q: %v"
	logFmtWarmDone         = "Warmed %d/%d phrases"
)

// ErrTextEmpty indicates a generation request with no text after normalization.
var ErrTextEmpty = errors.New("text cannot be empty")

// Config tunes the gateway.
type Config struct {
	// GenerationTimeout bounds a single engine invocation.
	GenerationTimeout time.Duration
	// FollowerMargin is added to GenerationTimeout for followers waiting on
	// a leader, so a follower never gives up before the leader's own budget.
	FollowerMargin time.Duration
	// EngineConcurrency caps concurrent engine invocations across all
	// fingerprints. The engine is a single logical resource by default.
	EngineConcurrency int
	// ProbeInterval is the delay between health probes while the engine
	// model is still loading.
	ProbeInterval time.Duration
	// WarmPhrases are pre-generated after the engine becomes ready.
	WarmPhrases []string
	// CacheDir is reported in statistics; informational only.
	CacheDir string
}

// CacheStats is the human-facing cache statistics projection.
type CacheStats struct {
	CachedPhrases int     `json:"cached_phrases"`
	TotalSizeMB   float64 `json:"total_size_mb"`
	CacheDir      string  `json:"cache_dir"`
}

// Gateway is the single entry point for speech generation.
type Gateway struct {
	store       core.AudioStore
	engine      core.SpeechEngine
	coordinator *inflight.Coordinator
	normalizer  *text.Normalizer
	log         *logger.Logger
	cfg         Config

	engineSlots chan struct{}

	stateMu     sync.Mutex
	state       core.EngineState
	stateDetail string
}

// New wires a gateway from its collaborators. The engine starts in the
// uninitialized state; call Startup to begin loading.
func New(
	store core.AudioStore,
	speechEngine core.SpeechEngine,
	normalizer *text.Normalizer,
	cfg Config,
	log *logger.Logger,
) *Gateway {
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = DefaultGenerationTimeout
	}

	if cfg.FollowerMargin <= 0 {
		cfg.FollowerMargin = DefaultFollowerMargin
	}

	if cfg.EngineConcurrency <= 0 {
		cfg.EngineConcurrency = DefaultEngineConcurrency
	}

	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = DefaultProbeInterval
	}

	return &Gateway{
		store:       store,
		engine:      speechEngine,
		coordinator: inflight.NewCoordinator(log),
		normalizer:  normalizer,
		log:         log,
		cfg:         cfg,
		engineSlots: make(chan struct{}, cfg.EngineConcurrency),
		stateMu:     sync.Mutex{},
		state:       core.StateUninitialized,
		stateDetail: "",
	}
}

// State returns the engine lifecycle state and, for failures, a detail string.
func (g *Gateway) State() (core.EngineState, string) {
	g.stateMu.Lock()
	defer g.stateMu.Unlock()

	return g.state, g.stateDetail
}

// Startup drives UNINITIALIZED -> LOADING -> READY/FAILED by polling the
// engine's health probe. A probe error wrapping core.ErrEngineLoading means
// the engine is reachable but its model has not finished loading; the loop
// keeps polling at ProbeInterval until the probe succeeds, a hard probe
// error fails the engine, or ctx is cancelled. It is safe to call from a
// goroutine at boot; while a poll loop is running, further calls return
// immediately.
func (g *Gateway) Startup(ctx context.Context) error {
	if !g.beginLoading() {
		return nil
	}

	for {
		probeErr := g.engine.Probe(ctx)
		if probeErr == nil {
			g.setState(core.StateReady, "")
			g.log.System(logFmtEngineReady)

			return nil
		}

		if !errors.Is(probeErr, core.ErrEngineLoading) {
			g.setState(core.StateFailed, probeErr.Error())
			g.log.Error(logFmtEngineFailed, probeErr)

			return fmt.Errorf("engine load: %w", probeErr)
		}

		g.setDetail(probeErr.Error())
		g.log.Info(logFmtEngineLoading, probeErr)

		select {
		case <-time.After(g.cfg.ProbeInterval):
		case <-ctx.Done():
			g.setState(core.StateFailed, ctx.Err().Error())

			return fmt.Errorf("engine load interrupted: %w", ctx.Err())
		}
	}
}

// Reload re-enters LOADING from FAILED (or any other settled state) and runs
// the startup poll loop again.
func (g *Gateway) Reload(ctx context.Context) error {
	return g.Startup(ctx)
}

// Generate converts text into WAV audio. It is the algorithm of the service:
// readiness gate, fingerprint derivation, store lookup, leader/follower
// coordination, engine invocation, persistence. Exactly one engine invocation
// and at most one store write happen per distinct fingerprint, no matter how
// many callers arrive concurrently.
//
// With useCache false the store is bypassed in both directions, but
// concurrent identical requests still share one invocation.
func (g *Gateway) Generate(
	ctx context.Context,
	requestText string,
	voice core.VoiceProfile,
	useCache bool,
) ([]byte, error) {
	state, _ := g.State()
	if state != core.StateReady {
		return nil, fmt.Errorf("%w: engine is %s", core.ErrEngineNotReady, state)
	}

	normalized := g.normalizer.Normalize(requestText)
	if normalized == "" {
		return nil, ErrTextEmpty
	}

	fingerprint := cache.DeriveFingerprint(normalized, voice.ID, voice.SampleRate, voice.Options)

	if useCache {
		cached, hit := g.readStore(fingerprint)
		if hit {
			g.log.Info(logFmtCacheHit, shortFingerprint(fingerprint), len(cached))

			return cached, nil
		}
	}

	leader, handle := g.coordinator.RegisterOrJoin(fingerprint)
	if !leader {
		return handle.Wait(ctx, g.cfg.GenerationTimeout+g.cfg.FollowerMargin)
	}

	generated, err := g.lead(ctx, normalized, voice, fingerprint, useCache)
	g.coordinator.Complete(fingerprint, generated, err)

	return generated, err
}

// lead performs the leader branch: acquire the engine slot, invoke the
// engine under the generation budget, validate and persist the result.
func (g *Gateway) lead(
	ctx context.Context,
	normalized string,
	voice core.VoiceProfile,
	fingerprint string,
	useCache bool,
) ([]byte, error) {
	select {
	case g.engineSlots <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: waiting for engine slot: %w", core.ErrGenerationTimeout, ctx.Err())
	}
	defer func() { <-g.engineSlots }()

	// A previous leader may have written the store between this caller's
	// miss and it winning leadership. Re-check before invoking so each
	// distinct fingerprint costs one engine invocation, not two.
	if useCache {
		cached, hit := g.readStore(fingerprint)
		if hit {
			g.log.Info(logFmtCacheHit, shortFingerprint(fingerprint), len(cached))

			return cached, nil
		}
	}

	invokeCtx, cancel := context.WithTimeout(ctx, g.cfg.GenerationTimeout)
	defer cancel()

	started := time.Now()

	generated, err := g.engine.Synthesize(invokeCtx, normalized, voice)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(invokeCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", core.ErrGenerationTimeout, err)
		}

		return nil, err
	}

	_, inspectErr := audio.Inspect(generated)
	if inspectErr != nil {
		g.log.Error(logFmtInvalidEngineWAV, shortFingerprint(fingerprint), inspectErr)

		return nil, fmt.Errorf("%w: %w", core.ErrEngineFailure, inspectErr)
	}

	// Persist before releasing waiters so no reader observes a miss for
	// bytes it was already promised. A store failure degrades to
	// regenerate-next-time, never to a failed request.
	if useCache {
		writeErr := g.store.Write(fingerprint, generated)
		if writeErr != nil {
			g.log.Warn(logFmtStoreWriteSkip, shortFingerprint(fingerprint), writeErr)
		}
	}

	g.log.Info(logFmtGenerated, shortFingerprint(fingerprint), time.Since(started).Round(time.Millisecond), len(generated))

	return generated, nil
}

// readStore checks the store for a fingerprint. Store failures are logged and
// reported as a miss, degrading the service to always-regenerate.
func (g *Gateway) readStore(fingerprint string) ([]byte, bool) {
	exists, err := g.store.Exists(fingerprint)
	if err != nil {
		g.log.Warn(logFmtStoreDegraded, err)

		return nil, false
	}

	if !exists {
		return nil, false
	}

	data, readErr := g.store.Read(fingerprint)
	if readErr != nil {
		// The entry vanished between Exists and Read, or I/O failed.
		// Either way the miss path regenerates.
		if !errors.Is(readErr, core.ErrNotFound) {
			g.log.Warn(logFmtStoreDegraded, readErr)
		}

		return nil, false
	}

	return data, true
}

// Stats projects the store's raw accounting into the human-facing shape. It
// never touches the engine and never mutates state.
func (g *Gateway) Stats() (CacheStats, error) {
	raw, err := g.store.Stats()
	if err != nil {
		return CacheStats{}, fmt.Errorf("collecting cache stats: %w", err)
	}

	sizeMB := float64(raw.TotalSizeBytes) / bytesPerMegabyte

	return CacheStats{
		CachedPhrases: raw.EntryCount,
		TotalSizeMB:   math.Round(sizeMB*100) / 100,
		CacheDir:      g.cfg.CacheDir,
	}, nil
}

// Clear removes every cached entry and returns how many were removed.
func (g *Gateway) Clear() (int, error) {
	removed, err := g.store.DeleteAll()
	if err != nil {
		return removed, fmt.Errorf("clearing cache: %w", err)
	}

	return removed, nil
}

// Warm pre-generates the configured common phrases with the given voice so
// first real requests for them are cache hits. Individual failures are logged
// and skipped.
func (g *Gateway) Warm(ctx context.Context, voice core.VoiceProfile) {
	warmed := 0

	for _, phrase := range g.cfg.WarmPhrases {
		_, err := g.Generate(ctx, phrase, voice, true)
		if err != nil {
			g.log.Warn(logFmtWarmPhraseFail, phrase, err)

			continue
		}

		warmed++
	}

	if len(g.cfg.WarmPhrases) > 0 {
		g.log.Info(logFmtWarmDone, warmed, len(g.cfg.WarmPhrases))
	}
}

func (g *Gateway) setState(state core.EngineState, detail string) {
	g.stateMu.Lock()
	defer g.stateMu.Unlock()

	g.state = state
	g.stateDetail = detail
}

// setDetail updates the detail string without changing state, so health
// responses can surface probe progress while loading.
func (g *Gateway) setDetail(detail string) {
	g.stateMu.Lock()
	defer g.stateMu.Unlock()

	g.stateDetail = detail
}

// beginLoading transitions into LOADING unless a poll loop already owns the
// state, in which case it reports false and the caller backs off.
func (g *Gateway) beginLoading() bool {
	g.stateMu.Lock()
	defer g.stateMu.Unlock()

	if g.state == core.StateLoading {
		return false
	}

	g.state = core.StateLoading
	g.stateDetail = ""

	return true
}

// shortFingerprint trims a fingerprint for log lines, matching the store's
// full-key filenames without flooding the log.
func shortFingerprint(fingerprint string) string {
	const shortLen = 8
	if len(fingerprint) <= shortLen {
		return fingerprint
	}

	return fingerprint[:shortLen]
}
