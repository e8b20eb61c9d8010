// Package worker provides a NATS worker that feeds pipeline synthesis jobs
// through the generation gateway, so batch jobs share the same cache and
// deduplication as interactive requests.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/voice-service/internal/core"
)

const handleMessageTimeout = 3 * time.Minute

// Synthesis option keys passed through to fingerprint derivation.
const (
	optionSeed              = "seed"
	optionNGL               = "ngl"
	optionTopP              = "top_p"
	optionRepetitionPenalty = "repetition_penalty"
	optionTemperature       = "temperature"
)

var (
	// ErrVoiceEmpty indicates the event names no voice.
	ErrVoiceEmpty = errors.New("voice cannot be empty")
	// ErrTopPRange indicates the TopP parameter is out of the valid range [0.0, 1.0].
	ErrTopPRange = errors.New("top_p must be between 0.0 and 1.0")
	// ErrRepetitionPenaltyRange indicates the RepetitionPenalty parameter is below 1.0.
	ErrRepetitionPenaltyRange = errors.New("repetition penalty must be >= 1.0")
	// ErrTemperatureRange indicates a negative Temperature parameter.
	ErrTemperatureRange = errors.New("temperature must be >= 0.0")
	// ErrNGLNegative indicates a negative GPU layer count.
	ErrNGLNegative = errors.New("n_gpu_layers must be non-negative")
)

// Generator is the slice of the gateway the worker depends on.
type Generator interface {
	Generate(ctx context.Context, text string, voice core.VoiceProfile, useCache bool) ([]byte, error)
}

// NatsWorker listens for synthesis jobs on a NATS subject, generates audio
// through the gateway, and delivers it via the pipeline object store.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	store          core.ObjectStore
	generator      Generator
	sampleRate     int
	log            *logger.Logger
}

// NewNatsWorker creates a worker. sampleRate is the output rate stamped into
// the voice profiles built from events.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	store core.ObjectStore,
	generator Generator,
	sampleRate int,
	log *logger.Logger,
) *NatsWorker {
	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		store:          store,
		generator:      generator,
		sampleRate:     sampleRate,
		log:            log,
	}
}

// Run subscribes and blocks until the context is cancelled, then drains.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleMessageTimeout)
	defer cancel()

	var event events.TextProcessedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		w.log.Error("Failed to unmarshal event: %v", err)

		return
	}

	audioKey, processErr := w.processJob(ctx, &event)
	if processErr != nil {
		w.log.Error("Failed to process synthesis job for workflow %s: %v",
			event.Header.WorkflowID, processErr)

		return
	}

	replyEvent := &events.AudioChunkCreatedEvent{
		Header:     event.Header,
		AudioKey:   audioKey,
		PageNumber: event.PageNumber,
		TotalPages: event.TotalPages,
	}

	publishErr := w.publishReplyEvent(msg, replyEvent)
	if publishErr != nil {
		w.log.Error("Failed to publish reply event for workflow %s: %v",
			event.Header.WorkflowID, publishErr)
	}
}

// processJob downloads the job text, synthesizes it through the gateway, and
// uploads the audio under a fresh delivery key.
func (w *NatsWorker) processJob(ctx context.Context, event *events.TextProcessedEvent) (string, error) {
	voice, err := w.voiceFromEvent(event)
	if err != nil {
		return "", err
	}

	textData, err := w.store.Download(ctx, event.TextKey)
	if err != nil {
		return "", fmt.Errorf("failed to download text data for key '%s': %w", event.TextKey, err)
	}

	audioData, err := w.generator.Generate(ctx, string(textData), voice, true)
	if err != nil {
		return "", fmt.Errorf("failed to generate speech: %w", err)
	}

	audioKey := uuid.NewString() + ".wav"

	err = w.store.Upload(ctx, audioKey, audioData)
	if err != nil {
		return "", fmt.Errorf("failed to upload audio data for key '%s': %w", audioKey, err)
	}

	return audioKey, nil
}

// voiceFromEvent validates the event's synthesis parameters and folds them
// into a voice profile, so they participate in cache key derivation.
func (w *NatsWorker) voiceFromEvent(event *events.TextProcessedEvent) (core.VoiceProfile, error) {
	if event.Voice == "" {
		return core.VoiceProfile{}, ErrVoiceEmpty
	}

	if event.TopP < 0.0 || event.TopP > 1.0 {
		return core.VoiceProfile{}, fmt.Errorf("%w: got %f", ErrTopPRange, event.TopP)
	}

	if event.RepetitionPenalty < 1.0 {
		return core.VoiceProfile{}, fmt.Errorf("%w: got %f", ErrRepetitionPenaltyRange, event.RepetitionPenalty)
	}

	if event.Temperature < 0.0 {
		return core.VoiceProfile{}, fmt.Errorf("%w: got %f", ErrTemperatureRange, event.Temperature)
	}

	if event.NGL < 0 {
		return core.VoiceProfile{}, fmt.Errorf("%w: got %d", ErrNGLNegative, event.NGL)
	}

	return core.VoiceProfile{
		ID:         event.Voice,
		SampleRate: w.sampleRate,
		Options: map[string]string{
			optionSeed:              strconv.Itoa(event.Seed),
			optionNGL:               strconv.Itoa(event.NGL),
			optionTopP:              strconv.FormatFloat(event.TopP, 'f', 2, 64),
			optionRepetitionPenalty: strconv.FormatFloat(event.RepetitionPenalty, 'f', 2, 64),
			optionTemperature:       strconv.FormatFloat(event.Temperature, 'f', 2, 64),
		},
	}, nil
}

// publishReplyEvent marshals and responds with the AudioChunkCreatedEvent.
func (w *NatsWorker) publishReplyEvent(msg *nats.Msg, replyEvent *events.AudioChunkCreatedEvent) error {
	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf("failed to publish reply event: %w", err)
	}

	return nil
}
