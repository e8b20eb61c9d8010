package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/book-expert/logger"

	"github.com/book-expert/voice-service/internal/core"
)

const piperBinary = "piper"

// Options a voice profile may pass through to the piper binary.
const (
	optionLengthScale     = "length_scale"
	optionSentenceSilence = "sentence_silence"
	optionSpeaker         = "speaker"
)

// Static errors.
var (
	ErrModelPathEmpty = errors.New("piper model path cannot be empty")
	ErrModelMissing   = errors.New("piper model file does not exist")
)

// PiperEngine is a core.SpeechEngine that shells out to the piper binary with
// a local ONNX voice model. It serves deployments without a standalone
// inference service.
type PiperEngine struct {
	modelPath string
	log       *logger.Logger
}

// NewPiperEngine creates an engine bound to an ONNX voice model on disk.
func NewPiperEngine(modelPath string, log *logger.Logger) (*PiperEngine, error) {
	if modelPath == "" {
		return nil, ErrModelPathEmpty
	}

	return &PiperEngine{modelPath: modelPath, log: log}, nil
}

// Synthesize feeds text to piper on stdin and reads the exported WAV back
// from a temp file.
func (e *PiperEngine) Synthesize(ctx context.Context, text string, voice core.VoiceProfile) ([]byte, error) {
	if text == "" {
		return nil, ErrTextEmpty
	}

	tempFile, err := os.CreateTemp("", "voice-output-*.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file for piper output: %w", err)
	}

	closeErr := tempFile.Close()
	if closeErr != nil {
		return nil, fmt.Errorf("failed to close temp file: %w", closeErr)
	}

	defer func() {
		removeErr := os.Remove(tempFile.Name())
		if removeErr != nil {
			e.log.Warn("Failed to remove temp file '%s': %v", tempFile.Name(), removeErr)
		}
	}()

	args := []string{
		"--model", e.modelPath,
		"--output_file", tempFile.Name(),
	}
	args = append(args, optionArgs(voice.Options)...)

	// #nosec G204 -- the model path comes from configuration and the option
	// values are restricted to the known piper flags above.
	cmd := exec.CommandContext(ctx, piperBinary, args...)
	cmd.Stdin = strings.NewReader(text)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf(
			"%w: piper execution failed: %w - output: %s",
			core.ErrEngineFailure,
			err,
			string(output),
		)
	}

	audioData, err := os.ReadFile(tempFile.Name())
	if err != nil {
		return nil, fmt.Errorf("%w: reading piper output: %w", core.ErrEngineFailure, err)
	}

	if len(audioData) == 0 {
		return nil, fmt.Errorf("%w: %w", core.ErrEngineFailure, ErrEmptyAudio)
	}

	return audioData, nil
}

// Probe reports readiness by checking the voice model exists. Piper loads the
// model per invocation, so a present model is a servable model.
func (e *PiperEngine) Probe(_ context.Context) error {
	_, err := os.Stat(e.modelPath)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrModelMissing, e.modelPath, err)
	}

	return nil
}

// optionArgs translates the allowed profile options into piper flags,
// ignoring anything unrecognized.
func optionArgs(options map[string]string) []string {
	var args []string

	if value, ok := options[optionLengthScale]; ok {
		args = append(args, "--length_scale", value)
	}

	if value, ok := options[optionSentenceSilence]; ok {
		args = append(args, "--sentence_silence", value)
	}

	if value, ok := options[optionSpeaker]; ok {
		args = append(args, "--speaker", value)
	}

	return args
}
