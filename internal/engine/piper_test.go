package engine_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-service/internal/engine"
	"github.com/stretchr/testify/require"
)

func createTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	testLogger, err := logger.New(t.TempDir(), "engine-test.log")
	if err != nil {
		t.Fatalf("Failed to create test logger: %v", err)
	}

	t.Cleanup(func() {
		_ = testLogger.Close()
	})

	return testLogger
}

func TestNewPiperEngine_EmptyModelPath(t *testing.T) {
	t.Parallel()

	_, err := engine.NewPiperEngine("", createTestLogger(t))
	require.ErrorIs(t, err, engine.ErrModelPathEmpty)
}

func TestPiperEngine_Probe(t *testing.T) {
	t.Parallel()

	modelPath := filepath.Join(t.TempDir(), "en_US-amy-medium.onnx")

	piperEngine, err := engine.NewPiperEngine(modelPath, createTestLogger(t))
	require.NoError(t, err)

	require.ErrorIs(t, piperEngine.Probe(context.Background()), engine.ErrModelMissing)

	require.NoError(t, os.WriteFile(modelPath, []byte("onnx-model-bytes"), 0o600))
	require.NoError(t, piperEngine.Probe(context.Background()))
}

func TestPiperEngine_Synthesize_EmptyText(t *testing.T) {
	t.Parallel()

	piperEngine, err := engine.NewPiperEngine("model.onnx", createTestLogger(t))
	require.NoError(t, err)

	_, synthErr := piperEngine.Synthesize(context.Background(), "", hollyProfile())
	require.ErrorIs(t, synthErr, engine.ErrTextEmpty)
}
