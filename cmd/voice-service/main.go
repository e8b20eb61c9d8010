// main package for the voice-service
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-service/internal/cache"
	"github.com/book-expert/voice-service/internal/config"
	"github.com/book-expert/voice-service/internal/core"
	"github.com/book-expert/voice-service/internal/engine"
	"github.com/book-expert/voice-service/internal/gateway"
	"github.com/book-expert/voice-service/internal/httpapi"
	"github.com/book-expert/voice-service/internal/objectstore"
	"github.com/book-expert/voice-service/internal/text"
	"github.com/book-expert/voice-service/internal/worker"
	"github.com/nats-io/nats.go"
)

const (
	modelName = "fish-speech-1.5"

	engineKindPiper = "piper"
)

func setupLogger(logPath string) (*logger.Logger, error) {
	log, err := logger.New(logPath, "voice-service.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func buildEngine(cfg *config.Config, log *logger.Logger) (core.SpeechEngine, error) {
	if cfg.Engine.Kind == engineKindPiper {
		piperEngine, err := engine.NewPiperEngine(cfg.Engine.ModelPath, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create piper engine: %w", err)
		}

		return piperEngine, nil
	}

	timeout := time.Duration(cfg.Engine.TimeoutSeconds) * time.Second

	return engine.NewHTTPEngine(cfg.EngineURL(), timeout), nil
}

func buildStore(cfg *config.Config, log *logger.Logger) (core.AudioStore, error) {
	if !cfg.Cache.Enabled {
		log.Warn("Disk cache disabled; generated audio is kept in memory only.")

		return cache.NewMemoryStore(log), nil
	}

	diskStore, err := cache.NewDiskStore(cfg.Cache.Dir, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache directory: %w", err)
	}

	return diskStore, nil
}

func buildGateway(
	cfg *config.Config,
	store core.AudioStore,
	speechEngine core.SpeechEngine,
	log *logger.Logger,
) *gateway.Gateway {
	normalizer := text.NewNormalizer()
	if cfg.Cache.ExactText {
		normalizer = text.NewExactNormalizer()
	}

	return gateway.New(store, speechEngine, normalizer, gateway.Config{
		GenerationTimeout: time.Duration(cfg.Engine.TimeoutSeconds) * time.Second,
		FollowerMargin:    time.Duration(cfg.Cache.FollowerMarginSeconds) * time.Second,
		EngineConcurrency: cfg.Engine.Concurrency,
		ProbeInterval:     time.Duration(cfg.Engine.ProbeIntervalSeconds) * time.Second,
		WarmPhrases:       cfg.Cache.WarmPhrases,
		CacheDir:          cfg.Cache.Dir,
	}, log)
}

func startWorker(
	ctx context.Context,
	cfg *config.Config,
	gw *gateway.Gateway,
	log *logger.Logger,
) (chan error, error) {
	natsConnection, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}

	go func() {
		<-ctx.Done()
		natsConnection.Close()
	}()

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	bucket, err := objectstore.New(jetstreamContext, cfg.NATS.AudioObjectStoreBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio object store: %w", err)
	}

	natsWorker := worker.NewNatsWorker(
		natsConnection,
		cfg.NATS.TextProcessedSubject,
		bucket,
		gw,
		cfg.Voice.SampleRate,
		log,
	)

	errChan := make(chan error, 1)

	go func() {
		errChan <- natsWorker.Run(ctx)
	}()

	log.System("Pipeline worker listening on subject: %s", cfg.NATS.TextProcessedSubject)

	return errChan, nil
}

func run() error {
	bootstrapLog, err := setupLogger(os.TempDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := setupLogger(cfg.Paths.BaseLogsDir)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := log.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, log)
}

func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	speechEngine, err := buildEngine(cfg, log)
	if err != nil {
		return err
	}

	store, err := buildStore(cfg, log)
	if err != nil {
		return err
	}

	gw := buildGateway(cfg, store, speechEngine, log)

	voice := core.VoiceProfile{
		ID:         cfg.Voice.ID,
		SampleRate: cfg.Voice.SampleRate,
		Options:    cfg.Voice.Options,
	}

	// The engine may take minutes to load its model. Serve requests
	// immediately and report 503 until the probe succeeds.
	go func() {
		startupErr := gw.Startup(ctx)
		if startupErr != nil {
			log.Error("Engine startup probe failed: %v", startupErr)

			return
		}

		gw.Warm(ctx, voice)
	}()

	var workerErrChan chan error

	if cfg.NATS.URL != "" {
		workerErrChan, err = startWorker(ctx, cfg, gw, log)
		if err != nil {
			return err
		}
	}

	server := httpapi.New(cfg.ListenAddr(), gw, voice, modelName, log)

	log.System("Voice service listening on %s (model: %s, voice: %s)",
		cfg.ListenAddr(), modelName, voice.ID)

	serverErrChan := make(chan error, 1)

	go func() {
		serverErrChan <- server.ListenAndServe(ctx)
	}()

	select {
	case serveErr := <-serverErrChan:
		if serveErr != nil {
			return fmt.Errorf("http server failed: %w", serveErr)
		}

		return nil
	case workerErr := <-workerErrChan:
		if workerErr != nil {
			return fmt.Errorf("pipeline worker failed: %w", workerErr)
		}

		return nil
	}
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
