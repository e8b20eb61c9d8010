// Command voice-client is a small CLI for exercising the voice-service HTTP API.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

// Flag names.
const (
	flagURL     = "url"
	flagText    = "text"
	flagVoice   = "voice"
	flagOutput  = "output"
	flagNoCache = "no-cache"
	flagHealth  = "health"
	flagStats   = "stats"
	flagClear   = "clear"
	flagReload  = "reload"
)

// Flag descriptions.
const (
	flagURLDesc     = "Base URL of the voice service"
	flagTextDesc    = "Text to convert to speech"
	flagVoiceDesc   = "Voice to synthesize with (service default when empty)"
	flagOutputDesc  = "Output file path (.wav)"
	flagNoCacheDesc = "Bypass the generation cache"
	flagHealthDesc  = "Check service health and exit"
	flagStatsDesc   = "Print cache statistics and exit"
	flagClearDesc   = "Clear the generation cache and exit"
	flagReloadDesc  = "Trigger an engine reload and exit"
)

const (
	defaultServiceURL = "http://127.0.0.1:8000"
	defaultOutputFile = "output.wav"
	requestTimeout    = 5 * time.Minute
)

// ErrTextRequired is returned when no action flag and no text are given.
var ErrTextRequired = errors.New("--text is required unless an action flag is given")

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	url     string
	text    string
	voice   string
	output  string
	noCache bool
	health  bool
	stats   bool
	clear   bool
	reload  bool
}

func main() {
	err := run()
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run() error {
	flags := parseFlags()

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	client := &http.Client{Timeout: requestTimeout}

	switch {
	case flags.health:
		return printJSON(ctx, client, flags.url+"/health", http.MethodGet)
	case flags.stats:
		return printJSON(ctx, client, flags.url+"/cache/stats", http.MethodGet)
	case flags.clear:
		return printJSON(ctx, client, flags.url+"/cache/clear", http.MethodPost)
	case flags.reload:
		return printJSON(ctx, client, flags.url+"/reload", http.MethodPost)
	case flags.text != "":
		return generate(ctx, client, flags)
	default:
		return ErrTextRequired
	}
}

func parseFlags() appFlags {
	var flags appFlags

	flag.StringVar(&flags.url, flagURL, defaultServiceURL, flagURLDesc)
	flag.StringVar(&flags.text, flagText, "", flagTextDesc)
	flag.StringVar(&flags.voice, flagVoice, "", flagVoiceDesc)
	flag.StringVar(&flags.output, flagOutput, defaultOutputFile, flagOutputDesc)
	flag.BoolVar(&flags.noCache, flagNoCache, false, flagNoCacheDesc)
	flag.BoolVar(&flags.health, flagHealth, false, flagHealthDesc)
	flag.BoolVar(&flags.stats, flagStats, false, flagStatsDesc)
	flag.BoolVar(&flags.clear, flagClear, false, flagClearDesc)
	flag.BoolVar(&flags.reload, flagReload, false, flagReloadDesc)
	flag.Parse()

	return flags
}

func generate(ctx context.Context, client *http.Client, flags appFlags) error {
	useCache := !flags.noCache

	payload, err := json.Marshal(map[string]any{
		"text":      flags.text,
		"voice":     flags.voice,
		"use_cache": useCache,
	})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	request, err := http.NewRequestWithContext(
		ctx, http.MethodPost, flags.url+"/generate", bytes.NewReader(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	request.Header.Set("Content-Type", "application/json")

	response, err := client.Do(request)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("service returned %s: %s", response.Status, string(body))
	}

	err = os.WriteFile(flags.output, body, 0o600)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", flags.output, err)
	}

	fmt.Printf("Generated: %s (%d bytes, %ss audio in %ss)\n",
		flags.output,
		len(body),
		response.Header.Get("X-Audio-Seconds"),
		response.Header.Get("X-Generation-Seconds"),
	)

	return nil
}

func printJSON(ctx context.Context, client *http.Client, url, method string) error {
	request, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	response, err := client.Do(request)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	fmt.Printf("%s %s\n%s\n", response.Proto, response.Status, string(body))

	if response.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("service returned %s", response.Status)
	}

	return nil
}
