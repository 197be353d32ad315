// Command proxy is the anonamoose interception proxy server.
//
// It sits in front of OpenAI- and Anthropic-shaped chat completion APIs,
// redacts PII from outbound request bodies through the dictionary/NER/
// regex/names pipeline, forwards the cleaned request upstream, and
// hydrates placeholders back to their originals in the response before it
// reaches the caller.
//
// Usage:
//
//	./proxy
//	./proxy -config /etc/anonamoose/anonamoose.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"anonamoose/internal/config"
	"anonamoose/internal/dictionary"
	"anonamoose/internal/logger"
	"anonamoose/internal/metrics"
	"anonamoose/internal/ner"
	"anonamoose/internal/observability"
	"anonamoose/internal/redact"
	"anonamoose/internal/rehydrate"
	"anonamoose/internal/server"
	"anonamoose/internal/settings"
	"anonamoose/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "path to anonamoose.yaml (optional; defaults are used if absent)")
	flag.Parse()

	loader, err := config.NewLoader(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[BOOT] config: %v\n", err)
		os.Exit(1)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "[BOOT] config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("SERVER", cfg.LogLevel)
	printBanner(cfg)

	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		log.Errorf("BOOT", "opening durable store at %s: %v", cfg.DBPath, err)
		os.Exit(1)
	}
	defer store.Close()

	dict, err := dictionary.New(store)
	if err != nil {
		log.Errorf("BOOT", "initializing dictionary: %v", err)
		os.Exit(1)
	}

	settingsStore, err := settings.New(store)
	if err != nil {
		log.Errorf("BOOT", "initializing settings store: %v", err)
		os.Exit(1)
	}

	rehydrateStore := rehydrate.New(store)
	defer rehydrateStore.Close()

	nerClassifier := ner.New(cfg.NEREndpoint, settingsSnapshotNERModel(settingsStore))

	pipeline := redact.New(dict, nerClassifier)
	rings := observability.New()
	m := metrics.New()

	opts := server.DefaultOptions()
	opts.APIToken = cfg.APIToken
	opts.StatsToken = cfg.StatsToken
	opts.CORSOrigin = cfg.CORSOrigin
	opts.OpenAIBaseURL = cfg.OpenAIBaseURL
	opts.AnthropicBaseURL = cfg.AnthropicBaseURL
	opts.UpstreamTimeout = cfg.UpstreamTimeout
	opts.MaxBodyBytes = cfg.MaxBodyBytes
	opts.MaxRedactChars = cfg.MaxRedactChars
	opts.RateLimitRequests = cfg.RateLimitRequests
	opts.RateLimitWindow = cfg.RateLimitWindow
	opts.SessionMapCapacity = cfg.SessionMapCapacity
	opts.SessionMapIdleTTL = cfg.SessionMapIdleTTL
	opts.SessionSweepEvery = cfg.SessionSweepEvery

	srv := server.New(opts, log, m, dict, settingsStore, rehydrateStore, nerClassifier, pipeline, rings)
	defer srv.Close()

	loader.Watch(func(reloaded config.Config) {
		log.Infof("BOOT", "anonamoose.yaml changed; the running server keeps the CORS origin and rate limits it started with")
		opts.CORSOrigin = reloaded.CORSOrigin
	})

	addr := fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.Port)
	log.Infof("SERVER", "listening on %s", addr)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Infof("SERVER", "shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			log.Errorf("SERVER", "shutdown error: %v", err)
		}
	}()

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Errorf("SERVER", "fatal: %v", err)
		os.Exit(1)
	}
}

// settingsSnapshotNERModel reads the currently configured NER model name
// out of the durable settings store so the classifier starts with the
// same model identity the management API would report.
func settingsSnapshotNERModel(s *settings.Store) string {
	snap, err := s.All()
	if err != nil {
		return ""
	}
	return snap.NERModel
}

func printBanner(cfg config.Config) {
	fmt.Printf(`
╔══════════════════════════════════════════════════════╗
║                    anonamoose                         ║
╚══════════════════════════════════════════════════════╝
  Listening on     : %s:%d
  Durable store    : %s
  NER endpoint     : %s
  OpenAI upstream  : %s
  Anthropic upstream: %s
  Log level        : %s

  Point clients at:
    http://%s:%d/v1/chat/completions
    http://%s:%d/v1/messages

  Check health:
    curl http://%s:%d/health
`, cfg.BindAddress, cfg.Port,
		cfg.DBPath,
		cfg.NEREndpoint,
		cfg.OpenAIBaseURL, cfg.AnthropicBaseURL,
		cfg.LogLevel,
		cfg.BindAddress, cfg.Port,
		cfg.BindAddress, cfg.Port,
		cfg.BindAddress, cfg.Port)
}
