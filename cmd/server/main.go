package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/philippgille/chromem-go"

	"github.com/jmcalloway/webgest/internal/api"
	"github.com/jmcalloway/webgest/internal/config"
	"github.com/jmcalloway/webgest/internal/fetch"
	"github.com/jmcalloway/webgest/internal/ingest"
	"github.com/jmcalloway/webgest/internal/pipeline"
	"github.com/jmcalloway/webgest/internal/vectorstore"
)

func main() {
	_ = godotenv.Load()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Vector store with Ollama embeddings.
	embed := chromem.NewEmbeddingFuncOllama(cfg.OllamaEmbedModel, cfg.OllamaURL+"/api")
	store, err := vectorstore.New(cfg.DataDir, embed, log)
	if err != nil {
		log.Error("open vector store", "error", err)
		os.Exit(1)
	}

	// Ingestion pipeline.
	mode := ingest.AddressByPosition
	if cfg.AddressMode == "content" {
		mode = ingest.AddressByContent
	}

	extractor := fetch.NewExtractor(cfg.FetchTimeout, cfg.FetchUserAgent, cfg.MaxFetchBytes, log)
	pl := pipeline.New(extractor, store, log, pipeline.Options{
		Workers: cfg.WorkerCount,
		Delay:   cfg.IngestDelay,
		Mode:    mode,
	})

	orch := pipeline.NewOrchestrator(pl, cfg.WorkerCount, cfg.MaxQueueSize, cfg.JobTTL, log)
	orch.Start(ctx)

	// HTTP server.
	srv := api.NewServer(orch, pl, store, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		orch.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("starting webgest", "port", cfg.Port, "data_dir", cfg.DataDir)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
