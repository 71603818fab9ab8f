package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voxcast/charchat/internal/chat"
	"github.com/voxcast/charchat/internal/config"
	"github.com/voxcast/charchat/internal/httpx"
	"github.com/voxcast/charchat/internal/session"
	"github.com/voxcast/charchat/internal/trace"
	"github.com/voxcast/charchat/internal/tts"
	"github.com/voxcast/charchat/internal/ws"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	streamClient := chat.NewStreamClient(cfg.CompletionBaseURL, cfg.CompletionAPIKey, cfg.StreamModel, cfg.CompletionPoolSize)
	oneShot := chat.NewOneShotClient(cfg.CompletionBaseURL, cfg.CompletionAPIKey, cfg.OneShotModel)

	synthHTTP := httpx.NewPooledClient(cfg.SynthesisPoolSize, 60*time.Second)
	synth := tts.NewElevenLabs(cfg.SynthesisAPIKey, cfg.SynthesisVoiceID, cfg.SynthesisModelID, cfg.SynthesisBaseURL, synthHTTP)

	var traceStore *trace.Store
	if cfg.TraceDBURL != "" {
		traceStore, err = trace.Open(cfg.TraceDBURL)
		if err != nil {
			slog.Error("trace store", "error", err)
			os.Exit(1)
		}
		defer traceStore.Close()
		slog.Info("turn tracing enabled")
	}

	registry := session.NewRegistry(session.Config{
		Completions:      streamClient,
		Synth:            synth,
		WrapUpThreshold:  cfg.WrapUpThreshold,
		GoodbyeThreshold: cfg.GoodbyeThreshold,
		TraceStore:       traceStore,
	})
	handler := ws.NewHandler(registry, cfg.MaxConnections)

	mux := http.NewServeMux()
	registerRoutes(mux, deps{
		oneShot:    oneShot,
		wsHandler:  handler,
		traceStore: traceStore,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	slog.Info("gateway starting", "addr", addr, "stream_model", cfg.StreamModel, "max_connections", cfg.MaxConnections)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server", "error", err)
		os.Exit(1)
	}
}
