package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"code-relay-backend/internal/api"
	"code-relay-backend/internal/api/router"
	"code-relay-backend/internal/env"
	"code-relay-backend/internal/queue"
	"code-relay-backend/internal/websocket"
)

func main() {
	cfg, err := env.Load()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts []websocket.HubOption
	var bridge *websocket.Bridge
	if cfg.RedisURL != "" {
		bridge, err = websocket.NewRedisBridge(cfg.RedisURL, cfg.RedisPass, cfg.RedisChannel)
		if err != nil {
			slog.Error("redis bridge init failed", "error", err)
			os.Exit(1)
		}
		defer bridge.Close()
		opts = append(opts, websocket.WithBridge(bridge))
	}

	hub := websocket.NewHub(opts...)
	go hub.Run(ctx)

	if bridge != nil {
		go func() {
			if err := bridge.Run(ctx, hub); err != nil {
				slog.Error("redis bridge stopped", "error", err)
			}
		}()
	}

	handler := websocket.NewHandler(hub, websocket.HandlerConfig{
		Session: websocket.SessionConfig{
			SendBuffer:        cfg.SendBuffer,
			MessagesPerSecond: cfg.MessagesPerSecond,
			MessageBurst:      cfg.MessageBurst,
			IdleTimeout:       cfg.IdleTimeout,
		},
		MaxMessageBytes: cfg.MaxMessageBytes,
		PollTimeout:     cfg.PollTimeout,
		PollIdleTimeout: cfg.PollIdleTimeout,
	})
	go handler.Run(ctx)

	queueManager := queue.NewRequestQueueManager(cfg.QueueSize, cfg.QueueWorkers)

	server := api.NewAPIServer(
		api.ServerConfig{
			ListenAddr: cfg.ListenAddr(),
			Queue:      queueManager,
			Handler:    handler,
			StaticDir:  cfg.StaticDir,
		},
		router.UtilsRoutes(""),
		router.RelayRoutes(""),
		router.StaticRoutes(),
	)

	if err := server.Run(ctx); err != nil {
		slog.Error("server stopped", "error", err)
	}
	stop()

	<-hub.Done()
	queueManager.Shutdown()
	slog.Info("relay stopped")
}

func setupLogger(cfg env.Config) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
}
