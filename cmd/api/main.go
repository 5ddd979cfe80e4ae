// Package main is the entry point for the API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/followchat/followchat/internal/config"
	"github.com/followchat/followchat/internal/handler"
	"github.com/followchat/followchat/internal/model"
	natsclient "github.com/followchat/followchat/internal/nats"
	"github.com/followchat/followchat/internal/service"
	"github.com/followchat/followchat/internal/store"
	"github.com/followchat/followchat/pkg/logger"
	"github.com/followchat/followchat/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.NewWithOptions(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting API server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "followchat", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Open the store
	st, err := store.Open(store.Options{
		Driver: cfg.DatabaseDriver,
		DSN:    cfg.DatabaseDSN,
		Logger: log,
	})
	if err != nil {
		log.Error("failed to open database", zap.String("driver", cfg.DatabaseDriver), zap.Error(err))
		os.Exit(1)
	}
	defer st.Close()

	configSvc := service.NewConfigService(st, cfg.ConfigCacheTTL, log)
	if _, err := configSvc.EnsureDefaults(ctx, defaultLLMConfig(cfg.LLM)); err != nil {
		log.Error("failed to initialize llm config", zap.Error(err))
		os.Exit(1)
	}

	// Connect to NATS when configured
	var (
		natsClient *natsclient.Client
		publisher  service.EventPublisher = service.NopPublisher{}
		events     handler.EventReader
	)
	if cfg.NATSURL != "" {
		natsClient, err = natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Error("failed to connect to NATS", zap.Error(err))
			os.Exit(1)
		}
		defer natsClient.Close()

		streamManager := natsclient.NewStreamManager(natsClient)
		if err := streamManager.EnsureStream(ctx); err != nil {
			log.Error("failed to ensure stream", zap.Error(err))
			os.Exit(1)
		}
		publisher = streamManager
		events = streamManager
	} else {
		log.Info("NATS_URL not set, conversation events disabled")
	}

	// Initialize services
	conversationSvc := service.NewConversationService(st, publisher, log)
	messageSvc := service.NewMessageService(st, st, publisher, log)
	replySvc := service.NewReplyService(st, st, configSvc,
		service.NewOpenAIClientFactory(cfg.LLM.Timeout), publisher, log)

	router := handler.NewRouter(handler.Handlers{
		Health:        handler.NewHealthHandler(st, natsClient, log),
		Conversations: handler.NewConversationHandler(conversationSvc, log),
		Messages:      handler.NewMessageHandler(messageSvc, log),
		Stream:        handler.NewStreamHandler(replySvc, log),
		Config:        handler.NewConfigHandler(configSvc, log),
		Events:        handler.NewEventHandler(events, log),
	}, handler.RouterOptions{
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
	}, log)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	// Let in-flight summaries and titles land before the store closes.
	replySvc.Wait()

	log.Info("server stopped")
}

// defaultLLMConfig converts the environment settings into the initial config row.
func defaultLLMConfig(d config.LLMDefaults) model.LLMConfig {
	out := model.LLMConfig{
		ModelName:   d.ModelName,
		Temperature: d.Temperature,
	}
	if d.APIKey != "" {
		out.APIKey = &d.APIKey
	}
	if d.BaseURL != "" {
		out.BaseURL = &d.BaseURL
	}
	return out
}
