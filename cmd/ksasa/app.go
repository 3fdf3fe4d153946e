// ABOUTME: Wires config, storage, the Agent Service client and the send pipeline
// ABOUTME: Every command builds one app and closes it on exit

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/2389/ksasa/internal/agentclient"
	"github.com/2389/ksasa/internal/config"
	"github.com/2389/ksasa/internal/conversation"
	"github.com/2389/ksasa/internal/metrics"
	"github.com/2389/ksasa/internal/store"
)

type app struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
	kv         store.KV
	events     *conversation.EventBroadcaster
	store      *conversation.Store
	client     *agentclient.Client
	metrics    *metrics.Metrics
	svc        *conversation.Service
	userID     string
}

func loadConfig() (string, *config.Config, error) {
	path := config.Path()
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return path, nil, fmt.Errorf("loading config: %w", err)
	}
	return path, cfg, nil
}

// newClientOnly builds the pieces needed by commands that only talk to the
// Agent Service.
func newClientOnly() (*app, error) {
	path, cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := setupLogger(cfg.Logging)
	// storage backends log through the default logger
	slog.SetDefault(logger)

	return &app{
		configPath: path,
		cfg:        cfg,
		logger:     logger,
		client:     agentclient.New(cfg.Agent.BaseURL, cfg.Agent.Timeout),
	}, nil
}

func newApp(ctx context.Context) (*app, error) {
	a, err := newClientOnly()
	if err != nil {
		return nil, err
	}

	a.kv, err = store.Open(ctx, a.cfg.StoreOptions())
	if err != nil {
		return nil, fmt.Errorf("opening %s storage: %w", a.cfg.Storage.Backend, err)
	}

	a.userID, err = conversation.LoadUserID(ctx, a.kv)
	if err != nil {
		a.kv.Close()
		return nil, err
	}

	a.events = conversation.NewEventBroadcaster(a.logger)
	a.store, err = conversation.NewStore(ctx, a.kv,
		conversation.WithBroadcaster(a.events),
		conversation.WithLogger(a.logger),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("loading conversations: %w", err)
	}

	opts := []conversation.Option{conversation.WithTimeout(a.cfg.Agent.Timeout)}
	if a.cfg.Metrics.Enabled {
		a.metrics = metrics.New()
		opts = append(opts, conversation.WithObserver(a.metrics))
	}
	a.svc = conversation.New(a.store, a.client, a.userID, a.logger, opts...)
	return a, nil
}

func (a *app) Close() {
	if a.events != nil {
		a.events.Close()
	}
	if a.kv != nil {
		if err := a.kv.Close(); err != nil {
			a.logger.Warn("closing storage", "error", err)
		}
	}
}
