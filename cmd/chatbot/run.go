package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stupiduntilnot/streamchat/internal/anthropic"
	"github.com/stupiduntilnot/streamchat/internal/chat"
	cmdpkg "github.com/stupiduntilnot/streamchat/internal/commander"
	"github.com/stupiduntilnot/streamchat/internal/config"
	"github.com/stupiduntilnot/streamchat/internal/db"
	"github.com/stupiduntilnot/streamchat/internal/dummy"
	"github.com/stupiduntilnot/streamchat/internal/images"
	"github.com/stupiduntilnot/streamchat/internal/logger"
	"github.com/stupiduntilnot/streamchat/internal/metrics"
	"github.com/stupiduntilnot/streamchat/internal/model"
	"github.com/stupiduntilnot/streamchat/internal/openai"
	"github.com/stupiduntilnot/streamchat/internal/session"
	"github.com/stupiduntilnot/streamchat/internal/telegram"
)

// app is the fully wired bot.
type app struct {
	cfg      config.BotConfig
	log      zerolog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	db       *sql.DB
	rootID   *int64
	poller   *chat.Poller
	closers  []func() error
}

func runBot(ctx context.Context, cfg config.BotConfig, log zerolog.Logger) error {
	a, err := newApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	var srv *metrics.Server
	if cfg.MetricsAddr != "" {
		srv = metrics.NewServer(cfg.MetricsAddr, a.registry, log)
		go func() {
			if err := srv.Start(); err != nil {
				log.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	log.Info().
		Str("commander", cfg.Commander).
		Str("provider", cfg.ModelProvider).
		Str("images", cfg.ImageProvider).
		Str("session_store", cfg.SessionStore).
		Msg("chatbot running")

	err = a.poller.Run(ctx)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("metrics server shutdown failed")
		}
	}
	return err
}

func newApp(cfg config.BotConfig, log zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log, registry: prometheus.NewRegistry()}
	ready := false
	defer func() {
		if !ready {
			a.close()
		}
	}()

	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.NewMetrics(a.registry)

	var err error
	a.db, err = db.OpenDB(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.db.Close)
	if err := db.InitSchema(a.db); err != nil {
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	rootID, err := db.LogEvent(a.db, nil, db.EventProcessStarted, map[string]any{
		"role":          "bot",
		"pid":           os.Getpid(),
		"provider":      cfg.ModelProvider,
		"source":        cfg.Commander,
		"session_store": cfg.SessionStore,
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to log process.started")
	} else {
		a.rootID = &rootID
	}

	store, err := a.newSessionStore()
	if err != nil {
		return nil, err
	}
	commander, err := newCommander(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to init commander: %w", err)
	}
	provider, err := newModelProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to init model provider: %w", err)
	}
	pipeline, err := a.newImagePipeline()
	if err != nil {
		return nil, fmt.Errorf("failed to init images: %w", err)
	}

	var locker *session.Locker
	if cfg.SerializeSameUser {
		locker = session.NewLocker()
	}

	handler := chat.NewHandler(chat.Deps{
		Commander:     commander,
		Provider:      provider,
		Store:         store,
		Images:        pipeline,
		Locker:        locker,
		Window:        session.Window{MaxTurns: cfg.ContextMaxTurns},
		SystemPrompt:  cfg.SystemPrompt,
		EmitThreshold: cfg.EmitThreshold,
		EditPace:      cfg.EditPace(),
		ChatTimeout:   cfg.ChatTimeout(),
		DB:            a.db,
		ParentEventID: a.rootID,
		Metrics:       a.metrics,
		Log:           logger.Component(log, "handler"),
	})

	a.poller = &chat.Poller{
		Commander:     commander,
		Handler:       handler,
		DB:            a.db,
		ParentEventID: a.rootID,
		Timeout:       cfg.Timeout,
		Sleep:         time.Duration(cfg.SleepSeconds) * time.Second,
		DropPending:   cfg.DropPending,
		PendingWindow: cfg.PendingWindowSeconds,
		PendingMax:    cfg.PendingMaxMessages,
		Metrics:       a.metrics,
		Log:           logger.Component(log, "poller"),
	}
	ready = true
	return a, nil
}

func (a *app) newSessionStore() (session.Store, error) {
	switch a.cfg.SessionStore {
	case "bolt":
		store, err := session.OpenBoltStore(a.cfg.BoltPath, a.cfg.SessionTTL())
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	default:
		client := redis.NewClient(&redis.Options{
			Addr:     a.cfg.RedisAddr,
			Password: a.cfg.RedisPassword,
			DB:       a.cfg.RedisDB,
		})
		a.closers = append(a.closers, client.Close)
		return session.NewRedisStore(client, "", a.cfg.SessionTTL()), nil
	}
}

func (a *app) newImagePipeline() (*images.Pipeline, error) {
	var gen model.ImageGenerator
	switch a.cfg.ImageProvider {
	case "none":
		return nil, nil
	case "dummy":
		g, err := dummy.NewImages(a.cfg.DummyImageURL, a.cfg.DummyImageScript)
		if err != nil {
			return nil, err
		}
		gen = g
	default:
		gen = openai.NewClient(openai.Options{
			APIKey:     a.cfg.OpenAIAPIKey,
			BaseURL:    a.cfg.OpenAIBaseURL,
			ImageModel: a.cfg.OpenAIImageModel,
		})
	}
	blobs, err := images.NewFSBlobStore(a.cfg.ImageDir)
	if err != nil {
		return nil, err
	}
	return &images.Pipeline{
		Generator: model.WithImageTimeout(gen, a.cfg.ImageTimeout()),
		Fetcher:   images.NewHTTPFetcher(a.cfg.ImageTimeout()),
		Blobs:     blobs,
		Repo:      images.NewRepo(a.db),
		Metrics:   a.metrics,
		Log:       logger.Component(a.log, "images"),
	}, nil
}

func (a *app) close() {
	if a.db != nil && a.rootID != nil {
		_, _ = db.LogEvent(a.db, a.rootID, db.EventProcessStopped, map[string]any{"pid": os.Getpid()})
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn().Err(err).Msg("close failed")
		}
	}
	a.closers = nil
}

func newCommander(cfg config.BotConfig) (cmdpkg.Commander, error) {
	switch cfg.Commander {
	case "dummy":
		return dummy.NewCommander(cfg.DummyCommanderScript, cfg.DummySendScript, cfg.DummyEditScript)
	default:
		// The HTTP timeout must outlast the long poll.
		return telegram.NewClient(cfg.TelegramAPIBase, time.Duration(cfg.Timeout+20)*time.Second), nil
	}
}

func newModelProvider(cfg config.BotConfig) (model.Provider, error) {
	switch cfg.ModelProvider {
	case "dummy":
		return dummy.NewProvider(cfg.DummyProviderScript)
	case "anthropic":
		return anthropic.NewClient(anthropic.Options{
			APIKey:      cfg.AnthropicAPIKey,
			BaseURL:     cfg.AnthropicBaseURL,
			Model:       cfg.AnthropicModel,
			Temperature: cfg.Temperature,
		}), nil
	default:
		return openai.NewClient(openai.Options{
			APIKey:      cfg.OpenAIAPIKey,
			BaseURL:     cfg.OpenAIBaseURL,
			ChatModel:   cfg.OpenAIModel,
			Temperature: cfg.Temperature,
		}), nil
	}
}
