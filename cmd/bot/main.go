package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"chithravani/internal/config"
	"chithravani/internal/handlers"
	"chithravani/internal/httpclient"
	"chithravani/internal/logging"
	"chithravani/internal/mediagroup"
	"chithravani/internal/preview"
	"chithravani/internal/session"
	"chithravani/internal/storyapi"
	"chithravani/internal/telegram"
	"chithravani/internal/workspace"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg.LogLevel)

	if err := cfg.RequireTelegram(); err != nil {
		logger.Error("config", "err", err)
		os.Exit(1)
	}

	httpClient := httpclient.New(httpclient.Options{
		PreferIPv4: cfg.PreferIPv4,
		Timeout:    cfg.HTTPTimeout,
	})

	tg, err := telegram.New(telegram.Options{
		Token:        cfg.TelegramToken,
		HTTPClient:   httpClient,
		Logger:       logger,
		Debug:        cfg.Debug,
		MaxFileBytes: cfg.MaxUploadBytes,
	})
	if err != nil {
		logger.Error("telegram init failed", "err", err)
		os.Exit(1)
	}

	stories := storyapi.New(storyapi.Options{
		BaseURL:    cfg.StoryAPIURL,
		HTTPClient: httpClient,
		Timeout:    cfg.RequestTimeout,
		Logger:     logger,
	})

	// Telegram has no browser to show previews in; the registry only holds
	// the bytes for the lifetime of each entry.
	previews := preview.NewRegistry(preview.Options{})
	workspaces := workspace.NewStore(workspace.StoreOptions{Previews: previews})
	sessions := session.NewStore(session.Options{})

	janitor := workspace.NewJanitor(workspace.JanitorOptions{
		Store:    workspaces,
		Schedule: cfg.JanitorSchedule,
		MaxIdle:  cfg.WorkspaceIdleTimeout,
		Logger:   logger,
		AfterSweep: func([]string) {
			sessions.Prune(cfg.WorkspaceIdleTimeout)
		},
	})
	if err := janitor.Start(); err != nil {
		logger.Error("janitor init failed", "err", err)
		os.Exit(1)
	}
	defer janitor.Stop()

	handler := handlers.New(handlers.Options{
		Messenger:  tg,
		Workspaces: workspaces,
		Sessions:   sessions,
		Generator:  stories,
		Logger:     logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Work outlives the signal so albums and started requests can finish.
	workCtx, cancelWork := context.WithCancel(context.Background())
	defer cancelWork()

	var inflight sync.WaitGroup
	sem := make(chan struct{}, cfg.MaxConcurrent)
	onGroupFlush := func(group mediagroup.Group) {
		select {
		case sem <- struct{}{}:
		case <-workCtx.Done():
			return
		}

		inflight.Add(1)
		go func() {
			defer inflight.Done()
			defer func() { <-sem }()

			reqCtx, cancel := context.WithTimeout(workCtx, cfg.RequestTimeout)
			defer cancel()

			handler.HandleMediaGroup(reqCtx, group)
		}()
	}

	aggregator := mediagroup.New(mediagroup.Options{
		Debounce: cfg.MediaGroupDebounce,
		OnFlush:  onGroupFlush,
	})
	handler.SetMediaGroupAggregator(aggregator)

	logger.Info("bot started", "username", tg.Username(), "story_api", cfg.StoryAPIURL)

	updates := tg.Updates(telegram.UpdatesOptions{
		Timeout: 30 * time.Second,
	})
	defer tg.StopUpdates()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down", "workspaces", workspaces.Len(), "pending_albums", aggregator.Pending())
			aggregator.FlushAll()
			drain(&inflight, shutdownGrace, logger)
			return
		case update, ok := <-updates:
			if !ok {
				logger.Info("updates channel closed")
				return
			}

			handler.Prepare(update)

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				continue
			}

			inflight.Add(1)
			go func(update telegram.Update) {
				defer inflight.Done()
				defer func() { <-sem }()

				// Uploads plus one story request have to fit in here.
				reqCtx, cancel := context.WithTimeout(workCtx, 2*cfg.RequestTimeout)
				defer cancel()

				if err := handler.HandleUpdate(reqCtx, update); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("handle update failed", "err", err)
				}
			}(update)
		}
	}
}

const shutdownGrace = 30 * time.Second

func drain(wg *sync.WaitGroup, grace time.Duration, logger *slog.Logger) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(grace):
		logger.Warn("shutdown grace period exceeded")
	}
}
