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

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"chithravani/internal/config"
	"chithravani/internal/httpclient"
	"chithravani/internal/logging"
	"chithravani/internal/preview"
	"chithravani/internal/storyapi"
	"chithravani/internal/webapi"
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
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	httpClient := httpclient.New(httpclient.Options{
		PreferIPv4: cfg.PreferIPv4,
		Timeout:    cfg.HTTPTimeout,
	})

	stories := storyapi.New(storyapi.Options{
		BaseURL:    cfg.StoryAPIURL,
		HTTPClient: httpClient,
		Timeout:    cfg.RequestTimeout,
		Logger:     logger,
	})

	previews := preview.NewRegistry(preview.Options{BaseURL: "/previews/"})
	workspaces := workspace.NewStore(workspace.StoreOptions{Previews: previews})

	janitor := workspace.NewJanitor(workspace.JanitorOptions{
		Store:    workspaces,
		Schedule: cfg.JanitorSchedule,
		MaxIdle:  cfg.WorkspaceIdleTimeout,
		Logger:   logger,
	})
	if err := janitor.Start(); err != nil {
		logger.Error("janitor init failed", "err", err)
		os.Exit(1)
	}
	defer janitor.Stop()

	api := webapi.New(webapi.Options{
		Workspaces:     workspaces,
		Previews:       previews,
		Generator:      stories,
		Logger:         logger,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	srv := &http.Server{
		Addr:              cfg.WebAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 30*time.Second,
		IdleTimeout:       90 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("web started", "addr", cfg.WebAddr, "story_api", cfg.StoryAPIURL)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "err", err)
		}
	}
}
