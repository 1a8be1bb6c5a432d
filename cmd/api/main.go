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

	"github.com/go-resty/resty/v2"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/constitution-portal/backend/internal/bootstrap"
	"github.com/zhouzirui/constitution-portal/backend/internal/config"
	"github.com/zhouzirui/constitution-portal/backend/internal/handler"
	"github.com/zhouzirui/constitution-portal/backend/internal/logger"
	"github.com/zhouzirui/constitution-portal/backend/internal/service/catalog"
	"github.com/zhouzirui/constitution-portal/backend/internal/service/chat"
	"github.com/zhouzirui/constitution-portal/backend/internal/service/download"
	"github.com/zhouzirui/constitution-portal/backend/internal/service/notify"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format, "constitution-portal")
	if envErr != nil {
		log.Debug().Err(envErr).Msg("no .env file, continuing with system environment variables only")
	}

	slot, closeSlot, err := bootstrap.OpenSlot(ctx, cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Storage.Backend).Msg("failed to open transcript storage")
	}
	defer closeSlot()
	log.Info().Str("backend", cfg.Storage.Backend).Msg("transcript storage ready")

	files := catalog.Files{BaseURL: cfg.Catalog.BaseURL}
	documents := bootstrap.Documents(cfg.Catalog, log)
	answerer := bootstrap.Answerer(ctx, cfg, documents, log)

	hub := notify.NewHub(0, logger.Component(log, "hub"))
	chatSvc := chat.NewService(slot, answerer, hub, chat.Options{
		HistoryWindow: cfg.Chat.HistoryWindow,
		Timeout:       cfg.Chat.Timeout,
		MaxResults:    cfg.Chat.MaxResults,
		Logger:        logger.Component(log, "chat"),
	})

	blobs, err := bootstrap.Blobs(cfg.Download.BlobDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to prepare download storage")
	}
	downloads := download.NewHelper(resty.New().SetTimeout(cfg.Catalog.Timeout), blobs, nil, download.Options{
		ReleaseDelay: cfg.Download.ReleaseDelay,
		Logger:       logger.Component(log, "download"),
	})
	defer downloads.Wait()

	router := handler.NewRouter(handler.Deps{
		Documents:      documents,
		Files:          files,
		Downloads:      downloads,
		Chat:           chatSvc,
		Hub:            hub,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         log,
	})

	if err := startServer(ctx, cfg.Server, router, log); err != nil {
		log.Error().Err(err).Msg("server error")
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, log zerolog.Logger) error {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("constitution portal backend listening")
	return runServer(ctx, srv, serverCfg.ShutdownTimeout)
}

func runServer(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration) error {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
