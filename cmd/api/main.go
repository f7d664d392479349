package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mediafirewall/persona-voice/internal/config"
	"github.com/mediafirewall/persona-voice/internal/handler"
	chatHandler "github.com/mediafirewall/persona-voice/internal/handler/chat"
	"github.com/mediafirewall/persona-voice/internal/logging"
	"github.com/mediafirewall/persona-voice/internal/model/persona"
	"github.com/mediafirewall/persona-voice/internal/service/admin"
	"github.com/mediafirewall/persona-voice/internal/service/auth"
	"github.com/mediafirewall/persona-voice/internal/service/chat"
	"github.com/mediafirewall/persona-voice/internal/service/gateway"
	"github.com/mediafirewall/persona-voice/internal/service/playback"
)

const mediaPrefix = "/api/media"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	items, err := cfg.Catalog.Personas()
	if err != nil {
		return err
	}
	personaStore := persona.NewMemoryStore(items)

	gw, err := gateway.New(gateway.Options{
		BaseURL:   cfg.Backend.BaseURL,
		BackendID: cfg.Backend.PersonaID,
		Timeout:   cfg.Backend.Timeout,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	blobs := playback.NewBlobStore(mediaPrefix)
	hub := chatHandler.NewHub(logger)
	bridge := chatHandler.NewBridge(blobs, hub, logger)

	chatService := chat.NewService(chat.Options{
		Gateway:        gw,
		Personas:       personaStore,
		BackendID:      cfg.Backend.PersonaID,
		VideoMaxBytes:  cfg.Media.VideoMaxBytes,
		VideoSyncDelay: cfg.Media.VideoSyncDelay,
		NewPlayer:      bridge.NewPlayer,
		ReleaseURL:     blobs.RevokeURL,
		OnClose:        bridge.Forget,
		Logger:         logger,
	})
	defer chatService.Close()

	authService := auth.NewService(
		auth.Credentials{Email: cfg.Auth.UserEmail, Password: cfg.Auth.UserPassword},
		auth.Credentials{Email: cfg.Auth.AdminEmail, Password: cfg.Auth.AdminPassword},
		logger,
	)

	router := handler.NewRouter(handler.Deps{
		Personas:      personaStore,
		Auth:          authService,
		Chat:          chatService,
		Admin:         admin.NewService(gw, logger),
		Hub:           hub,
		Bridge:        bridge,
		Blobs:         blobs,
		VideoMaxBytes: cfg.Media.VideoMaxBytes,
		Logger:        logger,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("persona-voice listening",
			zap.String("addr", srv.Addr),
			zap.String("backend", cfg.Backend.BaseURL),
			zap.Int("personas", len(items)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		sweepBlobs(gctx, blobs, cfg.Media.BlobTTL, logger)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		hub.CloseAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// sweepBlobs 回收浏览器未取走的临时媒体
func sweepBlobs(ctx context.Context, blobs *playback.BlobStore, ttl time.Duration, logger *zap.Logger) {
	if ttl <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(ttl / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := blobs.Sweep(ttl); n > 0 {
				logger.Info("expired media released", zap.Int("count", n))
			}
		}
	}
}
