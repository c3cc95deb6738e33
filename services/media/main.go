// Микросервис загрузки и раздачи медиа (картинки и голосовые).
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/linguachat/internal/config"
	"github.com/linguachat/internal/logger"
	"github.com/linguachat/internal/middleware"
	"github.com/linguachat/internal/upload"
)

func main() {
	logger.SetPrefix("media")
	cfg := config.Load()
	addr := os.Getenv("MEDIA_ADDR")
	if addr == "" {
		addr = ":8083"
	}

	var backend upload.Backend
	switch cfg.Upload.Backend {
	case config.BackendGridFS:
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		gfs, err := upload.ConnectGridFS(ctx, cfg.Upload.MongoURL, cfg.Upload.MongoDB)
		cancel()
		if err != nil {
			logger.Errorf("gridfs: %v", err)
			os.Exit(1)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = gfs.Close(ctx)
		}()
		backend = gfs
	default:
		backend = upload.NewDiskStore(cfg.Upload.Dir)
	}
	logger.Infof("starting media service: backend=%s max_upload=%d", cfg.Upload.Backend, cfg.Upload.MaxSize)

	svc := upload.NewService(upload.NewGateway(backend, cfg.Upload.BaseURL, cfg.Upload.MaxSize), cfg.Upload.MaxSize)

	r := chi.NewRouter()
	r.Use(middleware.RecoverJSON)
	r.Use(middleware.RequestLog)
	r.Use(chimw.Heartbeat("/health"))
	r.With(middleware.InternalOnly).Post("/upload", svc.Upload)
	r.Get("/media/{filename}", func(w http.ResponseWriter, r *http.Request) {
		svc.Serve(w, r, chi.URLParam(r, "filename"))
	})

	srv := &http.Server{Addr: addr, Handler: r, ReadTimeout: 15 * time.Second, WriteTimeout: 30 * time.Second}
	go func() {
		logger.Infof("media server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("media server: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("media server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("media server shutdown: %v", err)
	}
	logger.Info("media server stopped")
}
