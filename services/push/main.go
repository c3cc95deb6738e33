// Микросервис пуш-уведомлений (Web Push): подписки в Redis, отправка через VAPID.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/linguachat/internal/logger"
	"github.com/linguachat/internal/middleware"
	"github.com/linguachat/internal/push"
	"github.com/linguachat/internal/startup"
)

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	logger.SetPrefix("push")
	genVAPID := flag.Bool("gen-vapid", false, "print a fresh VAPID key pair and exit")
	flag.Parse()
	if *genVAPID {
		priv, pub, err := webpush.GenerateVAPIDKeys()
		if err != nil {
			logger.Errorf("generate VAPID: %v", err)
			os.Exit(1)
		}
		logger.Infof("VAPID_PUBLIC_KEY=%s", pub)
		logger.Infof("VAPID_PRIVATE_KEY=%s", priv)
		return
	}

	logger.Info("starting push service")
	addr := getEnv("SERVER_ADDR", ":8082")
	keys := push.ResolveVAPIDKeys()
	if keys == nil {
		logger.Info("VAPID-ключи не заданы: подписки сохраняются, отправка не выполняется")
	}

	rdb, err := startup.ConnectRedis(context.Background(), getEnv("REDIS_URL", "redis://localhost:6379"), 30*time.Second)
	if err != nil {
		logger.Errorf("redis: %v", err)
		os.Exit(1)
	}
	defer rdb.Close()
	logger.Info("redis connected")

	s := push.NewServer(rdb, keys)

	r := chi.NewRouter()
	r.Use(middleware.RecoverJSON)
	r.Use(middleware.RequestLog)
	r.Use(chimw.Heartbeat("/health"))
	r.Group(func(r chi.Router) {
		r.Use(middleware.InternalOnly)
		s.Routes(r)
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("push server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("push server: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutdown signal received")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
	logger.Info("push server stopped")
}
