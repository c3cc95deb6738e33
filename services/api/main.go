package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/linguachat/internal/composer"
	"github.com/linguachat/internal/config"
	"github.com/linguachat/internal/feed"
	"github.com/linguachat/internal/handler"
	"github.com/linguachat/internal/logger"
	"github.com/linguachat/internal/middleware"
	"github.com/linguachat/internal/model"
	"github.com/linguachat/internal/push"
	"github.com/linguachat/internal/repository"
	"github.com/linguachat/internal/startup"
	"github.com/linguachat/internal/storage"
	"github.com/linguachat/internal/storage/memory"
	redisstorage "github.com/linguachat/internal/storage/redis"
	"github.com/linguachat/internal/store"
	"github.com/linguachat/internal/summary"
	"github.com/linguachat/internal/translate"
	"github.com/linguachat/internal/upload"
	"github.com/linguachat/migrations"
)

type closer func()

func main() {
	logger.SetPrefix("api")
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL (no external DB required)")
	flag.Parse()

	logger.Info("starting API service")
	cfg := config.Load()
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	var cleanup []closer
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}()
	fatal := func(format string, args ...any) {
		logger.Errorf(format, args...)
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
		os.Exit(1)
	}

	if *dev {
		db, dsn, err := startup.StartEmbeddedPostgres(filepath.Join(".", ".pgdata"), 5432)
		if err != nil {
			fatal("embedded postgres: %v", err)
		}
		cleanup = append(cleanup, func() {
			logger.Info("stopping embedded postgres...")
			if err := db.Stop(); err != nil {
				logger.Errorf("embedded postgres stop: %v", err)
			}
		})
		cfg.Database.URL = dsn
		cfg.StoreBackend = config.BackendPostgres
	}

	if middleware.InternalSecret() == "" {
		if !*dev {
			fatal("INTERNAL_SECRET is required: /internal endpoints accept writes from the translation service")
		}
		logger.Warnf("INTERNAL_SECRET not set: /internal endpoints accept loopback/private peers only")
	}

	hub := feed.NewHub(cfg.MaxWSConnections)
	mem := memory.New()

	var redisClient *redisstorage.Client
	if cfg.SummaryBackend == config.BackendRedis || cfg.StoreBackend == config.BackendPostgres {
		var err error
		redisClient, err = startup.ConnectRedis(ctx, cfg.RedisURL, 30*time.Second)
		if err != nil && cfg.SummaryBackend == config.BackendRedis {
			fatal("redis: %v", err)
		}
		if err != nil {
			logger.Warnf("redis unavailable, change notifications stay in-process: %v", err)
			redisClient = nil
		} else {
			cleanup = append(cleanup, func() { _ = redisClient.Close() })
		}
	}

	var summaries storage.SummaryStore = mem
	if cfg.SummaryBackend == config.BackendRedis {
		summaries = redisClient
	}

	var (
		st        store.Store
		directory handler.Directory = mem
		runStore  func(ctx context.Context) error
	)
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := startup.ConnectDB(ctx, cfg.Database.URL, cfg.DBMaxConnections(), 60*time.Second)
		if err != nil {
			fatal("db: %v", err)
		}
		cleanup = append(cleanup, pool.Close)
		migCtx, migCancel := context.WithTimeout(ctx, 30*time.Second)
		err = startup.Migrate(migCtx, pool, migrations.Files)
		migCancel()
		if err != nil {
			fatal("migrations: %v", err)
		}
		if *migrate && !*dev {
			return
		}
		var notifier store.Notifier = store.NewLocalNotifier()
		if redisClient != nil {
			notifier = redisClient
		}
		pg := store.NewPostgres(repository.NewMessageRepository(pool), repository.NewChatRepository(pool), hub, notifier)
		st, runStore = pg, pg.Run
		directory = repository.NewUserRepository(pool)
		logger.Info("database connected, migrations applied")
	default:
		st = store.NewMemory(hub)
		seedParticipants(mem)
	}

	uploader, closeUploader, err := newUploader(ctx, cfg)
	if err != nil {
		fatal("upload backend: %v", err)
	}
	if closeUploader != nil {
		cleanup = append(cleanup, closeUploader)
	}

	translator := translate.NewClient(cfg.Translation.BaseURL, cfg.Translation.Timeout)
	synchronizer := summary.NewSynchronizer(summaries)
	pushClient := push.NewClient(cfg.PushServiceURL)
	var notifier composer.Notifier
	if pushClient.Enabled() {
		notifier = pushClient
	}
	drafts := composer.NewDrafts()
	comp := composer.New(uploader, translator, st, synchronizer, directory, notifier)

	handlers := &handler.Handlers{
		Chats:    handler.NewChatHandler(st, synchronizer, directory),
		Messages: handler.NewMessageHandler(st, comp, drafts, synchronizer, cfg.Upload.MaxSize),
		WS:       handler.NewWSHandler(st, synchronizer, drafts, cfg.CORSAllowedOrigins, cfg.WSMaxMessageSize),
	}
	if pushClient.Enabled() {
		handlers.Push = handler.NewPushHandler(pushClient)
	}

	var storeWg sync.WaitGroup
	if runStore != nil {
		storeWg.Add(1)
		go func() {
			defer storeWg.Done()
			if err := runStore(ctx); err != nil {
				logger.Errorf("store listener: %v", err)
			}
		}()
	}

	r := chi.NewRouter()
	r.Use(middleware.RecoverJSON)
	// Не сжимать WebSocket: иначе ResponseWriter не реализует http.Hijacker и upgrade даёт 500.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			chimw.Compress(5)(next).ServeHTTP(w, req)
		})
	})
	r.Use(middleware.RequestLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSAllowedOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", middleware.UserIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if cfg.Upload.Backend != config.BackendHTTP {
		if gw, ok := uploader.(*upload.Gateway); ok {
			svc := upload.NewService(gw, cfg.Upload.MaxSize)
			r.Get("/media/{filename}", func(w http.ResponseWriter, r *http.Request) {
				svc.Serve(w, r, chi.URLParam(r, "filename"))
			})
		}
	}
	handlers.Mount(r)

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("server listening on %s (store=%s summaries=%s upload=%s)",
			cfg.ServerAddr, cfg.StoreBackend, cfg.SummaryBackend, cfg.Upload.Backend)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			fatal("server error: %v", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	hub.Shutdown()
	stop()
	storeWg.Wait()
	logger.Info("feed stopped")
}

// newUploader выбирает хранилище медиа: локальный диск, GridFS или удалённый media-сервис.
func newUploader(ctx context.Context, cfg *config.Config) (composer.Uploader, closer, error) {
	switch cfg.Upload.Backend {
	case config.BackendHTTP:
		return upload.NewHTTPClient(cfg.Upload.ServiceURL, 30*time.Second), nil, nil
	case config.BackendGridFS:
		connCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		gfs, err := upload.ConnectGridFS(connCtx, cfg.Upload.MongoURL, cfg.Upload.MongoDB)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := gfs.Close(closeCtx); err != nil {
				logger.Errorf("gridfs close: %v", err)
			}
		}
		return upload.NewGateway(gfs, cfg.Upload.BaseURL, cfg.Upload.MaxSize), closeFn, nil
	default:
		return upload.NewGateway(upload.NewDiskStore(cfg.Upload.Dir), cfg.Upload.BaseURL, cfg.Upload.MaxSize), nil, nil
	}
}

// seedParticipants наполняет каталог участников в режиме memory из SEED_USERS
// ("id:lang,id:lang"), чтобы сервис можно было запустить без профиль-сервиса.
func seedParticipants(mem *memory.Client) {
	for _, entry := range strings.Split(os.Getenv("SEED_USERS"), ",") {
		id, lang, ok := strings.Cut(strings.TrimSpace(entry), ":")
		if !ok || id == "" {
			continue
		}
		mem.PutParticipant(model.Participant{ID: id, Username: id, Language: lang})
	}
}
