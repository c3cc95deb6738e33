package startup

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linguachat/internal/logger"
)

// ConnectDB подключается к Postgres с повторами; при недоступности БД не роняет процесс сразу.
func ConnectDB(ctx context.Context, url string, maxConns int, maxWait time.Duration) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}
	poolCfg.MaxConns = int32(maxConns)
	poolCfg.MinConns = 2

	var pool *pgxpool.Pool
	err = Retry(ctx, "db connect", maxWait, func(ctx context.Context) error {
		connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		p, err := pgxpool.NewWithConfig(connCtx, poolCfg)
		if err != nil {
			return err
		}
		if err := p.Ping(connCtx); err != nil {
			p.Close()
			return err
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// Migrate применяет все *.sql из files в лексикографическом порядке (001, 002, ...).
// Миграции должны быть идемпотентными (IF NOT EXISTS).
func Migrate(ctx context.Context, pool *pgxpool.Pool, files fs.FS) error {
	defer logger.DeferLogDuration("startup.Migrate", time.Now())()
	names, err := fs.Glob(files, "*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(names)
	for _, name := range names {
		data, err := fs.ReadFile(files, name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("run migration %s: %w", name, err)
		}
	}
	logger.Infof("migrations applied: %d", len(names))
	return nil
}

// StartEmbeddedPostgres поднимает локальный Postgres для режима -dev и возвращает его DSN.
func StartEmbeddedPostgres(dataDir string, port uint32) (*embeddedpostgres.EmbeddedPostgres, string, error) {
	const (
		user     = "linguachat"
		password = "linguachat_secret"
		database = "linguachat"
	)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, "", fmt.Errorf("create pgdata dir: %w", err)
	}
	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Username(user).
			Password(password).
			Database(database).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "linguachat-pg-runtime")),
	)
	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, "", fmt.Errorf("start embedded postgres: %w", err)
	}
	logger.Infof("embedded PostgreSQL running on port %d", port)
	dsn := fmt.Sprintf("postgres://%s:%s@localhost:%d/%s?sslmode=disable", user, password, port, database)
	return db, dsn, nil
}
