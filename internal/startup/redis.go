package startup

import (
	"context"
	"time"

	redisstorage "github.com/linguachat/internal/storage/redis"
)

// ConnectRedis подключается к Redis с повторами.
func ConnectRedis(ctx context.Context, url string, maxWait time.Duration) (*redisstorage.Client, error) {
	var client *redisstorage.Client
	err := Retry(ctx, "redis connect", maxWait, func(ctx context.Context) error {
		connCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		c, err := redisstorage.New(connCtx, url)
		if err != nil {
			return err
		}
		client = c
		return nil
	})
	return client, err
}
