// Package startup подключает внешние зависимости процесса с повторами.
package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/linguachat/internal/logger"
)

const maxBackoff = 30 * time.Second

// initialBackoff: пауза перед второй попыткой; тесты уменьшают её.
var initialBackoff = 2 * time.Second

// Retry вызывает fn, пока она не вернёт nil, ctx не отменён или не истёк maxWait.
// Пауза между попытками удваивается до 30s.
func Retry(ctx context.Context, what string, maxWait time.Duration, fn func(ctx context.Context) error) error {
	deadline := time.Now().Add(maxWait)
	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%s: gave up after %v (%d attempts): %w", what, maxWait, attempt, err)
		}
		logger.Errorf("%s failed, retry in %v: %v", what, backoff, err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", what, ctx.Err())
		case <-time.After(backoff):
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}
