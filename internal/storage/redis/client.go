package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/linguachat/internal/logger"
	"github.com/linguachat/internal/model"
	"github.com/linguachat/internal/storage"
	"github.com/redis/go-redis/v9"
)

// Подписки живут 30 дней с последнего обновления; сводки чатов: без TTL.
const (
	summariesPrefix = "userchats:"
	pushSubsPrefix  = "push:subs:"
	chatChannelFmt  = "chat:%s:changed"
	chatPattern     = "chat:*:changed"
	PushSubTTL      = 30 * 24 * time.Hour
	maxTxRetries    = 20
)

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

// LoadSummaries читает коллекцию userchats:{id}. Нет ключа: пустая коллекция.
func (c *Client) LoadSummaries(ctx context.Context, userID string) ([]model.ChatSummary, error) {
	return getSummaries(ctx, c.cli, userID)
}

func getSummaries(ctx context.Context, cmd redis.Cmdable, userID string) ([]model.ChatSummary, error) {
	raw, err := cmd.Get(ctx, summariesPrefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get summaries %s: %w", userID, err)
	}
	var items []model.ChatSummary
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode summaries %s: %w", userID, err)
	}
	return items, nil
}

// SaveSummaries перезаписывает коллекцию целиком (last write wins).
func (c *Client) SaveSummaries(ctx context.Context, userID string, items []model.ChatSummary) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode summaries %s: %w", userID, err)
	}
	return c.cli.Set(ctx, summariesPrefix+userID, raw, 0).Err()
}

// ModifySummaries: оптимистичная транзакция WATCH/MULTI над userchats:{id};
// при конкурентной записи fn применяется заново к свежей коллекции.
func (c *Client) ModifySummaries(ctx context.Context, userID string, fn storage.SummaryEdit) error {
	key := summariesPrefix + userID
	txf := func(tx *redis.Tx) error {
		items, err := getSummaries(ctx, tx, userID)
		if err != nil {
			return err
		}
		out, changed := fn(items)
		if !changed {
			return nil
		}
		raw, err := json.Marshal(out)
		if err != nil {
			return fmt.Errorf("encode summaries %s: %w", userID, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			return nil
		})
		return err
	}
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := c.cli.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		logger.Debugf("redis: summaries %s changed concurrently, retry %d", userID, attempt+1)
	}
	return fmt.Errorf("redis modify summaries %s: %w", userID, redis.TxFailedErr)
}

// Notify публикует сигнал «чат изменился» для всех реплик API.
func (c *Client) Notify(ctx context.Context, chatID string) error {
	return c.cli.Publish(ctx, ChatChannel(chatID), "").Err()
}

// Listen вызывает fn на каждый сигнал изменения чата до отмены ctx.
func (c *Client) Listen(ctx context.Context, fn func(chatID string)) error {
	ps := c.cli.PSubscribe(ctx, chatPattern)
	defer ps.Close()
	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("redis psubscribe: %w", err)
	}
	logger.Infof("redis: listening on %s", chatPattern)
	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if id, ok := ChatIDFromChannel(msg.Channel); ok {
				fn(id)
			}
		}
	}
}

func ChatChannel(chatID string) string {
	return fmt.Sprintf(chatChannelFmt, chatID)
}

// ChatIDFromChannel разбирает имя канала chat:{id}:changed.
func ChatIDFromChannel(channel string) (string, bool) {
	if !strings.HasPrefix(channel, "chat:") || !strings.HasSuffix(channel, ":changed") {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(channel, "chat:"), ":changed")
	return id, id != ""
}

func (c *Client) SavePushSubscription(ctx context.Context, userID, endpoint string, raw []byte) error {
	key := pushSubsPrefix + userID
	pipe := c.cli.Pipeline()
	pipe.HSet(ctx, key, endpoint, raw)
	pipe.Expire(ctx, key, PushSubTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *Client) PushSubscriptions(ctx context.Context, userID string) ([][]byte, error) {
	m, err := c.cli.HGetAll(ctx, pushSubsPrefix+userID).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(m))
	for _, v := range m {
		out = append(out, []byte(v))
	}
	return out, nil
}

func (c *Client) RemovePushSubscription(ctx context.Context, userID, endpoint string) error {
	return c.cli.HDel(ctx, pushSubsPrefix+userID, endpoint).Err()
}

// FlushDB очищает текущую БД Redis (для тестов).
func (c *Client) FlushDB(ctx context.Context) error {
	return c.cli.FlushDB(ctx).Err()
}
