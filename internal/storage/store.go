package storage

import (
	"context"

	"github.com/linguachat/internal/model"
)

// SummaryStore: коллекция сводок чатов пользователя (список чатов). Сохраняется целиком.
// Реализации: redis.Client, memory.Client (для -dev без Redis).
type SummaryStore interface {
	LoadSummaries(ctx context.Context, userID string) ([]model.ChatSummary, error)
	SaveSummaries(ctx context.Context, userID string, items []model.ChatSummary) error
	// ModifySummaries атомарно читает коллекцию, применяет fn и сохраняет результат,
	// если fn вернула changed=true. fn может вызываться повторно при конфликте записи.
	ModifySummaries(ctx context.Context, userID string, fn SummaryEdit) error
}

// SummaryEdit получает текущую коллекцию (копию) и возвращает новую.
type SummaryEdit func(items []model.ChatSummary) (out []model.ChatSummary, changed bool)

// PushSubscriptionStore: Web Push подписки пользователя, по одной на endpoint.
type PushSubscriptionStore interface {
	SavePushSubscription(ctx context.Context, userID, endpoint string, raw []byte) error
	PushSubscriptions(ctx context.Context, userID string) ([][]byte, error)
	RemovePushSubscription(ctx context.Context, userID, endpoint string) error
}
