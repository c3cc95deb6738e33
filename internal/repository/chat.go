package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/linguachat/internal/logger"
	"github.com/linguachat/internal/model"
)

type ChatRepository struct {
	pool *pgxpool.Pool
}

func NewChatRepository(pool *pgxpool.Pool) *ChatRepository {
	return &ChatRepository{pool: pool}
}

func (r *ChatRepository) Create(ctx context.Context, c *model.Chat) error {
	defer logger.DeferLogDuration("chat.Create", time.Now())()
	if len(c.Members) != 2 {
		return fmt.Errorf("chatRepo.Create: chat needs exactly two members, got %d", len(c.Members))
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO chats (id, member_a, member_b, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO NOTHING`,
		c.ID, c.Members[0], c.Members[1], c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("chatRepo.Create: %w", err)
	}
	return nil
}

func (r *ChatRepository) GetByID(ctx context.Context, id string) (*model.Chat, error) {
	defer logger.DeferLogDuration("chat.GetByID", time.Now())()
	var a, b string
	c := &model.Chat{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, member_a, member_b, created_at FROM chats WHERE id = $1`, id,
	).Scan(&c.ID, &a, &b, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("chatRepo.GetByID: %w", err)
	}
	c.Members = []string{a, b}
	return c, nil
}
