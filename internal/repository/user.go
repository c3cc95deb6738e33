package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/linguachat/internal/apperr"
	"github.com/linguachat/internal/logger"
	"github.com/linguachat/internal/model"
)

var ErrNotFound = apperr.ErrNotFound

// UserRepository reads participants. Profiles are owned by another service;
// Upsert exists for seeding and dev mode.
type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) Get(ctx context.Context, id string) (*model.Participant, error) {
	defer logger.DeferLogDuration("user.Get", time.Now())()
	p := &model.Participant{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, username, language, blocked FROM users WHERE id = $1`, id,
	).Scan(&p.ID, &p.Username, &p.Language, &p.Blocked)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("userRepo.Get: %w", err)
	}
	return p, nil
}

func (r *UserRepository) Upsert(ctx context.Context, p *model.Participant) error {
	defer logger.DeferLogDuration("user.Upsert", time.Now())()
	blocked := p.Blocked
	if blocked == nil {
		blocked = []string{}
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, username, language, blocked) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username, language = EXCLUDED.language, blocked = EXCLUDED.blocked`,
		p.ID, p.Username, p.Language, blocked,
	)
	if err != nil {
		return fmt.Errorf("userRepo.Upsert: %w", err)
	}
	return nil
}
