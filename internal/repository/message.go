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

const messageCols = `id, chat_id, seq, sender_id, receiver_id, text, translated_text, img, audio, translated_audio, created_at`

// MessageRepository is the durable conversation log. Seq is allocated per chat
// from chats.next_seq under the chat row lock, so the commit order is the log order.
type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

func scanMessage(s interface{ Scan(dest ...any) error }, m *model.Message) error {
	return s.Scan(&m.ID, &m.ChatID, &m.Seq, &m.SenderID, &m.ReceiverID, &m.Text, &m.TranslatedText,
		&m.Img, &m.Audio, &m.TranslatedAudio, &m.CreatedAt)
}

// Append stores m at the end of its chat and fills m.Seq. m.ID and m.CreatedAt must be set.
func (r *MessageRepository) Append(ctx context.Context, m *model.Message) error {
	defer logger.DeferLogDuration("msg.Append", time.Now())()
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("msgRepo.Append begin: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`UPDATE chats SET next_seq = next_seq + 1 WHERE id = $1 RETURNING next_seq`, m.ChatID,
	).Scan(&m.Seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("msgRepo.Append seq: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO messages (`+messageCols+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		m.ID, m.ChatID, m.Seq, m.SenderID, m.ReceiverID, m.Text, m.TranslatedText,
		m.Img, m.Audio, m.TranslatedAudio, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("msgRepo.Append insert: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("msgRepo.Append commit: %w", err)
	}
	return nil
}

// List returns the whole log of a chat in seq order.
func (r *MessageRepository) List(ctx context.Context, chatID string) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.List", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+messageCols+` FROM messages WHERE chat_id = $1 ORDER BY seq`, chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.List query: %w", err)
	}
	defer rows.Close()

	messages := make([]model.Message, 0, 64)
	for rows.Next() {
		var m model.Message
		if err := scanMessage(rows, &m); err != nil {
			return nil, fmt.Errorf("msgRepo.List scan: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("msgRepo.List rows: %w", err)
	}
	return messages, nil
}
