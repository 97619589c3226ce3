package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"cipherchat/internal/models"
)

type PostgresMessageRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresMessageRepository(pool *pgxpool.Pool) *PostgresMessageRepository {
	return &PostgresMessageRepository{pool: pool}
}

// Append writes one message and fills in the server-assigned ID and
// CreatedAt. There is a single insert path, so appends for a pair commit
// in call order.
func (r *PostgresMessageRepository) Append(ctx context.Context, message *models.Message) error {
	if message.ID == "" {
		message.ID = uuid.NewString()
	}

	query := `INSERT INTO chat_messages
	          (id, sender_id, receiver_id, content, image_url, encrypted_aes_key, sender_encrypted_aes_key)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)
	          RETURNING created_at`

	err := r.pool.QueryRow(ctx, query,
		message.ID,
		message.SenderID,
		message.ReceiverID,
		message.Content,
		message.ImageURL,
		message.EncryptedAESKey,
		message.SenderEncryptedAESKey,
	).Scan(&message.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// Query returns the most recent limit messages between the pair in either
// orientation. The inner query selects newest-first, the outer re-sorts
// ascending so callers replay history oldest-first.
func (r *PostgresMessageRepository) Query(ctx context.Context, userA, userB string, limit int) ([]*models.Message, error) {
	query := `SELECT id, sender_id, receiver_id, content, image_url,
	                 encrypted_aes_key, sender_encrypted_aes_key, created_at, read_at
	          FROM (
	              SELECT * FROM chat_messages
	              WHERE (sender_id = $1 AND receiver_id = $2)
	                 OR (sender_id = $2 AND receiver_id = $1)
	              ORDER BY created_at DESC
	              LIMIT $3
	          ) recent
	          ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, userA, userB, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		var message models.Message
		err := rows.Scan(
			&message.ID,
			&message.SenderID,
			&message.ReceiverID,
			&message.Content,
			&message.ImageURL,
			&message.EncryptedAESKey,
			&message.SenderEncryptedAESKey,
			&message.CreatedAt,
			&message.ReadAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, &message)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, nil
}

func (r *PostgresMessageRepository) MarkRead(ctx context.Context, messageID string, at time.Time) error {
	query := `UPDATE chat_messages SET read_at = $1 WHERE id = $2 AND read_at IS NULL`

	result, err := r.pool.Exec(ctx, query, at, messageID)
	if err != nil {
		return fmt.Errorf("failed to mark message read: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
