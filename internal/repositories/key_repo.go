package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cipherchat/internal/models"
)

type PostgresKeyRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresKeyRepository(pool *pgxpool.Pool) *PostgresKeyRepository {
	return &PostgresKeyRepository{pool: pool}
}

// SavePublicKey upserts the key record for a user. Last write wins; the
// blob is stored as-is with no cryptographic validation.
func (r *PostgresKeyRepository) SavePublicKey(ctx context.Context, userID, publicKey string) error {
	query := `INSERT INTO user_keys (user_id, public_key)
	          VALUES ($1, $2)
	          ON CONFLICT (user_id) DO UPDATE
	          SET public_key = EXCLUDED.public_key, updated_at = NOW()`

	_, err := r.pool.Exec(ctx, query, userID, publicKey)
	if err != nil {
		return fmt.Errorf("failed to save public key: %w", err)
	}
	return nil
}

func (r *PostgresKeyRepository) GetPublicKey(ctx context.Context, userID string) (*models.UserKeyRecord, error) {
	query := `SELECT user_id, public_key, created_at, updated_at
	          FROM user_keys WHERE user_id = $1`

	var record models.UserKeyRecord
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&record.UserID,
		&record.PublicKey,
		&record.CreatedAt,
		&record.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get public key: %w", err)
	}
	return &record, nil
}
