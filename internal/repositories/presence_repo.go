package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"cipherchat/internal/models"
)

const (
	presenceKeyPrefix = "presence:"
	presenceTTL       = 60 * time.Second // Presence expires after 60 seconds without activity
)

type RedisPresenceRepository struct {
	client *redis.Client
}

func NewRedisPresenceRepository(client *redis.Client) *RedisPresenceRepository {
	return &RedisPresenceRepository{client: client}
}

// SetPresence marks a user online with automatic TTL. The relay refreshes
// it on every inbound event, so the key expires when the user goes quiet.
func (r *RedisPresenceRepository) SetPresence(ctx context.Context, presence *models.Presence) error {
	presence.LastSeen = time.Now()

	data, err := json.Marshal(presence)
	if err != nil {
		return fmt.Errorf("failed to marshal presence: %w", err)
	}

	key := presenceKey(presence.UserID)
	err = r.client.Set(ctx, key, data, presenceTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to set presence: %w", err)
	}

	return nil
}

func (r *RedisPresenceRepository) GetPresence(ctx context.Context, userID string) (*models.Presence, error) {
	key := presenceKey(userID)

	data, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		// No presence = user is offline
		return &models.Presence{
			UserID:   userID,
			Status:   string(models.StatusOffline),
			LastSeen: time.Time{},
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get presence: %w", err)
	}

	var presence models.Presence
	if err := json.Unmarshal([]byte(data), &presence); err != nil {
		return nil, fmt.Errorf("failed to unmarshal presence: %w", err)
	}

	return &presence, nil
}

func (r *RedisPresenceRepository) DeletePresence(ctx context.Context, userID string) error {
	key := presenceKey(userID)

	err := r.client.Del(ctx, key).Err()
	if err != nil {
		return fmt.Errorf("failed to delete presence: %w", err)
	}

	return nil
}

// Helper: build Redis key for presence
func presenceKey(userID string) string {
	return presenceKeyPrefix + userID
}
