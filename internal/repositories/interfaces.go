package repositories

import (
	"context"
	"time"

	"cipherchat/internal/models"
)

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
}

// KeyRepository is the key directory: a dumb lookup table from user id to
// opaque public key blob. At most one record per user; replacement only.
type KeyRepository interface {
	SavePublicKey(ctx context.Context, userID, publicKey string) error
	GetPublicKey(ctx context.Context, userID string) (*models.UserKeyRecord, error)
}

// MessageRepository is the append-only, time-ordered message log.
type MessageRepository interface {
	// Append durably writes one message and fills in ID and CreatedAt.
	Append(ctx context.Context, message *models.Message) error
	// Query returns the most recent limit messages between the pair in
	// either orientation, ordered ascending by created_at.
	Query(ctx context.Context, userA, userB string, limit int) ([]*models.Message, error)
	MarkRead(ctx context.Context, messageID string, at time.Time) error
}

type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByID(ctx context.Context, id string) (*models.Session, error)
	Delete(ctx context.Context, id string) error
	DeleteAllForUser(ctx context.Context, userID string) error
}

type PresenceRepository interface {
	SetPresence(ctx context.Context, presence *models.Presence) error
	GetPresence(ctx context.Context, userID string) (*models.Presence, error)
	DeletePresence(ctx context.Context, userID string) error
}
