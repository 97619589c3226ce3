package repositories

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipherchat/internal/database"
	"cipherchat/internal/models"
)

// getTestPool connects to the database named by TEST_DATABASE_URL and
// applies the schema. Tests that need postgres skip when it is unset.
func getTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	pool, err := pgxpool.New(context.Background(), url)
	require.NoError(t, err, "failed to connect to test database")
	require.NoError(t, database.Migrate(context.Background(), pool))
	t.Cleanup(pool.Close)
	return pool
}

// testPair returns two fresh user ids so test runs never see each
// other's messages.
func testPair() (string, string) {
	return "u-" + uuid.NewString(), "u-" + uuid.NewString()
}

func cleanupMessages(t *testing.T, pool *pgxpool.Pool, userA, userB string) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`DELETE FROM chat_messages WHERE sender_id IN ($1, $2)`, userA, userB)
	require.NoError(t, err)
}

func TestMessageRepository_AppendAssignsIDAndTimestamp(t *testing.T) {
	pool := getTestPool(t)
	repo := NewPostgresMessageRepository(pool)
	ctx := context.Background()

	alice, bob := testPair()
	defer cleanupMessages(t, pool, alice, bob)

	wrap := "d2lyZQ=="
	message := &models.Message{
		SenderID:              alice,
		ReceiverID:            bob,
		Content:               "ciphertext",
		EncryptedAESKey:       &wrap,
		SenderEncryptedAESKey: &wrap,
	}

	require.NoError(t, repo.Append(ctx, message))
	assert.NotEmpty(t, message.ID)
	assert.False(t, message.CreatedAt.IsZero())

	stored, err := repo.Query(ctx, alice, bob, 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, message.ID, stored[0].ID)
	require.NotNil(t, stored[0].EncryptedAESKey)
	assert.Equal(t, wrap, *stored[0].EncryptedAESKey)
	assert.Nil(t, stored[0].ReadAt)
}

func TestMessageRepository_QueryBothOrientationsAscending(t *testing.T) {
	pool := getTestPool(t)
	repo := NewPostgresMessageRepository(pool)
	ctx := context.Background()

	alice, bob := testPair()
	defer cleanupMessages(t, pool, alice, bob)

	// Alternate direction so both orientations land in the table.
	for i := 0; i < 6; i++ {
		message := &models.Message{SenderID: alice, ReceiverID: bob, Content: fmt.Sprintf("m%d", i)}
		if i%2 == 1 {
			message.SenderID, message.ReceiverID = bob, alice
		}
		require.NoError(t, repo.Append(ctx, message))
	}

	fromAlice, err := repo.Query(ctx, alice, bob, 50)
	require.NoError(t, err)
	require.Len(t, fromAlice, 6)
	for i := 1; i < len(fromAlice); i++ {
		assert.False(t, fromAlice[i].CreatedAt.Before(fromAlice[i-1].CreatedAt))
	}

	// Same window regardless of which side asks.
	fromBob, err := repo.Query(ctx, bob, alice, 50)
	require.NoError(t, err)
	require.Len(t, fromBob, 6)
	assert.Equal(t, fromAlice[0].ID, fromBob[0].ID)
	assert.Equal(t, fromAlice[5].ID, fromBob[5].ID)
}

func TestMessageRepository_QueryHonorsLimit(t *testing.T) {
	pool := getTestPool(t)
	repo := NewPostgresMessageRepository(pool)
	ctx := context.Background()

	alice, bob := testPair()
	defer cleanupMessages(t, pool, alice, bob)

	for i := 0; i < 8; i++ {
		require.NoError(t, repo.Append(ctx, &models.Message{
			SenderID: alice, ReceiverID: bob, Content: fmt.Sprintf("m%d", i),
		}))
	}

	window, err := repo.Query(ctx, alice, bob, 5)
	require.NoError(t, err)
	require.Len(t, window, 5)
	// The newest five, oldest first.
	assert.Equal(t, "m3", window[0].Content)
	assert.Equal(t, "m7", window[4].Content)
}

func TestMessageRepository_QueryIsolatesPairs(t *testing.T) {
	pool := getTestPool(t)
	repo := NewPostgresMessageRepository(pool)
	ctx := context.Background()

	alice, bob := testPair()
	carol, dave := testPair()
	defer cleanupMessages(t, pool, alice, bob)
	defer cleanupMessages(t, pool, carol, dave)

	require.NoError(t, repo.Append(ctx, &models.Message{SenderID: alice, ReceiverID: bob, Content: "ours"}))
	require.NoError(t, repo.Append(ctx, &models.Message{SenderID: carol, ReceiverID: dave, Content: "theirs"}))

	messages, err := repo.Query(ctx, alice, bob, 50)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "ours", messages[0].Content)
}

func TestMessageRepository_MarkRead(t *testing.T) {
	pool := getTestPool(t)
	repo := NewPostgresMessageRepository(pool)
	ctx := context.Background()

	alice, bob := testPair()
	defer cleanupMessages(t, pool, alice, bob)

	message := &models.Message{SenderID: alice, ReceiverID: bob, Content: "unread"}
	require.NoError(t, repo.Append(ctx, message))

	readAt := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, repo.MarkRead(ctx, message.ID, readAt))

	// Second mark is a no-op on an already-read message.
	assert.ErrorIs(t, repo.MarkRead(ctx, message.ID, time.Now()), ErrNotFound)
	assert.ErrorIs(t, repo.MarkRead(ctx, "missing-id", time.Now()), ErrNotFound)

	stored, err := repo.Query(ctx, alice, bob, 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.NotNil(t, stored[0].ReadAt)
}
