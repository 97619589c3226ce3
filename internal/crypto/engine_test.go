package crypto

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipherchat/internal/models"
)

// fakeDirectory is an in-memory key directory.
type fakeDirectory struct {
	keys       map[string]string
	publishErr error
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{keys: make(map[string]string)}
}

func (d *fakeDirectory) PublishKey(_ context.Context, userID, publicKeyPEM string) error {
	if d.publishErr != nil {
		return d.publishErr
	}
	d.keys[userID] = publicKeyPEM
	return nil
}

func (d *fakeDirectory) FetchKey(_ context.Context, userID string) (string, error) {
	pemData, ok := d.keys[userID]
	if !ok {
		return "", ErrKeyNotFound
	}
	return pemData, nil
}

func newReadyEngine(t *testing.T, userID string, directory KeyDirectory) *Engine {
	t.Helper()
	engine := NewEngine(userID, directory)
	keyPath := filepath.Join(t.TempDir(), userID+"_rsa.pem")
	require.NoError(t, engine.Init(context.Background(), keyPath))
	require.Equal(t, StateReady, engine.State())
	return engine
}

func TestEngineInitPublishesFreshKey(t *testing.T) {
	directory := newFakeDirectory()
	engine := NewEngine("alice", directory)
	assert.Equal(t, StateUninitialized, engine.State())

	keyPath := filepath.Join(t.TempDir(), "alice_rsa.pem")
	require.NoError(t, engine.Init(context.Background(), keyPath))

	assert.Equal(t, StateReady, engine.State())
	assert.Contains(t, directory.keys, "alice")
}

// A locally stored key whose directory record was lost gets re-published.
func TestEngineInitSelfHealsDirectoryGap(t *testing.T) {
	directory := newFakeDirectory()
	keyPath := filepath.Join(t.TempDir(), "alice_rsa.pem")

	engine := NewEngine("alice", directory)
	require.NoError(t, engine.Init(context.Background(), keyPath))
	published := directory.keys["alice"]

	// Simulate directory data loss, then re-init from the stored key.
	delete(directory.keys, "alice")
	engine = NewEngine("alice", directory)
	require.NoError(t, engine.Init(context.Background(), keyPath))

	assert.Equal(t, StateReady, engine.State())
	assert.Equal(t, published, directory.keys["alice"], "same public key should be re-published")
}

func TestEngineInitStaysKeyLoadedOnDirectoryFailure(t *testing.T) {
	directory := newFakeDirectory()
	directory.publishErr = errors.New("directory down")

	engine := NewEngine("alice", directory)
	keyPath := filepath.Join(t.TempDir(), "alice_rsa.pem")

	err := engine.Init(context.Background(), keyPath)
	require.Error(t, err)
	assert.Equal(t, StateKeyLoaded, engine.State())

	// Encryption is disabled until the directory round-trip succeeds.
	err = engine.Seal(context.Background(), &models.Message{SenderID: "alice", ReceiverID: "bob"}, "hi")
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestSealAndOpenBothSides(t *testing.T) {
	directory := newFakeDirectory()
	alice := newReadyEngine(t, "alice", directory)
	bob := newReadyEngine(t, "bob", directory)

	message := &models.Message{SenderID: "alice", ReceiverID: "bob"}
	require.NoError(t, alice.Seal(context.Background(), message, "hello"))

	assert.NotEqual(t, "hello", message.Content)
	require.NotNil(t, message.EncryptedAESKey)
	require.NotNil(t, message.SenderEncryptedAESKey)
	assert.NotEqual(t, *message.EncryptedAESKey, *message.SenderEncryptedAESKey)

	// The receiver unwraps the receiver wrap, the sender its own wrap.
	fromBob, err := bob.Open(message)
	require.NoError(t, err)
	assert.Equal(t, "hello", fromBob)

	fromAlice, err := alice.Open(message)
	require.NoError(t, err)
	assert.Equal(t, "hello", fromAlice)
}

func TestSealWithoutRecipientKey(t *testing.T) {
	directory := newFakeDirectory()
	alice := newReadyEngine(t, "alice", directory)

	message := &models.Message{SenderID: "alice", ReceiverID: "nobody"}
	err := alice.Seal(context.Background(), message, "hello")
	assert.ErrorIs(t, err, ErrRecipientKeyUnavailable)
}

func TestOpenPlaintextMessage(t *testing.T) {
	directory := newFakeDirectory()
	bob := newReadyEngine(t, "bob", directory)

	// No wrapped key: the unencrypted assistant channel.
	message := &models.Message{SenderID: "assistant", ReceiverID: "bob", Content: "plain text"}
	plaintext, err := bob.Open(message)
	require.NoError(t, err)
	assert.Equal(t, "plain text", plaintext)
}

func TestOpenCorruptedKeyFailsWithoutAborting(t *testing.T) {
	directory := newFakeDirectory()
	alice := newReadyEngine(t, "alice", directory)
	bob := newReadyEngine(t, "bob", directory)

	good := &models.Message{SenderID: "alice", ReceiverID: "bob"}
	require.NoError(t, alice.Seal(context.Background(), good, "first"))

	bad := &models.Message{SenderID: "alice", ReceiverID: "bob"}
	require.NoError(t, alice.Seal(context.Background(), bad, "second"))
	corrupted := "Y29ycnVwdGVk"
	bad.EncryptedAESKey = &corrupted
	bad.SenderEncryptedAESKey = nil

	_, err := bob.Open(bad)
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	// The rest of the batch still decrypts; the bad one gets a placeholder.
	tail := &models.Message{SenderID: "alice", ReceiverID: "bob"}
	require.NoError(t, alice.Seal(context.Background(), tail, "third"))

	out := bob.OpenBatch([]*models.Message{good, bad, tail})
	assert.Equal(t, []string{"first", DecryptFailedPlaceholder, "third"}, out)
}
