package crypto

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"

	"cipherchat/internal/models"
)

var (
	// ErrRecipientKeyUnavailable means the directory holds no public key
	// for the intended recipient, so nothing can be encrypted to them.
	ErrRecipientKeyUnavailable = errors.New("recipient public key unavailable")
	// ErrDecryptionFailed means a wrapped key or ciphertext could not be
	// recovered with the viewer's private key.
	ErrDecryptionFailed = errors.New("decryption failed")
	// ErrNotReady means the engine has a usable private key but has not
	// completed the key directory handshake.
	ErrNotReady = errors.New("crypto engine not ready")
)

// DecryptFailedPlaceholder is substituted for messages that cannot be
// decrypted, so one bad message never aborts a history replay.
const DecryptFailedPlaceholder = "[unable to decrypt]"

// KeyDirectory is the engine's view of the server-side public key store.
type KeyDirectory interface {
	PublishKey(ctx context.Context, userID, publicKeyPEM string) error
	FetchKey(ctx context.Context, userID string) (string, error)
}

// ErrKeyNotFound is returned by KeyDirectory implementations when no key
// record exists for a user.
var ErrKeyNotFound = errors.New("public key not found")

type EngineState int

const (
	StateUninitialized EngineState = iota
	StateKeyLoaded
	StateReady
)

// Engine is the client-resident crypto component. It owns the local RSA
// private key and performs the per-message hybrid encryption: a fresh
// AES-256 key per outgoing message, wrapped once for the recipient and
// once for the sender.
type Engine struct {
	userID     string
	privateKey *rsa.PrivateKey
	publicPEM  string
	directory  KeyDirectory
	state      EngineState
}

func NewEngine(userID string, directory KeyDirectory) *Engine {
	return &Engine{userID: userID, directory: directory, state: StateUninitialized}
}

func (e *Engine) State() EngineState { return e.state }

// Init loads or generates the local keypair and reconciles the public
// half with the key directory. On a fresh key the public half is
// published; on an existing key a missing directory record is re-published
// (self-healing against directory data loss). The engine reaches Ready
// only after the directory round-trip succeeds; otherwise it stays in
// KeyLoaded with encryption disabled.
func (e *Engine) Init(ctx context.Context, privateKeyPath string) error {
	privateKey, generated, err := EnsureRSAPrivateKey(privateKeyPath)
	if err != nil {
		return fmt.Errorf("initialize keypair: %w", err)
	}

	publicPEM, err := EncodePublicKey(&privateKey.PublicKey)
	if err != nil {
		return fmt.Errorf("encode public key: %w", err)
	}

	e.privateKey = privateKey
	e.publicPEM = publicPEM
	e.state = StateKeyLoaded

	if generated {
		if err := e.directory.PublishKey(ctx, e.userID, publicPEM); err != nil {
			return fmt.Errorf("publish public key: %w", err)
		}
	} else {
		stored, err := e.directory.FetchKey(ctx, e.userID)
		if errors.Is(err, ErrKeyNotFound) || (err == nil && stored != publicPEM) {
			if err := e.directory.PublishKey(ctx, e.userID, publicPEM); err != nil {
				return fmt.Errorf("re-publish public key: %w", err)
			}
		} else if err != nil {
			return fmt.Errorf("verify directory key: %w", err)
		}
	}

	e.state = StateReady
	return nil
}

// Seal encrypts a plaintext body for recipientID. It fills Content,
// EncryptedAESKey and SenderEncryptedAESKey on the given message; both
// wraps carry the same single-use symmetric key so either party can later
// recover it with their own private key.
func (e *Engine) Seal(ctx context.Context, message *models.Message, plaintext string) error {
	if e.state != StateReady {
		return ErrNotReady
	}

	recipientPEM, err := e.directory.FetchKey(ctx, message.ReceiverID)
	if errors.Is(err, ErrKeyNotFound) {
		return ErrRecipientKeyUnavailable
	}
	if err != nil {
		return fmt.Errorf("fetch recipient key: %w", err)
	}

	recipientKey, err := DecodePublicKey(recipientPEM)
	if err != nil {
		return fmt.Errorf("decode recipient key: %w", err)
	}

	messageKey, err := GenerateMessageKey()
	if err != nil {
		return err
	}

	ciphertext, err := EncryptContent(messageKey, plaintext)
	if err != nil {
		return err
	}

	receiverWrap, err := WrapKey(recipientKey, messageKey)
	if err != nil {
		return err
	}
	senderWrap, err := WrapKey(&e.privateKey.PublicKey, messageKey)
	if err != nil {
		return err
	}

	message.Content = ciphertext
	message.EncryptedAESKey = &receiverWrap
	message.SenderEncryptedAESKey = &senderWrap
	return nil
}

// Open decrypts one message for the local identity. Messages without a
// wrapped key are treated as plaintext (the unencrypted assistant
// channel). The wrap is chosen by role: the original sender uses its own
// wrap, anyone else the receiver wrap. Failures come back as
// ErrDecryptionFailed, never a panic.
func (e *Engine) Open(message *models.Message) (string, error) {
	if !message.Encrypted() {
		return message.Content, nil
	}
	if e.privateKey == nil {
		return "", ErrNotReady
	}

	wrapped := *message.EncryptedAESKey
	if message.SenderID == e.userID && message.SenderEncryptedAESKey != nil && *message.SenderEncryptedAESKey != "" {
		wrapped = *message.SenderEncryptedAESKey
	}

	messageKey, err := UnwrapKey(e.privateKey, wrapped)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	plaintext, err := DecryptContent(messageKey, message.Content)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	return plaintext, nil
}

// OpenBatch decrypts a history replay in place of its ciphertext,
// substituting a placeholder for any message that fails so the rest of
// the batch still renders.
func (e *Engine) OpenBatch(messages []*models.Message) []string {
	out := make([]string, len(messages))
	for i, message := range messages {
		plaintext, err := e.Open(message)
		if err != nil {
			out[i] = DecryptFailedPlaceholder
			continue
		}
		out[i] = plaintext
	}
	return out
}
