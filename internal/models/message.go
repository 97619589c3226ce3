package models

import (
	"time"
)

// Message is one persisted chat message between two users. Content holds
// ciphertext when the wrapped-key fields are set, otherwise plaintext
// (the unencrypted assistant channel). Immutable after creation except
// for ReadAt.
type Message struct {
	ID                    string     `json:"id"`
	SenderID              string     `json:"senderId"`
	ReceiverID            string     `json:"receiverId"`
	Content               string     `json:"content"`
	ImageURL              *string    `json:"imageUrl,omitempty"`
	EncryptedAESKey       *string    `json:"encryptedAESKey,omitempty"`
	SenderEncryptedAESKey *string    `json:"senderEncryptedAESKey,omitempty"`
	CreatedAt             time.Time  `json:"createdAt"`
	ReadAt                *time.Time `json:"readAt,omitempty"`
}

// Encrypted reports whether the message carries a wrapped symmetric key
// and therefore ciphertext content.
func (m *Message) Encrypted() bool {
	return m.EncryptedAESKey != nil && *m.EncryptedAESKey != ""
}
