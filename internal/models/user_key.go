package models

import (
	"time"
)

// UserKeyRecord maps a user to its current asymmetric public key. The
// directory never sees private key material; the blob is stored opaque
// with no server-side validation.
type UserKeyRecord struct {
	UserID    string    `json:"userId"`
	PublicKey string    `json:"publicKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
