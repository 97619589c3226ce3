package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const aes256KeySize = 32

// GenerateMessageKey returns a fresh single-use 256-bit symmetric key.
func GenerateMessageKey() ([]byte, error) {
	key := make([]byte, aes256KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate message key: %w", err)
	}
	return key, nil
}

// EncryptContent encrypts a message body with AES-256-GCM. The nonce is
// prepended to the ciphertext and the whole blob base64-encoded so it can
// travel in the message content field.
func EncryptContent(messageKey []byte, plaintext string) (string, error) {
	if len(messageKey) != aes256KeySize {
		return "", fmt.Errorf("invalid message key length: got %d want %d", len(messageKey), aes256KeySize)
	}

	block, err := aes.NewCipher(messageKey)
	if err != nil {
		return "", fmt.Errorf("create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create GCM: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptContent reverses EncryptContent.
func DecryptContent(messageKey []byte, encoded string) (string, error) {
	if len(messageKey) != aes256KeySize {
		return "", fmt.Errorf("invalid message key length: got %d want %d", len(messageKey), aes256KeySize)
	}

	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	block, err := aes.NewCipher(messageKey)
	if err != nil {
		return "", fmt.Errorf("create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create GCM: %w", err)
	}
	if len(sealed) < aead.NonceSize() {
		return "", fmt.Errorf("ciphertext shorter than nonce")
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt ciphertext: %w", err)
	}

	return string(plaintext), nil
}

// WrapKey encrypts a symmetric message key under a party's RSA public key
// with OAEP. Only that party's private key can recover it.
func WrapKey(publicKey *rsa.PublicKey, messageKey []byte) (string, error) {
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, publicKey, messageKey, nil)
	if err != nil {
		return "", fmt.Errorf("wrap message key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(wrapped), nil
}

// UnwrapKey recovers a symmetric message key with the local private key.
func UnwrapKey(privateKey *rsa.PrivateKey, encoded string) ([]byte, error) {
	wrapped, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode wrapped key: %w", err)
	}

	messageKey, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, privateKey, wrapped, nil)
	if err != nil {
		return nil, fmt.Errorf("unwrap message key: %w", err)
	}
	return messageKey, nil
}
