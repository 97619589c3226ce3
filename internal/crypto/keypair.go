package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

const (
	rsaKeyBits        = 2048
	rsaPrivatePEMType = "RSA PRIVATE KEY"
	rsaPublicPEMType  = "PUBLIC KEY"
)

// EnsureRSAPrivateKey loads an RSA private key from disk, generating a
// fresh 2048-bit key on first run. The private half never leaves the
// local machine.
func EnsureRSAPrivateKey(path string) (*rsa.PrivateKey, bool, error) {
	privateKey, err := LoadRSAPrivateKey(path)
	if err == nil {
		return privateKey, false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, err
	}

	privateKey, err = rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, false, fmt.Errorf("generate RSA keypair: %w", err)
	}
	if err := SaveRSAPrivateKey(path, privateKey); err != nil {
		return nil, false, err
	}

	return privateKey, true, nil
}

// LoadRSAPrivateKey reads a PKCS#1 RSA private key from a PEM file.
func LoadRSAPrivateKey(path string) (*rsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read RSA private key: %w", err)
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("decode RSA private PEM: no PEM block")
	}
	if block.Type != rsaPrivatePEMType {
		return nil, fmt.Errorf("decode RSA private PEM: unexpected type %q", block.Type)
	}

	privateKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse RSA private key: %w", err)
	}

	return privateKey, nil
}

// SaveRSAPrivateKey writes an RSA private key PEM file with 0600 permissions.
func SaveRSAPrivateKey(path string, key *rsa.PrivateKey) error {
	block := &pem.Block{
		Type:  rsaPrivatePEMType,
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		return fmt.Errorf("write RSA private key: %w", err)
	}

	return nil
}

// EncodePublicKey renders the public half as a PKIX PEM string, the form
// published to the key directory.
func EncodePublicKey(key *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return "", fmt.Errorf("marshal RSA public key: %w", err)
	}

	block := &pem.Block{
		Type:  rsaPublicPEMType,
		Bytes: der,
	}
	return string(pem.EncodeToMemory(block)), nil
}

// DecodePublicKey parses a PKIX PEM public key blob fetched from the
// key directory.
func DecodePublicKey(pemData string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("decode RSA public PEM: no PEM block")
	}
	if block.Type != rsaPublicPEMType {
		return nil, fmt.Errorf("decode RSA public PEM: unexpected type %q", block.Type)
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse RSA public key: %w", err)
	}

	publicKey, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("parse RSA public key: not an RSA key")
	}

	return publicKey, nil
}
