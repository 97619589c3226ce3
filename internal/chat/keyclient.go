package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"cipherchat/internal/crypto"
)

// HTTPKeyDirectory talks to the server's key directory REST surface on
// behalf of the crypto engine.
type HTTPKeyDirectory struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPKeyDirectory(baseURL, token string) *HTTPKeyDirectory {
	return &HTTPKeyDirectory{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *HTTPKeyDirectory) PublishKey(ctx context.Context, userID, publicKeyPEM string) error {
	body, err := json.Marshal(map[string]string{"publicKey": publicKeyPEM})
	if err != nil {
		return fmt.Errorf("marshal key payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		fmt.Sprintf("%s/api/keys/%s", d.baseURL, userID), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build key request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+d.token)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("publish key: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("publish key: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (d *HTTPKeyDirectory) FetchKey(ctx context.Context, userID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/keys/%s", d.baseURL, userID), nil)
	if err != nil {
		return "", fmt.Errorf("build key request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+d.token)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch key: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", crypto.ErrKeyNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch key: unexpected status %d", resp.StatusCode)
	}

	var payload struct {
		PublicKey string `json:"publicKey"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode key response: %w", err)
	}
	return payload.PublicKey, nil
}
