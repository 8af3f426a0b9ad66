// ABOUTME: API key verification against the external authentication service
// ABOUTME: POSTs the key to validate-key and maps the response to an Identity

package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrInvalidKey indicates the authentication service rejected the API key.
var ErrInvalidKey = errors.New("invalid api key")

// keyServiceTimeout bounds one validate-key round trip.
const keyServiceTimeout = 10 * time.Second

// KeyVerifier defines the interface for API key verification
type KeyVerifier interface {
	VerifyKey(ctx context.Context, key string) (*Identity, error)
}

// KeyService verifies API keys against the external authentication service.
type KeyService struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewKeyService creates a verifier calling the given service base URL.
func NewKeyService(baseURL string, logger *slog.Logger) *KeyService {
	return &KeyService{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: keyServiceTimeout},
		logger:  logger,
	}
}

type validateKeyRequest struct {
	APIKey string `json:"api_key"`
}

type validateKeyResponse struct {
	UserID string   `json:"user_id"`
	Email  string   `json:"email"`
	Roles  []string `json:"roles"`
	KeyID  string   `json:"key_id"`
}

// VerifyKey validates the key with the authentication service. Only a 200
// response carrying a user id yields an identity; a definitive rejection
// returns ErrInvalidKey, and transport failures return the underlying
// error so callers can tell the two apart.
func (s *KeyService) VerifyKey(ctx context.Context, key string) (*Identity, error) {
	body, err := json.Marshal(validateKeyRequest{APIKey: key})
	if err != nil {
		return nil, fmt.Errorf("encoding validate-key request: %w", err)
	}

	url := s.baseURL + "/api/auth/validate-key"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating validate-key request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth service unreachable: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// Fall through to decode.
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusNotFound:
		return nil, ErrInvalidKey
	default:
		return nil, fmt.Errorf("auth service returned status %d", resp.StatusCode)
	}

	var verdict validateKeyResponse
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return nil, fmt.Errorf("decoding validate-key response: %w", err)
	}
	if verdict.UserID == "" {
		return nil, ErrInvalidKey
	}

	s.logger.Debug("api key validated",
		"user_id", verdict.UserID,
		"key_id", verdict.KeyID,
	)
	return &Identity{
		UserID:   verdict.UserID,
		Email:    verdict.Email,
		Roles:    verdict.Roles,
		APIKeyID: verdict.KeyID,
	}, nil
}
