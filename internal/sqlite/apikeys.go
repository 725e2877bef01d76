package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PBLIZZ/MindfulCRM-sub000/internal/repository"
)

// ErrInvalidAPIKey is returned for tokens that were never issued.
var ErrInvalidAPIKey = errors.New("invalid api key")

// APIKeyRepository maps bearer tokens to users. Only token hashes are stored.
type APIKeyRepository struct {
	db *DB
}

// NewAPIKeyRepository creates a new APIKeyRepository
func NewAPIKeyRepository(db *DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// Create registers token for userID
func (r *APIKeyRepository) Create(ctx context.Context, userID, token, description string) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(token) == "" {
		return repository.ErrInvalidInput
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO api_keys (key_hash, user_id, created_at, description) VALUES (?, ?, ?, ?)`,
		HashToken(token), userID, time.Now().UTC(), description,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: api key already registered", repository.ErrInvalidInput)
		}
		return fmt.Errorf("failed to create api key: %w", err)
	}
	return nil
}

// ResolveUser returns the user owning token and stamps its last use
func (r *APIKeyRepository) ResolveUser(ctx context.Context, token string) (string, error) {
	hash := HashToken(token)
	var userID string
	err := r.db.QueryRowContext(ctx, `SELECT user_id FROM api_keys WHERE key_hash = ?`, hash).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && userID == "") {
		return "", ErrInvalidAPIKey
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve api key: %w", err)
	}

	if _, err := r.db.ExecContext(ctx,
		`UPDATE api_keys SET last_used = ? WHERE key_hash = ?`, time.Now().UTC(), hash,
	); err != nil {
		return "", fmt.Errorf("failed to stamp api key: %w", err)
	}
	return userID, nil
}

// HashToken returns the hex SHA-256 of a bearer token
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
