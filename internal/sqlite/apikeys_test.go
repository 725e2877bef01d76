package sqlite

import (
	"context"
	"testing"

	"github.com/PBLIZZ/MindfulCRM-sub000/internal/repository"
	"github.com/stretchr/testify/require"
)

func TestAPIKeyRepository_Resolve(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewAPIKeyRepository(db)

	require.NoError(t, repo.Create(ctx, "u1", "secret-token", "laptop"))

	userID, err := repo.ResolveUser(ctx, "secret-token")
	require.NoError(t, err)
	require.Equal(t, "u1", userID)

	var used int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM api_keys WHERE last_used IS NOT NULL`).Scan(&used))
	require.Equal(t, 1, used)

	_, err = repo.ResolveUser(ctx, "wrong")
	require.ErrorIs(t, err, ErrInvalidAPIKey)
}

func TestAPIKeyRepository_StoresOnlyHash(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewAPIKeyRepository(db)

	require.NoError(t, repo.Create(ctx, "u1", "secret-token", ""))

	var hash string
	require.NoError(t, db.QueryRow(`SELECT key_hash FROM api_keys`).Scan(&hash))
	require.Equal(t, HashToken("secret-token"), hash)
	require.NotContains(t, hash, "secret")

	err := repo.Create(ctx, "u2", "secret-token", "")
	require.ErrorIs(t, err, repository.ErrInvalidInput)
	require.ErrorIs(t, repo.Create(ctx, "", "x", ""), repository.ErrInvalidInput)
}
