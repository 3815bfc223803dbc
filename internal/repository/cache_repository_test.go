package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/course-calendar-api/pkg/errors"
)

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil)
	ctx := context.Background()

	var dest map[string]string
	require.ErrorIs(t, repo.Get(ctx, "k", &dest), appErrors.ErrCacheMiss)
	require.NoError(t, repo.Set(ctx, "k", map[string]string{"a": "b"}, time.Minute))

	removed, err := repo.DeleteByPattern(ctx, "calendar:*")
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.Error(t, repo.Ping(ctx))
}
