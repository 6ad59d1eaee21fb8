package tokenmanager

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/finxlab/finx/internal/logger"
	"github.com/finxlab/finx/internal/models"
)

func TestSweeper(t *testing.T) {
	t.Run("purges on tick", func(t *testing.T) {
		m, repo := newManager(t, Config{})
		require.NoError(t, repo.Save(t.Context(), models.RefreshToken{
			ID:        uuid.New(),
			UserID:    uuid.New(),
			Token:     "stale",
			ExpiresAt: time.Now().Add(-time.Hour),
		}))

		ctx, cancel := context.WithCancel(t.Context())
		sweeper := NewSweeper(m, 10*time.Millisecond, logger.NewNoOpLogger())
		stopped := sweeper.Run(ctx)

		require.Eventually(t, func() bool {
			_, err := repo.Get(context.Background(), "stale")
			return err != nil
		}, time.Second, 5*time.Millisecond, "stale token must be purged")

		cancel()

		select {
		case <-stopped:
		case <-time.After(time.Second):
			t.Fatal("sweeper did not stop after context cancellation")
		}
	})

	t.Run("default interval applied", func(t *testing.T) {
		m, _ := newManager(t, Config{})

		sweeper := NewSweeper(m, 0, logger.NewNoOpLogger())

		require.Equal(t, defaultSweepInterval, sweeper.interval)
	})
}
