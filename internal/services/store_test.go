package services_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/MegaGrindStone/site-assistant/internal/models"
	"github.com/MegaGrindStone/site-assistant/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type threadStore interface {
	Get(ctx context.Context, threadID string) (models.Thread, error)
	Set(ctx context.Context, thread models.Thread) error
	Close() error
}

func testStores(t *testing.T) map[string]threadStore {
	t.Helper()

	bolt, err := services.NewBoltDB(filepath.Join(t.TempDir(), "threads.db"))
	require.NoError(t, err)

	return map[string]threadStore{
		"memory": services.NewMemory(),
		"bolt":   bolt,
	}
}

func TestStores(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			defer func() {
				require.NoError(t, store.Close())
			}()

			_, err := store.Get(ctx, "missing")
			require.ErrorIs(t, err, models.ErrThreadNotFound)

			thread := models.NewThread("t1", "https://a.example", "system A")
			require.NoError(t, store.Set(ctx, thread.WithTurn("q", "a")))

			got, err := store.Get(ctx, "t1")
			require.NoError(t, err)
			assert.Equal(t, "https://a.example", got.WebsiteURL)
			require.Len(t, got.Messages, 3)
			assert.Equal(t, "q", got.Messages[1].Content)
			assert.Equal(t, models.RoleAssistant, got.Messages[2].Role)

			// Set is a full overwrite.
			require.NoError(t, store.Set(ctx, models.NewThread("t1", "https://b.example", "system B")))

			got, err = store.Get(ctx, "t1")
			require.NoError(t, err)
			require.Len(t, got.Messages, 1)
			assert.Equal(t, "system B", got.SystemPrompt())
		})
	}
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := services.NewMemory()
	require.NoError(t, store.Set(ctx, models.NewThread("t1", "https://a.example", "system")))

	got, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	got.Messages[0].Content = "changed"

	again, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "system", again.SystemPrompt())
}

func TestBoltDBPersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "threads.db")

	store, err := services.NewBoltDB(path)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, models.NewThread("t1", "https://a.example", "system")))
	require.NoError(t, store.Close())

	store, err = services.NewBoltDB(path)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "system", got.SystemPrompt())
}
