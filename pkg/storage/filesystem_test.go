package storage

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLocalStorageSaveOpenDelete(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save("daily_CS-3A_2024-03-11.xlsx", []byte("workbook"))
	require.NoError(t, err)
	require.True(t, store.Exists("daily_CS-3A_2024-03-11.xlsx"))

	require.NoError(t, store.Delete("daily_CS-3A_2024-03-11.xlsx"))
	require.False(t, store.Exists("daily_CS-3A_2024-03-11.xlsx"))

	// Deleting a missing file is not an error.
	require.NoError(t, store.Delete("daily_CS-3A_2024-03-11.xlsx"))
}

func TestCleanupOlderThanRemovesOnlyExpired(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save("stale.xlsx", []byte("old"))
	require.NoError(t, err)
	_, err = store.Save("fresh.xlsx", []byte("new"))
	require.NoError(t, err)

	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(store.Path("stale.xlsx"), past, past))

	removed, err := store.CleanupOlderThan(24 * time.Hour)
	require.NoError(t, err)
	require.Equal(t, []string{"stale.xlsx"}, removed)
	require.False(t, store.Exists("stale.xlsx"))
	require.True(t, store.Exists("fresh.xlsx"))
}
