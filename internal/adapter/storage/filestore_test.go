package storage_test

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/litshare/internal/adapter/storage"
)

func TestCleanupEmptyDirectories(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	store, err := storage.NewFileStore(fs, "/data")
	require.NoError(t, err)

	require.NoError(t, fs.MkdirAll("/data/group-1/2024/empty", 0o755))
	require.NoError(t, fs.MkdirAll("/data/group-2", 0o755))
	require.NoError(t, fs.MkdirAll("/data/group-3/kept", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/data/group-3/kept/paper.pdf", []byte("%PDF"), 0o644))

	removed, err := store.CleanupEmptyDirectories(ctx)
	require.NoError(t, err)
	// group-1/2024/empty, group-1/2024, group-1, group-2
	require.Equal(t, 4, removed)

	exists, err := afero.DirExists(fs, "/data/group-3/kept")
	require.NoError(t, err)
	require.True(t, exists)
	exists, err = afero.DirExists(fs, "/data")
	require.NoError(t, err)
	require.True(t, exists)

	removed, err = store.CleanupEmptyDirectories(ctx)
	require.NoError(t, err)
	require.Zero(t, removed)
}

func TestStat(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	store, err := storage.NewFileStore(fs, "/data")
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, "/data/g/paper.pdf", []byte("12345"), 0o644))

	size, err := store.Stat(ctx, "g/paper.pdf")
	require.NoError(t, err)
	require.Equal(t, int64(5), size)

	_, err = store.Stat(ctx, "../etc/passwd")
	require.ErrorIs(t, err, storage.ErrInvalidRef)

	_, err = store.Stat(ctx, "g")
	require.ErrorIs(t, err, storage.ErrInvalidRef)

	_, err = store.Stat(ctx, "g/missing.pdf")
	require.Error(t, err)
}
