package storage

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalStorageCreatesDirectoryIdempotently(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads", "nested")

	store, err := NewLocalStorage(dir)
	require.NoError(t, err)
	require.NoError(t, store.EnsureDir())
	require.NoError(t, store.EnsureDir())

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestLocalStorageSaveOpenDelete(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	written, err := store.SaveStream("1700000000000-ab12.pdf", strings.NewReader("%PDF-1.4"))
	require.NoError(t, err)
	require.Equal(t, int64(8), written)

	file, err := store.Open("1700000000000-ab12.pdf")
	require.NoError(t, err)
	data, err := io.ReadAll(file)
	require.NoError(t, err)
	require.NoError(t, file.Close())
	require.Equal(t, "%PDF-1.4", string(data))

	require.NoError(t, store.Delete("1700000000000-ab12.pdf"))
	require.NoError(t, store.Delete("1700000000000-ab12.pdf"))

	_, err = store.Open("1700000000000-ab12.pdf")
	require.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestLocalStorageRefusesOverwrite(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.SaveStream("same.png", strings.NewReader("one"))
	require.NoError(t, err)
	_, err = store.SaveStream("same.png", strings.NewReader("two"))
	require.Error(t, err)
}

func TestLocalStorageConfinesToBaseDir(t *testing.T) {
	base := t.TempDir()
	store, err := NewLocalStorage(base)
	require.NoError(t, err)

	require.Equal(t, filepath.Join(base, "passwd"), store.resolve("../../etc/passwd"))
}
