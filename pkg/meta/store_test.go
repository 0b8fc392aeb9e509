package meta

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDict(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "test.dic.json")
	require.NoError(t, os.WriteFile(path, []byte(testDict), 0o644))
	return path
}

func TestStoreSecondLoadSkipsParse(t *testing.T) {
	dir := t.TempDir()
	path := writeDict(t, dir)

	store, err := NewStore(StoreOptions{MemoryEntries: 4})
	require.NoError(t, err)
	defer store.Close()

	first, err := store.Dictionary(path)
	require.NoError(t, err)
	second, err := store.Dictionary(path)
	require.NoError(t, err)

	assert.Equal(t, int64(1), store.ParseCount())
	assert.Equal(t, first, second)
}

func TestStoreReparsesChangedSource(t *testing.T) {
	dir := t.TempDir()
	path := writeDict(t, dir)

	store, err := NewStore(StoreOptions{MemoryEntries: 4})
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Dictionary(path)
	require.NoError(t, err)

	changed := `{"other_dict": {"category": [{"id": "entity"}]}}`
	require.NoError(t, os.WriteFile(path, []byte(changed), 0o644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	dict, err := store.Dictionary(path)
	require.NoError(t, err)
	assert.Equal(t, "other_dict", dict.Title)
	assert.Equal(t, int64(2), store.ParseCount())
}

func TestStoreDiskTierServesNewStore(t *testing.T) {
	dir := t.TempDir()
	path := writeDict(t, dir)
	cacheDir := filepath.Join(dir, "cache")

	store1, err := NewStore(StoreOptions{MemoryEntries: 4, Dir: cacheDir})
	require.NoError(t, err)
	first, err := store1.Dictionary(path)
	require.NoError(t, err)
	require.NoError(t, store1.Close())
	assert.Equal(t, int64(1), store1.ParseCount())

	store2, err := NewStore(StoreOptions{MemoryEntries: 4, Dir: cacheDir})
	require.NoError(t, err)
	defer store2.Close()

	second, err := store2.Dictionary(path)
	require.NoError(t, err)
	assert.Equal(t, int64(0), store2.ParseCount())
	assert.Equal(t, first, second)
}

func TestStoreRecoversFromCorruptDiskEntry(t *testing.T) {
	dir := t.TempDir()
	path := writeDict(t, dir)
	cacheDir := filepath.Join(dir, "cache")

	store1, err := NewStore(StoreOptions{MemoryEntries: 4, Dir: cacheDir})
	require.NoError(t, err)
	_, err = store1.Dictionary(path)
	require.NoError(t, err)
	require.NoError(t, store1.Close())

	entries, err := filepath.Glob(filepath.Join(cacheDir, "*.zst"))
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	for _, e := range entries {
		require.NoError(t, os.WriteFile(e, []byte("garbage"), 0o644))
	}

	store2, err := NewStore(StoreOptions{MemoryEntries: 4, Dir: cacheDir})
	require.NoError(t, err)
	defer store2.Close()

	dict, err := store2.Dictionary(path)
	require.NoError(t, err)
	assert.Equal(t, "test_dict", dict.Title)
	assert.Equal(t, int64(1), store2.ParseCount())
}

func TestStoreExpiredEntryReparsed(t *testing.T) {
	dir := t.TempDir()
	path := writeDict(t, dir)
	cacheDir := filepath.Join(dir, "cache")

	store1, err := NewStore(StoreOptions{MemoryEntries: 4, Dir: cacheDir})
	require.NoError(t, err)
	_, err = store1.Dictionary(path)
	require.NoError(t, err)
	require.NoError(t, store1.Close())

	entries, err := filepath.Glob(filepath.Join(cacheDir, "*.zst"))
	require.NoError(t, err)
	past := time.Now().Add(-time.Hour)
	for _, e := range entries {
		require.NoError(t, os.Chtimes(e, past, past))
	}

	store2, err := NewStore(StoreOptions{MemoryEntries: 4, Dir: cacheDir, TTL: time.Minute})
	require.NoError(t, err)
	defer store2.Close()

	_, err = store2.Dictionary(path)
	require.NoError(t, err)
	assert.Equal(t, int64(1), store2.ParseCount())
}

func TestStoreConcurrentLoadsShareOneParse(t *testing.T) {
	dir := t.TempDir()
	path := writeDict(t, dir)

	store, err := NewStore(StoreOptions{MemoryEntries: 4})
	require.NoError(t, err)
	defer store.Close()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Dictionary(path)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), store.ParseCount())
}

func TestStoreMissingSource(t *testing.T) {
	store, err := NewStore(StoreOptions{MemoryEntries: 4})
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Dictionary(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}
