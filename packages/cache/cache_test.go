package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velocitest/velocitest/packages/core/scanner"
)

const sampleSource = `
class TestUsers:
    def test_create(self):
        pass

def test_plain():
    pass
`

func scanSample(t *testing.T) *scanner.Module {
	t.Helper()
	mod, err := scanner.ScanSource("tests/test_users.py", []byte(sampleSource))
	require.NoError(t, err)
	return mod
}

func TestRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir(), false)
	require.NoError(t, err)

	mod := scanSample(t)
	hash := HashContent([]byte(sampleSource))
	require.NoError(t, store.Save("tests/test_users.py", hash, mod))

	got, ok := store.Lookup("tests/test_users.py", hash)
	require.True(t, ok)
	assert.Equal(t, "tests/test_users.py", got.Path)
	require.Len(t, got.Classes, 1)
	require.Len(t, got.Classes[0].Methods, 1)
	assert.Equal(t, "test_create", got.Classes[0].Methods[0].Name)
	assert.Same(t, got.Classes[0], got.Classes[0].Methods[0].Class, "back-pointers restored after load")
	require.Len(t, got.Functions, 1)
}

func TestLookupMissOnChangedContent(t *testing.T) {
	store, err := NewStore(t.TempDir(), false)
	require.NoError(t, err)

	hash := HashContent([]byte(sampleSource))
	require.NoError(t, store.Save("test_a.py", hash, scanSample(t)))

	_, ok := store.Lookup("test_a.py", HashContent([]byte("def test_new(): pass")))
	assert.False(t, ok)
}

func TestLookupMissOnUnknownFile(t *testing.T) {
	store, err := NewStore(t.TempDir(), false)
	require.NoError(t, err)

	_, ok := store.Lookup("never_saved.py", HashContent(nil))
	assert.False(t, ok)
}

func TestCorruptEntryIsAMiss(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, false)
	require.NoError(t, err)

	hash := HashContent([]byte(sampleSource))
	require.NoError(t, store.Save("test_a.py", hash, scanSample(t)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	path := filepath.Join(dir, entries[0].Name())

	for _, corrupt := range []string{
		"{not json",
		`{"version": "one", "hash": "x", "module": {}}`,
		`{"hash": "` + hash + `"}`,
	} {
		require.NoError(t, os.WriteFile(path, []byte(corrupt), 0644))
		_, ok := store.Lookup("test_a.py", hash)
		assert.False(t, ok, "corrupt entry must miss, not error: %s", corrupt)
	}
}

func TestDisabledStore(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, true)
	require.NoError(t, err)

	hash := HashContent([]byte(sampleSource))
	require.NoError(t, store.Save("test_a.py", hash, scanSample(t)))

	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries, "disabled store writes nothing")

	_, ok := store.Lookup("test_a.py", hash)
	assert.False(t, ok)
}

func TestClear(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, false)
	require.NoError(t, err)

	hash := HashContent([]byte(sampleSource))
	require.NoError(t, store.Save("test_a.py", hash, scanSample(t)))
	require.NoError(t, store.Save("test_b.py", hash, scanSample(t)))

	require.NoError(t, store.Clear())
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// Clearing a store that never wrote is fine.
	fresh, err := NewStore(filepath.Join(dir, "missing"), false)
	require.NoError(t, err)
	assert.NoError(t, fresh.Clear())
}

func TestHashContentStable(t *testing.T) {
	a := HashContent([]byte("hello"))
	b := HashContent([]byte("hello"))
	c := HashContent([]byte("world"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
