package blockstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestBlockRoundTrip is the literal end-to-end scenario from the spec:
// block size 16, put "apple" padded to 16 bytes, get it back, remove
// it, confirm both the file and the bloom filter forget it.
func TestBlockRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 16)
	require.NoError(t, err)

	require.True(t, s.Put("apple", []byte("apple")))

	got, ok := s.Get("apple")
	require.True(t, ok)
	require.Len(t, got, 16)
	require.Equal(t, "apple", string(got[:5]))
	for _, b := range got[5:] {
		require.Equal(t, byte(0), b)
	}

	require.True(t, s.Remove("apple"))
	_, ok = s.Get("apple")
	require.False(t, ok)
	require.False(t, s.BloomFilter().MayContain("apple"))
}

func TestPutRejectsOversizedData(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 4)
	require.NoError(t, err)

	require.False(t, s.Put("toolong", []byte("12345")))
}

func TestGetMissingKey(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 16)
	require.NoError(t, err)

	_, ok := s.Get("missing")
	require.False(t, ok)
}

func TestRemoveMissingKeyFails(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 16)
	require.NoError(t, err)

	require.False(t, s.Remove("missing"))
}

func TestBloomSoundness(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 16)
	require.NoError(t, err)

	keys := []string{"apple", "banana", "carrot", "date", "eggplant"}
	for _, k := range keys {
		require.True(t, s.Put(k, []byte(k)))
	}
	bf := s.BloomFilter()
	for _, k := range keys {
		require.True(t, bf.MayContain(k))
	}
}

func TestOverwriteDoesNotConsumeExtraCapacity(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 8)
	require.NoError(t, err)

	require.True(t, s.Put("apple", []byte("one")))
	before := s.NumTotal()
	require.True(t, s.Put("apple", []byte("two")))
	require.Equal(t, before, s.NumTotal())

	got, ok := s.Get("apple")
	require.True(t, ok)
	require.Equal(t, "two", string(got[:3]))
}

func TestStatsMatchesSeparateAccessors(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 8)
	require.NoError(t, err)

	require.True(t, s.Put("apple", []byte("one")))

	stats := s.Stats()
	require.Equal(t, uint32(s.BlockSize()), stats.BlockSize)
	require.Equal(t, uint32(s.NumFree()), stats.Free)
	require.Equal(t, uint32(s.NumTotal()), stats.Total)
}

func TestNextIteratesAllKeysThenRewinds(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 16)
	require.NoError(t, err)

	keys := []string{"apple", "banana", "carrot"}
	for _, k := range keys {
		require.True(t, s.Put(k, []byte(k)))
	}

	seen := make(map[string]bool)
	for {
		k, ok := s.Next()
		if !ok {
			break
		}
		seen[k] = true
	}
	require.Len(t, seen, 3)
	for _, k := range keys {
		require.True(t, seen[k])
	}

	// A fresh scan starts after the rewind.
	k, ok := s.Next()
	require.True(t, ok)
	require.Contains(t, keys, k)
}

func TestInvalidKeysRejected(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 16)
	require.NoError(t, err)

	require.False(t, s.Put("", []byte("x")))
	require.False(t, s.Put(".hidden", []byte("x")))
	require.False(t, s.Put("a/b", []byte("x")))
}

func TestDotAndNonRegularEntriesIgnoredByRescan(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 16)
	require.NoError(t, err)
	require.True(t, s.Put("apple", []byte("apple")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o755))

	require.NoError(t, s.rescanLocked())
	require.Equal(t, uint64(1), s.used)
}
