package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hupe1980/mdstore/internal/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() *Manifest {
	return &Manifest{
		SessionID:  "session",
		Dimensions: 2,
		EventKind:  "lean",
		FileLength: 12,
		FreeSpace:  []BlockInfo{{Position: 4, Size: 2}},
		Boxes: []BoxInfo{
			{ID: 1, Depth: 0, Extents: [][2]float32{{0, 10}, {0, 10}}, Signal: 4, ErrorSquared: 4, Position: 0, Size: 4, Saved: true},
			{ID: 2, Depth: 1, Extents: [][2]float32{{0, 5}, {0, 5}}, Position: 6, Size: 6, Saved: true, Masked: true, Centroid: []float32{1, 2}},
		},
	}
}

func TestStore_LoadMissing(t *testing.T) {
	s := NewStore(fs.Default, t.TempDir())

	_, err := s.Load()
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_SaveLoad(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(fs.Default, dir)

	m := sample()
	require.NoError(t, s.Save(m))
	assert.Equal(t, uint64(1), m.ID)
	assert.Equal(t, CurrentVersion, m.Version)

	got, err := NewStore(nil, dir).Load()
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestStore_SaveReplacesPrevious(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(fs.Default, dir)

	require.NoError(t, s.Save(sample()))

	// A fresh manifest value still gets a newer id.
	second := sample()
	second.FileLength = 20
	require.NoError(t, s.Save(second))
	assert.Equal(t, uint64(2), second.ID)

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, uint64(20), got.FileLength)

	_, err = os.Stat(filepath.Join(dir, "MANIFEST-000001.json"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "MANIFEST-000002.json"))
	assert.NoError(t, err)
}

func TestStore_RejectsUnknownVersion(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "MANIFEST-000001.json"), []byte(`{"version": 99}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, CurrentFileName), []byte("MANIFEST-000001.json\n"), 0644))

	_, err := NewStore(fs.Default, dir).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported manifest version")
}

func TestStore_FailedWriteKeepsCurrent(t *testing.T) {
	dir := t.TempDir()
	faulty := fs.NewFaultyFS(fs.Default)
	s := NewStore(faulty, dir)

	require.NoError(t, s.Save(sample()))

	faulty.AddRule("MANIFEST-000002", fs.Fault{FailAfterBytes: 10})
	err := s.Save(sample())
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrInjected))

	got, err := NewStore(fs.Default, dir).Load()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.ID)

	_, err = os.Stat(filepath.Join(dir, "MANIFEST-000002.json.tmp"))
	assert.True(t, os.IsNotExist(err), "temp file is cleaned up")
}
