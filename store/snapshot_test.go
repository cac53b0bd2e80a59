package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type snapshotDoc struct {
	Name    string    `json:"name"`
	Count   int       `json:"count"`
	Weights []float64 `json:"weights"`
}

func TestSnapshotRoundTrip(t *testing.T) {
	s, err := NewSnapshotStore(t.TempDir())
	require.NoError(t, err)

	saved := snapshotDoc{Name: "grid", Count: 3, Weights: []float64{0.1, 0.2, 0.7}}
	require.NoError(t, s.Save("test_doc", saved))

	var loaded snapshotDoc
	found, err := s.Load("test_doc", &loaded)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, saved, loaded)
}

func TestSnapshotMissingDocument(t *testing.T) {
	s, err := NewSnapshotStore(t.TempDir())
	require.NoError(t, err)

	var doc snapshotDoc
	found, err := s.Load("never_saved", &doc)
	require.NoError(t, err)
	require.False(t, found)
}

func TestSnapshotOverwrite(t *testing.T) {
	s, err := NewSnapshotStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Save("doc", snapshotDoc{Name: "first", Count: 1}))
	require.NoError(t, s.Save("doc", snapshotDoc{Name: "second", Count: 2}))

	var loaded snapshotDoc
	found, err := s.Load("doc", &loaded)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "second", loaded.Name)
}

func TestSnapshotCorruptDocument(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSnapshotStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0o644))

	var doc snapshotDoc
	_, err = s.Load("broken", &doc)
	require.Error(t, err)
}

func TestSnapshotLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSnapshotStore(dir)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Save("doc", snapshotDoc{Count: i}))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "doc.json", entries[0].Name())
}

func TestSnapshotCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "state")
	_, err := NewSnapshotStore(dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}
