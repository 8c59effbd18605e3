package storage

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	dErrors "clanbridge/pkg/domain-errors"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return s
}

func TestStore_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	saved := map[string]string{"111": "#ABC123", "222": "#XYZ9"}
	require.NoError(t, s.Save("registrations.json", saved))

	loaded := map[string]string{}
	s.Load("registrations.json", &loaded)
	require.Equal(t, saved, loaded)
}

func TestStore_LoadMissingFileLeavesZeroValue(t *testing.T) {
	s := newTestStore(t)

	loaded := map[string]string{}
	s.Load("absent.json", &loaded)
	require.Empty(t, loaded)
}

func TestStore_LoadCorruptFileDegrades(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte("{not json"), 0o644))

	loaded := map[string]string{}
	s.Load("config.json", &loaded)
	require.Empty(t, loaded)
}

func TestStore_SaveReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	require.NoError(t, s.Save("config.json", map[string]string{"a": "1"}))
	require.NoError(t, s.Save("config.json", map[string]string{"a": "2"}))

	loaded := map[string]string{}
	s.Load("config.json", &loaded)
	require.Equal(t, "2", loaded["a"])

	// No temp files linger after a successful replace.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestStore_SaveFailureIsCoded(t *testing.T) {
	s := newTestStore(t)

	err := s.Save("bad.json", make(chan int))
	require.Error(t, err)
	require.True(t, dErrors.HasCode(err, dErrors.CodePersistence))
}
