package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/codesearch/pkg/errors"
)

func TestWriterLockIsExclusive(t *testing.T) {
	dir := t.TempDir()
	first, err := OpenWriter(dir)
	require.NoError(t, err)
	require.True(t, Locked(dir))

	_, err = OpenWriter(dir)
	require.ErrorIs(t, err, apperrors.ErrConcurrency)

	require.NoError(t, first.Release())
	require.NoError(t, first.Release())
	require.False(t, Locked(dir))

	second, err := OpenWriter(dir)
	require.NoError(t, err)
	require.NoError(t, second.Release())
}

func TestOpenReaderWithoutManifest(t *testing.T) {
	_, _, err := OpenReader(t.TempDir())
	require.ErrorIs(t, err, apperrors.ErrIndexNotFound)

	_, _, err = OpenReader(filepath.Join(t.TempDir(), "missing"))
	require.ErrorIs(t, err, apperrors.ErrIndexNotFound)

	_, _, err = OpenReader("")
	require.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}

func TestCommitAndRead(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWriter(dir)
	require.NoError(t, err)
	defer w.Release()

	m := &Manifest{Segments: []string{"seg_1.cseg"}, DocCount: 4, Source: "/src", Extensions: []string{".go"}}
	require.NoError(t, w.Commit(m))
	require.NotEmpty(t, m.ID)

	r, got, err := OpenReader(dir)
	require.NoError(t, err)
	require.Equal(t, m.ID, got.ID)
	require.Equal(t, Fields, got.Fields)
	require.Equal(t, int64(4), got.DocCount)
	require.Equal(t, filepath.Join(r.Path(), "seg_1.cseg"), r.SegmentPath("seg_1.cseg"))

	require.ErrorIs(t, r.Commit(m), apperrors.ErrInvalidOperation)
}

func TestClearKeepsLock(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWriter(dir)
	require.NoError(t, err)
	defer w.Release()

	require.NoError(t, w.Commit(&Manifest{}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "seg_9.cseg"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep"), 0o644))

	require.NoError(t, w.Clear())

	_, err = os.Stat(filepath.Join(dir, ManifestFile))
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "seg_9.cseg"))
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "notes.txt"))
	require.NoError(t, err)
	require.True(t, Locked(dir))
}

func TestCorruptManifest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFile), []byte("{"), 0o644))
	_, _, err := OpenReader(dir)
	require.ErrorIs(t, err, apperrors.ErrIndexNotFound)
}
