package filestore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSeedReadPieceBoundaries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hello.txt")
	content := make([]byte, 100)
	for i := range content {
		content[i] = byte('a' + i%26)
	}
	require.NoError(t, os.WriteFile(path, content, 0o644))

	s := New(path)
	require.NoError(t, s.Open(ReadOnly))
	s.SetPieceSize(64)
	require.EqualValues(t, 100, s.FileSize())

	piece0, err := s.ReadPiece(0)
	require.NoError(t, err)
	require.Len(t, piece0, 64)
	require.Equal(t, content[:64], piece0)

	piece1, err := s.ReadPiece(1)
	require.NoError(t, err)
	require.Len(t, piece1, 36)
	require.Equal(t, content[64:], piece1)

	_, err = s.ReadPiece(2)
	require.Error(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close()) // idempotent
}

func TestLeecherSetSizeAndWritePiece(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dest.bin")

	s := New(path)
	require.NoError(t, s.Open(ReadWriteCreate))
	s.SetPieceSize(64)
	require.NoError(t, s.SetSize(100))
	require.EqualValues(t, 100, s.FileSize())

	require.NoError(t, s.WritePiece(0, make([]byte, 64)))
	require.NoError(t, s.WritePiece(1, make([]byte, 36)))

	other := New(path)
	require.NoError(t, other.Open(ReadOnly))
	require.EqualValues(t, 100, other.FileSize())
	require.Error(t, other.SetSize(200)) // illegal in ReadOnly mode
	require.NoError(t, other.Close())

	require.NoError(t, s.Close())
}

func TestComputeHashRoundTrip(t *testing.T) {
	dir := t.TempDir()
	seedPath := filepath.Join(dir, "seed.bin")
	content := []byte("the quick brown fox jumps over the lazy dog")
	require.NoError(t, os.WriteFile(seedPath, content, 0o644))

	seed := New(seedPath)
	require.NoError(t, seed.Open(ReadOnly))
	seedHash, err := seed.ComputeHash()
	require.NoError(t, err)
	require.NoError(t, seed.Close())

	destPath := filepath.Join(dir, "dest.bin")
	dest := New(destPath)
	require.NoError(t, dest.Open(ReadWriteCreate))
	dest.SetPieceSize(16)
	require.NoError(t, dest.SetSize(int64(len(content))))
	for i := 0; i*16 < len(content); i++ {
		end := (i + 1) * 16
		if end > len(content) {
			end = len(content)
		}
		require.NoError(t, dest.WritePiece(i, content[i*16:end]))
	}
	destHash, err := dest.ComputeHash()
	require.NoError(t, err)
	require.NoError(t, dest.Close())

	require.Equal(t, seedHash, destHash)
}
