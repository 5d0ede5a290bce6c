package node

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"meshnode/filestore"
	"meshnode/wire"
)

func TestHandleHandshakeRejectsSelfConnection(t *testing.T) {
	n := newTestNode(t, "selfaaaaaaaaaaaa")
	local, _ := pipeConns()
	defer local.Close()

	n.handleHandshake(local, wire.Handshake("selfaaaaaaaaaaaa", 6000, nil, nil, nil, nil))

	require.Empty(t, n.peers)
	require.Empty(t, n.connPeer)
}

func TestHandleHandshakeAdoptsMetadataWhenUnknown(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dest.bin")
	n := newTestNode(t, "selfaaaaaaaaaaaa")
	n.store = filestore.New(path)
	require.NoError(t, n.store.Open(filestore.ReadWriteCreate))

	local, _ := pipeConns()
	defer local.Close()

	name := "movie.mkv"
	size := int64(100)
	pieceSize := int64(64)
	hash := "deadbeef"
	n.handleHandshake(local, wire.Handshake("peerbbbbbbbbbbbb", 7000, &name, &size, &pieceSize, &hash))

	require.True(t, n.metadataKnown)
	require.Equal(t, name, n.fileName)
	require.Equal(t, size, n.fileSize)
	require.Equal(t, pieceSize, n.pieceSize)
	require.Equal(t, hash, n.fileHash)
	require.Equal(t, 2, n.numPieces)
}

func TestHandleHandshakeDropsOnFileHashMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seed.bin")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))

	n := newTestNode(t, "selfaaaaaaaaaaaa")
	n.store = filestore.New(path)
	require.NoError(t, n.store.Open(filestore.ReadOnly))
	n.isSeed = true
	n.metadataKnown = true
	n.fileHash = "ourhash"

	local, _ := pipeConns()

	theirHash := "differenthash"
	n.handleHandshake(local, wire.Handshake("peerbbbbbbbbbbbb", 7000, nil, nil, nil, &theirHash))

	_, stillTracked := n.peers["peerbbbbbbbbbbbb"]
	require.False(t, stillTracked)
}

func TestHandleHandshakeDropsWhenNeitherSideHasMetadata(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dest.bin")
	n := newTestNode(t, "selfaaaaaaaaaaaa")
	n.store = filestore.New(path)
	require.NoError(t, n.store.Open(filestore.ReadWriteCreate))

	local, _ := pipeConns()

	n.handleHandshake(local, wire.Handshake("peerbbbbbbbbbbbb", 7000, nil, nil, nil, nil))

	require.False(t, n.metadataKnown)
	_, stillTracked := n.peers["peerbbbbbbbbbbbb"]
	require.False(t, stillTracked)
}
