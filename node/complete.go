package node

// numPieces returns how many pieces a file of fileSize splits into given
// pieceSize, with the last piece possibly short. fileSize <= 0 (an empty
// seed file) yields zero pieces, not one.
func numPieces(fileSize, pieceSize int64) int {
	if fileSize <= 0 || pieceSize <= 0 {
		return 0
	}
	n := fileSize / pieceSize
	if fileSize%pieceSize != 0 {
		n++
	}
	return int(n)
}

func allIndices(n int) map[int]struct{} {
	set := make(map[int]struct{}, n)
	for i := 0; i < n; i++ {
		set[i] = struct{}{}
	}
	return set
}

// complete runs once missing becomes empty: it whole-file-hashes the
// destination and logs whether it matches the hash carried in the
// handshake. No per-piece hashing is performed anywhere (see the design
// notes' non-goals) — a corrupt piece is only ever caught here, at the end.
func (n *Node) complete() {
	n.stopProgressReporter()
	hash, err := n.store.ComputeHash()
	if err != nil {
		n.isSeed = true
		n.log.WithError(err).Error("download complete but failed to hash the result")
		return
	}
	if hash != n.fileHash {
		n.isSeed = true
		n.log.WithFields(map[string]interface{}{
			"expected": n.fileHash, "actual": hash,
		}).Error("download complete but file hash does not match; data is corrupt")
		return
	}
	n.isSeed = true
	n.log.WithField("fileHash", hash).Info("download complete and verified")
}
