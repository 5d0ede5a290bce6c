package node

import (
	"time"

	"github.com/samber/lo"

	"meshnode/peer"
	"meshnode/wire"
)

// sendHandshake sends our handshake on c, advertising metadata only when we
// know it (a leecher with no metadata yet sends nulls, per wire.Handshake).
func (n *Node) sendHandshake(c *peer.Conn) {
	var fileName *string
	var fileSize, pieceSize *int64
	var fileHash *string
	if n.metadataKnown {
		fileName = &n.fileName
		fileSize = &n.fileSize
		pieceSize = &n.pieceSize
		fileHash = &n.fileHash
	}
	c.Send(wire.Handshake(n.cfg.ID, n.cfg.ListenPort, fileName, fileSize, pieceSize, fileHash))
	if rec := n.recordFor(c); rec != nil {
		rec.HandshakeSent = true
	}
}

// handleHandshake implements the reconciliation sequence: reject self
// connections, bind the record, verify a seed's file hash against ours,
// adopt metadata we don't yet have (dropping the connection if neither side
// has any), reply if we haven't already, and kick off bitfield exchange and
// PEX.
func (n *Node) handleHandshake(c *peer.Conn, msg wire.Message) {
	if msg.ID == n.cfg.ID {
		n.log.Warn("dropping connection to self")
		n.dropConn(c, "self connection")
		return
	}

	delete(n.unresolved, c)
	isNew := n.bindConn(c, msg.ID)
	rec := n.peers[msg.ID]

	if msg.Port > 0 {
		rec.Port = msg.Port
	}
	if host := c.DialedHost; host != "" {
		rec.Host = host
		if c.DialedPort > 0 {
			rec.Port = c.DialedPort
		}
	} else {
		rec.Host = c.RemoteHost()
	}

	if n.isSeed && msg.FileHash != nil && *msg.FileHash != n.fileHash {
		n.log.WithFields(map[string]interface{}{
			"peer": shortID(msg.ID), "theirHash": *msg.FileHash, "ourHash": n.fileHash,
		}).Error("peer advertises a different file hash; dropping connection")
		n.dropPeer(msg.ID, true)
		return
	}

	if !n.metadataKnown {
		if msg.FileName != nil && msg.FileSize != nil && msg.PieceSize != nil && msg.FileHash != nil {
			n.adoptMetadata(*msg.FileName, *msg.FileSize, *msg.PieceSize, *msg.FileHash)
		} else {
			n.log.WithField("peer", shortID(msg.ID)).
				Warn("neither side has file metadata; dropping connection")
			n.dropPeer(msg.ID, true)
			return
		}
	}

	rec.HandshakeReceived = true

	if c.Direction == peer.Inbound && !rec.HandshakeSent {
		n.sendHandshake(c)
	}

	if len(n.have) > 0 {
		c.Send(wire.Bitfield(indicesOf(n.have)))
	}

	if c.Direction == peer.Inbound && isNew {
		n.performPex(msg.ID, c)
	}

	n.runScheduler()
}

// adoptMetadata is first-writer-wins: once metadataKnown flips true it is
// never overwritten by a later handshake.
func (n *Node) adoptMetadata(fileName string, fileSize, pieceSize int64, fileHash string) {
	n.fileName = fileName
	n.fileSize = fileSize
	n.pieceSize = pieceSize
	n.fileHash = fileHash
	n.numPieces = numPieces(fileSize, pieceSize)
	n.missing = allIndices(n.numPieces)
	for idx := range n.have {
		delete(n.missing, idx)
	}
	n.metadataKnown = true
	n.store.SetSize(fileSize)
	n.store.SetPieceSize(pieceSize)
	n.startTime = time.Now()
	n.startProgressReporter()
	n.log.WithFields(map[string]interface{}{
		"fileName": fileName, "fileSize": fileSize, "pieceSize": pieceSize,
		"numPieces": n.numPieces, "fileHash": fileHash,
	}).Info("adopted file metadata from peer")
}

// bindConn associates a live connection with a (possibly new) PeerRecord,
// reporting whether the record was newly created.
func (n *Node) bindConn(c *peer.Conn, id string) bool {
	rec, ok := n.peers[id]
	isNew := !ok
	if !ok {
		rec = newPeerRecord(id)
		n.peers[id] = rec
	}
	rec.Conn = c
	n.connPeer[c] = id
	return isNew
}

// dropConn closes a connection without forgetting any peer record; it is
// used for self-connections. Peers rejected after binding go through
// dropPeer instead.
func (n *Node) dropConn(c *peer.Conn, reason string) {
	delete(n.unresolved, c)
	if id, ok := n.connPeer[c]; ok {
		delete(n.connPeer, c)
		if rec, ok := n.peers[id]; ok && rec.Conn == c {
			rec.Conn = nil
		}
	}
	n.log.WithField("reason", reason).Debug("dropping connection")
	c.Close()
}

// dropPeer forgets a peer entirely, optionally closing its connection.
func (n *Node) dropPeer(id string, closeConn bool) {
	rec, ok := n.peers[id]
	if !ok {
		return
	}
	if rec.Conn != nil {
		delete(n.connPeer, rec.Conn)
		if closeConn {
			rec.Conn.Close()
		}
	}
	delete(n.peers, id)
}

func indicesOf(set map[int]struct{}) []int {
	return lo.Keys(set)
}
