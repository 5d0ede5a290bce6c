package node

import (
	"meshnode/peer"
	"meshnode/wire"
)

// runScheduler makes one deterministic pass over connected, non-busy peers
// and assigns each the first piece it advertises that we're missing and
// haven't already requested from someone else. One outstanding request per
// peer at a time; see the design notes on why this is intentionally simple
// rather than rarest-first or pipelined.
func (n *Node) runScheduler() {
	if len(n.missing) == 0 {
		return
	}
	for id, rec := range n.peers {
		if rec.Conn == nil || rec.Busy || !rec.HandshakeReceived {
			continue
		}
		for idx := range n.missing {
			if _, already := n.pending[idx]; already {
				continue
			}
			if _, has := rec.AvailablePieces[idx]; !has {
				continue
			}
			rec.Conn.Send(wire.Request(idx))
			rec.Busy = true
			n.pending[idx] = id
			break
		}
	}
}

func (n *Node) handleBitfield(c *peer.Conn, msg wire.Message) {
	rec := n.recordFor(c)
	if rec == nil {
		return
	}
	rec.AvailablePieces = make(map[int]struct{}, len(msg.Pieces))
	for _, idx := range msg.Pieces {
		rec.AvailablePieces[idx] = struct{}{}
	}
	n.runScheduler()
}

func (n *Node) handleHave(c *peer.Conn, msg wire.Message) {
	rec := n.recordFor(c)
	if rec == nil {
		return
	}
	rec.AvailablePieces[msg.Index] = struct{}{}
	n.runScheduler()
}

func (n *Node) handleRequest(c *peer.Conn, msg wire.Message) {
	if _, ok := n.have[msg.Index]; !ok {
		n.log.WithField("index", msg.Index).Debug("ignoring request for a piece we don't have")
		return
	}
	data, err := n.store.ReadPiece(msg.Index)
	if err != nil {
		n.log.WithError(err).WithField("index", msg.Index).Error("failed reading requested piece")
		return
	}
	c.Send(wire.Piece(msg.Index, data))
}

func (n *Node) handlePiece(c *peer.Conn, msg wire.Message) {
	rec := n.recordFor(c)
	if rec == nil {
		return
	}
	rec.Busy = false

	if requestedFrom, ok := n.pending[msg.Index]; !ok || requestedFrom != rec.ID {
		n.log.WithField("index", msg.Index).Debug("dropping unrequested or stale piece")
		n.runScheduler()
		return
	}
	delete(n.pending, msg.Index)

	if _, already := n.have[msg.Index]; already {
		n.runScheduler()
		return
	}

	data, err := msg.DecodePieceData()
	if err != nil {
		n.log.WithError(err).WithField("index", msg.Index).Error("malformed piece payload")
		n.runScheduler()
		return
	}
	if err := n.store.WritePiece(msg.Index, data); err != nil {
		n.log.WithError(err).WithField("index", msg.Index).Error("failed writing piece to disk")
		n.runScheduler()
		return
	}

	n.have[msg.Index] = struct{}{}
	delete(n.missing, msg.Index)
	n.bytesDownloaded += int64(len(data))

	n.broadcastHave(msg.Index, c)

	if len(n.missing) == 0 {
		n.complete()
		return
	}
	n.runScheduler()
}

func (n *Node) broadcastHave(index int, except *peer.Conn) {
	for _, rec := range n.peers {
		if rec.Conn == nil || rec.Conn == except {
			continue
		}
		rec.Conn.Send(wire.Have(index))
	}
}

// handleConnClosed drops the connection from the live set. Per the design
// notes, ANY connection closing clears the entire pending set, not just the
// requests outstanding to that one peer — a deliberately simple, slightly
// wasteful recovery rule rather than precise per-peer bookkeeping.
func (n *Node) handleConnClosed(c *peer.Conn, err error) {
	delete(n.unresolved, c)
	id, ok := n.connPeer[c]
	if ok {
		delete(n.connPeer, c)
		if rec, ok := n.peers[id]; ok && rec.Conn == c {
			rec.Conn = nil
			rec.Busy = false
		}
	}
	if len(n.pending) > 0 {
		n.pending = map[int]string{}
	}
	n.log.WithError(err).WithField("peer", shortID(id)).Debug("connection closed")
	n.runScheduler()
}
