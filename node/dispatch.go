package node

import (
	"meshnode/peer"
	"meshnode/wire"
)

// handleMessage routes one decoded wire message to its handler. It runs
// exclusively on the dispatch goroutine.
func (n *Node) handleMessage(c *peer.Conn, msg wire.Message) {
	switch msg.Type {
	case wire.TypeHandshake:
		n.handleHandshake(c, msg)
	case wire.TypeBitfield:
		n.handleBitfield(c, msg)
	case wire.TypeHave:
		n.handleHave(c, msg)
	case wire.TypeRequest:
		n.handleRequest(c, msg)
	case wire.TypePiece:
		n.handlePiece(c, msg)
	case wire.TypePeers:
		n.handlePeers(c, msg)
	default:
		n.log.WithField("type", msg.Type).Warn("dropping message of unknown type")
	}
}

// recordFor resolves the PeerRecord owning a live connection, or nil if the
// connection has not completed its handshake yet.
func (n *Node) recordFor(c *peer.Conn) *PeerRecord {
	id, ok := n.connPeer[c]
	if !ok {
		return nil
	}
	return n.peers[id]
}
