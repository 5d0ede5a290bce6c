package node

import "meshnode/peer"

// PeerRecord is the node's knowledge of one remote peer, keyed by peer id
// in Node.peers so that reconnection updates the existing record rather
// than duplicating it. A record can exist with Conn == nil (learned via PEX
// but not yet dialed, or disconnected and not yet redialed).
type PeerRecord struct {
	ID   string
	Host string
	Port int

	// Conn is nil whenever this peer has no live connection. The record
	// itself outlives any particular connection.
	Conn *peer.Conn

	// AvailablePieces is this peer's most recently advertised bitfield,
	// updated wholesale on `bitfield` and incrementally on `have`.
	AvailablePieces map[int]struct{}

	// Busy is true iff we have an outstanding `request` to this peer.
	Busy bool

	HandshakeSent     bool
	HandshakeReceived bool
}

func newPeerRecord(id string) *PeerRecord {
	return &PeerRecord{ID: id, AvailablePieces: make(map[int]struct{})}
}
