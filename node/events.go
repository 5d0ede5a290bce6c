package node

import (
	"meshnode/peer"
	"meshnode/wire"
)

// eventKind discriminates the events the dispatch loop consumes. Every
// mutation of have/missing/pending/peers happens only while handling one of
// these, on the single dispatcher goroutine — connections and the listener
// only ever produce events, never mutate state directly.
type eventKind int

const (
	evAccepted eventKind = iota
	evDialed
	evDialFailed
	evMessage
	evClosed
)

// event carries whatever a given eventKind needs; unused fields are zero.
type event struct {
	kind eventKind
	conn *peer.Conn
	addr string
	msg  wire.Message
	err  error
}
