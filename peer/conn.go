// Package peer wraps a single TCP connection as a framed message transport:
// a decode loop that turns inbound bytes into wire.Message values, and a
// write goroutine that serializes outbound messages so sends are
// fire-and-forget from the caller's point of view, matching the spec's "no
// ack on writes" requirement.
//
// Conn itself holds no node-level state (no pieces, no peer id bookkeeping)
// — that belongs to node.PeerRecord, which holds a reference to a Conn, not
// the other way around. This keeps the node package the single owner of
// all mutable swarm state, per its single-dispatcher design.
package peer

import (
	"encoding/json"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"meshnode/wire"
)

// Direction records whether a connection was accepted or dialed.
type Direction int

const (
	Inbound Direction = iota
	Outbound
)

func (d Direction) String() string {
	if d == Inbound {
		return "inbound"
	}
	return "outbound"
}

// outboundQueueSize bounds how many messages can be buffered for a slow
// peer before Send starts dropping them. The protocol has no flow control
// of its own, so a bound here is what keeps one stalled peer from blocking
// the node dispatcher.
const outboundQueueSize = 64

// Conn is a framed bidirectional message stream over a net.Conn.
type Conn struct {
	raw       net.Conn
	Direction Direction

	// DialedHost/DialedPort are set for outbound connections to the
	// address that was actually dialed. When this connection's handshake
	// arrives, the node records them as the peer's host and port in place
	// of the socket address and advertised port (see node.PeerRecord
	// host/port handling, and the advertised-vs-source-port note in
	// spec §9).
	DialedHost string
	DialedPort int

	dec *wire.Decoder
	out chan wire.Message

	closeOnce sync.Once
	done      chan struct{}
}

// New wraps raw as a Conn and starts its write loop. The caller is
// responsible for driving ReadLoop on its own goroutine.
func New(raw net.Conn, dir Direction) *Conn {
	c := &Conn{
		raw:       raw,
		Direction: dir,
		dec:       wire.NewDecoder(raw),
		out:       make(chan wire.Message, outboundQueueSize),
		done:      make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

// RemoteAddr returns the underlying connection's remote address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}

// RemoteHost returns just the host portion of the remote address, used to
// populate a peer record for an inbound connection (see spec §9: inbound
// host comes from the socket, not from the handshake).
func (c *Conn) RemoteHost() string {
	host, _, err := net.SplitHostPort(c.raw.RemoteAddr().String())
	if err != nil {
		return c.raw.RemoteAddr().String()
	}
	return host
}

// SetDialed records the address this connection was dialed to, for use by
// the node once the remote peer's handshake tells it who this is.
func (c *Conn) SetDialed(host string, port int) {
	c.DialedHost = host
	c.DialedPort = port
}

// Send enqueues msg for the write loop. It never blocks: a full queue means
// a stalled peer, and the message is dropped with a warning rather than
// stalling the node dispatcher.
func (c *Conn) Send(msg wire.Message) {
	select {
	case c.out <- msg:
	case <-c.done:
	default:
		logrus.WithField("remote", c.raw.RemoteAddr()).
			WithField("type", msg.Type).
			Warn("peer: outbound queue full, dropping message")
	}
}

// Close closes the connection and stops the write loop. Idempotent.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return c.raw.Close()
}

func (c *Conn) writeLoop() {
	for {
		select {
		case msg := <-c.out:
			if err := c.writeOne(msg); err != nil {
				logrus.WithError(err).Debug("peer: write failed, closing connection")
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Conn) writeOne(msg wire.Message) error {
	b, err := marshalLine(msg)
	if err != nil {
		logrus.WithError(err).Error("peer: failed to marshal outbound message")
		return nil
	}
	_, err = c.raw.Write(b)
	return err
}

// ReadLoop decodes messages until the connection ends, invoking onMessage
// for each and onClose exactly once on termination. It blocks, so it must
// be run on its own goroutine; it never touches node state directly —
// callers are expected to forward into the node's single event channel.
func (c *Conn) ReadLoop(onMessage func(wire.Message), onClose func(error)) {
	for {
		msg, err := c.dec.Next()
		if err != nil {
			c.Close()
			onClose(err)
			return
		}
		onMessage(msg)
	}
}

func marshalLine(msg wire.Message) ([]byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}
