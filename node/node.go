// Package node implements the peer protocol engine described by the spec:
// listener, dialer, message dispatch, the piece scheduler, peer exchange,
// and completion/verification. A single goroutine (Run's dispatch loop)
// owns have, missing, pending, and the known-peers map; every other
// goroutine (the accept loop, each connection's read loop, outbound dials)
// only ever produces events onto Node.events. This is the Go rendering of
// the spec's single-threaded event-loop reference model: the channel
// *is* the lock.
package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"meshnode/filestore"
	"meshnode/peer"
	"meshnode/wire"
)

// defaultPieceSize is the piece length used unless it collapses to the
// whole file (fileSize < defaultPieceSize on a seed).
const defaultPieceSize int64 = 65536

// Config configures a single node.
type Config struct {
	ID           string
	ListenPort   int
	FilePath     string
	InitialPeer  string // host:port, optional
	ShowProgress bool
}

// Node is one swarm participant: client and server at once.
type Node struct {
	cfg Config
	log *logrus.Entry

	store *filestore.Store

	fileName      string
	fileSize      int64
	pieceSize     int64
	fileHash      string
	numPieces     int
	metadataKnown bool
	startTime     time.Time

	isSeed bool

	have    map[int]struct{}
	missing map[int]struct{}
	pending map[int]string // index -> id of the peer it was requested from

	peers      map[string]*PeerRecord
	connPeer   map[*peer.Conn]string      // resolved: live conn -> peer id
	unresolved map[*peer.Conn]struct{} // accepted/dialed, handshake not yet processed

	listener net.Listener

	events chan event

	bytesDownloaded int64

	progress *progressReporter
}

// New constructs a Node from cfg. Call Run to start it.
func New(cfg Config) *Node {
	return &Node{
		cfg:        cfg,
		log:        logrus.WithField("node", shortID(cfg.ID)),
		store:      filestore.New(cfg.FilePath),
		have:       map[int]struct{}{},
		missing:    map[int]struct{}{},
		pending:    map[int]string{},
		peers:      map[string]*PeerRecord{},
		connPeer:   map[*peer.Conn]string{},
		unresolved: map[*peer.Conn]struct{}{},
		events:     make(chan event, 256),
	}
}

// Run blocks until ctx is cancelled, serving as both client and server for
// the swarm. It returns nil on a clean shutdown and a non-nil error only
// for startup failures (file open/hash, listen).
func (n *Node) Run(ctx context.Context) error {
	if err := n.startup(); err != nil {
		return err
	}
	defer n.store.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return n.acceptLoop(gctx)
	})

	if n.cfg.InitialPeer != "" {
		go n.dial(n.cfg.InitialPeer)
	} else if !n.isSeed {
		n.log.Warn("no local file and no initial peer: waiting for an inbound connection")
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case ev := <-n.events:
			n.handleEvent(ev)
		case <-ticker.C:
			n.reportProgress()
		}
	}

	n.listener.Close()
	for _, rec := range n.peers {
		if rec.Conn != nil {
			rec.Conn.Close()
		}
	}
	_ = g.Wait()
	return nil
}

func (n *Node) startup() error {
	n.fileName = fileBase(n.cfg.FilePath)

	info, err := os.Stat(n.cfg.FilePath)
	switch {
	case err == nil && !info.IsDir():
		n.isSeed = true
		if err := n.store.Open(filestore.ReadOnly); err != nil {
			return pkgerrors.Wrap(err, "node: open seed file")
		}
		n.fileSize = n.store.FileSize()
		n.pieceSize = defaultPieceSize
		if n.fileSize < n.pieceSize {
			n.pieceSize = n.fileSize
		}
		n.store.SetPieceSize(n.pieceSize)
		n.numPieces = numPieces(n.fileSize, n.pieceSize)
		n.have = allIndices(n.numPieces)
		n.missing = map[int]struct{}{}
		hash, err := n.store.ComputeHash()
		if err != nil {
			return pkgerrors.Wrap(err, "node: hash seed file")
		}
		n.fileHash = hash
		n.metadataKnown = true
		n.startTime = time.Now()
		n.log.WithFields(logrus.Fields{
			"fileSize": n.fileSize, "pieceSize": n.pieceSize,
			"numPieces": n.numPieces, "fileHash": n.fileHash,
		}).Info("seeding file")
	case errors.Is(err, os.ErrNotExist):
		n.isSeed = false
		if err := n.store.Open(filestore.ReadWriteCreate); err != nil {
			return pkgerrors.Wrap(err, "node: create destination file")
		}
		n.log.Info("leeching: waiting for metadata from a peer")
	case err != nil:
		return pkgerrors.Wrap(err, "node: probe file path")
	default:
		return pkgerrors.Errorf("node: %s is a directory", n.cfg.FilePath)
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", n.cfg.ListenPort))
	if err != nil {
		return pkgerrors.Wrap(err, "node: listen")
	}
	n.listener = ln

	if n.cfg.ShowProgress {
		n.progress = newProgressReporter()
	}
	if n.metadataKnown {
		n.startProgressReporter()
	}

	return nil
}

func (n *Node) acceptLoop(ctx context.Context) error {
	for {
		raw, err := n.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			n.log.WithError(err).Error("accept failed")
			return pkgerrors.Wrap(err, "node: accept loop terminated")
		}
		c := peer.New(raw, peer.Inbound)
		select {
		case n.events <- event{kind: evAccepted, conn: c}:
		case <-ctx.Done():
			c.Close()
			return nil
		}
	}
}

// dial performs the blocking TCP connect off the dispatcher goroutine; it
// never reads node state, only reports the outcome as an event.
func (n *Node) dial(addr string) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		n.events <- event{kind: evDialFailed, addr: addr, err: err}
		return
	}
	raw, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		n.events <- event{kind: evDialFailed, addr: addr, err: err}
		return
	}
	c := peer.New(raw, peer.Outbound)
	port := 0
	fmt.Sscanf(portStr, "%d", &port)
	c.SetDialed(host, port)
	n.events <- event{kind: evDialed, conn: c, addr: addr}
}

func (n *Node) handleEvent(ev event) {
	switch ev.kind {
	case evAccepted:
		n.handleAccepted(ev.conn)
	case evDialed:
		n.handleDialed(ev.conn)
	case evDialFailed:
		n.log.WithError(ev.err).WithField("addr", ev.addr).Warn("outbound connect failed")
	case evMessage:
		n.handleMessage(ev.conn, ev.msg)
	case evClosed:
		n.handleConnClosed(ev.conn, ev.err)
	}
}

func (n *Node) handleAccepted(c *peer.Conn) {
	n.unresolved[c] = struct{}{}
	n.startReadLoop(c)
}

func (n *Node) handleDialed(c *peer.Conn) {
	n.unresolved[c] = struct{}{}
	n.startReadLoop(c)
	n.sendHandshake(c)
}

func (n *Node) startReadLoop(c *peer.Conn) {
	go c.ReadLoop(
		func(msg wire.Message) {
			n.events <- event{kind: evMessage, conn: c, msg: msg}
		},
		func(err error) {
			n.events <- event{kind: evClosed, conn: c, err: err}
		},
	)
}

// fileBase returns the final path element, used as the advertised file
// name in the handshake.
func fileBase(path string) string {
	i := len(path) - 1
	for i >= 0 && path[i] != '/' && path[i] != '\\' {
		i--
	}
	return path[i+1:]
}
