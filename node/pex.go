package node

import (
	"strconv"

	"github.com/samber/lo"

	"meshnode/peer"
	"meshnode/wire"
)

// handlePeers merges a peers message into our known-peer set and, for any
// peer we don't already have a live connection to, applies the initiate
// rule to decide whether we dial it.
func (n *Node) handlePeers(c *peer.Conn, msg wire.Message) {
	for _, addr := range msg.Peers {
		if addr.ID == n.cfg.ID {
			continue
		}
		rec, ok := n.peers[addr.ID]
		if !ok {
			rec = newPeerRecord(addr.ID)
			rec.Host = addr.Host
			rec.Port = addr.Port
			n.peers[addr.ID] = rec
		}
		if rec.Conn != nil || rec.Host == "" || rec.Port == 0 {
			continue
		}
		if shouldInitiate(n.cfg.ID, addr.ID) {
			go n.dial(dialAddr(rec.Host, rec.Port))
		}
	}
}

// performPex introduces a newly handshaken inbound peer to every other
// connected peer, and tells the new peer about all of them. It is only
// triggered on the inbound side of a handshake so each new edge triggers
// exactly one round of introductions, not two.
func (n *Node) performPex(newPeerID string, c *peer.Conn) {
	newRec := n.peers[newPeerID]
	if newRec == nil {
		return
	}

	candidates := lo.MapToSlice(n.peers, func(id string, rec *PeerRecord) wire.PeerAddr {
		if id == newPeerID || rec.Conn == nil || rec.Host == "" {
			return wire.PeerAddr{}
		}
		return wire.PeerAddr{ID: id, Host: rec.Host, Port: rec.Port}
	})
	others := lo.Filter(candidates, func(a wire.PeerAddr, _ int) bool { return a.ID != "" })
	if len(others) > 0 {
		c.Send(wire.Peers(others))
	}

	if newRec.Host == "" {
		return
	}
	announce := wire.Peers([]wire.PeerAddr{{ID: newPeerID, Host: newRec.Host, Port: newRec.Port}})
	others2 := lo.Filter(lo.Values(n.peers), func(rec *PeerRecord, _ int) bool {
		return rec.ID != newPeerID && rec.Conn != nil
	})
	for _, rec := range others2 {
		rec.Conn.Send(announce)
	}
}

// shouldInitiate implements the collision-avoidance rule: for any unordered
// pair of ids, exactly one side dials. String comparison of the 16-hex-char
// ids gives a total order with no ties (ids are never equal here, since
// self-connections are filtered earlier).
func shouldInitiate(selfID, otherID string) bool {
	return selfID > otherID
}

func dialAddr(host string, port int) string {
	return host + ":" + strconv.Itoa(port)
}
