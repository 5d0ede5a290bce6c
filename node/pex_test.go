package node

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"meshnode/wire"
)

func TestHandlePeersRecordsUnknownPeerWithoutDialingWhenNotInitiator(t *testing.T) {
	self := "bbbbbbbbbbbbbbbb" // lexicographically smaller: never initiates
	n := newTestNode(t, self)

	local, _ := pipeConns()
	defer local.Close()

	n.handlePeers(local, wire.Peers([]wire.PeerAddr{
		{ID: "cccccccccccccccc", Host: "127.0.0.1", Port: 9999},
	}))

	rec, ok := n.peers["cccccccccccccccc"]
	require.True(t, ok)
	require.Equal(t, "127.0.0.1", rec.Host)
	require.Nil(t, rec.Conn)
	// A dial, successful or not, always reports back on n.events.
	require.Never(t, func() bool { return len(n.events) > 0 }, 200*time.Millisecond, 10*time.Millisecond)
}

func TestPerformPexIntroducesNewPeerToExistingOnesAndViceVersa(t *testing.T) {
	n := newTestNode(t, "selfaaaaaaaaaaaa")

	existingLocal, existingRemote := pipeConns()
	defer existingLocal.Close()
	defer existingRemote.Close()
	newLocal, newRemote := pipeConns()
	defer newLocal.Close()
	defer newRemote.Close()

	existing := newPeerRecord("existingbbbbbbbb")
	existing.Host, existing.Port = "10.0.0.1", 4000
	existing.Conn = existingLocal
	n.peers[existing.ID] = existing

	fresh := newPeerRecord("freshccccccccccc")
	fresh.Host, fresh.Port = "10.0.0.2", 5000
	fresh.Conn = newLocal
	n.peers[fresh.ID] = fresh

	toNew := make(chan wire.Message, 1)
	go newRemote.ReadLoop(func(msg wire.Message) { toNew <- msg }, func(error) {})
	toExisting := make(chan wire.Message, 1)
	go existingRemote.ReadLoop(func(msg wire.Message) { toExisting <- msg }, func(error) {})

	n.performPex(fresh.ID, newLocal)

	select {
	case msg := <-toNew:
		require.Equal(t, wire.TypePeers, msg.Type)
		require.Len(t, msg.Peers, 1)
		require.Equal(t, existing.ID, msg.Peers[0].ID)
	case <-time.After(time.Second):
		t.Fatal("new peer never received the existing-peers list")
	}

	select {
	case msg := <-toExisting:
		require.Equal(t, wire.TypePeers, msg.Type)
		require.Len(t, msg.Peers, 1)
		require.Equal(t, fresh.ID, msg.Peers[0].ID)
	case <-time.After(time.Second):
		t.Fatal("existing peer never received the new-peer announcement")
	}
}
