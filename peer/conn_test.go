package peer

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"meshnode/wire"
)

func TestSendAndReadLoopRoundTrip(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	serverConn := New(server, Inbound)
	defer serverConn.Close()

	clientConn := New(client, Outbound)
	defer clientConn.Close()

	received := make(chan wire.Message, 1)
	go clientConn.ReadLoop(func(msg wire.Message) {
		received <- msg
	}, func(error) {})

	serverConn.Send(wire.Have(42))

	select {
	case msg := <-received:
		require.Equal(t, wire.TypeHave, msg.Type)
		require.Equal(t, 42, msg.Index)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestReadLoopInvokesOnCloseOnRemoteClose(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	serverConn := New(server, Inbound)

	closed := make(chan struct{})
	go serverConn.ReadLoop(func(wire.Message) {}, func(error) {
		close(closed)
	})

	client.Close()

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("onClose was never called")
	}
}
