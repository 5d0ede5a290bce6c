package wire

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandshakeRoundTripWithNullMetadata(t *testing.T) {
	msg := Handshake("abcdef0123456789", 6000, nil, nil, nil, nil)
	dec := NewDecoder(strings.NewReader(encodeLine(t, msg)))

	got, err := dec.Next()
	require.NoError(t, err)
	require.Equal(t, TypeHandshake, got.Type)
	require.Equal(t, "abcdef0123456789", got.ID)
	require.Nil(t, got.FileName)
	require.Nil(t, got.FileSize)
}

func TestPieceBase64RoundTrip(t *testing.T) {
	payload := []byte("some piece bytes, not aligned to 3")
	msg := Piece(4, payload)

	decoded, err := msg.DecodePieceData()
	require.NoError(t, err)
	require.Equal(t, payload, decoded)
}

func TestDecoderSkipsBlankLinesAndMalformedJSON(t *testing.T) {
	input := "\n" +
		`{"type":"have","index":3}` + "\n" +
		"not json at all\n" +
		`{"type":"have","index":4}` + "\n"

	dec := NewDecoder(strings.NewReader(input))

	first, err := dec.Next()
	require.NoError(t, err)
	require.Equal(t, TypeHave, first.Type)
	require.Equal(t, 3, first.Index)

	second, err := dec.Next()
	require.NoError(t, err)
	require.Equal(t, TypeHave, second.Type)
	require.Equal(t, 4, second.Index)
}

func TestPeersMessage(t *testing.T) {
	msg := Peers([]PeerAddr{{ID: "aa", Host: "10.0.0.1", Port: 7000}})
	dec := NewDecoder(strings.NewReader(encodeLine(t, msg)))

	got, err := dec.Next()
	require.NoError(t, err)
	require.Len(t, got.Peers, 1)
	require.Equal(t, "aa", got.Peers[0].ID)
}

func encodeLine(t *testing.T, msg Message) string {
	t.Helper()
	b, err := json.Marshal(msg)
	require.NoError(t, err)
	return string(b) + "\n"
}
