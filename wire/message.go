// Package wire defines the newline-delimited JSON messages exchanged over a
// peer connection and the streaming decoder that turns a raw byte stream
// into a sequence of Message values.
//
// There is no length prefix: each message is one JSON object terminated by
// '\n'. Empty lines are skipped. A line that fails to parse as JSON is
// logged and dropped — it never closes the connection.
package wire

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"

	"github.com/sirupsen/logrus"
)

// Type discriminates the six message shapes carried over a connection.
type Type string

const (
	TypeHandshake Type = "handshake"
	TypeBitfield  Type = "bitfield"
	TypeRequest   Type = "request"
	TypePiece     Type = "piece"
	TypeHave      Type = "have"
	TypePeers     Type = "peers"
)

// PeerAddr is one entry of a peers message's address list.
type PeerAddr struct {
	ID   string `json:"id"`
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Message is the single envelope shape for all six wire message types.
// Fields not used by a given Type are left zero and omitted from the wire
// form where that is unambiguous (handshake metadata fields are pointers
// specifically so "not yet known" round-trips as JSON null rather than 0).
type Message struct {
	Type Type `json:"type"`

	// handshake
	ID        string  `json:"id,omitempty"`
	FileName  *string `json:"fileName"`
	FileSize  *int64  `json:"fileSize"`
	FileHash  *string `json:"fileHash"`
	PieceSize *int64  `json:"pieceSize"`
	Port      int     `json:"port,omitempty"`

	// bitfield
	Pieces []int `json:"pieces,omitempty"`

	// request / piece / have
	Index int    `json:"index"`
	Data  string `json:"data,omitempty"`

	// peers
	Peers []PeerAddr `json:"peers,omitempty"`
}

// Handshake builds a handshake message. Any of fileName/fileSize/pieceSize/
// fileHash may be nil on a leecher that has not yet learned metadata.
func Handshake(id string, port int, fileName *string, fileSize, pieceSize *int64, fileHash *string) Message {
	return Message{
		Type:      TypeHandshake,
		ID:        id,
		Port:      port,
		FileName:  fileName,
		FileSize:  fileSize,
		PieceSize: pieceSize,
		FileHash:  fileHash,
	}
}

// Bitfield builds a bitfield message listing the given piece indices.
func Bitfield(pieces []int) Message {
	return Message{Type: TypeBitfield, Pieces: pieces}
}

// Request builds a request message for a single piece index.
func Request(index int) Message {
	return Message{Type: TypeRequest, Index: index}
}

// Piece builds a piece message, base64-encoding data for the wire.
func Piece(index int, data []byte) Message {
	return Message{Type: TypePiece, Index: index, Data: base64.StdEncoding.EncodeToString(data)}
}

// Have builds a have message announcing a newly-acquired piece index.
func Have(index int) Message {
	return Message{Type: TypeHave, Index: index}
}

// Peers builds a peers message advertising the given addresses.
func Peers(peers []PeerAddr) Message {
	return Message{Type: TypePeers, Peers: peers}
}

// DecodePieceData base64-decodes the Data field of a piece message.
func (m Message) DecodePieceData() ([]byte, error) {
	return base64.StdEncoding.DecodeString(m.Data)
}

// maxLineBytes bounds a single message's wire length. The protocol itself
// has no size cap (base64 roughly 1.33x's a piece's raw bytes); this is an
// implementation-side guard per the §6 SHOULD.
const maxLineBytes = 8 << 20

// Decoder turns a byte stream into a sequence of Messages, one per '\n'.
type Decoder struct {
	scanner *bufio.Scanner
}

// NewDecoder wraps r with a line-oriented JSON message decoder.
func NewDecoder(r io.Reader) *Decoder {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &Decoder{scanner: s}
}

// Next blocks until the next well-formed message arrives, transparently
// skipping blank lines and malformed JSON (logged, not surfaced as an
// error). It returns io.EOF, or the scanner's error, when the stream ends.
func (d *Decoder) Next() (Message, error) {
	for d.scanner.Scan() {
		line := bytes.TrimSpace(d.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			logrus.WithError(err).Warn("wire: dropping malformed message")
			continue
		}
		return msg, nil
	}
	if err := d.scanner.Err(); err != nil {
		return Message{}, err
	}
	return Message{}, io.EOF
}
