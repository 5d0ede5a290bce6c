// Package filestore implements random-access read/write of fixed-size
// pieces over a single backing file, plus whole-file SHA-1 hashing.
//
// A Store has no internal locking: callers are trusted to serialize access,
// the same way the node dispatcher is the sole owner of have/missing/pending
// in package node. There is no caching of any kind.
package filestore

import (
	"crypto/sha1"
	"encoding/hex"
	"io"
	"os"

	"github.com/pkg/errors"
)

// Mode selects how the backing file is opened.
type Mode int

const (
	// ReadOnly is used by a seed: the file must already exist.
	ReadOnly Mode = iota
	// ReadWriteCreate is used by a leecher: the file is created empty (or
	// truncated if it already exists) and later sized with SetSize.
	ReadWriteCreate
)

// Store manages piece-aligned access to a single file on disk.
type Store struct {
	path      string
	file      *os.File
	mode      Mode
	fileSize  int64
	pieceSize int64
}

// New returns a Store for the file at path. The file is not touched until
// Open is called.
func New(path string) *Store {
	return &Store{path: path}
}

// Open opens the backing file in the given mode. In ReadOnly mode the
// on-disk size is recorded immediately. In ReadWriteCreate mode the file is
// created (or truncated to empty) and its size remains unknown until
// SetSize is called.
func (s *Store) Open(mode Mode) error {
	switch mode {
	case ReadOnly:
		f, err := os.Open(s.path)
		if err != nil {
			return errors.Wrap(err, "filestore: open read-only")
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return errors.Wrap(err, "filestore: stat")
		}
		s.file = f
		s.fileSize = info.Size()
	case ReadWriteCreate:
		f, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE, 0o644)
		if err != nil {
			return errors.Wrap(err, "filestore: open read-write")
		}
		if err := f.Truncate(0); err != nil {
			f.Close()
			return errors.Wrap(err, "filestore: truncate to empty")
		}
		s.file = f
		s.fileSize = 0
	default:
		return errors.Errorf("filestore: unknown mode %d", mode)
	}
	s.mode = mode
	return nil
}

// SetSize truncates or extends the backing file to exactly n bytes. Only
// legal in ReadWriteCreate mode; called once, when the leecher first learns
// fileSize from a peer's handshake.
func (s *Store) SetSize(n int64) error {
	if s.file == nil {
		return errors.New("filestore: setSize: file not open")
	}
	if s.mode != ReadWriteCreate {
		return errors.New("filestore: setSize: not legal in read-only mode")
	}
	if err := s.file.Truncate(n); err != nil {
		return errors.Wrap(err, "filestore: truncate to size")
	}
	s.fileSize = n
	return nil
}

// SetPieceSize records the piece size used to translate indices to offsets.
// It never touches the file itself.
func (s *Store) SetPieceSize(n int64) {
	s.pieceSize = n
}

// FileSize returns the size recorded at Open (seed) or the last SetSize
// call (leecher).
func (s *Store) FileSize() int64 {
	return s.fileSize
}

// ReadPiece reads min(pieceSize, fileSize-index*pieceSize) bytes starting at
// offset index*pieceSize.
func (s *Store) ReadPiece(index int) ([]byte, error) {
	if s.file == nil {
		return nil, errors.New("filestore: readPiece: file not open")
	}
	offset := int64(index) * s.pieceSize
	if index < 0 || offset >= s.fileSize {
		return nil, errors.Errorf("filestore: readPiece: index %d out of range", index)
	}
	length := s.pieceSize
	if offset+length > s.fileSize {
		length = s.fileSize - offset
	}
	buf := make([]byte, length)
	if _, err := s.file.ReadAt(buf, offset); err != nil {
		return nil, errors.Wrapf(err, "filestore: readPiece %d", index)
	}
	return buf, nil
}

// WritePiece writes data at offset index*pieceSize. The caller is trusted
// for length correctness.
func (s *Store) WritePiece(index int, data []byte) error {
	if s.file == nil {
		return errors.New("filestore: writePiece: file not open")
	}
	offset := int64(index) * s.pieceSize
	if _, err := s.file.WriteAt(data, offset); err != nil {
		return errors.Wrapf(err, "filestore: writePiece %d", index)
	}
	return nil
}

// ComputeHash streams the entire file through SHA-1 and returns the
// lowercase hex digest.
func (s *Store) ComputeHash() (string, error) {
	if s.file == nil {
		return "", errors.New("filestore: computeHash: file not open")
	}
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return "", errors.Wrap(err, "filestore: seek to start")
	}
	h := sha1.New()
	if _, err := io.Copy(h, s.file); err != nil {
		return "", errors.Wrap(err, "filestore: hash file")
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Close releases the file handle. Idempotent.
func (s *Store) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
