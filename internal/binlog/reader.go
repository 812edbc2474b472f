package binlog

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

var magic = [4]byte{'B', 'L', 'S', 'C'}

const (
	// Version is the container format version this codec reads and writes.
	Version = 1

	// maxFrameSize caps a single record frame. Anything larger is treated
	// as corruption so a bad length prefix cannot trigger a huge allocation.
	maxFrameSize = 16 << 20
)

// Reader decodes records from a container stream. It is a lazy, strictly
// sequential, non-restartable source: Next yields records in file order and
// returns io.EOF at the end of the stream.
type Reader struct {
	gz *gzip.Reader
	br *bufio.Reader
}

// NewReader validates the container header and prepares the decode stream.
func NewReader(r io.Reader) (*Reader, error) {
	var hdr [5]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotContainer, err)
	}
	if [4]byte(hdr[:4]) != magic {
		return nil, ErrNotContainer
	}
	if hdr[4] != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, hdr[4])
	}

	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("binlog: open compressed stream: %w", err)
	}

	return &Reader{gz: gz, br: bufio.NewReader(gz)}, nil
}

// Next decodes the next record. The record retains its raw payload bytes for
// identity-preserving re-encoding. Returns io.EOF at a clean end of stream.
func (r *Reader) Next() (*Record, error) {
	size, err := binary.ReadUvarint(r.br)
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("binlog: read frame length: %w", err)
	}
	if size > maxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r.br, payload); err != nil {
		return nil, fmt.Errorf("binlog: read frame: %w", err)
	}

	rec, err := decodeRecord(payload)
	if err != nil {
		return nil, err
	}
	rec.raw = payload
	return rec, nil
}

// Close releases the decompressor. The underlying reader stays open; its
// lifetime belongs to the caller.
func (r *Reader) Close() error {
	return r.gz.Close()
}

// decodeRecord parses one frame payload.
func decodeRecord(payload []byte) (*Record, error) {
	c := cursor{buf: payload}

	kind, err := c.uvarint()
	if err != nil {
		return nil, fmt.Errorf("binlog: decode record kind: %w", err)
	}

	rec := &Record{Kind: Kind(kind)}
	switch rec.Kind {
	case KindMessage:
		rec.Text, err = c.str()

	case KindTask:
		if rec.Name, err = c.str(); err != nil {
			break
		}
		var n uint64
		if n, err = c.uvarint(); err != nil {
			break
		}
		if n > uint64(len(payload)) {
			err = fmt.Errorf("argument count %d exceeds frame size", n)
			break
		}
		rec.Args = make([]string, n)
		for i := range rec.Args {
			if rec.Args[i], err = c.str(); err != nil {
				break
			}
		}
		if err == nil {
			rec.Path, err = c.str()
		}

	case KindEmbeddedFile:
		if rec.Name, err = c.str(); err != nil {
			break
		}
		rec.Data, err = c.bytes()

	default:
		return nil, fmt.Errorf("binlog: unknown record kind %d", kind)
	}

	if err != nil {
		return nil, fmt.Errorf("binlog: decode %v record: %w", rec.Kind, err)
	}
	if c.off != len(payload) {
		return nil, fmt.Errorf("binlog: %d trailing bytes in %v record", len(payload)-c.off, rec.Kind)
	}
	return rec, nil
}

// cursor walks a frame payload.
type cursor struct {
	buf []byte
	off int
}

func (c *cursor) uvarint() (uint64, error) {
	v, n := binary.Uvarint(c.buf[c.off:])
	if n <= 0 {
		return 0, io.ErrUnexpectedEOF
	}
	c.off += n
	return v, nil
}

func (c *cursor) bytes() ([]byte, error) {
	n, err := c.uvarint()
	if err != nil {
		return nil, err
	}
	if n > uint64(len(c.buf)-c.off) {
		return nil, io.ErrUnexpectedEOF
	}
	b := c.buf[c.off : c.off+int(n)]
	c.off += int(n)
	return b, nil
}

func (c *cursor) str() (string, error) {
	b, err := c.bytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}
