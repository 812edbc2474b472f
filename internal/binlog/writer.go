package binlog

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// Writer encodes records to a container stream in the order received.
//
// Compression runs at a fixed level with a zeroed gzip header, so the encoded
// output is a pure function of the record payload bytes. Combined with the
// raw-payload passthrough for unmodified records, a decode/encode pass over a
// file in which nothing was rewritten reproduces the file exactly.
type Writer struct {
	gz  *gzip.Writer
	buf []byte
}

// NewWriter writes the container header and prepares the encode stream.
func NewWriter(w io.Writer) (*Writer, error) {
	hdr := append(magic[:], Version)
	if _, err := w.Write(hdr); err != nil {
		return nil, fmt.Errorf("binlog: write header: %w", err)
	}

	gz, err := gzip.NewWriterLevel(w, gzip.BestSpeed)
	if err != nil {
		return nil, fmt.Errorf("binlog: open compressed stream: %w", err)
	}

	return &Writer{gz: gz}, nil
}

// Write appends one record frame. Records still carrying their decoded
// payload are passed through verbatim; anything else is encoded fresh.
func (w *Writer) Write(rec *Record) error {
	payload := rec.raw
	if payload == nil {
		var err error
		payload, err = encodeRecord(rec, w.buf[:0])
		if err != nil {
			return err
		}
		w.buf = payload // reuse the scratch buffer across records
	}

	var size [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(size[:], uint64(len(payload)))
	if _, err := w.gz.Write(size[:n]); err != nil {
		return fmt.Errorf("binlog: write frame length: %w", err)
	}
	if _, err := w.gz.Write(payload); err != nil {
		return fmt.Errorf("binlog: write frame: %w", err)
	}
	return nil
}

// Close flushes and terminates the compressed stream. The underlying writer
// stays open; its lifetime belongs to the caller.
func (w *Writer) Close() error {
	if err := w.gz.Close(); err != nil {
		return fmt.Errorf("binlog: close compressed stream: %w", err)
	}
	return nil
}

// encodeRecord serializes a record payload into dst.
func encodeRecord(rec *Record, dst []byte) ([]byte, error) {
	dst = binary.AppendUvarint(dst, uint64(rec.Kind))

	switch rec.Kind {
	case KindMessage:
		dst = appendString(dst, rec.Text)

	case KindTask:
		dst = appendString(dst, rec.Name)
		dst = binary.AppendUvarint(dst, uint64(len(rec.Args)))
		for _, a := range rec.Args {
			dst = appendString(dst, a)
		}
		dst = appendString(dst, rec.Path)

	case KindEmbeddedFile:
		dst = appendString(dst, rec.Name)
		dst = binary.AppendUvarint(dst, uint64(len(rec.Data)))
		dst = append(dst, rec.Data...)

	default:
		return nil, fmt.Errorf("binlog: unknown record kind %d", rec.Kind)
	}

	return dst, nil
}

func appendString(dst []byte, s string) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(s)))
	return append(dst, s...)
}
