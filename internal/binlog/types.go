// Package binlog implements the sequential build-log container format: a
// magic header followed by a gzip stream of length-prefixed record frames.
// The codec is deterministic (identical record payloads always re-encode to
// identical bytes) because the redaction pipeline promises that
// a run producing zero matches emits a byte-for-byte copy of its input.
package binlog

import (
	"errors"
	"fmt"
)

// Kind identifies the record variant inside a frame.
type Kind uint8

const (
	// KindMessage is a free-text build event.
	KindMessage Kind = 1
	// KindTask is a tool invocation: task name, argument list, source path.
	KindTask Kind = 2
	// KindEmbeddedFile is an archived file carried inside the container:
	// entry name plus opaque content bytes.
	KindEmbeddedFile Kind = 3
)

// String returns the record kind name used in logs and reports.
func (k Kind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindTask:
		return "task"
	case KindEmbeddedFile:
		return "embedded-file"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

var (
	// ErrNotContainer is returned when the input does not start with the
	// container magic.
	ErrNotContainer = errors.New("binlog: input is not a build-log container")
	// ErrUnsupportedVersion is returned for container versions this codec
	// does not understand.
	ErrUnsupportedVersion = errors.New("binlog: unsupported container version")
	// ErrFrameTooLarge is returned when a frame length exceeds the cap;
	// it almost always means the stream is corrupt.
	ErrFrameTooLarge = errors.New("binlog: frame exceeds size limit")
)

// Record is one decoded unit of the container. Which fields are populated
// depends on Kind; the zero value of the rest is meaningful ("absent").
type Record struct {
	Kind Kind

	// Text is the message body (KindMessage).
	Text string
	// Name is the task name (KindTask) or archive entry name (KindEmbeddedFile).
	Name string
	// Args is the command-line argument list (KindTask).
	Args []string
	// Path is the source or project file path (KindTask).
	Path string
	// Data is the archive entry content (KindEmbeddedFile). Opaque: the
	// transform never inspects it.
	Data []byte

	// raw holds the payload bytes this record was decoded from. The writer
	// re-emits them verbatim for records nothing has touched, which is what
	// keeps an untouched file byte-identical through a decode/encode pass.
	raw []byte
}

// Raw returns the original encoded payload, or nil if the record has been
// modified (or was never decoded from a stream).
func (r *Record) Raw() []byte { return r.raw }

// Invalidate discards the retained encoding. Must be called after any field
// mutation, otherwise the writer would emit stale bytes.
func (r *Record) Invalidate() { r.raw = nil }
