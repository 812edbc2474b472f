package runner

// Code classifies the outcome of a run. The CLI maps codes 1:1 to process
// exit codes.
type Code int

const (
	// CodeSuccess: the destination file holds the redacted container.
	CodeSuccess Code = 0
	// CodeInputNotFound: the input path does not exist or is not readable.
	CodeInputNotFound Code = 1
	// CodeOutputAlreadyExists: the destination exists and overwrite is off.
	CodeOutputAlreadyExists Code = 2
	// CodeInvalidOptions: contradictory or incomplete options, detected
	// before any file I/O.
	CodeInvalidOptions Code = 3
	// CodeProcessingFailed: the container codec rejected a record; the pass
	// is not retried.
	CodeProcessingFailed Code = 4
	// CodeIOFailure: a filesystem-level fault during open, write, or
	// replace.
	CodeIOFailure Code = 5
)

// String returns the code's name for logs.
func (c Code) String() string {
	switch c {
	case CodeSuccess:
		return "success"
	case CodeInputNotFound:
		return "input-not-found"
	case CodeOutputAlreadyExists:
		return "output-already-exists"
	case CodeInvalidOptions:
		return "invalid-options"
	case CodeProcessingFailed:
		return "processing-failed"
	case CodeIOFailure:
		return "io-failure"
	default:
		return "unknown"
	}
}
