package sync

import "fmt"

// ErrorKind classifies reconciliation failures. None of them is fatal to a channel.
type ErrorKind string

const (
	// ErrorKindSourceUnavailable means the pull failed or timed out; the tick fails and the
	// retained snapshot is kept
	ErrorKindSourceUnavailable ErrorKind = "SourceUnavailable"

	// ErrorKindSinkOperationFailed means one operation could not be applied; the remaining
	// operations of the pass still run
	ErrorKindSinkOperationFailed ErrorKind = "SinkOperationFailed"

	// ErrorKindMalformedRecord means a source descriptor could not be mapped; that instance is
	// skipped for the pass
	ErrorKindMalformedRecord ErrorKind = "MalformedRecord"
)

// Error represents a structured reconciliation error
type Error struct {
	Err     error
	Message string
	Kind    ErrorKind
	// InstanceID is set when the error concerns a single instance
	InstanceID string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func sourceUnavailable(source string, err error) *Error {
	return &Error{
		Err:     err,
		Message: fmt.Sprintf("source %s unavailable: %v", source, err),
		Kind:    ErrorKindSourceUnavailable,
	}
}

func sinkOperationFailed(op Operation, err error) *Error {
	return &Error{
		Err:        err,
		Message:    fmt.Sprintf("failed to apply %s: %v", op, err),
		Kind:       ErrorKindSinkOperationFailed,
		InstanceID: op.Record.ID,
	}
}

func malformedRecord(id string, err error) *Error {
	return &Error{
		Err:        err,
		Message:    fmt.Sprintf("malformed record %q: %v", id, err),
		Kind:       ErrorKindMalformedRecord,
		InstanceID: id,
	}
}
