package media

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState is returned when an operation is not allowed in the
	// current batch state.
	ErrInvalidState = errors.New("media: operation not allowed in the current state")

	// ErrRecordNotFound is returned by record stores when a key is unknown.
	ErrRecordNotFound = errors.New("media: record not found")
)

// MessageEmptySource is surfaced to the user when a source file has no bytes.
const MessageEmptySource = "Source File cannot be empty!"

// InvalidInputError reports a source file that cannot be encoded.
type InvalidInputError struct {
	File   string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return e.Reason
}

// RemoteGatewayError wraps any failure talking to the encoding service or to
// blob storage.
type RemoteGatewayError struct {
	Op  string
	Err error
}

func (e *RemoteGatewayError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RemoteGatewayError) Unwrap() error { return e.Err }

// gatewayError wraps err as a RemoteGatewayError unless it already carries a
// more specific media error.
func gatewayError(op string, err error) error {
	if err == nil {
		return nil
	}
	var ge *RemoteGatewayError
	var ie *InvalidInputError
	if errors.As(err, &ge) || errors.As(err, &ie) {
		return err
	}
	return &RemoteGatewayError{Op: op, Err: err}
}

// ConsistencyWarning reports a published output whose record no longer
// exists in the store. It is logged and skipped.
type ConsistencyWarning struct {
	Key RecordKey
}

func (e *ConsistencyWarning) Error() string {
	return fmt.Sprintf("can't fetch the media record with collection=%q and row=%q", e.Key.Collection, e.Key.Row)
}

// ConfigurationError reports invalid batch options.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
