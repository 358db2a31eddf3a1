package event

import (
	"errors"
	"fmt"
)

// MalformedEventError reports a raw record that cannot be turned into an
// Event: an unknown op, or a missing/undecodable payload.
//
// The error is fatal for that single event only. Callers skip the event and
// surface the error in the run's diagnostics rather than aborting the run.
type MalformedEventError struct {
	Kind     Kind
	RecordID string
	Seq      int64
	Message  string
}

// Error implements the error interface.
func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("MALFORMED_EVENT: %s (kind=%s, id=%s, seq=%d)", e.Message, e.Kind, e.RecordID, e.Seq)
}

// IsMalformedEvent reports whether err is a MalformedEventError.
// Uses errors.As to handle wrapped errors.
func IsMalformedEvent(err error) bool {
	var me *MalformedEventError
	return errors.As(err, &me)
}

func newMalformedEvent(kind Kind, id string, seq int64, format string, args ...any) *MalformedEventError {
	return &MalformedEventError{
		Kind:     kind,
		RecordID: id,
		Seq:      seq,
		Message:  fmt.Sprintf(format, args...),
	}
}
