package tracking

import (
	"errors"
	"fmt"

	"github.com/Tiliavir/boring-time-tracker/internal/model"
)

var (
	ErrAlreadyRunning  = errors.New("time entry already running")
	ErrAlreadyStopped  = errors.New("time entry already stopped")
	ErrEntryNotFound   = errors.New("time entry not found")
	ErrNoActiveEntry   = errors.New("no active time entry found")
	ErrNotOwner        = errors.New("time entry belongs to another user")
	ErrProjectRequired = errors.New("project is required")
	ErrInvalidInterval = errors.New("end time precedes start time")
)

// ConflictError reports a rejected lifecycle transition together with the
// record that caused it: the running record for ErrAlreadyRunning, the
// stopped record for ErrAlreadyStopped.
type ConflictError struct {
	Err    error
	Record model.TimeRecord
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%v (project %q, id %s)", e.Err, e.Record.ProjectID, e.Record.ID)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// UserError reports whether err is caused by the request rather than by
// the store.
func UserError(err error) bool {
	for _, target := range []error{
		ErrAlreadyRunning, ErrAlreadyStopped, ErrEntryNotFound, ErrNoActiveEntry,
		ErrNotOwner, ErrProjectRequired, ErrInvalidInterval, model.ErrInvalidDate,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
