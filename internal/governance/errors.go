package governance

import (
	"errors"
	"fmt"

	"github.com/ppiankov/warden/internal/audit"
	"github.com/ppiankov/warden/internal/model"
)

// ErrForbidden is matched by every refusal of an L3 call, whether it was
// stopped before the gate or at the execution boundary.
var ErrForbidden = errors.New("forbidden")

// RefusedError is returned when a call did not run. Status is the audit
// action that was recorded for it.
type RefusedError struct {
	Level  model.RiskLevel
	Reason string
	Status string
	Err    error // underlying failure, if the refusal was not a decision
}

func (e *RefusedError) Error() string {
	switch e.Status {
	case audit.ActionBlocked:
		return fmt.Sprintf("forbidden (%s): %s", e.Level, e.Reason)
	case audit.ActionDenied:
		return fmt.Sprintf("denied by approver (%s): %s", e.Level, e.Reason)
	case audit.ActionTimedOut:
		return fmt.Sprintf("approval timed out (%s): %s", e.Level, e.Reason)
	case audit.ActionCancelled:
		return fmt.Sprintf("approval cancelled: %s", e.Reason)
	default:
		return fmt.Sprintf("refused (%s): %s", e.Level, e.Reason)
	}
}

// Is lets errors.Is(err, ErrForbidden) match blocked refusals.
func (e *RefusedError) Is(target error) bool {
	return target == ErrForbidden && e.Status == audit.ActionBlocked
}

func (e *RefusedError) Unwrap() error { return e.Err }
