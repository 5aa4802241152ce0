package device

import "fmt"

// Reason classifies why a device could not be acquired or operated. The four
// values map to the distinguishable failure sub-cases a caller needs to
// produce a human-facing message.
type Reason int

const (
	// ReasonDenied means the user or OS refused permission to the device.
	ReasonDenied Reason = iota

	// ReasonNotFound means no matching device exists (including a missing
	// alternate camera facing on Switch).
	ReasonNotFound

	// ReasonBusy means the device exists but is exclusively held elsewhere.
	ReasonBusy

	// ReasonUnsatisfiable means the device cannot honour the requested
	// constraints (sample rate, resolution).
	ReasonUnsatisfiable
)

// String returns the human-readable name of the reason.
func (r Reason) String() string {
	switch r {
	case ReasonDenied:
		return "DENIED"
	case ReasonNotFound:
		return "NOT_FOUND"
	case ReasonBusy:
		return "BUSY"
	case ReasonUnsatisfiable:
		return "UNSATISFIABLE"
	default:
		return "UNKNOWN"
	}
}

// Error is the typed device failure returned by [Platform] and [VideoSource]
// operations. Callers inspect Reason via errors.As to distinguish the
// sub-cases; these failures are not retried automatically.
type Error struct {
	// Reason is the failure sub-case.
	Reason Reason

	// Op names the failing operation (e.g. "open capture", "switch video").
	Op string

	// Err is the underlying backend error, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("device: %s: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("device: %s: %s", e.Op, e.Reason)
}

// Unwrap returns the underlying backend error.
func (e *Error) Unwrap() error { return e.Err }
