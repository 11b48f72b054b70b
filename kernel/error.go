package kernel

// ErrorCode classifies the recoverable failures that the arch core can
// report to its callers. Fatal conditions never surface as codes; they go
// through kfmt.Panic instead.
type ErrorCode int

const (
	// ErrNone indicates the absence of an error.
	ErrNone ErrorCode = iota

	// ErrNullPointer is reported when a nil handle is passed to a call
	// that requires a valid one.
	ErrNullPointer

	// ErrNotInitialized is reported when using a primitive before its
	// Init or after its Destroy.
	ErrNotInitialized

	// ErrIncorrectValue is reported when a parameter combination is
	// invalid (e.g. FIFO and priority queuing requested together).
	ErrIncorrectValue

	// ErrWouldBlock is reported by non-blocking variants when the
	// blocking path would have been taken.
	ErrWouldBlock

	// ErrDestroyed is reported to waiters released by a Destroy call.
	ErrDestroyed

	// ErrNotBlocked is reported when a blocking call returned without
	// parking because the watched value changed first.
	ErrNotBlocked

	// ErrNoMemory is reported when a resource allocation fails.
	ErrNoMemory

	// ErrUnauthorized is reported when an operation is outside the range
	// the caller may request (e.g. raising an invalid interrupt line).
	ErrUnauthorized

	// ErrAlreadyExists is reported when registering a handler on a line
	// that already has one.
	ErrAlreadyExists

	// ErrNoSuchID is reported when removing a handler from a line that
	// has none.
	ErrNoSuchID
)

// Error describes a kernel error. All kernel errors must be defined as
// global variables that are pointers to the Error structure so that
// raising one never allocates.
type Error struct {
	// The module where the error occurred.
	Module string

	// The error message.
	Message string

	// The error classification code.
	Code ErrorCode
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}
