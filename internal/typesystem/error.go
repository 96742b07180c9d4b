package typesystem

import "fmt"

// InternalError reports a broken checker invariant. It is raised with panic
// and is never turned into a user diagnostic.
type InternalError struct {
	Msg string
}

func (e *InternalError) Error() string {
	return "internal error: " + e.Msg
}

// Internalf panics with an *InternalError.
func Internalf(format string, args ...any) {
	panic(&InternalError{Msg: fmt.Sprintf(format, args...)})
}

// AsInternalError extracts an *InternalError from a recovered panic value.
func AsInternalError(r any) (*InternalError, bool) {
	ie, ok := r.(*InternalError)
	return ie, ok
}
