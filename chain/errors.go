package chain

import (
	"errors"
	"fmt"
)

// Error is a contract failure identified by its numeric code. Two errors with the same
// code match under errors.Is.
type Error struct {
	Code    uint32
	Message string
}

func NewError(code uint32, message string) (err *Error) {
	return &Error{Code: code, Message: message}
}

func (e *Error) Error() string {
	return fmt.Sprintf("err u%d: %s", e.Code, e.Message)
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Code extracts the contract error code wrapped in err
func Code(err error) (code uint32, ok bool) {
	var contractErr *Error
	if errors.As(err, &contractErr) {
		return contractErr.Code, true
	}
	return 0, false
}
