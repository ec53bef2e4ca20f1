package sns

import (
	"errors"
	"fmt"
)

const errFmt = "%s: %s"

// Common errors for SNS interactions.
var (
	ErrDeliveryFailure = errors.New("delivery failure")
)

// Error wraps common SNS errors.
type Error struct {
	err error
	msg string
}

func (e Error) Error() string {
	return e.msg
}

// IsDeliveryFailure indicates if err is ErrDeliveryFailure.
func IsDeliveryFailure(err error) bool {
	return unwrapError(err) == ErrDeliveryFailure
}

func unwrapError(err error) error {
	switch e := err.(type) {
	case *Error:
		return e.err
	}

	return err
}

func wrapError(err error, format string, args ...interface{}) error {
	return &Error{
		err: err,
		msg: fmt.Sprintf(
			errFmt,
			err,
			fmt.Sprintf(format, args...),
		),
	}
}
