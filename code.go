package busq

import (
	"context"
	"errors"
	"fmt"
)

// Code is the numeric outcome of a bus transaction. Zero means success.
type Code int

const (
	OK Code = iota
	CodeInvalidAddress
	CodeInvalidBuffer
	CodeExecutorBusy
	CodeBusBusy
	CodeNack
	CodeTimeout
	CodeIO
)

func (c Code) String() string {
	switch c {
	case OK:
		return "ok"
	case CodeInvalidAddress:
		return "invalid address"
	case CodeInvalidBuffer:
		return "invalid buffer"
	case CodeExecutorBusy:
		return "executor busy"
	case CodeBusBusy:
		return "bus busy"
	case CodeNack:
		return "nack"
	case CodeTimeout:
		return "timeout"
	case CodeIO:
		return "i/o error"
	default:
		return fmt.Sprintf("code %d", int(c))
	}
}

func (c Code) Error() string {
	return "bus transaction failed: " + c.String()
}

// CodeOf maps a transport error to a transaction code.
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return OK
	case errors.Is(err, ErrBusBusy):
		return CodeBusBusy
	case errors.Is(err, ErrNack):
		return CodeNack
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	default:
		return CodeIO
	}
}
