package sbi

import "errors"

// Error is a status the firmware core understands. The integer code is what
// ends up in a0 when a status crosses the SBI boundary.
type Error struct {
	code int
	msg  string
}

func (e *Error) Error() string {
	return e.msg
}

// Code returns the raw SBI status code.
func (e *Error) Code() int {
	return e.code
}

// SBI status codes, the negative ones below -1000 are firmware-internal.
const (
	Success            = 0
	CodeFailed         = -1
	CodeNotSupported   = -2
	CodeInvalidParam   = -3
	CodeDenied         = -4
	CodeInvalidAddress = -5
	CodeAlreadyAvail   = -6
	CodeNoDevice       = -1000
	CodeNoSys          = -1001
	CodeTimedOut       = -1002
	CodeIO             = -1003
	CodeIllegal        = -1004
	CodeNoSpace        = -1005
	CodeNoMemory       = -1006
	CodeUnknown        = -1007
	CodeNoEntry        = -1008
)

var (
	ErrFailed           = &Error{CodeFailed, "failed"}
	ErrNotSupported     = &Error{CodeNotSupported, "not supported"}
	ErrInvalidParam     = &Error{CodeInvalidParam, "invalid parameter"}
	ErrDenied           = &Error{CodeDenied, "denied"}
	ErrInvalidAddress   = &Error{CodeInvalidAddress, "invalid address"}
	ErrAlreadyAvailable = &Error{CodeAlreadyAvail, "already available"}
	ErrNoDevice         = &Error{CodeNoDevice, "no device"}
	ErrNoSys            = &Error{CodeNoSys, "not implemented"}
	ErrTimedOut         = &Error{CodeTimedOut, "timed out"}
	ErrIO               = &Error{CodeIO, "i/o error"}
	ErrIllegal          = &Error{CodeIllegal, "illegal"}
	ErrNoSpace          = &Error{CodeNoSpace, "no space"}
	ErrNoMemory         = &Error{CodeNoMemory, "out of memory"}
	ErrUnknown          = &Error{CodeUnknown, "unknown"}
	ErrNoEntry          = &Error{CodeNoEntry, "no entry"}
)

// Code maps err to an SBI status. A nil error is Success, errors that do not
// wrap an *Error are reported as CodeFailed.
func Code(err error) int {
	if err == nil {
		return Success
	}

	var e *Error
	if errors.As(err, &e) {
		return e.code
	}

	return CodeFailed
}
