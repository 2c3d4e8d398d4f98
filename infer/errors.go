package infer

import (
	"errors"
	"fmt"
)

// Code classifies provider failures. Every Code has a fixed human-readable
// message, see Code.String.
type Code int

const (
	CodeOK Code = iota
	CodeInvalidEngine
	CodeInvalidParameter
	CodeModelLoad
	CodeImageLoad
	CodeNoInput
	CodeInference
	CodeDecode
	CodeUnsupported
	CodeReleased
)

var codeMessages = [...]string{
	CodeOK:               "success",
	CodeInvalidEngine:    "invalid or unsupported compute engine",
	CodeInvalidParameter: "invalid parameter",
	CodeModelLoad:        "failed to load model",
	CodeImageLoad:        "failed to load image",
	CodeNoInput:          "no input loaded",
	CodeInference:        "inference failed",
	CodeDecode:           "failed to decode model output",
	CodeUnsupported:      "operation not supported by this model",
	CodeReleased:         "session already released",
}

func (c Code) String() string {
	if c < 0 || int(c) >= len(codeMessages) {
		return fmt.Sprintf("unknown error %d", int(c))
	}
	return codeMessages[c]
}

// Sentinels for errors.Is; they compare by Code only.
var (
	ErrInvalidEngine    = &Error{Code: CodeInvalidEngine}
	ErrInvalidParameter = &Error{Code: CodeInvalidParameter}
	ErrModelLoad        = &Error{Code: CodeModelLoad}
	ErrImageLoad        = &Error{Code: CodeImageLoad}
	ErrNoInput          = &Error{Code: CodeNoInput}
	ErrInference        = &Error{Code: CodeInference}
	ErrDecode           = &Error{Code: CodeDecode}
	ErrUnsupported      = &Error{Code: CodeUnsupported}
	ErrReleased         = &Error{Code: CodeReleased}
)

type Error struct {
	Code Code
	Op   string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Code.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func newError(code Code, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

// CodeOf extracts the Code carried by err, CodeOK for nil and
// CodeInference for errors that did not come from this package.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInference
}

// Strerror renders err for the user.
func Strerror(err error) string {
	if err == nil {
		return CodeOK.String()
	}
	return err.Error()
}
