package errs

import (
	"errors"
	"strconv"
	"strings"
)

// CodeError is the failure currency of the gateway. Every recoverable
// failure crossing a service boundary is (or wraps) one of these, so the
// connection layer can turn it into an ack/error event without inspecting
// error strings.
type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func NewCodeError(code int, msg string) *CodeError {
	return &CodeError{Code: code, Msg: msg}
}

func (e *CodeError) clone() *CodeError {
	return &CodeError{Code: e.Code, Msg: e.Msg, Detail: e.Detail}
}

// WithDetail returns a copy carrying extra human-readable context.
// The receiver is left untouched so the sentinel values stay clean.
func (e *CodeError) WithDetail(detail string) *CodeError {
	out := e.clone()
	if out.Detail == "" {
		out.Detail = detail
	} else {
		out.Detail += ", " + detail
	}
	return out
}

// WithMsg returns a copy with the user-facing message replaced. Code is
// preserved so Is matching keeps working.
func (e *CodeError) WithMsg(msg string) *CodeError {
	out := e.clone()
	out.Msg = msg
	return out
}

func (e *CodeError) Error() string {
	v := make([]string, 0, 3)
	v = append(v, strconv.Itoa(e.Code), e.Msg)
	if e.Detail != "" {
		v = append(v, e.Detail)
	}
	return strings.Join(v, " ")
}

// Is matches on code, so a detailed copy still equals its sentinel.
func (e *CodeError) Is(target error) bool {
	var ce *CodeError
	if !errors.As(target, &ce) {
		return false
	}
	return ce.Code == e.Code
}

// Message returns the text shown to the client: the detail when present,
// the generic message otherwise.
func (e *CodeError) Message() string {
	if e.Detail != "" {
		return e.Detail
	}
	return e.Msg
}

// Code extracts the CodeError from err, if there is one.
func Code(err error) (*CodeError, bool) {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
