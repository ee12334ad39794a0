package fault

import (
	"errors"
	"fmt"
)

type Code string

const (
	UnknownCode          Code = "unknown"
	NotFoundCode         Code = "not_found"
	BadInputCode         Code = "bad_input"
	PermissionDeniedCode Code = "permission_denied"

	// UnsupportedCode marks operations a query kind refuses, such as narrowing
	// the fields of an aggregate query.
	UnsupportedCode Code = "unsupported"
	// InvalidPaginationCode marks bad slice bounds and page numbers.
	InvalidPaginationCode Code = "invalid_pagination"
	// IllegalModifierCode marks modifiers the table engine cannot honor (FINAL).
	IllegalModifierCode Code = "illegal_modifier"
)

type FieldErrorsMetadata map[string][]string

// Fault is an error carrying a machine readable code. Values are immutable;
// the With* methods return modified copies.
type Fault struct {
	code     Code
	message  string
	metadata any
	original error
}

func New(code Code, message string) Fault {
	return Fault{
		code:    code,
		message: message,
	}
}

// Newf is New with fmt.Sprintf formatting of the message.
func Newf(code Code, format string, args ...any) Fault {
	return New(code, fmt.Sprintf(format, args...))
}

func (f Fault) WithMetadata(metadata any) Fault {
	e := f
	e.metadata = metadata
	return e
}

func (f Fault) WithOriginal(original error) Fault {
	e := f
	e.original = original
	return e
}

func (f Fault) Code() Code {
	return f.code
}

func (f Fault) Message() string {
	return f.message
}

func (f Fault) Metadata() any {
	return f.metadata
}

func (f Fault) Original() error {
	return f.original
}

func (f Fault) Unwrap() error {
	return f.original
}

func (f Fault) Error() string {
	if f.original != nil {
		return fmt.Sprintf("%s: %v", f.message, f.original)
	}
	return f.message
}

// HasCode reports whether err, or any error it wraps, is a Fault with the given code.
func HasCode(err error, code Code) bool {
	var f Fault
	if errors.As(err, &f) {
		return f.code == code
	}
	return false
}
