// Package diagnostics defines the coded errors reported while loading and
// compiling numeric functions.
package diagnostics

import (
	"errors"
	"fmt"
)

// Code identifies a class of diagnostic.
type Code string

// Compile-time codes.
const (
	ErrC001 Code = "C001" // assignment to a read-only variable
	ErrC002 Code = "C002" // sub-function output arity is not 1
	ErrC003 Code = "C003" // return value count does not match the return contract
	ErrC004 Code = "C004" // unknown sub-function
	ErrC005 Code = "C005" // recursive sub-function reference
	ErrC006 Code = "C006" // break outside of a loop
	ErrC007 Code = "C007" // call argument count does not match callee parameters
	ErrC008 Code = "C008" // unknown variable slot
	ErrC009 Code = "C009" // expression used where a statement is required
	ErrC010 Code = "C010" // malformed tree
)

// Document codes.
const (
	ErrD001 Code = "D001" // document syntax
	ErrD002 Code = "D002" // unknown operator or statement
	ErrD003 Code = "D003" // invalid definition
)

// Error is a diagnostic tied to a function and the construct that caused it.
type Error struct {
	Code      Code
	Function  string
	Construct string
	Message   string
	// Line is the document line, 0 when the tree was built in code.
	Line int
}

func (e *Error) Error() string {
	where := ""
	if e.Function != "" {
		where = " in function " + e.Function
	}
	if e.Construct != "" {
		where += " (" + e.Construct + ")"
	}
	if e.Line > 0 {
		where += fmt.Sprintf(" at line %d", e.Line)
	}
	return fmt.Sprintf("%s%s: %s", e.Code, where, e.Message)
}

// NewError builds a diagnostic with a formatted message.
func NewError(code Code, function, construct, format string, args ...interface{}) *Error {
	return &Error{
		Code:      code,
		Function:  function,
		Construct: construct,
		Message:   fmt.Sprintf(format, args...),
	}
}

// AtLine returns a copy of e positioned at line.
func (e *Error) AtLine(line int) *Error {
	c := *e
	c.Line = line
	return &c
}

// HasCode reports whether err, or anything it wraps, is a diagnostic with code.
func HasCode(err error, code Code) bool {
	var d *Error
	return errors.As(err, &d) && d.Code == code
}
