package vm

import (
	"errors"
	"fmt"
)

// Fatal conditions. The machine panics with a *FatalError wrapping one of
// these; they indicate a compiler defect or a misuse of the call surface,
// never bad user input.
var (
	ErrStackOverflow     = errors.New("stack overflow")
	ErrStackUnderflow    = errors.New("stack underflow")
	ErrReturnArity       = errors.New("stack depth does not match output arity")
	ErrCalleeIndex       = errors.New("callee index out of range")
	ErrUnknownOpcode     = errors.New("unknown opcode")
	ErrUnknownOperator   = errors.New("unknown operator tag")
	ErrSlotIndex         = errors.New("variable slot out of range")
	ErrTruncatedBytecode = errors.New("truncated bytecode")
	ErrArity             = errors.New("argument count does not match declared arity")
)

// ErrStackCapacity is returned by NewMachine when a unit needs a deeper
// stack than the machine provides.
var ErrStackCapacity = errors.New("unit needs more stack than the machine capacity")

// FatalError is the panic value of the machine.
type FatalError struct {
	Err    error
	Unit   string
	IP     int
	Detail string
}

func (e *FatalError) Error() string {
	msg := fmt.Sprintf("vm: %v in %s at %04d", e.Err, e.Unit, e.IP)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *FatalError) Unwrap() error { return e.Err }

func fatal(err error, unit *Unit, ip int, format string, args ...interface{}) {
	name := "?"
	if unit != nil {
		name = unit.Name
	}
	panic(&FatalError{Err: err, Unit: name, IP: ip, Detail: fmt.Sprintf(format, args...)})
}

// Recover turns a fatal machine panic into an error stored in *errp. Other
// panics are re-raised. Use it deferred at API boundaries:
//
//	defer vm.Recover(&err)
func Recover(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	if fe, ok := r.(*FatalError); ok {
		*errp = fe
		return
	}
	panic(r)
}

// Execute runs f and returns a fatal machine condition raised inside it as
// an error.
func Execute(f func()) (err error) {
	defer Recover(&err)
	f()
	return nil
}

// IsFatal reports whether err is a recovered fatal machine condition.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
