package vm

import (
	"fmt"
	"io"

	"github.com/funvibe/numfn/internal/ast"
	"github.com/funvibe/numfn/internal/config"
	"github.com/funvibe/numfn/internal/ops"
)

// Machine executes one root unit and its callees. It owns an operand stack
// of fixed capacity and one slot array per unit; the units themselves are
// shared read-only. A Machine is not reentrant: give every goroutine its own.
type Machine struct {
	root  *Unit
	stack []float64
	sp    int
	// base is the stack position where the running frame starts.
	base  int
	slots map[*Unit][]float64
	trace io.Writer
}

// Option configures a Machine.
type Option func(*Machine)

// WithStackCapacity sets the operand stack size.
func WithStackCapacity(n int) Option {
	return func(m *Machine) { m.stack = make([]float64, n) }
}

// WithTrace logs every executed instruction to w.
func WithTrace(w io.Writer) Option {
	return func(m *Machine) { m.trace = w }
}

// NewMachine prepares a machine for u. It fails when the statically computed
// stack requirement of u exceeds the capacity.
func NewMachine(u *Unit, opts ...Option) (*Machine, error) {
	m := &Machine{root: u, slots: make(map[*Unit][]float64)}
	for _, opt := range opts {
		opt(m)
	}
	if m.stack == nil {
		m.stack = make([]float64, config.DefaultStackCapacity)
	}
	if u.MaxStack > len(m.stack) {
		return nil, fmt.Errorf("%w: %s needs %d, capacity is %d", ErrStackCapacity, u.Name, u.MaxStack, len(m.stack))
	}
	for _, unit := range u.Closure() {
		m.slots[unit] = make([]float64, unit.NumSlots)
	}
	return m, nil
}

// Unit returns the root unit.
func (m *Machine) Unit() *Unit { return m.root }

// Capacity returns the operand stack size.
func (m *Machine) Capacity() int { return len(m.stack) }

// Call runs the root unit with len(in) == NumIn inputs and writes its
// NumOut results to out.
func (m *Machine) Call(in, out []float64) {
	u := m.root
	if len(in) != u.NumIn || len(out) != u.NumOut {
		fatal(ErrArity, u, 0, "called with %d inputs and %d outputs, declared %d and %d",
			len(in), len(out), u.NumIn, u.NumOut)
	}
	m.enter(u, in)
	copy(out, m.stack[:u.NumOut])
}

// Call0 runs a unit without inputs and returns its single result.
func (m *Machine) Call0() float64 {
	m.checkScalar(0)
	m.enter(m.root, nil)
	return m.stack[0]
}

// Call1 runs a one-input unit and returns its single result.
func (m *Machine) Call1(a float64) float64 {
	m.checkScalar(1)
	m.enter(m.root, []float64{a})
	return m.stack[0]
}

// Call2 runs a two-input unit and returns its single result.
func (m *Machine) Call2(a, b float64) float64 {
	m.checkScalar(2)
	m.enter(m.root, []float64{a, b})
	return m.stack[0]
}

// Call3 runs a three-input unit and returns its single result.
func (m *Machine) Call3(a, b, c float64) float64 {
	m.checkScalar(3)
	m.enter(m.root, []float64{a, b, c})
	return m.stack[0]
}

func (m *Machine) checkScalar(nIn int) {
	u := m.root
	if u.NumIn != nIn || u.NumOut != 1 {
		fatal(ErrArity, u, 0, "called with %d inputs and 1 output, declared %d and %d", nIn, u.NumIn, u.NumOut)
	}
}

// enter seeds the root frame and runs it.
func (m *Machine) enter(u *Unit, in []float64) {
	slots := m.slotsFor(u)
	copy(slots, in)
	clear(slots[len(in):])
	m.sp = 0
	m.base = 0
	m.run(u)
}

func (m *Machine) slotsFor(u *Unit) []float64 {
	s, ok := m.slots[u]
	if !ok {
		s = make([]float64, u.NumSlots)
		m.slots[u] = s
	}
	return s
}

// call moves the callee's inputs from the stack top into its slots and runs
// it on the same stack. Its results land where the inputs started.
func (m *Machine) call(caller, callee *Unit, ip int) {
	n := callee.NumIn
	if m.sp-m.base < n {
		fatal(ErrStackUnderflow, caller, ip, "call to %s needs %d arguments, frame holds %d", callee.Name, n, m.sp-m.base)
	}
	slots := m.slotsFor(callee)
	if len(slots) < n {
		fatal(ErrSlotIndex, callee, 0, "%d inputs but %d slots", n, len(slots))
	}
	copy(slots, m.stack[m.sp-n:m.sp])
	clear(slots[n:])
	m.sp -= n

	saved := m.base
	m.base = m.sp
	m.run(callee)
	m.base = saved
}

// run is the decode loop of one frame.
func (m *Machine) run(u *Unit) {
	code := u.Code
	slots := m.slots[u]
	ip := 0

	for {
		if ip >= len(code) {
			fatal(ErrTruncatedBytecode, u, ip, "ran past the end of the stream")
		}
		at := ip
		op := Opcode(code[ip])
		ip++
		if m.trace != nil {
			fmt.Fprintf(m.trace, "%s: IP = %04d, SP = %d, OP = %s\n", u.Name, at, m.sp, op)
		}

		switch op {
		case OP_PUSH_CONSTANT:
			v, ok := readFloat(code, ip)
			if !ok {
				fatal(ErrTruncatedBytecode, u, at, "PUSH_CONSTANT operand")
			}
			ip += floatWidth
			m.push(u, at, v)

		case OP_PUSH_VAR:
			i := m.operand(u, code, ip, at)
			ip += intWidth
			if i < 1 || i > len(slots) {
				fatal(ErrSlotIndex, u, at, "PUSH_VAR %d with %d slots", i, len(slots))
			}
			m.push(u, at, slots[i-1])

		case OP_JMP_IF_FALSE:
			target := m.operand(u, code, ip, at)
			ip += intWidth
			if !ops.Truth(m.pop(u, at)) {
				ip = m.jumpTarget(u, target, at)
			}

		case OP_JMP:
			target := m.operand(u, code, ip, at)
			ip = m.jumpTarget(u, target, at)

		case OP_UNARY:
			tag := m.operand(u, code, ip, at)
			ip += intWidth
			v, ok := ops.Eval1(ast.Op(tag), m.pop(u, at))
			if !ok {
				fatal(ErrUnknownOperator, u, at, "unary tag %d", tag)
			}
			m.push(u, at, v)

		case OP_BINARY:
			tag := m.operand(u, code, ip, at)
			ip += intWidth
			shallow := m.pop(u, at)
			deep := m.pop(u, at)
			v, ok := ops.Eval2(ast.Op(tag), deep, shallow)
			if !ok {
				fatal(ErrUnknownOperator, u, at, "binary tag %d", tag)
			}
			m.push(u, at, v)

		case OP_ASSIGN:
			i := m.operand(u, code, ip, at)
			ip += intWidth
			if i < 1 || i > len(slots) {
				fatal(ErrSlotIndex, u, at, "ASSIGN %d with %d slots", i, len(slots))
			}
			slots[i-1] = m.pop(u, at)

		case OP_RETURN:
			if depth := m.sp - m.base; depth != u.NumOut {
				fatal(ErrReturnArity, u, at, "depth %d, declared %d outputs", depth, u.NumOut)
			}
			return

		case OP_CALL:
			idx := m.operand(u, code, ip, at)
			ip += intWidth
			if idx < 0 || idx >= len(u.Callees) {
				fatal(ErrCalleeIndex, u, at, "index %d, %d callees", idx, len(u.Callees))
			}
			m.call(u, u.Callees[idx], at)

		default:
			fatal(ErrUnknownOpcode, u, at, "opcode %d", byte(op))
		}
	}
}

func (m *Machine) operand(u *Unit, code []byte, ip, at int) int {
	v, ok := readInt(code, ip)
	if !ok {
		fatal(ErrTruncatedBytecode, u, at, "%s operand", Opcode(code[at]))
	}
	return v
}

func (m *Machine) jumpTarget(u *Unit, target, at int) int {
	if target < 0 || target > len(u.Code) {
		fatal(ErrTruncatedBytecode, u, at, "jump target %d outside %d bytes", target, len(u.Code))
	}
	return target
}

// Stack operations

func (m *Machine) push(u *Unit, at int, v float64) {
	if m.sp >= len(m.stack) {
		fatal(ErrStackOverflow, u, at, "capacity %d", len(m.stack))
	}
	m.stack[m.sp] = v
	m.sp++
}

func (m *Machine) pop(u *Unit, at int) float64 {
	if m.sp <= m.base {
		fatal(ErrStackUnderflow, u, at, "frame is empty")
	}
	m.sp--
	return m.stack[m.sp]
}
