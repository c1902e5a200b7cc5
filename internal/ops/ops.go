// Package ops is the operator table shared by every backend: the emitter
// takes its C spelling from here, the bytecode compiler its operand tag and
// disassembly name, and the VM and the tree-walker its evaluation function.
package ops

import (
	"math"

	"github.com/funvibe/numfn/internal/ast"
)

// Form says how an operator is spelled in C.
type Form int

const (
	Call  Form = iota // name(a) or name(a, b)
	Infix             // (a)op(b)
	Prefix            // -(a)
)

// Info describes one expression operator.
type Info struct {
	Op ast.Op
	// Name is what the disassembler prints.
	Name string
	// C is the function name or infix token in emitted source.
	C    string
	Form Form

	Unary  func(float64) float64
	Binary func(a, b float64) float64
}

var table [ast.NumOps]*Info

func def(i Info) {
	info := i
	table[i.Op] = &info
}

func boolean(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func init() {
	def(Info{Op: ast.OpCos, Name: "cos", C: "cos", Form: Call, Unary: math.Cos})
	def(Info{Op: ast.OpSin, Name: "sin", C: "sin", Form: Call, Unary: math.Sin})
	def(Info{Op: ast.OpExp, Name: "exp", C: "exp", Form: Call, Unary: math.Exp})
	def(Info{Op: ast.OpAbs, Name: "abs", C: "fabs", Form: Call, Unary: math.Abs})
	def(Info{Op: ast.OpLog, Name: "log", C: "log", Form: Call, Unary: math.Log})
	def(Info{Op: ast.OpLog10, Name: "log10", C: "log10", Form: Call, Unary: math.Log10})
	def(Info{Op: ast.OpSqrt, Name: "sqrt", C: "sqrt", Form: Call, Unary: math.Sqrt})
	def(Info{Op: ast.OpFloor, Name: "floor", C: "floor", Form: Call, Unary: math.Floor})
	def(Info{Op: ast.OpCeil, Name: "ceil", C: "ceil", Form: Call, Unary: math.Ceil})
	def(Info{Op: ast.OpNeg, Name: "neg", C: "-", Form: Prefix, Unary: func(v float64) float64 { return -v }})

	def(Info{Op: ast.OpAdd, Name: "+", C: "+", Form: Infix, Binary: func(a, b float64) float64 { return a + b }})
	def(Info{Op: ast.OpSub, Name: "-", C: "-", Form: Infix, Binary: func(a, b float64) float64 { return a - b }})
	def(Info{Op: ast.OpMul, Name: "*", C: "*", Form: Infix, Binary: func(a, b float64) float64 { return a * b }})
	def(Info{Op: ast.OpDiv, Name: "/", C: "/", Form: Infix, Binary: func(a, b float64) float64 { return a / b }})
	def(Info{Op: ast.OpLT, Name: "<", C: "<", Form: Infix, Binary: func(a, b float64) float64 { return boolean(a < b) }})
	def(Info{Op: ast.OpGT, Name: ">", C: ">", Form: Infix, Binary: func(a, b float64) float64 { return boolean(a > b) }})
	def(Info{Op: ast.OpGE, Name: "GE", C: " >= ", Form: Infix, Binary: func(a, b float64) float64 { return boolean(a >= b) }})
	def(Info{Op: ast.OpLE, Name: "LE", C: " <= ", Form: Infix, Binary: func(a, b float64) float64 { return boolean(a <= b) }})
	def(Info{Op: ast.OpNE, Name: "NE", C: " != ", Form: Infix, Binary: func(a, b float64) float64 { return boolean(a != b) }})
	def(Info{Op: ast.OpEQ, Name: "EQ", C: " == ", Form: Infix, Binary: func(a, b float64) float64 { return boolean(a == b) }})
	def(Info{Op: ast.OpAnd, Name: "AND", C: " && ", Form: Infix, Binary: func(a, b float64) float64 { return boolean(a != 0 && b != 0) }})
	def(Info{Op: ast.OpOr, Name: "OR", C: " || ", Form: Infix, Binary: func(a, b float64) float64 { return boolean(a != 0 || b != 0) }})
	def(Info{Op: ast.OpPow, Name: "pow", C: "pow", Form: Call, Binary: math.Pow})
	def(Info{Op: ast.OpMin, Name: "min", C: MinName, Form: Call, Binary: Min})
	def(Info{Op: ast.OpMax, Name: "max", C: MaxName, Form: Call, Binary: Max})
}

// Lookup returns the table entry for op, or nil when op is not an
// expression operator.
func Lookup(op ast.Op) *Info {
	if op < 0 || int(op) >= len(table) {
		return nil
	}
	return table[op]
}

// Eval1 applies a unary operator. ok is false for an unknown tag.
func Eval1(op ast.Op, v float64) (float64, bool) {
	info := Lookup(op)
	if info == nil || info.Unary == nil {
		return 0, false
	}
	return info.Unary(v), true
}

// Eval2 applies a binary operator to the left operand a and the right
// operand b. ok is false for an unknown tag.
func Eval2(op ast.Op, a, b float64) (float64, bool) {
	info := Lookup(op)
	if info == nil || info.Binary == nil {
		return 0, false
	}
	return info.Binary(a, b), true
}

// Truth is the condition test used by conditionals and jumps.
func Truth(v float64) bool { return v != 0 }
