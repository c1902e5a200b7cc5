package ast

// Op tags an Operator node.
type Op int

const (
	OpInvalid Op = iota

	// Unary math intrinsics
	OpCos
	OpSin
	OpExp
	OpAbs
	OpLog
	OpLog10
	OpSqrt
	OpFloor
	OpCeil

	OpNeg // unary minus
	OpPi  // nullary: the constant pi

	// Binary arithmetic
	OpAdd
	OpSub
	OpMul
	OpDiv

	// Comparison
	OpLT
	OpGT
	OpGE
	OpLE
	OpNE
	OpEQ

	// Logic
	OpAnd
	OpOr

	// Two-argument intrinsics
	OpPow
	OpMin
	OpMax

	// Statements and structure
	OpAssign // target variable, value
	OpSeq    // statement, rest
	OpList   // item, rest
	OpIf     // condition, then, else-branch
	OpElseIf // condition, then, else-branch
	OpElse   // block
	OpFor    // variable, start, end, step, body
	OpCall   // FuncRef, argument list
	OpReturn // value or list
	OpBreak

	numOps
)

// NumOps is the number of defined tags, for table sizing.
const NumOps = int(numOps)

var opNames = [...]string{
	OpInvalid: "invalid",
	OpCos:     "cos",
	OpSin:     "sin",
	OpExp:     "exp",
	OpAbs:     "abs",
	OpLog:     "log",
	OpLog10:   "log10",
	OpSqrt:    "sqrt",
	OpFloor:   "floor",
	OpCeil:    "ceil",
	OpNeg:     "neg",
	OpPi:      "pi",
	OpAdd:     "+",
	OpSub:     "-",
	OpMul:     "*",
	OpDiv:     "/",
	OpLT:      "<",
	OpGT:      ">",
	OpGE:      ">=",
	OpLE:      "<=",
	OpNE:      "!=",
	OpEQ:      "==",
	OpAnd:     "&&",
	OpOr:      "||",
	OpPow:     "pow",
	OpMin:     "min",
	OpMax:     "max",
	OpAssign:  "=",
	OpSeq:     ";",
	OpList:    ",",
	OpIf:      "if",
	OpElseIf:  "elseif",
	OpElse:    "else",
	OpFor:     "for",
	OpCall:    "call",
	OpReturn:  "return",
	OpBreak:   "break",
}

func (op Op) String() string {
	if op < 0 || int(op) >= len(opNames) {
		return "op?"
	}
	return opNames[op]
}

// IsUnary reports whether op is a one-operand expression operator.
func (op Op) IsUnary() bool {
	return (op >= OpCos && op <= OpCeil) || op == OpNeg
}

// IsBinary reports whether op is a two-operand expression operator.
func (op Op) IsBinary() bool {
	return op >= OpAdd && op <= OpMax
}

// IsExpression reports whether op produces a value.
func (op Op) IsExpression() bool {
	return op.IsUnary() || op.IsBinary() || op == OpPi || op == OpCall
}

// Arity returns the fixed child count of op, or -1 when it varies.
func (op Op) Arity() int {
	switch {
	case op == OpPi, op == OpBreak:
		return 0
	case op.IsUnary(), op == OpElse, op == OpReturn:
		return 1
	case op.IsBinary(), op == OpAssign, op == OpSeq, op == OpList, op == OpCall:
		return 2
	case op == OpIf, op == OpElseIf:
		return 3
	case op == OpFor:
		return 5
	}
	return -1
}

// LookupOp finds an expression operator by its document name.
func LookupOp(name string) (Op, bool) {
	for op := OpCos; op <= OpMax; op++ {
		if opNames[op] == name {
			return op, true
		}
	}
	return OpInvalid, false
}
