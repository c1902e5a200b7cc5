// Package vm implements the bytecode backend: a single-pass compiler from a
// function definition to a flat instruction stream, and the stack machine
// that executes it.
package vm

// Opcode represents a single VM instruction. It occupies one byte in the
// stream and is followed by its operand, if any.
type Opcode byte

const (
	OP_INVALID Opcode = iota

	OP_PUSH_CONSTANT // float64 operand: push value
	OP_PUSH_VAR      // int32 slot (1-based): push slot
	OP_JMP_IF_FALSE  // int32 absolute target: pop, jump if zero
	OP_JMP           // int32 absolute target
	OP_UNARY         // int32 operator tag: pop v, push f(v)
	OP_BINARY        // int32 operator tag: pop two, push deeper OP shallower
	OP_ASSIGN        // int32 slot (1-based): pop into slot
	OP_RETURN        // frame depth must equal the output arity
	OP_CALL          // int32 callee index
)

// Operand widths in bytes.
const (
	intWidth   = 4
	floatWidth = 8
)

// OpcodeNames maps opcodes to their disassembly mnemonics.
var OpcodeNames = map[Opcode]string{
	OP_PUSH_CONSTANT: "PUSH_CONSTANT",
	OP_PUSH_VAR:      "PUSH_VAR",
	OP_JMP_IF_FALSE:  "JMP_IF_FALSE",
	OP_JMP:           "JMP",
	OP_UNARY:         "OP_UNARY",
	OP_BINARY:        "OP_BINARY",
	OP_ASSIGN:        "ASSIGN",
	OP_RETURN:        "RETURN",
	OP_CALL:          "CALL",
}

func (op Opcode) String() string {
	if name, ok := OpcodeNames[op]; ok {
		return name
	}
	return "UNKNOWN"
}

// OperandWidth returns the number of operand bytes following op, or -1 for
// an unknown opcode.
func (op Opcode) OperandWidth() int {
	switch op {
	case OP_PUSH_CONSTANT:
		return floatWidth
	case OP_RETURN:
		return 0
	case OP_PUSH_VAR, OP_JMP_IF_FALSE, OP_JMP, OP_UNARY, OP_BINARY, OP_ASSIGN, OP_CALL:
		return intWidth
	}
	return -1
}
