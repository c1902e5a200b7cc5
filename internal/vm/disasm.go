package vm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/funvibe/numfn/internal/ast"
	"github.com/funvibe/numfn/internal/ops"
)

// Disassemble returns a human-readable listing of u: its summary line, then
// one line per instruction prefixed with the byte offset.
func Disassemble(u *Unit) string {
	var sb strings.Builder
	sb.WriteString(u.Summary())
	sb.WriteString("\n")

	offset := 0
	for offset < len(u.Code) {
		offset = disassembleInstruction(&sb, u, offset)
	}
	return sb.String()
}

// DisassembleAll lists u followed by every unit it calls.
func DisassembleAll(u *Unit) string {
	var parts []string
	closure := u.Closure()
	for i := len(closure) - 1; i >= 0; i-- {
		parts = append(parts, Disassemble(closure[i]))
	}
	return strings.Join(parts, "\n")
}

func disassembleInstruction(sb *strings.Builder, u *Unit, offset int) int {
	fmt.Fprintf(sb, "%04d\t", offset)

	op := Opcode(u.Code[offset])
	width := op.OperandWidth()
	if width < 0 {
		fmt.Fprintf(sb, "%d?\n", op)
		return offset + 1
	}
	if offset+1+width > len(u.Code) {
		fmt.Fprintf(sb, "%s (truncated)\n", op)
		return len(u.Code)
	}
	next := offset + 1 + width

	switch op {
	case OP_PUSH_CONSTANT:
		v, _ := readFloat(u.Code, offset+1)
		fmt.Fprintf(sb, "%-16s %s\n", op, strconv.FormatFloat(v, 'g', -1, 64))

	case OP_PUSH_VAR, OP_JMP_IF_FALSE, OP_JMP, OP_ASSIGN:
		n, _ := readInt(u.Code, offset+1)
		fmt.Fprintf(sb, "%-16s %d\n", op, n)

	case OP_UNARY, OP_BINARY:
		tag, _ := readInt(u.Code, offset+1)
		sb.WriteString(operatorName(tag))
		sb.WriteString("\n")

	case OP_RETURN:
		sb.WriteString("RETURN\n")

	case OP_CALL:
		idx, _ := readInt(u.Code, offset+1)
		if idx < 0 || idx >= len(u.Callees) {
			fmt.Fprintf(sb, "CALL to subfunction %d: (invalid)\n", idx)
		} else {
			fmt.Fprintf(sb, "CALL to subfunction %d: %s\n", idx, u.Callees[idx].Summary())
		}
	}
	return next
}

func operatorName(tag int) string {
	if info := ops.Lookup(ast.Op(tag)); info != nil {
		return info.Name
	}
	return fmt.Sprintf("<%d>?", tag)
}
