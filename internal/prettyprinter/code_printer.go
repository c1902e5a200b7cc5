package prettyprinter

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/funvibe/numfn/internal/ast"
)

// --- Code Printer (output looks like a numfn script) ---

// Operator precedence (higher = binds tighter)
var operatorPrecedence = map[ast.Op]int{
	ast.OpOr:  1,
	ast.OpAnd: 2,
	ast.OpEQ:  3,
	ast.OpNE:  3,
	ast.OpLT:  4,
	ast.OpGT:  4,
	ast.OpLE:  4,
	ast.OpGE:  4,
	ast.OpAdd: 7,
	ast.OpSub: 7,
	ast.OpMul: 8,
	ast.OpDiv: 8,
}

// Infix spellings; every other expression operator prints as a call.
var infixNames = map[ast.Op]string{
	ast.OpOr:  "||",
	ast.OpAnd: "&&",
	ast.OpEQ:  "==",
	ast.OpNE:  "!=",
	ast.OpLT:  "<",
	ast.OpGT:  ">",
	ast.OpLE:  "<=",
	ast.OpGE:  ">=",
	ast.OpAdd: "+",
	ast.OpSub: "-",
	ast.OpMul: "*",
	ast.OpDiv: "/",
}

const prefixPrecedence = 100

type CodePrinter struct {
	buf    bytes.Buffer
	indent int
	def    *ast.FunctionDefinition
}

func NewCodePrinter() *CodePrinter {
	return &CodePrinter{}
}

// Function renders def in script form.
func Function(def *ast.FunctionDefinition) string {
	p := NewCodePrinter()
	p.PrintFunction(def)
	return p.String()
}

// Functions renders several definitions separated by blank lines.
func Functions(defs []*ast.FunctionDefinition) string {
	p := NewCodePrinter()
	for i, def := range defs {
		if i > 0 {
			p.writeln()
		}
		p.PrintFunction(def)
	}
	return p.String()
}

func (p *CodePrinter) String() string {
	return p.buf.String()
}

func (p *CodePrinter) write(s string) {
	p.buf.WriteString(s)
}

func (p *CodePrinter) writeln() {
	p.buf.WriteString("\n")
}

func (p *CodePrinter) writeIndent() {
	for i := 0; i < p.indent; i++ {
		p.buf.WriteString("    ")
	}
}

func (p *CodePrinter) line(s string) {
	p.writeIndent()
	p.write(s)
	p.writeln()
}

// PrintFunction appends the script form of def.
func (p *CodePrinter) PrintFunction(def *ast.FunctionDefinition) {
	p.def = def
	defer func() { p.def = nil }()

	names := make([]string, 0, def.NumIn())
	for _, v := range def.ParamVars() {
		names = append(names, v.Name)
	}
	p.write("function " + def.Name + "(" + strings.Join(names, ", ") + ") -> " + contract(def))
	p.writeln()

	p.indent++
	if locals := def.VarsOf(ast.Local); len(locals) > 0 {
		names = names[:0]
		for _, v := range locals {
			names = append(names, v.Name)
		}
		p.line("local " + strings.Join(names, ", "))
	}
	for _, g := range def.VarsOf(ast.Global) {
		p.line("const " + g.Name + " = " + number(g.Value))
	}
	for _, stmt := range def.Body {
		p.printStatement(stmt)
	}
	p.indent--
	p.line("end")
}

func contract(def *ast.FunctionDefinition) string {
	switch c := def.Return.(type) {
	case ast.Generic:
		return "generic " + strconv.Itoa(def.NumOut)
	case nil:
		return "?"
	default:
		return c.String()
	}
}

func number(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func (p *CodePrinter) printStatement(n ast.Node) {
	if n == nil {
		return
	}
	op, ok := n.(*ast.Operator)
	if !ok {
		p.line(p.expr(n))
		return
	}

	switch op.Op {
	case ast.OpSeq:
		p.printStatement(op.Child(0))
		p.printStatement(op.Child(1))

	case ast.OpAssign:
		p.line(p.expr(op.Child(0)) + " = " + p.expr(op.Child(1)))

	case ast.OpIf:
		p.line("if " + p.expr(op.Child(0)) + " then")
		p.block(op.Child(1))
		p.printElse(op.Child(2))
		p.line("end")

	case ast.OpFor:
		p.line("for " + p.expr(op.Child(0)) + " = " + p.expr(op.Child(1)) + ", " +
			p.expr(op.Child(2)) + ", " + p.expr(op.Child(3)) + " do")
		p.block(op.Child(4))
		p.line("end")

	case ast.OpBreak:
		p.line("break")

	case ast.OpReturn:
		values := ast.Flatten(op.Child(0), ast.OpList)
		if len(values) == 0 {
			p.line("return")
			return
		}
		parts := make([]string, len(values))
		for i, v := range values {
			parts[i] = p.expr(v)
		}
		p.line("return " + strings.Join(parts, ", "))

	default:
		p.line(p.expr(op))
	}
}

func (p *CodePrinter) block(n ast.Node) {
	p.indent++
	p.printStatement(n)
	p.indent--
}

func (p *CodePrinter) printElse(n ast.Node) {
	branch, ok := n.(*ast.Operator)
	if !ok {
		return
	}
	switch branch.Op {
	case ast.OpElseIf:
		p.line("elseif " + p.expr(branch.Child(0)) + " then")
		p.block(branch.Child(1))
		p.printElse(branch.Child(2))
	case ast.OpElse:
		p.line("else")
		p.block(branch.Child(0))
	}
}

func (p *CodePrinter) expr(n ast.Node) string {
	var sb strings.Builder
	p.printExpr(&sb, n, 0, false)
	return sb.String()
}

// printExpr prints an expression, adding parentheses only if needed
func (p *CodePrinter) printExpr(sb *strings.Builder, n ast.Node, parentPrec int, isRight bool) {
	switch e := n.(type) {
	case nil:
		sb.WriteString("<???>")
	case *ast.Constant:
		sb.WriteString(number(e.Value))
	case *ast.Variable:
		if p.def != nil {
			if v, ok := p.def.Var(e.Slot); ok {
				sb.WriteString(v.Name)
				return
			}
		}
		sb.WriteString(e.String())
	case *ast.FuncRef:
		sb.WriteString(e.Name)
	case *ast.Operator:
		p.printOperator(sb, e, parentPrec, isRight)
	default:
		sb.WriteString("<?>")
	}
}

func (p *CodePrinter) printOperator(sb *strings.Builder, e *ast.Operator, parentPrec int, isRight bool) {
	if name, ok := infixNames[e.Op]; ok {
		prec := operatorPrecedence[e.Op]
		// All infix operators associate to the left.
		needParens := prec < parentPrec || (prec == parentPrec && isRight)
		if needParens {
			sb.WriteString("(")
		}
		p.printExpr(sb, e.Child(0), prec, false)
		sb.WriteString(" " + name + " ")
		p.printExpr(sb, e.Child(1), prec, true)
		if needParens {
			sb.WriteString(")")
		}
		return
	}

	switch e.Op {
	case ast.OpNeg:
		sb.WriteString("-")
		p.printExpr(sb, e.Child(0), prefixPrecedence, false)
		return
	case ast.OpPi:
		sb.WriteString("pi")
		return
	case ast.OpCall:
		p.printExpr(sb, e.Child(0), 0, false)
		p.printArgs(sb, ast.Flatten(e.Child(1), ast.OpList))
		return
	}
	if e.Op.IsUnary() || e.Op.IsBinary() {
		sb.WriteString(e.Op.String())
		p.printArgs(sb, e.Children)
		return
	}
	sb.WriteString(e.String())
}

func (p *CodePrinter) printArgs(sb *strings.Builder, args []ast.Node) {
	sb.WriteString("(")
	for i, a := range args {
		if i > 0 {
			sb.WriteString(", ")
		}
		p.printExpr(sb, a, 0, false)
	}
	sb.WriteString(")")
}
