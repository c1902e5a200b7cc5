package emitter

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/funvibe/numfn/internal/ast"
	"github.com/funvibe/numfn/internal/config"
	"github.com/funvibe/numfn/internal/diagnostics"
	"github.com/funvibe/numfn/internal/ops"
	"github.com/funvibe/numfn/internal/session"
)

func tabs(n int) string { return strings.Repeat("\t", n) }

func (e *emitter) statement(sb *strings.Builder, n ast.Node, indent int) error {
	if n == nil {
		return nil
	}
	op, ok := n.(*ast.Operator)
	if !ok {
		return e.errorf(diagnostics.ErrC009, "statement", "expression %v used as a statement", n)
	}
	switch op.Op {
	case ast.OpSeq:
		if err := e.statement(sb, op.Child(0), indent); err != nil {
			return err
		}
		return e.statement(sb, op.Child(1), indent)

	case ast.OpAssign:
		target, err := e.variable(op.Child(0), "assignment")
		if err != nil {
			return err
		}
		if !target.Assignable() {
			return e.errorf(diagnostics.ErrC001, "assignment", "global variable %s is read-only", target.Name)
		}
		value, err := e.expr(op.Child(1))
		if err != nil {
			return err
		}
		fmt.Fprintf(sb, "%s%s = %s;\n", tabs(indent), target.Name, value)
		return nil

	case ast.OpIf:
		return e.conditional(sb, op, indent)

	case ast.OpFor:
		return e.loop(sb, op, indent)

	case ast.OpBreak:
		if e.loops == 0 {
			return e.errorf(diagnostics.ErrC006, "break", "break outside of a loop")
		}
		sb.WriteString(tabs(indent) + "break;\n")
		return nil

	case ast.OpReturn:
		return e.ret(sb, op, indent)

	case ast.OpCall:
		return e.errorf(diagnostics.ErrC009, "call", "result of %v is discarded", op.Child(0))
	}
	return e.errorf(diagnostics.ErrC009, "statement", "expression %v used as a statement", n)
}

func (e *emitter) block(sb *strings.Builder, n ast.Node, indent int) error {
	sb.WriteString(tabs(indent) + "{\n")
	if err := e.statement(sb, n, indent+1); err != nil {
		return err
	}
	sb.WriteString(tabs(indent) + "}\n")
	return nil
}

func (e *emitter) conditional(sb *strings.Builder, op *ast.Operator, indent int) error {
	cond, err := e.expr(op.Child(0))
	if err != nil {
		return err
	}
	fmt.Fprintf(sb, "%sif (%s)\n", tabs(indent), cond)
	if err := e.block(sb, op.Child(1), indent); err != nil {
		return err
	}

	next := op.Child(2)
	for next != nil {
		branch, ok := next.(*ast.Operator)
		if !ok {
			return e.errorf(diagnostics.ErrC010, "if", "else branch is %v", next)
		}
		switch branch.Op {
		case ast.OpElseIf:
			cond, err := e.expr(branch.Child(0))
			if err != nil {
				return err
			}
			fmt.Fprintf(sb, "%selse if (%s)\n", tabs(indent), cond)
			if err := e.block(sb, branch.Child(1), indent); err != nil {
				return err
			}
			next = branch.Child(2)
		case ast.OpElse:
			sb.WriteString(tabs(indent) + "else\n")
			return e.block(sb, branch.Child(0), indent)
		default:
			return e.errorf(diagnostics.ErrC010, "if", "else branch is %v", next)
		}
	}
	return nil
}

func (e *emitter) loop(sb *strings.Builder, op *ast.Operator, indent int) error {
	v, err := e.variable(op.Child(0), "for")
	if err != nil {
		return err
	}
	if !v.Assignable() {
		return e.errorf(diagnostics.ErrC001, "for", "global variable %s is read-only", v.Name)
	}
	var parts [3]string
	for i := range parts {
		if parts[i], err = e.expr(op.Child(i + 1)); err != nil {
			return err
		}
	}
	fmt.Fprintf(sb, "%sfor (%s = %s; %s <= %s; %s += %s)\n",
		tabs(indent), v.Name, parts[0], v.Name, parts[1], v.Name, parts[2])
	e.loops++
	defer func() { e.loops-- }()
	return e.block(sb, op.Child(4), indent)
}

func (e *emitter) ret(sb *strings.Builder, op *ast.Operator, indent int) error {
	values := ast.Flatten(op.Child(0), ast.OpList)
	pad := tabs(indent)

	switch c := e.contract.(type) {
	case ast.SingleValue:
		if len(values) > 1 {
			return e.errorf(diagnostics.ErrC003, "return", "sub-functions may not return more than one value")
		}
		if len(values) == 0 {
			return e.errorf(diagnostics.ErrC003, "return", "return needs exactly one value")
		}
		v, err := e.expr(values[0])
		if err != nil {
			return err
		}
		if e.sub {
			fmt.Fprintf(sb, "%sreturn %s;\n", pad, v)
			return nil
		}
		fmt.Fprintf(sb, "%s%s[0] = %s;\n%sreturn 1;\n", pad, e.opts.OutputArray, v, pad)
		return nil

	case ast.NamedSlots:
		if len(values) != len(c.Labels) {
			return e.errorf(diagnostics.ErrC003, "return",
				"%s expects %d return values, got %d", c.Exit, len(c.Labels), len(values))
		}
		rendered := make([]string, len(values))
		for i, n := range values {
			v, err := e.expr(n)
			if err != nil {
				return err
			}
			rendered[i] = v
		}
		for i, label := range c.Labels {
			fmt.Fprintf(sb, "%s%s = %s;\n", pad, label, rendered[i])
		}
		fmt.Fprintf(sb, "%s// %s\n", pad, c.Exit)
		for i, label := range c.Labels {
			fmt.Fprintf(sb, "%s%s[%d] = %s;\n", pad, e.opts.OutputArray, i, label)
		}
		sb.WriteString(pad + "return 1;\n")
		return nil

	case ast.Generic:
		for i, n := range values {
			v, err := e.expr(n)
			if err != nil {
				return err
			}
			fmt.Fprintf(sb, "%s%s[%d] = %s;\n", pad, e.opts.OutputArray, i, v)
		}
		sb.WriteString(pad + "return 1;\n")
		return nil
	}
	return e.errorf(diagnostics.ErrC010, "return", "unknown return contract %v", e.contract)
}

func (e *emitter) expr(n ast.Node) (string, error) {
	switch n := n.(type) {
	case *ast.Constant:
		return Literal(n.Value), nil
	case *ast.Variable:
		v, err := e.variable(n, "expression")
		if err != nil {
			return "", err
		}
		return v.Name, nil
	case *ast.Operator:
		return e.operator(n)
	case nil:
		return "", e.errorf(diagnostics.ErrC010, "expression", "missing operand")
	}
	return "", e.errorf(diagnostics.ErrC010, "expression", "%v is not an expression", n)
}

func (e *emitter) operator(op *ast.Operator) (string, error) {
	switch op.Op {
	case ast.OpPi:
		return config.PiConstantName, nil
	case ast.OpCall:
		return e.call(op)
	}

	info := ops.Lookup(op.Op)
	if info == nil {
		return "", e.errorf(diagnostics.ErrC009, op.Op.String(), "%v is not an expression", op)
	}
	args := make([]string, 0, 2)
	for i := 0; i < op.Op.Arity(); i++ {
		a, err := e.expr(op.Child(i))
		if err != nil {
			return "", err
		}
		args = append(args, a)
	}
	switch info.Form {
	case ops.Prefix:
		return info.C + "(" + args[0] + ")", nil
	case ops.Infix:
		return "(" + args[0] + ")" + info.C + "(" + args[1] + ")", nil
	}
	return info.C + "(" + strings.Join(args, ", ") + ")", nil
}

func (e *emitter) call(op *ast.Operator) (string, error) {
	ref, ok := op.Child(0).(*ast.FuncRef)
	if !ok {
		return "", e.errorf(diagnostics.ErrC010, "call", "callee is %v", op.Child(0))
	}
	_, err := session.Ensure(e.sess, session.KindSource, ref.Name, func(def *ast.FunctionDefinition) (string, error) {
		return emitSubfunction(e.sess, def, e.opts)
	})
	if err != nil {
		return "", err
	}
	callee, err := e.sess.Lookup(ref.Name)
	if err != nil {
		return "", err
	}

	argNodes := ast.Flatten(op.Child(1), ast.OpList)
	if len(argNodes) != callee.NumIn() {
		return "", e.errorf(diagnostics.ErrC007, "call",
			"%s takes %d arguments, got %d", ref.Name, callee.NumIn(), len(argNodes))
	}
	args := make([]string, len(argNodes))
	for i, a := range argNodes {
		if args[i], err = e.expr(a); err != nil {
			return "", err
		}
	}
	return e.opts.Prefix + ref.Name + "(" + strings.Join(args, ", ") + ")", nil
}

// Literal formats v as a C double literal. Integer values keep a ".0" so
// that C arithmetic on them stays floating point.
func Literal(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NAN"
	case math.IsInf(v, 1):
		return "HUGE_VAL"
	case math.IsInf(v, -1):
		return "(-HUGE_VAL)"
	}
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
