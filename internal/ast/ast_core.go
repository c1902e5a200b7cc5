// Package ast defines the immutable syntax tree of a numeric function.
//
// A tree is built once (by a parser, a document loader or ast.Builder) and
// is only read afterwards. Every backend walks the same tree.
package ast

import (
	"strconv"
	"strings"
)

// Node is the interface implemented by every tree node.
type Node interface {
	String() string
	node()
}

// Constant is a numeric literal.
type Constant struct {
	Value float64
}

// Variable references a slot of the enclosing function: a parameter, a
// local or a read-only global.
type Variable struct {
	Slot int
}

// FuncRef names a sub-function. It only appears as the callee of a call.
type FuncRef struct {
	Name string
}

// Operator applies Op to its children. The number and meaning of the
// children depend on Op, see Op.Arity.
type Operator struct {
	Op       Op
	Children []Node
}

func (c *Constant) node() {}
func (v *Variable) node() {}
func (f *FuncRef) node()  {}
func (o *Operator) node() {}

func (c *Constant) String() string {
	return strconv.FormatFloat(c.Value, 'g', -1, 64)
}

func (v *Variable) String() string { return "$" + strconv.Itoa(v.Slot) }
func (f *FuncRef) String() string  { return "@" + f.Name }

// String renders the operator as an s-expression, for diagnostics.
func (o *Operator) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	sb.WriteString(o.Op.String())
	for _, c := range o.Children {
		sb.WriteByte(' ')
		if c == nil {
			sb.WriteString("nil")
		} else {
			sb.WriteString(c.String())
		}
	}
	sb.WriteByte(')')
	return sb.String()
}

// Child returns the i-th child or nil when absent.
func (o *Operator) Child(i int) Node {
	if i < len(o.Children) {
		return o.Children[i]
	}
	return nil
}

// Flatten walks a right-leaning chain of op (a list or a sequence) and
// returns its elements in order. A node that is not an op operator is a
// one-element chain; nil is empty.
func Flatten(n Node, op Op) []Node {
	var out []Node
	for n != nil {
		o, ok := n.(*Operator)
		if !ok || o.Op != op {
			out = append(out, n)
			break
		}
		out = append(out, o.Child(0))
		n = o.Child(1)
	}
	return out
}

// IsOp reports whether n is an operator with the given tag.
func IsOp(n Node, op Op) bool {
	o, ok := n.(*Operator)
	return ok && o.Op == op
}
