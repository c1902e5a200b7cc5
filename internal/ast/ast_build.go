package ast

// Node constructors. They do not validate; backends report malformed trees.

func Num(v float64) *Constant { return &Constant{Value: v} }

func Pi() *Operator { return &Operator{Op: OpPi} }

func Unary(op Op, x Node) *Operator {
	return &Operator{Op: op, Children: []Node{x}}
}

func Neg(x Node) *Operator { return Unary(OpNeg, x) }

func Binary(op Op, a, b Node) *Operator {
	return &Operator{Op: op, Children: []Node{a, b}}
}

func Assign(target *Variable, value Node) *Operator {
	return &Operator{Op: OpAssign, Children: []Node{target, value}}
}

// Seq chains statements right-leaning. It returns nil for no statements and
// the statement itself for one.
func Seq(stmts ...Node) Node {
	return chain(OpSeq, stmts)
}

// List chains values right-leaning, like Seq.
func List(items ...Node) Node {
	return chain(OpList, items)
}

func chain(op Op, nodes []Node) Node {
	switch len(nodes) {
	case 0:
		return nil
	case 1:
		return nodes[0]
	}
	return &Operator{Op: op, Children: []Node{nodes[0], chain(op, nodes[1:])}}
}

// Call invokes the named sub-function.
func Call(name string, args ...Node) *Operator {
	return &Operator{Op: OpCall, Children: []Node{&FuncRef{Name: name}, List(args...)}}
}

func Return(values ...Node) *Operator {
	return &Operator{Op: OpReturn, Children: []Node{List(values...)}}
}

func Break() *Operator { return &Operator{Op: OpBreak} }

// For builds a counted loop: for v = start, end, step do body end.
func For(v *Variable, start, end, step Node, body ...Node) *Operator {
	return &Operator{Op: OpFor, Children: []Node{v, start, end, step, Seq(body...)}}
}

// If builds a conditional. els is nil, an ElseIf or an Else.
func If(cond, then, els Node) *Operator {
	return &Operator{Op: OpIf, Children: []Node{cond, then, els}}
}

func ElseIf(cond, then, els Node) *Operator {
	return &Operator{Op: OpElseIf, Children: []Node{cond, then, els}}
}

func Else(block Node) *Operator {
	return &Operator{Op: OpElse, Children: []Node{block}}
}
