package document

import (
	"errors"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/funvibe/numfn/internal/ast"
	"github.com/funvibe/numfn/internal/diagnostics"
)

type rawFunction struct {
	Name      string      `yaml:"name"`
	Params    []string    `yaml:"params"`
	Locals    []string    `yaml:"locals"`
	Constants yaml.Node   `yaml:"constants"`
	Outputs   *int        `yaml:"outputs"`
	Return    yaml.Node   `yaml:"return"`
	Body      []yaml.Node `yaml:"body"`
}

var functionKeys = map[string]bool{
	"name": true, "params": true, "locals": true, "constants": true,
	"outputs": true, "return": true, "body": true,
}

// Operators whose document form accepts more than two operands, folded
// from the left.
var foldable = map[ast.Op]bool{
	ast.OpAdd: true, ast.OpMul: true, ast.OpAnd: true, ast.OpOr: true,
	ast.OpMin: true, ast.OpMax: true,
}

// decoder turns the YAML nodes of one function into tree nodes.
type decoder struct {
	name string
	b    *ast.Builder
}

func (d *decoder) errorf(code diagnostics.Code, n *yaml.Node, construct, format string, args ...interface{}) error {
	return diagnostics.NewError(code, d.name, construct, format, args...).AtLine(n.Line)
}

func decodeFunction(node *yaml.Node) (*ast.FunctionDefinition, error) {
	if node.Kind != yaml.MappingNode {
		return nil, diagnostics.NewError(diagnostics.ErrD001, "", "function",
			"function entry must be a mapping").AtLine(node.Line)
	}
	for i := 0; i < len(node.Content); i += 2 {
		if key := node.Content[i]; !functionKeys[key.Value] {
			return nil, diagnostics.NewError(diagnostics.ErrD002, "", "function",
				"unknown key %q", key.Value).AtLine(key.Line)
		}
	}

	var raw rawFunction
	if err := node.Decode(&raw); err != nil {
		return nil, diagnostics.NewError(diagnostics.ErrD001, "", "function", "%v", err).AtLine(node.Line)
	}
	if raw.Name == "" {
		return nil, diagnostics.NewError(diagnostics.ErrD003, "", "function", "function has no name").AtLine(node.Line)
	}

	d := &decoder{name: raw.Name, b: ast.NewBuilder(raw.Name)}
	for _, p := range raw.Params {
		d.b.Param(p)
	}
	for _, l := range raw.Locals {
		d.b.Local(l)
	}
	if err := d.constants(&raw.Constants); err != nil {
		return nil, err
	}

	contract, err := d.contract(&raw.Return)
	if err != nil {
		return nil, err
	}
	if raw.Outputs != nil {
		d.b.Outputs(*raw.Outputs)
	}
	d.b.Returns(contract)

	for i := range raw.Body {
		stmt, err := d.statement(&raw.Body[i])
		if err != nil {
			return nil, err
		}
		d.b.Add(stmt)
	}

	def, err := d.b.Build()
	if err != nil {
		var de *diagnostics.Error
		if errors.As(err, &de) {
			return nil, de.AtLine(node.Line)
		}
		return nil, err
	}
	return def, nil
}

func (d *decoder) constants(n *yaml.Node) error {
	switch n.Kind {
	case 0:
		return nil
	case yaml.MappingNode:
	default:
		return d.errorf(diagnostics.ErrD001, n, "constants", "constants must be a mapping of names to numbers")
	}
	for i := 0; i < len(n.Content); i += 2 {
		key, val := n.Content[i], n.Content[i+1]
		var v float64
		if err := val.Decode(&v); err != nil {
			return d.errorf(diagnostics.ErrD003, val, "constants", "constant %s is not a number", key.Value)
		}
		d.b.Global(key.Value, v)
	}
	return nil
}

func (d *decoder) contract(n *yaml.Node) (ast.ReturnContract, error) {
	switch n.Kind {
	case 0:
		return ast.Generic{}, nil
	case yaml.ScalarNode:
		if c, ok := ast.ContractByName(n.Value); ok {
			return c, nil
		}
		return nil, d.errorf(diagnostics.ErrD003, n, "return", "unknown return contract %q", n.Value)
	case yaml.MappingNode:
		var slots struct {
			Slots []string `yaml:"slots"`
			Exit  string   `yaml:"exit"`
		}
		if err := n.Decode(&slots); err != nil {
			return nil, d.errorf(diagnostics.ErrD001, n, "return", "%v", err)
		}
		if len(slots.Slots) == 0 || slots.Exit == "" {
			return nil, d.errorf(diagnostics.ErrD003, n, "return", "named return needs slots and an exit")
		}
		return ast.NamedSlots{Labels: slots.Slots, Exit: slots.Exit}, nil
	}
	return nil, d.errorf(diagnostics.ErrD001, n, "return", "return must be a name or a mapping")
}

// block decodes a statement list. A single statement may stand for a
// one-element list.
func (d *decoder) block(n *yaml.Node) (ast.Node, error) {
	if n == nil || n.Kind == 0 {
		return nil, nil
	}
	if n.Kind != yaml.SequenceNode {
		return d.statement(n)
	}
	stmts := make([]ast.Node, 0, len(n.Content))
	for _, c := range n.Content {
		s, err := d.statement(c)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	return ast.Seq(stmts...), nil
}

// fields indexes a mapping node by key.
func fields(n *yaml.Node) map[string]*yaml.Node {
	m := make(map[string]*yaml.Node, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		m[n.Content[i].Value] = n.Content[i+1]
	}
	return m
}

func (d *decoder) statement(n *yaml.Node) (ast.Node, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Value == "break" {
			return ast.Break(), nil
		}
		return nil, d.errorf(diagnostics.ErrD002, n, "statement", "unknown statement %q", n.Value)
	case yaml.MappingNode:
	default:
		return nil, d.errorf(diagnostics.ErrD002, n, "statement", "statement must be a mapping or break")
	}

	f := fields(n)
	if _, ok := f["if"]; ok {
		return d.conditional(n, f)
	}
	if len(f) != 1 {
		return nil, d.errorf(diagnostics.ErrD002, n, "statement", "statement must have exactly one key")
	}
	key := n.Content[0].Value
	val := n.Content[1]

	switch key {
	case "set":
		if val.Kind != yaml.SequenceNode || len(val.Content) != 2 {
			return nil, d.errorf(diagnostics.ErrD003, val, "set", "set takes [variable, value]")
		}
		target, err := d.variable(val.Content[0], "set")
		if err != nil {
			return nil, err
		}
		value, err := d.expression(val.Content[1])
		if err != nil {
			return nil, err
		}
		return ast.Assign(target, value), nil

	case "for":
		return d.loop(val)

	case "return":
		var items []*yaml.Node
		switch {
		case val.Kind == yaml.SequenceNode:
			items = val.Content
		case val.Tag != "!!null":
			items = []*yaml.Node{val}
		}
		values := make([]ast.Node, len(items))
		for i, item := range items {
			v, err := d.expression(item)
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
		return ast.Return(values...), nil

	case "call":
		// Backends reject a discarded call result; keep the node so they can.
		return d.expression(n)
	}
	return nil, d.errorf(diagnostics.ErrD002, n, "statement", "unknown statement %q", key)
}

func (d *decoder) conditional(n *yaml.Node, f map[string]*yaml.Node) (ast.Node, error) {
	for key, v := range f {
		switch key {
		case "if", "then", "elseif", "else":
		default:
			return nil, d.errorf(diagnostics.ErrD002, v, "if", "unknown key %q in if", key)
		}
	}
	cond, err := d.expression(f["if"])
	if err != nil {
		return nil, err
	}
	then, err := d.block(f["then"])
	if err != nil {
		return nil, err
	}

	var els ast.Node
	if e, ok := f["else"]; ok {
		block, err := d.block(e)
		if err != nil {
			return nil, err
		}
		els = ast.Else(block)
	}
	if ei, ok := f["elseif"]; ok {
		if ei.Kind != yaml.SequenceNode {
			return nil, d.errorf(diagnostics.ErrD001, ei, "elseif", "elseif must be a list")
		}
		for i := len(ei.Content) - 1; i >= 0; i-- {
			branch := ei.Content[i]
			if branch.Kind != yaml.MappingNode {
				return nil, d.errorf(diagnostics.ErrD001, branch, "elseif", "elseif entry must be a mapping")
			}
			bf := fields(branch)
			c, ok := bf["cond"]
			if !ok {
				return nil, d.errorf(diagnostics.ErrD003, branch, "elseif", "elseif needs a cond")
			}
			bc, err := d.expression(c)
			if err != nil {
				return nil, err
			}
			bt, err := d.block(bf["then"])
			if err != nil {
				return nil, err
			}
			els = ast.ElseIf(bc, bt, els)
		}
	}
	return ast.If(cond, then, els), nil
}

func (d *decoder) loop(n *yaml.Node) (ast.Node, error) {
	if n.Kind != yaml.MappingNode {
		return nil, d.errorf(diagnostics.ErrD001, n, "for", "for takes a mapping")
	}
	f := fields(n)
	for key, v := range f {
		switch key {
		case "var", "from", "to", "step", "do":
		default:
			return nil, d.errorf(diagnostics.ErrD002, v, "for", "unknown key %q in for", key)
		}
	}
	for _, key := range []string{"var", "from", "to"} {
		if _, ok := f[key]; !ok {
			return nil, d.errorf(diagnostics.ErrD003, n, "for", "for needs %s", key)
		}
	}

	v, err := d.variable(f["var"], "for")
	if err != nil {
		return nil, err
	}
	from, err := d.expression(f["from"])
	if err != nil {
		return nil, err
	}
	to, err := d.expression(f["to"])
	if err != nil {
		return nil, err
	}
	var step ast.Node = ast.Num(1)
	if s, ok := f["step"]; ok {
		if step, err = d.expression(s); err != nil {
			return nil, err
		}
	}
	body, err := d.block(f["do"])
	if err != nil {
		return nil, err
	}
	return ast.For(v, from, to, step, body), nil
}

func (d *decoder) variable(n *yaml.Node, construct string) (*ast.Variable, error) {
	if n.Kind != yaml.ScalarNode || n.Tag != "!!str" {
		return nil, d.errorf(diagnostics.ErrD003, n, construct, "expected a variable name")
	}
	v := d.b.Ref(n.Value)
	if v == nil {
		return nil, d.errorf(diagnostics.ErrD003, n, construct, "unknown variable %s", n.Value)
	}
	return v, nil
}

func (d *decoder) expression(n *yaml.Node) (ast.Node, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		switch n.Tag {
		case "!!int", "!!float":
			var v float64
			if err := n.Decode(&v); err != nil {
				return nil, d.errorf(diagnostics.ErrD001, n, "number", "%v", err)
			}
			return ast.Num(v), nil
		case "!!str":
			if v := d.b.Ref(n.Value); v != nil {
				return v, nil
			}
			if n.Value == "pi" {
				return ast.Pi(), nil
			}
			return nil, d.errorf(diagnostics.ErrD003, n, "expression", "unknown variable %s", n.Value)
		}
		return nil, d.errorf(diagnostics.ErrD002, n, "expression", "unsupported value %q", n.Value)

	case yaml.MappingNode:
		if len(n.Content) != 2 {
			return nil, d.errorf(diagnostics.ErrD002, n, "expression", "operator map must have exactly one key")
		}
		return d.operator(n.Content[0], n.Content[1])
	}
	return nil, d.errorf(diagnostics.ErrD002, n, "expression", "expected a number, a name or an operator")
}

func (d *decoder) operator(key, val *yaml.Node) (ast.Node, error) {
	name := key.Value
	if name == "call" {
		return d.call(val)
	}
	op, ok := ast.LookupOp(name)
	if !ok {
		return nil, d.errorf(diagnostics.ErrD002, key, "expression", "unknown operator %q", name)
	}
	if op == ast.OpPi {
		return ast.Pi(), nil
	}

	operands := []*yaml.Node{val}
	if val.Kind == yaml.SequenceNode {
		operands = val.Content
	}
	args := make([]ast.Node, len(operands))
	for i, o := range operands {
		a, err := d.expression(o)
		if err != nil {
			return nil, err
		}
		args[i] = a
	}

	if op.IsUnary() {
		if len(args) != 1 {
			return nil, d.errorf(diagnostics.ErrD003, key, name, "%s takes 1 operand, got %d", name, len(args))
		}
		return ast.Unary(op, args[0]), nil
	}
	if len(args) < 2 || (len(args) > 2 && !foldable[op]) {
		return nil, d.errorf(diagnostics.ErrD003, key, name, "%s takes 2 operands, got %d", name, len(args))
	}
	acc := ast.Binary(op, args[0], args[1])
	for _, a := range args[2:] {
		acc = ast.Binary(op, acc, a)
	}
	return acc, nil
}

func (d *decoder) call(val *yaml.Node) (ast.Node, error) {
	if val.Kind != yaml.SequenceNode || len(val.Content) == 0 {
		return nil, d.errorf(diagnostics.ErrD003, val, "call", "call takes [name, arguments...]")
	}
	callee := val.Content[0]
	if callee.Kind != yaml.ScalarNode || strings.TrimSpace(callee.Value) == "" {
		return nil, d.errorf(diagnostics.ErrD003, callee, "call", "call needs a function name")
	}
	args := make([]ast.Node, 0, len(val.Content)-1)
	for _, a := range val.Content[1:] {
		e, err := d.expression(a)
		if err != nil {
			return nil, err
		}
		args = append(args, e)
	}
	return ast.Call(callee.Value, args...), nil
}
