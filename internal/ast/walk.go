package ast

// Walk calls visit for n and every node below it, parents before children,
// children in order. nil children are skipped.
func Walk(n Node, visit func(Node)) {
	if n == nil {
		return
	}
	visit(n)
	if o, ok := n.(*Operator); ok {
		for _, c := range o.Children {
			Walk(c, visit)
		}
	}
}

// Callees lists the sub-functions called anywhere in f's body, each once,
// in order of first appearance.
func (f *FunctionDefinition) Callees() []string {
	var names []string
	seen := make(map[string]bool)
	for _, stmt := range f.Body {
		Walk(stmt, func(n Node) {
			if ref, ok := n.(*FuncRef); ok && !seen[ref.Name] {
				seen[ref.Name] = true
				names = append(names, ref.Name)
			}
		})
	}
	return names
}

// Closure returns root and every definition reachable from it through
// calls, callees before callers, each once. Names lookup cannot resolve are
// skipped; a cycle is cut at the repeated name.
func Closure(root *FunctionDefinition, lookup func(string) (*FunctionDefinition, error)) []*FunctionDefinition {
	var out []*FunctionDefinition
	seen := make(map[string]bool)
	var visit func(*FunctionDefinition)
	visit = func(def *FunctionDefinition) {
		if seen[def.Name] {
			return
		}
		seen[def.Name] = true
		for _, name := range def.Callees() {
			if callee, err := lookup(name); err == nil {
				visit(callee)
			}
		}
		out = append(out, def)
	}
	visit(root)
	return out
}
