package vm

import "fmt"

// Unit is the compiled form of one function. It is immutable once the
// compiler returns it and may be shared by any number of machines.
type Unit struct {
	// Name is diagnostic only.
	Name   string
	NumIn  int
	NumOut int
	// NumSlots counts parameters and locals; slots are numbered from 1.
	NumSlots int
	// MaxStack is the operand stack depth the unit needs, its callees
	// included, measured from its own frame base.
	MaxStack int
	Code     []byte
	// Callees is indexed by the OP_CALL operand.
	Callees []*Unit
}

// Summary is the one-line description used by the disassembler.
func (u *Unit) Summary() string {
	return fmt.Sprintf("function %s, %d Parameters, %d variables, %d subfunctions",
		u.Name, u.NumIn, u.NumSlots, len(u.Callees))
}

// Closure returns u and every unit reachable through its callees, each
// once, callees before callers.
func (u *Unit) Closure() []*Unit {
	var out []*Unit
	seen := make(map[*Unit]bool)
	var walk func(*Unit)
	walk = func(n *Unit) {
		if seen[n] {
			return
		}
		seen[n] = true
		for _, c := range n.Callees {
			walk(c)
		}
		out = append(out, n)
	}
	walk(u)
	return out
}
