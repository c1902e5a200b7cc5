package ast

import "strings"

// ReturnContract selects how a function's return statement is lowered and
// what its callers receive.
type ReturnContract interface {
	String() string
	contract()
}

// SingleValue returns exactly one value. Every sub-function uses it.
type SingleValue struct{}

// NamedSlots writes each returned value to a named output slot and leaves
// through the function's single exit.
type NamedSlots struct {
	Labels []string
	Exit   string
}

// Generic writes N returned values to output positions 0..N-1.
type Generic struct{}

func (SingleValue) contract() {}
func (NamedSlots) contract()  {}
func (Generic) contract()     {}

func (SingleValue) String() string { return "single" }
func (Generic) String() string     { return "generic" }
func (n NamedSlots) String() string {
	return n.Exit + "(" + strings.Join(n.Labels, ", ") + ")"
}

// The named-slot contracts used by the discretization call sites.
var (
	DiffusionReturn = NamedSlots{Labels: []string{"A11", "A12", "A21", "A22"}, Exit: "diffusionReturn"}
	VelocityReturn  = NamedSlots{Labels: []string{"vx", "vy"}, Exit: "velocityReturn"}
	DirichletReturn = NamedSlots{Labels: []string{"f"}, Exit: "dirichletReturn"}
	SourceReturn    = NamedSlots{Labels: []string{"f"}, Exit: "sourceReturn"}
)

// ContractByName resolves the document spelling of a predeclared contract.
func ContractByName(name string) (ReturnContract, bool) {
	switch name {
	case "single":
		return SingleValue{}, true
	case "generic":
		return Generic{}, true
	case "diffusion":
		return DiffusionReturn, true
	case "velocity":
		return VelocityReturn, true
	case "dirichlet":
		return DirichletReturn, true
	case "source":
		return SourceReturn, true
	}
	return nil, false
}

// ValueCount is the number of values a return statement must produce under
// c, or -1 when any count is accepted.
func ValueCount(c ReturnContract) int {
	switch c := c.(type) {
	case SingleValue:
		return 1
	case NamedSlots:
		return len(c.Labels)
	}
	return -1
}
