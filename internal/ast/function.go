package ast

import (
	"sort"

	"github.com/funvibe/numfn/internal/diagnostics"
)

// VarKind classifies a function slot.
type VarKind int

const (
	Param  VarKind = iota // positional input, assignable
	Local                 // assignable, starts at 0
	Global                // read-only host binding
)

func (k VarKind) String() string {
	switch k {
	case Param:
		return "param"
	case Local:
		return "local"
	case Global:
		return "global"
	}
	return "?"
}

// Var describes one slot. Value is only meaningful for globals.
type Var struct {
	Slot  int
	Name  string
	Kind  VarKind
	Value float64
}

// Assignable reports whether statements may write the slot.
func (v Var) Assignable() bool { return v.Kind != Global }

// FunctionDefinition is a complete numeric function. It is built once and
// treated as read-only afterwards.
type FunctionDefinition struct {
	Name string
	// Params lists the parameter slots in positional order.
	Params []int
	// Vars holds every slot, ordered by slot id.
	Vars   []Var
	Body   []Node
	NumOut int
	Return ReturnContract

	bySlot map[int]int
	byName map[string]int
}

// NumIn is the declared input arity.
func (f *FunctionDefinition) NumIn() int { return len(f.Params) }

// Var returns the slot description for slot.
func (f *FunctionDefinition) Var(slot int) (Var, bool) {
	if f.bySlot != nil {
		i, ok := f.bySlot[slot]
		if !ok {
			return Var{}, false
		}
		return f.Vars[i], true
	}
	for _, v := range f.Vars {
		if v.Slot == slot {
			return v, true
		}
	}
	return Var{}, false
}

// Lookup finds a slot by name.
func (f *FunctionDefinition) Lookup(name string) (Var, bool) {
	if f.byName != nil {
		i, ok := f.byName[name]
		if !ok {
			return Var{}, false
		}
		return f.Vars[i], true
	}
	for _, v := range f.Vars {
		if v.Name == name {
			return v, true
		}
	}
	return Var{}, false
}

// ParamVars returns the parameters in positional order.
func (f *FunctionDefinition) ParamVars() []Var {
	out := make([]Var, 0, len(f.Params))
	for _, s := range f.Params {
		if v, ok := f.Var(s); ok {
			out = append(out, v)
		}
	}
	return out
}

// VarsOf returns the slots of the given kind in slot order.
func (f *FunctionDefinition) VarsOf(kind VarKind) []Var {
	var out []Var
	for _, v := range f.Vars {
		if v.Kind == kind {
			out = append(out, v)
		}
	}
	return out
}

// Builder assembles a FunctionDefinition the way a parser would: slots are
// handed out once, in declaration order, starting at 1.
type Builder struct {
	def  FunctionDefinition
	next int
	err  error
	// outputs is set once Outputs was called; Returns no longer
	// overrides NumOut after that.
	outputs bool
}

// NewBuilder starts a definition with one output and the Generic contract.
func NewBuilder(name string) *Builder {
	return &Builder{
		def:  FunctionDefinition{Name: name, NumOut: 1, Return: Generic{}},
		next: 1,
	}
}

func (b *Builder) declare(name string, kind VarKind, value float64) *Variable {
	for _, v := range b.def.Vars {
		if v.Name == name {
			if b.err == nil {
				b.err = diagnostics.NewError(diagnostics.ErrD003, b.def.Name, "declaration",
					"variable %s declared twice", name)
			}
			return &Variable{Slot: v.Slot}
		}
	}
	slot := b.next
	b.next++
	b.def.Vars = append(b.def.Vars, Var{Slot: slot, Name: name, Kind: kind, Value: value})
	if kind == Param {
		b.def.Params = append(b.def.Params, slot)
	}
	return &Variable{Slot: slot}
}

// Param declares the next positional parameter.
func (b *Builder) Param(name string) *Variable { return b.declare(name, Param, 0) }

// Local declares an assignable local.
func (b *Builder) Local(name string) *Variable { return b.declare(name, Local, 0) }

// Global declares a read-only binding supplied by the host.
func (b *Builder) Global(name string, value float64) *Variable {
	return b.declare(name, Global, value)
}

// Ref returns a reference to an already declared variable, or nil.
func (b *Builder) Ref(name string) *Variable {
	for _, v := range b.def.Vars {
		if v.Name == name {
			return &Variable{Slot: v.Slot}
		}
	}
	return nil
}

func (b *Builder) Outputs(n int) *Builder {
	b.def.NumOut = n
	b.outputs = true
	return b
}

// Returns sets the return contract. A contract with a fixed value count
// also sets the output count unless Outputs was called.
func (b *Builder) Returns(c ReturnContract) *Builder {
	b.def.Return = c
	if n := ValueCount(c); n >= 0 && !b.outputs {
		b.def.NumOut = n
	}
	return b
}

// Add appends statements to the body.
func (b *Builder) Add(stmts ...Node) *Builder {
	b.def.Body = append(b.def.Body, stmts...)
	return b
}

// Build validates and freezes the definition.
func (b *Builder) Build() (*FunctionDefinition, error) {
	if b.err != nil {
		return nil, b.err
	}
	def := b.def
	if def.Name == "" {
		return nil, diagnostics.NewError(diagnostics.ErrD003, "", "definition", "function has no name")
	}
	if def.NumOut < 0 {
		return nil, diagnostics.NewError(diagnostics.ErrD003, def.Name, "definition",
			"negative output arity %d", def.NumOut)
	}
	if n := ValueCount(def.Return); n >= 0 && n != def.NumOut {
		return nil, diagnostics.NewError(diagnostics.ErrC003, def.Name, "definition",
			"return contract %s yields %d values but %d outputs are declared", def.Return, n, def.NumOut)
	}
	if slots, ok := def.Return.(NamedSlots); ok {
		for _, label := range slots.Labels {
			for _, v := range def.Vars {
				if v.Name == label {
					return nil, diagnostics.NewError(diagnostics.ErrD003, def.Name, "definition",
						"variable %s collides with return slot of %s", label, slots.Exit)
				}
			}
		}
	}
	def.Vars = append([]Var(nil), def.Vars...)
	sort.Slice(def.Vars, func(i, j int) bool { return def.Vars[i].Slot < def.Vars[j].Slot })
	def.Params = append([]int(nil), def.Params...)
	def.Body = append([]Node(nil), def.Body...)
	def.bySlot = make(map[int]int, len(def.Vars))
	def.byName = make(map[string]int, len(def.Vars))
	for i, v := range def.Vars {
		def.bySlot[v.Slot] = i
		def.byName[v.Name] = i
	}
	return &def, nil
}

// MustBuild is Build for definitions known to be valid, such as in tests.
func (b *Builder) MustBuild() *FunctionDefinition {
	def, err := b.Build()
	if err != nil {
		panic(err)
	}
	return def
}
