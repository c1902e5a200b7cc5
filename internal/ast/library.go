package ast

import (
	"github.com/funvibe/numfn/internal/diagnostics"
)

// Library is a named set of function definitions that sub-function calls
// resolve against.
type Library struct {
	defs  map[string]*FunctionDefinition
	order []string
}

func NewLibrary(defs ...*FunctionDefinition) *Library {
	l := &Library{defs: make(map[string]*FunctionDefinition)}
	for _, d := range defs {
		l.Add(d)
	}
	return l
}

// Add registers def, replacing an earlier definition with the same name.
func (l *Library) Add(def *FunctionDefinition) {
	if _, ok := l.defs[def.Name]; !ok {
		l.order = append(l.order, def.Name)
	}
	l.defs[def.Name] = def
}

// Lookup returns the definition called name.
func (l *Library) Lookup(name string) (*FunctionDefinition, error) {
	if def, ok := l.defs[name]; ok {
		return def, nil
	}
	return nil, diagnostics.NewError(diagnostics.ErrC004, name, "lookup", "unknown function %s", name)
}

// Names lists the definitions in insertion order.
func (l *Library) Names() []string {
	return append([]string(nil), l.order...)
}

func (l *Library) Len() int { return len(l.order) }
