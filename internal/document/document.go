// Package document loads function libraries from YAML documents.
//
// A document lists function definitions under a top-level "functions" key.
// Expressions are written as numbers, variable names or single-key maps
// naming an operator:
//
//	functions:
//	  - name: f
//	    params: [x]
//	    return: single
//	    body:
//	      - if: {"<": [x, 0]}
//	        then: [{return: [{neg: x}]}]
//	        else: [{return: [x]}]
package document

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/funvibe/numfn/internal/ast"
	"github.com/funvibe/numfn/internal/diagnostics"
)

// Library is the set of definitions of one document. Sub-function calls
// resolve against it, so it serves as a session.Resolver.
type Library struct {
	*ast.Library

	// Path is the document file, empty for in-memory documents.
	Path  string
	lines map[string]int
}

// Load reads and decodes the document at path.
func Load(path string) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading document %s: %w", path, err)
	}
	return Parse(data, path)
}

// Parse decodes document content. The path argument is used only for
// error messages and Library.Path.
func Parse(data []byte, path string) (*Library, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%s: %w", path, diagnostics.NewError(diagnostics.ErrD001, "", "document", "%v", err))
	}

	lib := &Library{Library: ast.NewLibrary(), Path: path, lines: make(map[string]int)}
	if root.Kind == 0 {
		return lib, nil
	}

	var doc struct {
		Functions []yaml.Node `yaml:"functions"`
	}
	if err := root.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%s: %w", path, diagnostics.NewError(diagnostics.ErrD001, "", "document", "%v", err))
	}

	for i := range doc.Functions {
		node := &doc.Functions[i]
		def, err := decodeFunction(node)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if line, dup := lib.lines[def.Name]; dup {
			err := diagnostics.NewError(diagnostics.ErrD003, def.Name, "document",
				"function %s already defined at line %d", def.Name, line).AtLine(node.Line)
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		lib.Add(def)
		lib.lines[def.Name] = node.Line
	}
	return lib, nil
}

// Line returns the document line where name is defined, 0 if unknown.
func (l *Library) Line(name string) int {
	return l.lines[name]
}
