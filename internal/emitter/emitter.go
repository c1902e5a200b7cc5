// Package emitter lowers a function definition into standalone C source:
// the pi constant, every sub-function in the call closure (declared, then
// defined, each once) and the main function taking a flat output array and
// a flat input array.
package emitter

import (
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"github.com/funvibe/numfn/internal/ast"
	"github.com/funvibe/numfn/internal/config"
	"github.com/funvibe/numfn/internal/diagnostics"
	"github.com/funvibe/numfn/internal/ops"
	"github.com/funvibe/numfn/internal/session"
)

// Options names the identifiers the emitted source uses.
type Options struct {
	Prefix      string
	OutputArray string
	InputArray  string
}

// DefaultOptions returns the built-in names.
func DefaultOptions() Options {
	return Options{
		Prefix:      config.DefaultSubfunctionPrefix,
		OutputArray: config.DefaultOutputArray,
		InputArray:  config.DefaultInputArray,
	}
}

// OptionsFrom takes the names from a loaded numfn.yaml.
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		Prefix:      cfg.Emit.Prefix,
		OutputArray: cfg.Emit.OutputArray,
		InputArray:  cfg.Emit.InputArray,
	}
}

// PiLiteral is the value MATH_PI is defined to.
const PiLiteral = "3.1415926535897932384626433832795028841971693"

var cIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// reserved holds the C keywords and the file-scope names every translation
// unit defines.
var reserved = map[string]bool{
	config.PiConstantName: true, ops.MinName: true, ops.MaxName: true,
}

func init() {
	for _, kw := range strings.Fields(`auto break case char const continue default do
		double else enum extern float for goto if inline int long register restrict
		return short signed sizeof static struct switch typedef union unsigned void
		volatile while _Bool _Complex _Imaginary`) {
		reserved[kw] = true
	}
}

// Emit lowers def with the default names.
func Emit(sess *session.Session, def *ast.FunctionDefinition) (string, error) {
	return EmitWith(sess, def, DefaultOptions())
}

// EmitWith lowers def and its sub-function closure into one C translation
// unit. Sub-functions already emitted by sess are reused.
func EmitWith(sess *session.Session, def *ast.FunctionDefinition, opts Options) (string, error) {
	if err := sess.Begin(session.KindSource, def.Name); err != nil {
		return "", err
	}
	defer sess.End(session.KindSource, def.Name)

	e := &emitter{opts: opts, sess: sess, def: def, contract: def.Return}
	body, err := e.function()
	if err != nil {
		return "", err
	}

	tmpl, err := template.New("unit").Parse(unitTemplate)
	if err != nil {
		return "", fmt.Errorf("parsing template: %w", err)
	}
	data := struct {
		Name        string
		Pi          string
		PiLiteral   string
		Helpers     string
		Declaration string
		Definitions string
		OutputArray string
		InputArray  string
		Body        string
	}{
		Name:        def.Name,
		Pi:          config.PiConstantName,
		PiLiteral:   PiLiteral,
		Helpers:     ops.CHelpers,
		Declaration: sess.Declarations.String(),
		Definitions: sess.Definitions.String(),
		OutputArray: opts.OutputArray,
		InputArray:  opts.InputArray,
		Body:        body,
	}
	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing template: %w", err)
	}
	return buf.String(), nil
}

const unitTemplate = `// Code generated by numfn. DO NOT EDIT.
#include <math.h>

#define {{.Pi}} {{.PiLiteral}}

{{.Helpers}}
// inline function declarations
{{.Declaration}}
// inline function definitions
{{.Definitions}}
int {{.Name}}(double *{{.OutputArray}}, double *{{.InputArray}})
{
{{.Body}}}
`

// emitSubfunction writes the declaration and definition of a sub-function
// into the session buffers.
func emitSubfunction(sess *session.Session, def *ast.FunctionDefinition, opts Options) (string, error) {
	if def.NumOut != 1 {
		return "", diagnostics.NewError(diagnostics.ErrC002, def.Name, "sub-function",
			"sub-function must have exactly one return value (not %d)", def.NumOut)
	}
	e := &emitter{opts: opts, sess: sess, def: def, contract: ast.SingleValue{}, sub: true}
	params := make([]string, 0, def.NumIn())
	for _, p := range def.ParamVars() {
		params = append(params, "double "+p.Name)
	}
	if len(params) == 0 {
		params = append(params, "void")
	}
	signature := fmt.Sprintf("static inline double %s%s(%s)", opts.Prefix, def.Name, strings.Join(params, ", "))

	body, err := e.function()
	if err != nil {
		return "", err
	}
	text := signature + "\n{\n" + body + "}\n"

	sess.Declarations.WriteString(signature + ";\n")
	sess.Definitions.WriteString(text)
	return text, nil
}

type emitter struct {
	opts     Options
	sess     *session.Session
	def      *ast.FunctionDefinition
	contract ast.ReturnContract
	sub      bool
	loops    int
}

func (e *emitter) errorf(code diagnostics.Code, construct, format string, args ...interface{}) error {
	return diagnostics.NewError(code, e.def.Name, construct, format, args...)
}

func (e *emitter) checkNames() error {
	if !cIdent.MatchString(e.def.Name) {
		return e.errorf(diagnostics.ErrC010, "definition", "function name %q is not a C identifier", e.def.Name)
	}
	if reserved[e.def.Name] {
		return e.errorf(diagnostics.ErrC010, "definition", "function name %q is reserved in C", e.def.Name)
	}
	taken := e.bodyNames()
	check := func(kind, name string) error {
		switch {
		case !cIdent.MatchString(name):
			return e.errorf(diagnostics.ErrC010, "definition", "%s name %q is not a C identifier", kind, name)
		case reserved[name]:
			return e.errorf(diagnostics.ErrC010, "definition", "%s name %q is reserved in C", kind, name)
		case name == e.opts.OutputArray || name == e.opts.InputArray:
			return e.errorf(diagnostics.ErrC010, "definition", "%s name %q collides with the argument arrays", kind, name)
		case taken[name]:
			return e.errorf(diagnostics.ErrC010, "definition", "%s name %q shadows a function called in the body", kind, name)
		}
		return nil
	}
	for _, v := range e.def.Vars {
		if err := check("variable", v.Name); err != nil {
			return err
		}
	}
	if slots, ok := e.contract.(ast.NamedSlots); ok && !e.sub {
		for _, label := range slots.Labels {
			if err := check("return slot", label); err != nil {
				return err
			}
		}
	}
	return nil
}

// bodyNames collects the C functions the body calls: math.h intrinsics and
// prefixed sub-functions.
func (e *emitter) bodyNames() map[string]bool {
	names := make(map[string]bool)
	for _, stmt := range e.def.Body {
		ast.Walk(stmt, func(n ast.Node) {
			op, ok := n.(*ast.Operator)
			if !ok {
				return
			}
			if op.Op == ast.OpCall {
				if ref, ok := op.Child(0).(*ast.FuncRef); ok {
					names[e.opts.Prefix+ref.Name] = true
				}
				return
			}
			if info := ops.Lookup(op.Op); info != nil && info.Form == ops.Call {
				names[info.C] = true
			}
		})
	}
	return names
}

// function renders the body of a function: parameter bindings (main only),
// constants, locals, return slots and statements.
func (e *emitter) function() (string, error) {
	if err := e.checkNames(); err != nil {
		return "", err
	}
	var sb strings.Builder
	if !e.sub {
		for i, p := range e.def.ParamVars() {
			fmt.Fprintf(&sb, "\tdouble %s = %s[%d];\n", p.Name, e.opts.InputArray, i)
		}
	}
	if globals := e.def.VarsOf(ast.Global); len(globals) > 0 {
		sb.WriteString("\t// constants:\n")
		for _, g := range globals {
			fmt.Fprintf(&sb, "\tconst double %s = %s;\n", g.Name, Literal(g.Value))
		}
	}
	sb.WriteString("\t// local variables:\n")
	for _, l := range e.def.VarsOf(ast.Local) {
		fmt.Fprintf(&sb, "\tdouble %s = 0;\n", l.Name)
	}
	if slots, ok := e.contract.(ast.NamedSlots); ok && !e.sub {
		sb.WriteString("\t// return slots:\n")
		for _, label := range slots.Labels {
			fmt.Fprintf(&sb, "\tdouble %s = 0;\n", label)
		}
	}
	sb.WriteString("\t// code:\n")
	for _, stmt := range e.def.Body {
		if err := e.statement(&sb, stmt, 1); err != nil {
			return "", err
		}
	}
	if e.sub {
		sb.WriteString("\treturn 0.0;\n")
	} else {
		sb.WriteString("\treturn 0;\n")
	}
	return sb.String(), nil
}

func (e *emitter) variable(n ast.Node, construct string) (ast.Var, error) {
	v, ok := n.(*ast.Variable)
	if !ok {
		return ast.Var{}, e.errorf(diagnostics.ErrC010, construct, "expected a variable, got %v", n)
	}
	info, ok := e.def.Var(v.Slot)
	if !ok {
		return ast.Var{}, e.errorf(diagnostics.ErrC008, construct, "unknown variable slot %d", v.Slot)
	}
	return info, nil
}
