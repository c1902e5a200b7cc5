package emitter

import (
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/funvibe/numfn/internal/ast"
	"github.com/funvibe/numfn/internal/diagnostics"
	"github.com/funvibe/numfn/internal/session"
	"github.com/funvibe/numfn/internal/vm"
)

func absFunction() *ast.FunctionDefinition {
	b := ast.NewBuilder("f").Returns(ast.SingleValue{})
	x := b.Param("x")
	return b.Add(ast.If(
		ast.Binary(ast.OpLT, x, ast.Num(0)),
		ast.Return(ast.Neg(x)),
		ast.Else(ast.Return(x)),
	)).MustBuild()
}

func loopFunction() *ast.FunctionDefinition {
	b := ast.NewBuilder("g").Outputs(2)
	b.Param("x")
	acc := b.Local("acc")
	i := b.Local("i")
	return b.Add(
		ast.For(i, ast.Num(1), ast.Num(3), ast.Num(1),
			ast.Assign(acc, ast.Binary(ast.OpAdd, acc, i))),
		ast.Return(acc, ast.Binary(ast.OpMul, acc, ast.Num(2))),
	).MustBuild()
}

func unary(name string, op ast.Op) *ast.FunctionDefinition {
	b := ast.NewBuilder(name).Returns(ast.SingleValue{})
	x := b.Param("x")
	return b.Add(ast.Return(ast.Unary(op, x))).MustBuild()
}

func calling(name string, callees ...string) *ast.FunctionDefinition {
	b := ast.NewBuilder(name).Returns(ast.SingleValue{})
	x := b.Param("x")
	var sum ast.Node = ast.Num(0)
	for _, c := range callees {
		sum = ast.Binary(ast.OpAdd, sum, ast.Call(c, x))
	}
	return b.Add(ast.Return(sum)).MustBuild()
}

func TestEmitAbsScenario(t *testing.T) {
	src, err := Emit(session.New(nil), absFunction())
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	for _, want := range []string{
		"#define MATH_PI 3.14159",
		"int f(double *numfn_ret, double *numfn_in)",
		"\tdouble x = numfn_in[0];\n",
		"\tif ((x)<(0.0))\n\t{\n\t\tnumfn_ret[0] = -(x);\n\t\treturn 1;\n\t}\n",
		"\telse\n\t{\n\t\tnumfn_ret[0] = x;\n",
		"\treturn 0;\n}\n",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("emitted source lacks %q:\n%s", want, src)
		}
	}
}

func TestEmitLoopScenario(t *testing.T) {
	src, err := Emit(session.New(nil), loopFunction())
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	for _, want := range []string{
		"\tdouble acc = 0;\n\tdouble i = 0;\n",
		"\tfor (i = 1.0; i <= 3.0; i += 1.0)\n\t{\n\t\tacc = (acc)+(i);\n\t}\n",
		"\tnumfn_ret[0] = acc;\n\tnumfn_ret[1] = (acc)*(2.0);\n\treturn 1;\n",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("emitted source lacks %q:\n%s", want, src)
		}
	}
}

func TestEmitElseIfChain(t *testing.T) {
	b := ast.NewBuilder("sign").Returns(ast.SingleValue{})
	x := b.Param("x")
	def := b.Add(ast.If(
		ast.Binary(ast.OpLT, x, ast.Num(0)), ast.Return(ast.Num(-1)),
		ast.ElseIf(ast.Binary(ast.OpEQ, x, ast.Num(0)), ast.Return(ast.Num(0)),
			ast.ElseIf(ast.Binary(ast.OpGE, x, ast.Num(100)), ast.Return(ast.Num(2)),
				ast.Else(ast.Return(ast.Num(1)))))),
	).MustBuild()

	src, err := Emit(session.New(nil), def)
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	if got := strings.Count(src, "else if ("); got != 2 {
		t.Errorf("else if count = %d, want 2", got)
	}
	if !strings.Contains(src, "else if ((x) == (0.0))") || !strings.Contains(src, "else if ((x) >= (100.0))") {
		t.Errorf("unexpected comparisons:\n%s", src)
	}
}

func TestEmitIntrinsics(t *testing.T) {
	b := ast.NewBuilder("k").Outputs(3)
	x := b.Param("x")
	y := b.Param("y")
	def := b.Add(ast.Return(
		ast.Unary(ast.OpAbs, x),
		ast.Binary(ast.OpPow, x, y),
		ast.Binary(ast.OpMin, ast.Pi(), ast.Binary(ast.OpAnd, x, y)),
	)).MustBuild()

	src, err := Emit(session.New(nil), def)
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	for _, want := range []string{"fabs(x)", "pow(x, y)", "numfn_min(MATH_PI, (x) && (y))", "double y = numfn_in[1];"} {
		if !strings.Contains(src, want) {
			t.Errorf("emitted source lacks %q", want)
		}
	}
}

func TestEmitDeduplicatesSubfunctions(t *testing.T) {
	lib := ast.NewLibrary(
		calling("b", "d"),
		calling("c", "d"),
		unary("d", ast.OpSqrt),
	)
	sess := session.New(lib)
	src, err := Emit(sess, calling("a", "b", "c"))
	if err != nil {
		t.Fatalf("emit: %v", err)
	}

	decl := "static inline double NUMFN_Subfunction_d(double x);"
	if got := strings.Count(sess.Declarations.String(), decl); got != 1 {
		t.Errorf("declaration of d appears %d times", got)
	}
	if got := strings.Count(sess.Definitions.String(), "static inline double NUMFN_Subfunction_d(double x)\n{"); got != 1 {
		t.Errorf("definition of d appears %d times", got)
	}
	if got := sess.Built(session.KindSource); strings.Join(got, ",") != "d,b,c" {
		t.Errorf("build order = %v, want d,b,c", got)
	}
	if !strings.Contains(src, "(0.0)+(NUMFN_Subfunction_b(x))") {
		t.Errorf("call site missing:\n%s", src)
	}
}

func TestEmitErrors(t *testing.T) {
	tests := []struct {
		name string
		def  func() *ast.FunctionDefinition
		lib  *ast.Library
		code diagnostics.Code
		msg  string
	}{
		{
			name: "read-only assignment",
			def: func() *ast.FunctionDefinition {
				b := ast.NewBuilder("h")
				k := b.Global("k", 2)
				return b.Add(ast.Assign(k, ast.Num(1)), ast.Return(k)).MustBuild()
			},
			code: diagnostics.ErrC001,
			msg:  "global variable k is read-only",
		},
		{
			name: "sub-function returns two values",
			def:  func() *ast.FunctionDefinition { return calling("h", "two") },
			lib: ast.NewLibrary(func() *ast.FunctionDefinition {
				b := ast.NewBuilder("two")
				x := b.Param("x")
				return b.Add(ast.Return(x, x)).MustBuild()
			}()),
			code: diagnostics.ErrC003,
			msg:  "may not return more than one value",
		},
		{
			name: "sub-function output arity",
			def:  func() *ast.FunctionDefinition { return calling("h", "pair") },
			lib: ast.NewLibrary(func() *ast.FunctionDefinition {
				b := ast.NewBuilder("pair").Outputs(2)
				x := b.Param("x")
				return b.Add(ast.Return(x, x)).MustBuild()
			}()),
			code: diagnostics.ErrC002,
			msg:  "exactly one return value (not 2)",
		},
		{
			name: "unknown sub-function",
			def:  func() *ast.FunctionDefinition { return calling("h", "nope") },
			lib:  ast.NewLibrary(),
			code: diagnostics.ErrC004,
		},
		{
			name: "recursion",
			def:  func() *ast.FunctionDefinition { return calling("h", "h") },
			lib:  ast.NewLibrary(calling("h", "h")),
			code: diagnostics.ErrC005,
		},
		{
			name: "break outside loop",
			def: func() *ast.FunctionDefinition {
				return ast.NewBuilder("h").Outputs(0).Add(ast.Break()).MustBuild()
			},
			code: diagnostics.ErrC006,
		},
		{
			name: "call argument count",
			def: func() *ast.FunctionDefinition {
				b := ast.NewBuilder("h")
				x := b.Param("x")
				return b.Add(ast.Return(ast.Call("sq", x, x))).MustBuild()
			},
			lib:  ast.NewLibrary(unary("sq", ast.OpSqrt)),
			code: diagnostics.ErrC007,
		},
		{
			name: "discarded call",
			def: func() *ast.FunctionDefinition {
				b := ast.NewBuilder("h").Outputs(0)
				x := b.Param("x")
				return b.Add(ast.Call("sq", x)).MustBuild()
			},
			lib:  ast.NewLibrary(unary("sq", ast.OpSqrt)),
			code: diagnostics.ErrC009,
		},
		{
			name: "named slot count",
			def: func() *ast.FunctionDefinition {
				b := ast.NewBuilder("h").Outputs(2).Returns(ast.VelocityReturn)
				x := b.Param("x")
				return b.Add(ast.Return(x)).MustBuild()
			},
			code: diagnostics.ErrC003,
			msg:  "velocityReturn expects 2 return values, got 1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lib := tt.lib
			if lib == nil {
				lib = ast.NewLibrary()
			}
			src, err := Emit(session.New(lib), tt.def())
			if err == nil {
				t.Fatalf("expected %s, got source:\n%s", tt.code, src)
			}
			if src != "" {
				t.Errorf("partial output returned with error")
			}
			if !diagnostics.HasCode(err, tt.code) {
				t.Fatalf("error %v does not carry %s", err, tt.code)
			}
			if tt.msg != "" && !strings.Contains(err.Error(), tt.msg) {
				t.Errorf("error %q does not mention %q", err, tt.msg)
			}
		})
	}
}

func TestEmitNamedSlots(t *testing.T) {
	b := ast.NewBuilder("diff").Outputs(4).Returns(ast.DiffusionReturn)
	x := b.Param("x")
	def := b.Add(ast.Return(x, ast.Num(0), ast.Num(0), x)).MustBuild()

	src, err := Emit(session.New(nil), def)
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	want := "\tA11 = x;\n\tA12 = 0.0;\n\tA21 = 0.0;\n\tA22 = x;\n\t// diffusionReturn\n" +
		"\tnumfn_ret[0] = A11;\n\tnumfn_ret[1] = A12;\n\tnumfn_ret[2] = A21;\n\tnumfn_ret[3] = A22;\n\treturn 1;\n"
	if !strings.Contains(src, want) {
		t.Errorf("named slot lowering missing:\n%s", src)
	}
	if !strings.Contains(src, "\tdouble A11 = 0;\n") {
		t.Errorf("return slots not declared")
	}
}

func TestEmitOptions(t *testing.T) {
	opts := Options{Prefix: "Sub_", OutputArray: "out", InputArray: "in"}
	src, err := EmitWith(session.New(ast.NewLibrary(unary("d", ast.OpCos))), calling("a", "d"), opts)
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	for _, want := range []string{"int a(double *out, double *in)", "Sub_d(x)", "static inline double Sub_d(double x);"} {
		if !strings.Contains(src, want) {
			t.Errorf("emitted source lacks %q", want)
		}
	}
}

func TestLiteral(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{3, "3.0"},
		{-2, "-2.0"},
		{0.5, "0.5"},
		{1e21, "1e+21"},
		{math.Copysign(0, -1), "-0.0"},
		{math.Inf(1), "HUGE_VAL"},
		{math.Inf(-1), "(-HUGE_VAL)"},
		{math.NaN(), "NAN"},
	}
	for _, tt := range tests {
		if got := Literal(tt.in); got != tt.want {
			t.Errorf("Literal(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func localNamed(name string) *ast.FunctionDefinition {
	b := ast.NewBuilder("f").Returns(ast.SingleValue{})
	x := b.Param("x")
	v := b.Local(name)
	return b.Add(ast.Assign(v, ast.Unary(ast.OpExp, x)), ast.Return(v)).MustBuild()
}

func TestEmitRejectsCollidingNames(t *testing.T) {
	lib := ast.NewLibrary(unary("sq", ast.OpSqrt))
	tests := []struct {
		name string
		def  *ast.FunctionDefinition
		msg  string
	}{
		{"keyword", localNamed("double"), "reserved in C"},
		{"pi macro", localNamed("MATH_PI"), "reserved in C"},
		{"min helper", localNamed("numfn_min"), "reserved in C"},
		{"max helper", localNamed("numfn_max"), "reserved in C"},
		{"output array", localNamed("numfn_ret"), "argument arrays"},
		{"input array", localNamed("numfn_in"), "argument arrays"},
		{"called intrinsic", localNamed("exp"), "shadows a function"},
		{
			"called sub-function",
			func() *ast.FunctionDefinition {
				b := ast.NewBuilder("f").Returns(ast.SingleValue{})
				x := b.Param("x")
				b.Local("NUMFN_Subfunction_sq")
				return b.Add(ast.Return(ast.Call("sq", x))).MustBuild()
			}(),
			"shadows a function",
		},
		{
			"function name",
			func() *ast.FunctionDefinition {
				b := ast.NewBuilder("while").Returns(ast.SingleValue{})
				x := b.Param("x")
				return b.Add(ast.Return(x)).MustBuild()
			}(),
			"function name",
		},
		{
			"return slot label",
			func() *ast.FunctionDefinition {
				b := ast.NewBuilder("f").Returns(ast.NamedSlots{Labels: []string{"numfn_ret"}, Exit: "out"})
				x := b.Param("x")
				return b.Add(ast.Return(x)).MustBuild()
			}(),
			"return slot name",
		},
		{
			"return slot keyword",
			func() *ast.FunctionDefinition {
				b := ast.NewBuilder("f").Returns(ast.NamedSlots{Labels: []string{"int", "y"}, Exit: "out"})
				x := b.Param("x")
				return b.Add(ast.Return(x, x)).MustBuild()
			}(),
			"reserved in C",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := Emit(session.New(lib), tt.def)
			if !diagnostics.HasCode(err, diagnostics.ErrC010) {
				t.Fatalf("got %v, want C010; source:\n%s", err, src)
			}
			if !strings.Contains(err.Error(), tt.msg) {
				t.Errorf("error %q does not mention %q", err, tt.msg)
			}
		})
	}

	// Intrinsic names are free when the body does not call them, and the
	// array names follow the options.
	if _, err := Emit(session.New(nil), localNamed("cos")); err != nil {
		t.Errorf("local cos: %v", err)
	}
	opts := Options{Prefix: "Sub_", OutputArray: "out", InputArray: "in"}
	if _, err := EmitWith(session.New(nil), localNamed("numfn_ret"), opts); err != nil {
		t.Errorf("numfn_ret with renamed arrays: %v", err)
	}
	if _, err := EmitWith(session.New(nil), localNamed("in"), opts); !diagnostics.HasCode(err, diagnostics.ErrC010) {
		t.Errorf("in with renamed arrays: %v", err)
	}
}

// sameFloat compares a C result with the VM result, allowing for libm
// rounding in the last bits.
func sameFloat(got, want float64) bool {
	if math.IsNaN(want) {
		return math.IsNaN(got)
	}
	if want == 0 {
		return got == 0 && math.Signbit(got) == math.Signbit(want)
	}
	return math.Abs(got-want) <= 1e-12*math.Max(1, math.Abs(want))
}

// TestEmittedSourceCompiles compiles the emitted source with the system C
// compiler, when one is installed, and checks it against the VM.
func TestEmittedSourceCompiles(t *testing.T) {
	cc, err := exec.LookPath("cc")
	if err != nil {
		t.Skip("no C compiler available")
	}

	lib := ast.NewLibrary(
		func() *ast.FunctionDefinition {
			b := ast.NewBuilder("sq").Returns(ast.SingleValue{})
			x := b.Param("x")
			return b.Add(ast.Return(ast.Binary(ast.OpMul, x, x))).MustBuild()
		}(),
		func() *ast.FunctionDefinition {
			b := ast.NewBuilder("shifted").Returns(ast.SingleValue{})
			x := b.Param("x")
			return b.Add(ast.Return(ast.Binary(ast.OpAdd, ast.Call("sq", x), ast.Num(1)))).MustBuild()
		}(),
	)

	subs := func() *ast.FunctionDefinition {
		b := ast.NewBuilder("subs")
		x := b.Param("x")
		y := b.Param("y")
		return b.Add(ast.Return(ast.Binary(ast.OpSub, ast.Call("shifted", x), ast.Call("sq", y)))).MustBuild()
	}()
	sign := func() *ast.FunctionDefinition {
		b := ast.NewBuilder("sign").Returns(ast.SingleValue{})
		x := b.Param("x")
		return b.Add(ast.If(
			ast.Binary(ast.OpLT, x, ast.Num(0)), ast.Return(ast.Num(-1)),
			ast.ElseIf(ast.Binary(ast.OpEQ, x, ast.Num(0)), ast.Return(ast.Num(0)),
				ast.ElseIf(ast.Binary(ast.OpGE, x, ast.Num(100)), ast.Return(ast.Num(2)),
					ast.Else(ast.Return(ast.Num(1)))))),
		).MustBuild()
	}()
	diffusion := func() *ast.FunctionDefinition {
		b := ast.NewBuilder("diff").Returns(ast.DiffusionReturn)
		x := b.Param("x")
		y := b.Param("y")
		return b.Add(ast.Return(
			x,
			ast.Binary(ast.OpPow, x, y),
			ast.Binary(ast.OpPow, y, x),
			ast.Unary(ast.OpCos, ast.Binary(ast.OpMul, ast.Pi(), y)),
		)).MustBuild()
	}()
	minmax := func() *ast.FunctionDefinition {
		b := ast.NewBuilder("mm").Outputs(2)
		x := b.Param("x")
		y := b.Param("y")
		return b.Add(ast.Return(ast.Binary(ast.OpMin, x, y), ast.Binary(ast.OpMax, x, y))).MustBuild()
	}()

	tests := []struct {
		def *ast.FunctionDefinition
		in  []float64
	}{
		{absFunction(), []float64{-3}},
		{absFunction(), []float64{4}},
		{loopFunction(), []float64{0}},
		{subs, []float64{3, 2}},
		{subs, []float64{-1.5, 0.25}},
		{sign, []float64{-5}},
		{sign, []float64{0}},
		{sign, []float64{150}},
		{sign, []float64{7}},
		{diffusion, []float64{2, 3}},
		{diffusion, []float64{0.5, -1}},
		{minmax, []float64{1, 2}},
		{minmax, []float64{math.NaN(), 2}},
		{minmax, []float64{3, math.NaN()}},
		{minmax, []float64{math.Copysign(0, -1), 0}},
		{minmax, []float64{0, math.Copysign(0, -1)}},
	}
	for _, tt := range tests {
		src, err := Emit(session.New(lib), tt.def)
		if err != nil {
			t.Fatalf("emit %s: %v", tt.def.Name, err)
		}
		unit, err := vm.Compile(session.New(lib), tt.def)
		if err != nil {
			t.Fatalf("compile %s: %v", tt.def.Name, err)
		}
		m, err := vm.NewMachine(unit)
		if err != nil {
			t.Fatal(err)
		}
		want := make([]float64, tt.def.NumOut)
		m.Call(tt.in, want)

		inputs := make([]string, len(tt.in))
		for i, v := range tt.in {
			inputs[i] = Literal(v)
		}
		var harness strings.Builder
		harness.WriteString("#include <stdio.h>\n")
		harness.WriteString(src)
		fmt.Fprintf(&harness, "int main(void)\n{\n\tdouble in[%d] = {%s};\n\tdouble out[%d];\n",
			len(tt.in), strings.Join(inputs, ", "), tt.def.NumOut)
		fmt.Fprintf(&harness, "\tint r = %s(out, in);\n\tprintf(\"%%d\", r);\n", tt.def.Name)
		fmt.Fprintf(&harness, "\tfor (int i = 0; i < %d; i++) printf(\" %%.17g\", out[i]);\n", tt.def.NumOut)
		harness.WriteString("\tprintf(\"\\n\");\n\treturn 0;\n}\n")

		dir := t.TempDir()
		file := filepath.Join(dir, "main.c")
		bin := filepath.Join(dir, "main")
		if err := os.WriteFile(file, []byte(harness.String()), 0o644); err != nil {
			t.Fatal(err)
		}
		if out, err := exec.Command(cc, "-std=c99", "-o", bin, file, "-lm").CombinedOutput(); err != nil {
			t.Fatalf("cc failed: %v\n%s\n%s", err, out, harness.String())
		}
		out, err := exec.Command(bin).Output()
		if err != nil {
			t.Fatalf("run: %v", err)
		}

		fields := strings.Fields(string(out))
		if len(fields) != 1+len(want) || fields[0] != "1" {
			t.Errorf("%s%v printed %q", tt.def.Name, tt.in, out)
			continue
		}
		for i, f := range fields[1:] {
			got, err := strconv.ParseFloat(f, 64)
			if strings.HasSuffix(strings.ToLower(f), "nan") {
				got, err = math.NaN(), nil
			}
			if err != nil {
				t.Fatalf("%s%v: output %q: %v", tt.def.Name, tt.in, f, err)
			}
			if !sameFloat(got, want[i]) {
				t.Errorf("%s%v output %d: C %v, VM %v", tt.def.Name, tt.in, i, got, want[i])
			}
		}
	}
}
