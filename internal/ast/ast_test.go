package ast

import (
	"reflect"
	"testing"

	"github.com/funvibe/numfn/internal/diagnostics"
)

func TestBuilderSlots(t *testing.T) {
	b := NewBuilder("f")
	x := b.Param("x")
	acc := b.Local("acc")
	k := b.Global("k", 2)
	y := b.Param("y")
	def := b.MustBuild()

	if x.Slot != 1 || acc.Slot != 2 || k.Slot != 3 || y.Slot != 4 {
		t.Fatalf("slots x=%d acc=%d k=%d y=%d", x.Slot, acc.Slot, k.Slot, y.Slot)
	}
	if def.NumIn() != 2 || !reflect.DeepEqual(def.Params, []int{1, 4}) {
		t.Errorf("params %v", def.Params)
	}
	if got := def.ParamVars(); got[0].Name != "x" || got[1].Name != "y" {
		t.Errorf("param vars %v", got)
	}
	if v, ok := def.Lookup("k"); !ok || v.Assignable() || v.Value != 2 {
		t.Errorf("k = %+v, %v", v, ok)
	}
	if v, ok := def.Var(2); !ok || v.Name != "acc" || v.Kind != Local {
		t.Errorf("slot 2 = %+v, %v", v, ok)
	}
	if _, ok := def.Var(9); ok {
		t.Error("slot 9 should not exist")
	}
	if len(def.VarsOf(Global)) != 1 {
		t.Errorf("globals %v", def.VarsOf(Global))
	}
	if b.Ref("acc").Slot != 2 || b.Ref("nope") != nil {
		t.Error("Ref resolves declared names only")
	}
	if def.NumOut != 1 || def.Return.String() != "generic" {
		t.Errorf("defaults: %d outputs, %s", def.NumOut, def.Return)
	}
}

func TestBuilderErrors(t *testing.T) {
	dup := NewBuilder("f")
	dup.Param("x")
	dup.Local("x")

	collide := NewBuilder("v").Outputs(2).Returns(VelocityReturn)
	collide.Local("vx")

	tests := []struct {
		name string
		b    *Builder
		code diagnostics.Code
	}{
		{"duplicate", dup, diagnostics.ErrD003},
		{"no name", NewBuilder(""), diagnostics.ErrD003},
		{"negative outputs", NewBuilder("f").Outputs(-1), diagnostics.ErrD003},
		{"contract count", NewBuilder("f").Outputs(2).Returns(SingleValue{}), diagnostics.ErrC003},
		{"label collision", collide, diagnostics.ErrD003},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.b.Build()
			if !diagnostics.HasCode(err, tt.code) {
				t.Errorf("got %v, want %s", err, tt.code)
			}
		})
	}
}

func TestReturnsSetsOutputs(t *testing.T) {
	tests := []struct {
		name string
		b    *Builder
		want int
	}{
		{"diffusion", NewBuilder("d").Returns(DiffusionReturn), 4},
		{"velocity", NewBuilder("v").Returns(VelocityReturn), 2},
		{"single", NewBuilder("s").Returns(SingleValue{}), 1},
		{"generic keeps default", NewBuilder("g").Returns(Generic{}), 1},
		{"generic keeps outputs", NewBuilder("g").Outputs(3).Returns(Generic{}), 3},
		{"outputs after contract", NewBuilder("d").Returns(DiffusionReturn).Outputs(4), 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, err := tt.b.Build()
			if err != nil {
				t.Fatal(err)
			}
			if def.NumOut != tt.want {
				t.Errorf("NumOut = %d, want %d", def.NumOut, tt.want)
			}
		})
	}

	// An explicit count still has to agree with the contract.
	if _, err := NewBuilder("d").Returns(DiffusionReturn).Outputs(2).Build(); !diagnostics.HasCode(err, diagnostics.ErrC003) {
		t.Errorf("got %v, want C003", err)
	}
}

func TestFlatten(t *testing.T) {
	a, b, c := Num(1), Num(2), Num(3)
	if got := Flatten(List(a, b, c), OpList); !reflect.DeepEqual(got, []Node{a, b, c}) {
		t.Errorf("list: %v", got)
	}
	if got := Flatten(a, OpList); len(got) != 1 || got[0] != a {
		t.Errorf("single: %v", got)
	}
	if got := Flatten(nil, OpSeq); len(got) != 0 {
		t.Errorf("nil: %v", got)
	}
	if Seq() != nil || Seq(a) != a {
		t.Error("Seq of zero or one statement is not chained")
	}
}

func TestContracts(t *testing.T) {
	for name, want := range map[string]int{
		"single": 1, "generic": -1, "diffusion": 4, "velocity": 2, "dirichlet": 1, "source": 1,
	} {
		c, ok := ContractByName(name)
		if !ok || ValueCount(c) != want {
			t.Errorf("%s: %v %v", name, c, ok)
		}
	}
	if _, ok := ContractByName("vector"); ok {
		t.Error("unknown contract resolved")
	}
	if got := VelocityReturn.String(); got != "velocityReturn(vx, vy)" {
		t.Errorf("velocity contract prints %q", got)
	}
}

func calls(name string, callees ...string) *FunctionDefinition {
	b := NewBuilder(name).Returns(SingleValue{})
	x := b.Param("x")
	var sum Node = Num(0)
	for _, c := range callees {
		sum = Binary(OpAdd, sum, Call(c, x))
	}
	return b.Add(Return(sum)).MustBuild()
}

func TestCalleesAndClosure(t *testing.T) {
	lib := NewLibrary(
		calls("a", "b", "c", "b"),
		calls("b", "d"),
		calls("c", "d", "ghost"),
		calls("d"),
	)
	root, err := lib.Lookup("a")
	if err != nil {
		t.Fatal(err)
	}
	if got := root.Callees(); !reflect.DeepEqual(got, []string{"b", "c"}) {
		t.Errorf("callees %v", got)
	}

	var names []string
	for _, def := range Closure(root, lib.Lookup) {
		names = append(names, def.Name)
	}
	if want := []string{"d", "b", "c", "a"}; !reflect.DeepEqual(names, want) {
		t.Errorf("closure %v, want %v", names, want)
	}
}

func TestLibrary(t *testing.T) {
	lib := NewLibrary(calls("f"), calls("g"))
	lib.Add(calls("f", "g"))
	if !reflect.DeepEqual(lib.Names(), []string{"f", "g"}) || lib.Len() != 2 {
		t.Errorf("names %v", lib.Names())
	}
	f, _ := lib.Lookup("f")
	if len(f.Callees()) != 1 {
		t.Error("Add did not replace f")
	}
	if _, err := lib.Lookup("h"); !diagnostics.HasCode(err, diagnostics.ErrC004) {
		t.Errorf("lookup h: %v", err)
	}
}

func TestLookupOp(t *testing.T) {
	for _, name := range []string{"+", "<=", "&&", "neg", "sqrt", "pow", "min", "pi"} {
		op, ok := LookupOp(name)
		if !ok {
			t.Errorf("%s not found", name)
			continue
		}
		if op.String() != name {
			t.Errorf("%s prints as %s", name, op)
		}
	}
	if _, ok := LookupOp("%"); ok {
		t.Error("modulo is not an operator")
	}
}
