package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const doc = `
functions:
  - name: f
    params: [x]
    return: single
    body:
      - if: {"<": [x, 0]}
        then: [{return: [{neg: x}]}]
        else: [{return: [x]}]

  - name: g
    params: [x, y]
    outputs: 2
    body:
      - return: [{call: [f, x]}, {"*": [x, y]}]
`

// workspace writes the test document and a numfn.yaml keeping the cache
// inside the temp dir.
func workspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "phys.nf.yaml"), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "numfn.yaml"), []byte("cache: cache.db\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	app := &App{Stdout: &stdout, Stderr: &stderr}
	code := app.Run(args)
	return code, stdout.String(), stderr.String()
}

func TestRun(t *testing.T) {
	dir := workspace(t)
	path := filepath.Join(dir, "phys.nf.yaml")

	tests := []struct {
		args []string
		want string
	}{
		{[]string{"run", path, "f", "-3.5"}, "3.5\n"},
		{[]string{"run", path, "g", "-2,", "4"}, "2, -8\n"},
		{[]string{"--backend", "tree", "run", path, "g", "-2", "4"}, "2, -8\n"},
		{[]string{"run", "--backend", "tree", path, "f", "7"}, "7\n"},
	}
	for _, tt := range tests {
		code, out, errOut := run(t, tt.args...)
		if code != 0 {
			t.Fatalf("%v: exit %d: %s", tt.args, code, errOut)
		}
		if out != tt.want {
			t.Errorf("%v: got %q, want %q", tt.args, out, tt.want)
		}
	}
}

func TestRunErrors(t *testing.T) {
	dir := workspace(t)
	path := filepath.Join(dir, "phys.nf.yaml")

	tests := []struct {
		args []string
		code int
		want string
	}{
		{[]string{"run", path, "f"}, 1, "f takes 1 inputs, got 0"},
		{[]string{"run", path, "h", "1"}, 1, "C004"},
		{[]string{"run", path, "f", "one"}, 1, `"one" is not a number`},
		{[]string{"--backend", "c", "run", path, "f", "1"}, 1, "the c backend cannot evaluate"},
		{[]string{"--backend", "llvm", "run", path, "f", "1"}, 1, `unknown backend "llvm"`},
		{[]string{"run", path}, 2, "run takes a document or bundle"},
		{[]string{"frobnicate"}, 2, `unknown command "frobnicate"`},
		{[]string{"--fast", "run"}, 2, "unknown flag --fast"},
		{[]string{"run", "-o"}, 2, "-o needs a value"},
	}
	for _, tt := range tests {
		code, _, errOut := run(t, tt.args...)
		if code != tt.code {
			t.Errorf("%v: exit %d, want %d", tt.args, code, tt.code)
		}
		if !strings.Contains(errOut, tt.want) {
			t.Errorf("%v: stderr %q lacks %q", tt.args, errOut, tt.want)
		}
	}
}

func TestEmitAndCompile(t *testing.T) {
	dir := workspace(t)
	path := filepath.Join(dir, "phys.nf.yaml")

	code, out, errOut := run(t, "emit", path, "g")
	if code != 0 {
		t.Fatalf("emit: exit %d: %s", code, errOut)
	}
	for _, want := range []string{
		"int g(double *numfn_ret, double *numfn_in)",
		"static inline double NUMFN_Subfunction_f(double x);",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("emit output lacks %q", want)
		}
	}

	outPath := filepath.Join(dir, "g.c")
	if code, _, errOut := run(t, "emit", "-o", outPath, path, "g"); code != 0 {
		t.Fatalf("emit -o: exit %d: %s", code, errOut)
	}
	written, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(written) != out {
		t.Errorf("emit -o wrote different text than stdout")
	}

	code, out, errOut = run(t, "compile", path)
	if code != 0 {
		t.Fatalf("compile: exit %d: %s", code, errOut)
	}
	if !strings.HasPrefix(out, "function f, 1 Parameters, 1 variables, 0 subfunctions\n") {
		t.Errorf("compile output starts with %q", strings.SplitN(out, "\n", 2)[0])
	}
}

func TestBundleThenRun(t *testing.T) {
	dir := workspace(t)
	path := filepath.Join(dir, "phys.nf.yaml")

	code, out, errOut := run(t, "bundle", path, "g")
	if code != 0 {
		t.Fatalf("bundle: exit %d: %s", code, errOut)
	}
	bundle := filepath.Join(dir, "g.nfb")
	if !strings.HasPrefix(out, "Compiled g -> "+bundle) {
		t.Errorf("bundle output %q", out)
	}

	code, out, errOut = run(t, "run", bundle, "g", "3", "0.5")
	if code != 0 {
		t.Fatalf("run bundle: exit %d: %s", code, errOut)
	}
	if out != "3, 1.5\n" {
		t.Errorf("run bundle: got %q", out)
	}

	code, _, errOut = run(t, "run", bundle, "f", "3")
	if code != 1 || !strings.Contains(errOut, "holds g, not f") {
		t.Errorf("run bundle with wrong name: exit %d, %q", code, errOut)
	}
}

func TestCacheCommands(t *testing.T) {
	dir := workspace(t)
	path := filepath.Join(dir, "phys.nf.yaml")
	cfg := filepath.Join(dir, "numfn.yaml")

	for i := 0; i < 2; i++ {
		if code, _, errOut := run(t, "-v", "run", path, "g", "1", "2"); code != 0 {
			t.Fatalf("run: exit %d: %s", code, errOut)
		} else if i == 1 && !strings.Contains(errOut, "cache hit") {
			t.Errorf("second run did not hit the cache: %s", errOut)
		}
	}
	if code, _, errOut := run(t, "emit", path, "g"); code != 0 {
		t.Fatalf("emit: exit %d: %s", code, errOut)
	}

	code, out, _ := run(t, "--config", cfg, "cache", "stats")
	if code != 0 {
		t.Fatalf("cache stats: exit %d", code)
	}
	if !strings.Contains(out, "2 entries") || !strings.Contains(out, "1 hits") {
		t.Errorf("cache stats: %q", out)
	}

	code, out, _ = run(t, "--config", cfg, "cache", "clean")
	if code != 0 || !strings.Contains(out, "removed 2 entries") {
		t.Errorf("cache clean: exit %d, %q", code, out)
	}

	if code, _, _ := run(t, "cache", "purge"); code != 2 {
		t.Errorf("cache purge: exit %d, want 2", code)
	}
}

func TestPrint(t *testing.T) {
	dir := workspace(t)
	path := filepath.Join(dir, "phys.nf.yaml")

	code, out, errOut := run(t, "print", path)
	if code != 0 {
		t.Fatalf("print: exit %d: %s", code, errOut)
	}
	for _, want := range []string{"function f(x) -> single\n", "function g(x, y) -> generic 2\n", "return f(x), x * y\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("print output lacks %q:\n%s", want, out)
		}
	}

	code, out, _ = run(t, "print", path, "f")
	if code != 0 || strings.Contains(out, "function g") {
		t.Errorf("print f: exit %d:\n%s", code, out)
	}
}

func TestHelp(t *testing.T) {
	code, out, _ := run(t, "help")
	if code != 0 || !strings.Contains(out, "usage: numfn") {
		t.Errorf("help: exit %d, %q", code, out)
	}
	if code, _, errOut := run(t); code != 2 || !strings.Contains(errOut, "usage: numfn") {
		t.Errorf("no args: exit %d", code)
	}
}
