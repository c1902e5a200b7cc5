// Package repl is the interactive evaluation shell of `numfn repl`.
package repl

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/lmorg/readline"

	"github.com/funvibe/numfn/internal/backend"
	"github.com/funvibe/numfn/internal/config"
	"github.com/funvibe/numfn/internal/document"
	"github.com/funvibe/numfn/internal/emitter"
	"github.com/funvibe/numfn/internal/session"
	"github.com/funvibe/numfn/internal/vm"
)

const prompt = "→ "

var commands = map[string]string{
	":dis":  "show the bytecode of the current function",
	":c":    "show the emitted C source of the current function",
	":fn":   "switch to another function, e.g. :fn g",
	":ls":   "list the functions of the document",
	":help": "show this help",
	":quit": "leave the shell",
}

// Shell evaluates one function of a document on lines of numbers.
type Shell struct {
	lib     *document.Library
	cfg     *config.Config
	backend backend.Backend
	out     io.Writer

	fn     backend.Executable
	runner backend.Runner
}

// New opens a shell on function name. b builds the function and must
// produce executable artifacts.
func New(lib *document.Library, name string, b backend.Backend, cfg *config.Config, out io.Writer) (*Shell, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	s := &Shell{lib: lib, cfg: cfg, backend: b, out: out}
	if err := s.use(name); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Shell) use(name string) error {
	def, err := s.lib.Lookup(name)
	if err != nil {
		return err
	}
	a, err := s.backend.Build(session.New(s.lib), def)
	if err != nil {
		return err
	}
	exe, ok := a.(backend.Executable)
	if !ok {
		return fmt.Errorf("the %s backend cannot evaluate", s.backend.Name())
	}
	r, err := exe.NewRunner()
	if err != nil {
		return err
	}
	s.fn, s.runner = exe, r
	return nil
}

// Run reads lines from the terminal until :quit or end of input.
func (s *Shell) Run() error {
	rline := readline.NewInstance()
	rline.TabCompleter = s.complete
	fmt.Fprintf(s.out, "%s: %d inputs, %d outputs. :help lists the commands.\n",
		s.fn.FunctionName(), s.fn.NumIn(), s.fn.NumOut())
	for {
		rline.SetPrompt(s.fn.FunctionName() + " " + prompt)
		line, err := rline.Readline()
		if interrupted(err) {
			continue
		}
		if err != nil {
			return nil
		}
		if s.Do(line) {
			return nil
		}
	}
}

// interrupted reports whether err is readline's Ctrl+C, which readline
// returns as an error carrying the ErrCtrlC text.
func interrupted(err error) bool {
	return err != nil && err.Error() == readline.ErrCtrlC
}

// Do executes one line and reports whether the shell should exit.
func (s *Shell) Do(line string) (quit bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if strings.HasPrefix(line, ":") {
		return s.command(line)
	}
	in, err := ParseInputs(line)
	if err != nil {
		fmt.Fprintf(s.out, "error: %v\n", err)
		return false
	}
	if len(in) != s.fn.NumIn() {
		fmt.Fprintf(s.out, "error: %s takes %d inputs, got %d\n", s.fn.FunctionName(), s.fn.NumIn(), len(in))
		return false
	}
	out, err := s.runner.Run(in)
	if err != nil {
		fmt.Fprintf(s.out, "error: %v\n", err)
		return false
	}
	fmt.Fprintln(s.out, FormatOutputs(out))
	return false
}

func (s *Shell) command(line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case ":quit", ":q":
		return true
	case ":help":
		names := make([]string, 0, len(commands))
		for name := range commands {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(s.out, "  %-6s %s\n", name, commands[name])
		}
	case ":ls":
		for _, name := range s.lib.Names() {
			fmt.Fprintln(s.out, name)
		}
	case ":fn":
		if len(fields) != 2 {
			fmt.Fprintln(s.out, "usage: :fn <function>")
			break
		}
		if err := s.use(fields[1]); err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
	case ":dis":
		def, _ := s.lib.Lookup(s.fn.FunctionName())
		u, err := vm.Compile(session.New(s.lib), def)
		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
			break
		}
		fmt.Fprint(s.out, vm.DisassembleAll(u))
	case ":c":
		def, _ := s.lib.Lookup(s.fn.FunctionName())
		src, err := emitter.EmitWith(session.New(s.lib), def, emitter.OptionsFrom(s.cfg))
		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
			break
		}
		fmt.Fprint(s.out, src)
	default:
		fmt.Fprintf(s.out, "unknown command %s, try :help\n", fields[0])
	}
	return false
}

func (s *Shell) complete(line []rune, pos int, dtx readline.DelayedTabContext) (string, []string, map[string]string, readline.TabDisplayType) {
	prefix := string(line[:pos])
	var candidates []string
	if rest, ok := strings.CutPrefix(prefix, ":fn "); ok {
		for _, name := range s.lib.Names() {
			if strings.HasPrefix(name, rest) {
				candidates = append(candidates, name[len(rest):])
			}
		}
		return prefix, candidates, nil, readline.TabDisplayGrid
	}
	for name := range commands {
		if strings.HasPrefix(name, prefix) {
			candidates = append(candidates, name[len(prefix):])
		}
	}
	sort.Strings(candidates)
	return prefix, candidates, nil, readline.TabDisplayGrid
}

// ParseInputs reads numbers separated by commas and/or white space.
func ParseInputs(line string) ([]float64, error) {
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	in := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("input %d: %q is not a number", i+1, f)
		}
		in[i] = v
	}
	return in, nil
}

// FormatOutputs renders results the way the shell prints them.
func FormatOutputs(out []float64) string {
	parts := make([]string, len(out))
	for i, v := range out {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, ", ")
}
