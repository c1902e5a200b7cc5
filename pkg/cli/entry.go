// Package cli implements the numfn command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/funvibe/numfn/internal/ast"
	"github.com/funvibe/numfn/internal/backend"
	"github.com/funvibe/numfn/internal/cache"
	"github.com/funvibe/numfn/internal/config"
	"github.com/funvibe/numfn/internal/document"
	"github.com/funvibe/numfn/internal/logio"
	"github.com/funvibe/numfn/internal/pipeline"
	"github.com/funvibe/numfn/internal/prettyprinter"
	"github.com/funvibe/numfn/internal/repl"
	"github.com/funvibe/numfn/internal/service"
	"github.com/funvibe/numfn/internal/vm"
)

// BackendType is the execution backend used when --backend is not given.
// Can be set at build time using: -ldflags "-X github.com/funvibe/numfn/pkg/cli.BackendType=tree"
var BackendType = config.BackendVM

const usage = `usage: numfn <command> [flags] [arguments]

commands:
  emit <doc> [function]              write the C source of a function
  compile <doc> [function]           show the bytecode of a function
  run <doc|bundle> <function> [x...] evaluate a function on inputs
  bundle <doc> [function]            write a bytecode bundle (.nfb)
  print <doc> [function]             pretty-print the definitions
  repl <doc> [function]              evaluate interactively
  serve <doc>                        serve the document over gRPC
  call <addr> <function> [x...]      evaluate on a running server
  cache clean|stats                  manage the artifact cache
  help                               show this text

flags:
  --backend vm|tree|c   build backend (default vm)
  --config <file>       numfn.yaml to use instead of searching for one
  --listen <addr>       address for serve
  -o <file>             output file for emit and bundle
  --trace               trace VM execution to stderr
  -v                    verbose progress on stderr
`

// errUsage reports a malformed command line; the usage text has already
// been printed.
var errUsage = errors.New("usage")

// App is one invocation of the command line.
type App struct {
	Stdout io.Writer
	Stderr io.Writer

	args       []string
	backend    string
	configPath string
	listen     string
	output     string
	trace      bool
	verbose    bool

	cfg *config.Config
	log *logio.Logger
}

// Main runs the command line of the process and exits.
func Main() {
	app := &App{Stdout: os.Stdout, Stderr: os.Stderr}
	os.Exit(app.Run(os.Args[1:]))
}

// Run executes args (without the program name) and returns the exit status.
func (a *App) Run(args []string) int {
	if err := a.parseFlags(args); err != nil {
		fmt.Fprintf(a.Stderr, "error: %v\n\n%s", err, usage)
		return 2
	}
	if len(a.args) == 0 {
		fmt.Fprint(a.Stderr, usage)
		return 2
	}

	handlers := map[string]func([]string) error{
		"emit":    a.handleEmit,
		"compile": a.handleCompile,
		"run":     a.handleRun,
		"bundle":  a.handleBundle,
		"print":   a.handlePrint,
		"repl":    a.handleRepl,
		"serve":   a.handleServe,
		"call":    a.handleCall,
		"cache":   a.handleCache,
	}
	cmd, rest := a.args[0], a.args[1:]
	switch cmd {
	case "help", "-help", "--help", "-h":
		fmt.Fprint(a.Stdout, usage)
		return 0
	}
	h, ok := handlers[cmd]
	if !ok {
		fmt.Fprintf(a.Stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}
	if err := h(rest); err != nil {
		if errors.Is(err, errUsage) {
			return 2
		}
		a.logger().Errorf("%v", err)
		return 1
	}
	return 0
}

func (a *App) parseFlags(args []string) error {
	a.backend = BackendType
	for i := 0; i < len(args); i++ {
		arg := args[i]
		value := func() (string, error) {
			if i+1 >= len(args) {
				return "", fmt.Errorf("%s needs a value", arg)
			}
			i++
			return args[i], nil
		}
		var err error
		switch arg {
		case "--backend":
			a.backend, err = value()
		case "--config":
			a.configPath, err = value()
		case "--listen":
			a.listen, err = value()
		case "-o":
			a.output, err = value()
		case "--trace":
			a.trace = true
		case "-v", "--verbose":
			a.verbose = true
		default:
			if strings.HasPrefix(arg, "--") {
				return fmt.Errorf("unknown flag %s", arg)
			}
			a.args = append(a.args, arg)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (a *App) usageError(format string, args ...interface{}) error {
	fmt.Fprintf(a.Stderr, "error: %s\n\n%s", fmt.Sprintf(format, args...), usage)
	return errUsage
}

func (a *App) logger() *logio.Logger {
	if a.log == nil {
		a.log = logio.New(a.Stderr, a.verbose)
	}
	return a.log
}

// loadConfig uses --config, or searches upwards from dir for numfn.yaml.
func (a *App) loadConfig(dir string) (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	path := a.configPath
	if path == "" {
		found, err := config.FindConfig(dir)
		if err != nil {
			return nil, err
		}
		path = found
	}
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.LoadConfig(path); err != nil {
			return nil, err
		}
	}
	if cfg.Verbose {
		a.verbose = true
		a.log = nil
	}
	a.cfg = cfg
	a.logger().Verbosef("config: %s", describe(path))
	return cfg, nil
}

func describe(path string) string {
	if path == "" {
		return "defaults"
	}
	return path
}

func (a *App) openCache(cfg *config.Config) *cache.Cache {
	path := cfg.CachePath()
	if path == "" {
		return nil
	}
	c, err := cache.Open(path)
	if err != nil {
		a.logger().Warnf("cache disabled: %v", err)
		return nil
	}
	return c
}

// build runs the load, select and build stages for the function name of
// the document at path.
func (a *App) build(path, name, backendName string) (*pipeline.PipelineContext, error) {
	cfg, err := a.loadConfig(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	opts := backend.Options{Config: cfg}
	if a.trace {
		opts.Trace = a.Stderr
	}
	b, err := backend.New(backendName, opts)
	if err != nil {
		return nil, err
	}
	c := a.openCache(cfg)
	if c != nil {
		defer c.Close()
	}
	ctx := pipeline.NewPipelineContext(path, name, cfg, a.logger())
	ctx = pipeline.New(
		pipeline.DocumentLoader{},
		pipeline.FunctionSelector{},
		backend.NewBuildProcessor(b, c),
	).Run(ctx)
	return ctx, ctx.Err()
}

func optionalName(args []string) string {
	if len(args) > 1 {
		return args[1]
	}
	return ""
}

func (a *App) write(data []byte) error {
	if a.output == "" {
		_, err := a.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(a.output, data, 0o644); err != nil {
		return err
	}
	a.logger().Verbosef("wrote %s (%d bytes)", a.output, len(data))
	return nil
}

func (a *App) handleEmit(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return a.usageError("emit takes a document and an optional function")
	}
	ctx, err := a.build(args[0], optionalName(args), config.BackendSource)
	if err != nil {
		return err
	}
	return a.write([]byte(ctx.Artifact.(*backend.Source).Text))
}

func (a *App) handleCompile(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return a.usageError("compile takes a document and an optional function")
	}
	ctx, err := a.build(args[0], optionalName(args), config.BackendVM)
	if err != nil {
		return err
	}
	fmt.Fprint(a.Stdout, vm.DisassembleAll(ctx.Artifact.(*backend.Bytecode).Unit))
	return nil
}

func (a *App) handleBundle(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return a.usageError("bundle takes a document and an optional function")
	}
	ctx, err := a.build(args[0], optionalName(args), config.BackendVM)
	if err != nil {
		return err
	}
	data, err := vm.NewBundle(ctx.Artifact.(*backend.Bytecode).Unit).Serialize()
	if err != nil {
		return err
	}
	if a.output == "" {
		a.output = filepath.Join(filepath.Dir(args[0]), ctx.FunctionName+config.BundleFileExt)
	}
	if err := a.write(data); err != nil {
		return err
	}
	fmt.Fprintf(a.Stdout, "Compiled %s -> %s (%d bytes)\n", ctx.FunctionName, a.output, len(data))
	return nil
}

func (a *App) handleRun(args []string) error {
	if len(args) < 2 {
		return a.usageError("run takes a document or bundle, a function and its inputs")
	}
	in, err := repl.ParseInputs(strings.Join(args[2:], " "))
	if err != nil {
		return err
	}

	var exe backend.Executable
	if strings.HasSuffix(args[0], config.BundleFileExt) {
		exe, err = a.loadBundle(args[0], args[1])
		if err != nil {
			return err
		}
	} else {
		ctx, err := a.build(args[0], args[1], a.backend)
		if err != nil {
			return err
		}
		var ok bool
		if exe, ok = ctx.Artifact.(backend.Executable); !ok {
			return fmt.Errorf("the %s backend cannot evaluate", a.backend)
		}
	}

	ctx := &pipeline.PipelineContext{Artifact: exe, Inputs: in, Log: a.logger()}
	ctx = backend.NewExecutionProcessor().Process(ctx)
	if err := ctx.Err(); err != nil {
		return err
	}
	fmt.Fprintln(a.Stdout, repl.FormatOutputs(ctx.Outputs))
	return nil
}

func (a *App) loadBundle(path, name string) (backend.Executable, error) {
	cfg, err := a.loadConfig(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var trace io.Writer
	if a.trace {
		trace = a.Stderr
	}
	bc, err := backend.NewVM(cfg.StackCapacity, trace).LoadBundle(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if bc.FunctionName() != name {
		return nil, fmt.Errorf("%s holds %s, not %s", path, bc.FunctionName(), name)
	}
	return bc, nil
}

func (a *App) handlePrint(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return a.usageError("print takes a document and an optional function")
	}
	lib, err := document.Load(args[0])
	if err != nil {
		return err
	}
	if name := optionalName(args); name != "" {
		def, err := lib.Lookup(name)
		if err != nil {
			return err
		}
		fmt.Fprint(a.Stdout, prettyprinter.Function(def))
		return nil
	}
	defs := make([]*ast.FunctionDefinition, 0, lib.Len())
	for _, name := range lib.Names() {
		def, _ := lib.Lookup(name)
		defs = append(defs, def)
	}
	fmt.Fprint(a.Stdout, prettyprinter.Functions(defs))
	return nil
}

func (a *App) handleRepl(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return a.usageError("repl takes a document and an optional function")
	}
	cfg, err := a.loadConfig(filepath.Dir(args[0]))
	if err != nil {
		return err
	}
	lib, err := document.Load(args[0])
	if err != nil {
		return err
	}
	name := optionalName(args)
	if name == "" && lib.Len() > 0 {
		name = lib.Names()[0]
	}
	b, err := backend.New(a.backend, backend.Options{Config: cfg})
	if err != nil {
		return err
	}
	sh, err := repl.New(lib, name, b, cfg, a.Stdout)
	if err != nil {
		return err
	}
	return sh.Run()
}

func (a *App) handleServe(args []string) error {
	if len(args) != 1 {
		return a.usageError("serve takes a document")
	}
	cfg, err := a.loadConfig(filepath.Dir(args[0]))
	if err != nil {
		return err
	}
	lib, err := document.Load(args[0])
	if err != nil {
		return err
	}
	srv, err := service.New(lib, cfg, a.logger())
	if err != nil {
		return err
	}
	addr := a.listen
	if addr == "" {
		addr = cfg.Listen
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	fmt.Fprintf(a.Stdout, "serving %s on %s\n", args[0], addr)
	return srv.ListenAndServe(ctx, addr)
}

func (a *App) handleCall(args []string) error {
	if len(args) < 2 {
		return a.usageError("call takes an address, a function and its inputs")
	}
	in, err := repl.ParseInputs(strings.Join(args[2:], " "))
	if err != nil {
		return err
	}
	c, err := service.Dial(args[0])
	if err != nil {
		return err
	}
	defer c.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	out, err := c.Evaluate(ctx, args[1], in)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.Stdout, repl.FormatOutputs(out))
	return nil
}

func (a *App) handleCache(args []string) error {
	if len(args) != 1 || (args[0] != "clean" && args[0] != "stats") {
		return a.usageError("cache takes clean or stats")
	}
	cfg, err := a.loadConfig(".")
	if err != nil {
		return err
	}
	path := cfg.CachePath()
	if path == "" {
		fmt.Fprintln(a.Stdout, "cache is disabled")
		return nil
	}
	c, err := cache.Open(path)
	if err != nil {
		return err
	}
	defer c.Close()

	if args[0] == "clean" {
		n, err := c.Clean()
		if err != nil {
			return err
		}
		fmt.Fprintf(a.Stdout, "removed %d entries from %s\n", n, path)
		return nil
	}
	st, err := c.Stats()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Stdout, "%s: %d entries, %d bytes, %d hits\n", path, st.Entries, st.Bytes, st.Hits)
	for _, name := range []string{config.BackendVM, config.BackendSource} {
		if n := st.ByBackend[name]; n > 0 {
			fmt.Fprintf(a.Stdout, "  %-4s %d\n", name, n)
		}
	}
	return nil
}
