// Package pipeline chains the stages of a numfn build: loading a document,
// selecting the entry function, building it with a backend and running it.
package pipeline

import (
	"github.com/funvibe/numfn/internal/ast"
	"github.com/funvibe/numfn/internal/config"
	"github.com/funvibe/numfn/internal/document"
	"github.com/funvibe/numfn/internal/logio"
	"github.com/funvibe/numfn/internal/session"
)

// Processor is one stage of a pipeline.
type Processor interface {
	Process(ctx *PipelineContext) *PipelineContext
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx *PipelineContext) *PipelineContext

func (f ProcessorFunc) Process(ctx *PipelineContext) *PipelineContext { return f(ctx) }

// PipelineContext carries the state between stages.
type PipelineContext struct {
	// FilePath is the document to load. Source, when set, is used instead
	// of reading the file.
	FilePath string
	Source   []byte

	// FunctionName selects the entry function.
	FunctionName string

	Config *config.Config
	Log    *logio.Logger

	Library    *document.Library
	Definition *ast.FunctionDefinition
	Session    *session.Session

	// Artifact is the output of the build stage; its concrete type depends
	// on the backend.
	Artifact interface{}
	// Cached reports whether Artifact came from the artifact cache.
	Cached bool

	// Inputs feed the execution stage, which stores the results in Outputs.
	Inputs  []float64
	Outputs []float64

	Errors []error
}

// NewPipelineContext prepares a context for function name of the document
// at path.
func NewPipelineContext(path, name string, cfg *config.Config, log *logio.Logger) *PipelineContext {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logio.Discard()
	}
	return &PipelineContext{FilePath: path, FunctionName: name, Config: cfg, Log: log}
}

// Failed reports whether any stage recorded an error.
func (ctx *PipelineContext) Failed() bool {
	return len(ctx.Errors) > 0
}

// Err returns the first recorded error, or nil.
func (ctx *PipelineContext) Err() error {
	if len(ctx.Errors) == 0 {
		return nil
	}
	return ctx.Errors[0]
}

// AddError records err and returns ctx.
func (ctx *PipelineContext) AddError(err error) *PipelineContext {
	ctx.Errors = append(ctx.Errors, err)
	return ctx
}
