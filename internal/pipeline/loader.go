package pipeline

import (
	"fmt"

	"github.com/funvibe/numfn/internal/document"
	"github.com/funvibe/numfn/internal/session"
)

// DocumentLoader parses the document named by the context.
type DocumentLoader struct{}

func (DocumentLoader) Process(ctx *PipelineContext) *PipelineContext {
	if ctx.Library != nil {
		return ctx
	}
	var (
		lib *document.Library
		err error
	)
	if ctx.Source != nil {
		lib, err = document.Parse(ctx.Source, ctx.FilePath)
	} else {
		lib, err = document.Load(ctx.FilePath)
	}
	if err != nil {
		return ctx.AddError(err)
	}
	ctx.Library = lib
	ctx.Log.Verbosef("loaded %s: %d functions", ctx.FilePath, lib.Len())
	return ctx
}

// FunctionSelector resolves the entry function and opens the session the
// build stage compiles in.
type FunctionSelector struct{}

func (FunctionSelector) Process(ctx *PipelineContext) *PipelineContext {
	if ctx.Library == nil || ctx.Failed() {
		return ctx
	}
	if ctx.FunctionName == "" {
		names := ctx.Library.Names()
		if len(names) == 0 {
			return ctx.AddError(fmt.Errorf("%s defines no functions", ctx.FilePath))
		}
		ctx.FunctionName = names[0]
	}
	def, err := ctx.Library.Lookup(ctx.FunctionName)
	if err != nil {
		return ctx.AddError(fmt.Errorf("%s: %w", ctx.FilePath, err))
	}
	ctx.Definition = def
	ctx.Session = session.New(ctx.Library)
	ctx.Log.Verbosef("session %s: function %s", ctx.Session.ID, def.Name)
	return ctx
}
