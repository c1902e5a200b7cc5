package backend

import (
	"fmt"

	"github.com/funvibe/numfn/internal/ast"
	"github.com/funvibe/numfn/internal/cache"
	"github.com/funvibe/numfn/internal/pipeline"
)

// BuildProcessor implements pipeline.Processor to build the selected
// function with a Backend. With a Cache, artifacts of backends that
// implement Codec are looked up before building and stored after.
type BuildProcessor struct {
	Backend Backend
	Cache   *cache.Cache
}

// NewBuildProcessor creates a build stage for b. c may be nil.
func NewBuildProcessor(b Backend, c *cache.Cache) *BuildProcessor {
	return &BuildProcessor{Backend: b, Cache: c}
}

func (p *BuildProcessor) Process(ctx *pipeline.PipelineContext) *pipeline.PipelineContext {
	if ctx.Definition == nil || ctx.Failed() {
		return ctx
	}
	def := ctx.Definition

	codec, _ := p.Backend.(Codec)
	var key string
	if p.Cache != nil && codec != nil {
		key = cache.Key(ast.Closure(def, ctx.Session.Lookup), p.Backend.Name(), codec.Format())
		if a, ok := p.fromCache(ctx, codec, key); ok {
			ctx.Artifact = a
			ctx.Cached = true
			ctx.Log.Verbosef("%s: cache hit %s", def.Name, key)
			return ctx
		}
	}

	a, err := p.Backend.Build(ctx.Session, def)
	if err != nil {
		return ctx.AddError(fmt.Errorf("%s: %w", ctx.FilePath, err))
	}
	ctx.Artifact = a
	ctx.Log.Verbosef("%s: built with %s backend", def.Name, p.Backend.Name())

	if key != "" {
		data, err := codec.Encode(a)
		if err == nil {
			err = p.Cache.Store(key, def.Name, p.Backend.Name(), data)
		}
		if err != nil {
			ctx.Log.Warnf("cache: %v", err)
		}
	}
	return ctx
}

// fromCache never fails the build: a broken cache only costs a rebuild.
func (p *BuildProcessor) fromCache(ctx *pipeline.PipelineContext, codec Codec, key string) (Artifact, bool) {
	data, ok, err := p.Cache.Lookup(key)
	if err != nil {
		ctx.Log.Warnf("cache: %v", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	a, err := codec.Decode(ctx.Definition.Name, data)
	if err != nil {
		ctx.Log.Warnf("cache: entry %s: %v", key, err)
		return nil, false
	}
	return a, true
}

// ExecutionProcessor implements pipeline.Processor to run the built
// artifact on ctx.Inputs.
type ExecutionProcessor struct{}

// NewExecutionProcessor creates a new execution stage
func NewExecutionProcessor() *ExecutionProcessor {
	return &ExecutionProcessor{}
}

func (p *ExecutionProcessor) Process(ctx *pipeline.PipelineContext) *pipeline.PipelineContext {
	if ctx.Artifact == nil || ctx.Failed() {
		return ctx
	}
	exe, ok := ctx.Artifact.(Executable)
	if !ok {
		return ctx.AddError(fmt.Errorf("%T cannot be executed", ctx.Artifact))
	}
	if len(ctx.Inputs) != exe.NumIn() {
		return ctx.AddError(fmt.Errorf("%s takes %d inputs, got %d", exe.FunctionName(), exe.NumIn(), len(ctx.Inputs)))
	}
	r, err := exe.NewRunner()
	if err != nil {
		return ctx.AddError(err)
	}
	out, err := r.Run(ctx.Inputs)
	if err != nil {
		return ctx.AddError(fmt.Errorf("running %s: %w", exe.FunctionName(), err))
	}
	ctx.Outputs = out
	return ctx
}
