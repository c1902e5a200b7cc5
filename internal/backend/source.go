package backend

import (
	"fmt"

	"github.com/funvibe/numfn/internal/ast"
	"github.com/funvibe/numfn/internal/config"
	"github.com/funvibe/numfn/internal/emitter"
	"github.com/funvibe/numfn/internal/session"
)

// SourceBackend emits C source text.
type SourceBackend struct {
	opts emitter.Options
}

func NewSource(opts emitter.Options) *SourceBackend {
	return &SourceBackend{opts: opts}
}

// Source is an emitted C translation unit.
type Source struct {
	Function string
	Text     string
}

func (s *Source) FunctionName() string { return s.Function }

func (b *SourceBackend) Build(sess *session.Session, def *ast.FunctionDefinition) (Artifact, error) {
	text, err := emitter.EmitWith(sess, def, b.opts)
	if err != nil {
		return nil, err
	}
	return &Source{Function: def.Name, Text: text}, nil
}

func (b *SourceBackend) Name() string { return config.BackendSource }

// The emitter options shape the text, so they are part of the format.
func (b *SourceBackend) Format() string {
	return "c-text:" + b.opts.Prefix + ":" + b.opts.OutputArray + ":" + b.opts.InputArray
}

func (b *SourceBackend) Encode(a Artifact) ([]byte, error) {
	s, ok := a.(*Source)
	if !ok {
		return nil, fmt.Errorf("source backend cannot encode %T", a)
	}
	return []byte(s.Text), nil
}

func (b *SourceBackend) Decode(function string, data []byte) (Artifact, error) {
	return &Source{Function: function, Text: string(data)}, nil
}
