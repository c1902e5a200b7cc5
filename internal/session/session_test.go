package session

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funvibe/numfn/internal/ast"
	"github.com/funvibe/numfn/internal/diagnostics"
)

func single(name string) *ast.FunctionDefinition {
	b := ast.NewBuilder(name).Returns(ast.SingleValue{})
	x := b.Param("x")
	return b.Add(ast.Return(x)).MustBuild()
}

func TestEnsureBuildsOnce(t *testing.T) {
	s := New(ast.NewLibrary(single("d")))
	calls := 0
	build := func(def *ast.FunctionDefinition) (string, error) {
		calls++
		return "built " + def.Name, nil
	}

	first, err := Ensure(s, KindSource, "d", build)
	require.NoError(t, err)
	second, err := Ensure(s, KindSource, "d", build)
	require.NoError(t, err)

	assert.Equal(t, "built d", first)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"d"}, s.Built(KindSource))
	assert.Empty(t, s.Built(KindBytecode))
}

func TestEnsureKeepsBackendsApart(t *testing.T) {
	s := New(ast.NewLibrary(single("d")))
	_, err := Ensure(s, KindSource, "d", func(*ast.FunctionDefinition) (string, error) { return "text", nil })
	require.NoError(t, err)
	n, err := Ensure(s, KindBytecode, "d", func(*ast.FunctionDefinition) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestEnsureUnknownFunction(t *testing.T) {
	s := New(ast.NewLibrary())
	_, err := Ensure(s, KindSource, "missing", func(*ast.FunctionDefinition) (int, error) { return 0, nil })
	require.Error(t, err)
	assert.True(t, diagnostics.HasCode(err, diagnostics.ErrC004))
}

func TestEnsureRejectsCycles(t *testing.T) {
	s := New(ast.NewLibrary(single("a"), single("b")))

	var build func(def *ast.FunctionDefinition) (int, error)
	build = func(def *ast.FunctionDefinition) (int, error) {
		next := "b"
		if def.Name == "b" {
			next = "a"
		}
		return Ensure(s, KindBytecode, next, build)
	}

	_, err := Ensure(s, KindBytecode, "a", build)
	require.Error(t, err)
	var d *diagnostics.Error
	require.True(t, errors.As(err, &d))
	assert.Equal(t, diagnostics.ErrC005, d.Code)
	assert.Contains(t, d.Message, "a -> b -> a")
	assert.Empty(t, s.Built(KindBytecode))
}

func TestFailedBuildIsNotRecorded(t *testing.T) {
	s := New(ast.NewLibrary(single("d")))
	boom := errors.New("boom")
	_, err := Ensure(s, KindSource, "d", func(*ast.FunctionDefinition) (string, error) { return "", boom })
	require.ErrorIs(t, err, boom)

	_, ok := s.Artifact(KindSource, "d")
	assert.False(t, ok)

	got, err := Ensure(s, KindSource, "d", func(*ast.FunctionDefinition) (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestBeginDetectsTopLevelReentry(t *testing.T) {
	s := New(ast.NewLibrary(single("main")))
	require.NoError(t, s.Begin(KindSource, "main"))
	_, err := Ensure(s, KindSource, "main", func(*ast.FunctionDefinition) (string, error) { return "", nil })
	assert.True(t, diagnostics.HasCode(err, diagnostics.ErrC005))
	s.End(KindSource, "main")
	assert.NotEqual(t, [16]byte{}, [16]byte(s.ID))
}
