package vm

import (
	"github.com/funvibe/numfn/internal/ast"
	"github.com/funvibe/numfn/internal/diagnostics"
	"github.com/funvibe/numfn/internal/session"
)

// LoopContext tracks the break jumps of the innermost loop.
type LoopContext struct {
	breakJumps []int // operand offsets to patch with the loop exit
}

// Compiler compiles one function definition into a Unit.
type Compiler struct {
	sess     *session.Session
	def      *ast.FunctionDefinition
	contract ast.ReturnContract
	chunk    *Chunk

	// symbols maps variable names to 1-based slots. Read-only globals have
	// no slot.
	symbols  map[string]int
	numSlots int

	callees     []*Unit
	calleeIndex map[string]int

	loopStack []LoopContext

	// depth is the statically known operand stack depth at the current
	// position, maxDepth the largest depth seen so far.
	depth    int
	maxDepth int
}

// Compile compiles def and, through sess, every sub-function it calls.
// Callees already compiled in sess are shared, not rebuilt.
func Compile(sess *session.Session, def *ast.FunctionDefinition) (*Unit, error) {
	if err := sess.Begin(session.KindBytecode, def.Name); err != nil {
		return nil, err
	}
	defer sess.End(session.KindBytecode, def.Name)
	return compileUnit(sess, def, def.Return)
}

func compileSubfunction(sess *session.Session, def *ast.FunctionDefinition) (*Unit, error) {
	if def.NumOut != 1 {
		return nil, diagnostics.NewError(diagnostics.ErrC002, def.Name, "sub-function",
			"sub-function must have exactly one return value (not %d)", def.NumOut)
	}
	return compileUnit(sess, def, ast.SingleValue{})
}

func compileUnit(sess *session.Session, def *ast.FunctionDefinition, contract ast.ReturnContract) (*Unit, error) {
	c := &Compiler{
		sess:        sess,
		def:         def,
		contract:    contract,
		chunk:       NewChunk(),
		symbols:     make(map[string]int),
		calleeIndex: make(map[string]int),
	}
	c.declareSlots()

	for _, stmt := range def.Body {
		if err := c.compileStatement(stmt); err != nil {
			return nil, err
		}
	}
	// Falling off the end of the body returns whatever the frame holds,
	// which the machine accepts only for functions without outputs.
	c.emit(OP_RETURN)

	if c.maxDepth < def.NumOut {
		c.maxDepth = def.NumOut
	}
	return &Unit{
		Name:     def.Name,
		NumIn:    def.NumIn(),
		NumOut:   def.NumOut,
		NumSlots: c.numSlots,
		MaxStack: c.maxDepth,
		Code:     c.chunk.Code,
		Callees:  c.callees,
	}, nil
}

// declareSlots numbers parameters 1..NumIn in positional order, then the
// locals in declaration order.
func (c *Compiler) declareSlots() {
	for _, p := range c.def.ParamVars() {
		c.numSlots++
		c.symbols[p.Name] = c.numSlots
	}
	for _, l := range c.def.VarsOf(ast.Local) {
		c.numSlots++
		c.symbols[l.Name] = c.numSlots
	}
}

func (c *Compiler) errorf(code diagnostics.Code, construct, format string, args ...interface{}) error {
	return diagnostics.NewError(code, c.def.Name, construct, format, args...)
}

// resolve maps an AST variable to its definition entry.
func (c *Compiler) resolve(n ast.Node, construct string) (ast.Var, error) {
	v, ok := n.(*ast.Variable)
	if !ok {
		return ast.Var{}, c.errorf(diagnostics.ErrC010, construct, "expected a variable, got %v", n)
	}
	info, ok := c.def.Var(v.Slot)
	if !ok {
		return ast.Var{}, c.errorf(diagnostics.ErrC008, construct, "unknown variable slot %d", v.Slot)
	}
	return info, nil
}

// emit helpers

func (c *Compiler) emit(op Opcode) {
	c.chunk.WriteOp(op)
}

func (c *Compiler) emitInt(op Opcode, operand int) {
	c.chunk.WriteOp(op)
	c.chunk.WriteInt(operand)
}

func (c *Compiler) emitConstant(v float64) {
	c.chunk.WriteOp(OP_PUSH_CONSTANT)
	c.chunk.WriteFloat(v)
	c.push(1)
}

// emitJump emits a jump with a placeholder target and returns the offset of
// the operand for patchJump.
func (c *Compiler) emitJump(op Opcode) int {
	c.chunk.WriteOp(op)
	return c.chunk.WriteInt(-1)
}

// patchJump points the jump whose operand is at offset to the current end
// of the stream.
func (c *Compiler) patchJump(offset int) {
	c.chunk.PatchInt(offset, c.chunk.Len())
}

// emitLoop emits a backward jump to loopStart.
func (c *Compiler) emitLoop(loopStart int) {
	c.emitInt(OP_JMP, loopStart)
}

// stack accounting

func (c *Compiler) push(n int) {
	c.depth += n
	if c.depth > c.maxDepth {
		c.maxDepth = c.depth
	}
}

func (c *Compiler) pop(n int) {
	c.depth -= n
}

func (c *Compiler) reserve(need int) {
	if need > c.maxDepth {
		c.maxDepth = need
	}
}
