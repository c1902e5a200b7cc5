package vm

import (
	"encoding/binary"
	"math"
)

// Chunk is the growing instruction buffer of one unit under compilation.
// All operands are little-endian: int32 as two's complement, float64 as its
// IEEE-754 bit pattern.
type Chunk struct {
	Code []byte
}

func NewChunk() *Chunk {
	return &Chunk{Code: make([]byte, 0, 64)}
}

// WriteOp appends an opcode.
func (c *Chunk) WriteOp(op Opcode) {
	c.Code = append(c.Code, byte(op))
}

// WriteInt appends a 4-byte operand and returns its offset.
func (c *Chunk) WriteInt(v int) int {
	at := len(c.Code)
	c.Code = binary.LittleEndian.AppendUint32(c.Code, uint32(int32(v)))
	return at
}

// WriteFloat appends an 8-byte operand.
func (c *Chunk) WriteFloat(v float64) {
	c.Code = binary.LittleEndian.AppendUint64(c.Code, math.Float64bits(v))
}

// PatchInt overwrites the 4-byte operand at offset.
func (c *Chunk) PatchInt(offset, v int) {
	binary.LittleEndian.PutUint32(c.Code[offset:], uint32(int32(v)))
}

// Len returns the number of bytes in the chunk.
func (c *Chunk) Len() int {
	return len(c.Code)
}

// readInt decodes the 4-byte operand at offset. ok is false when the
// stream is too short.
func readInt(code []byte, offset int) (int, bool) {
	if offset < 0 || offset+intWidth > len(code) {
		return 0, false
	}
	return int(int32(binary.LittleEndian.Uint32(code[offset:]))), true
}

func readFloat(code []byte, offset int) (float64, bool) {
	if offset < 0 || offset+floatWidth > len(code) {
		return 0, false
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(code[offset:])), true
}
