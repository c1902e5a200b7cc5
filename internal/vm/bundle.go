package vm

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// Bundle is the serializable form of a unit graph. Units are stored as a
// flat table, callees before callers, and refer to their callees by table
// index so that a callee shared by several units stays shared after
// loading.
type Bundle struct {
	// Root is the table index of the entry unit.
	Root  int
	Units []BundledUnit
}

// BundledUnit is one table entry.
type BundledUnit struct {
	Name     string
	NumIn    int
	NumOut   int
	NumSlots int
	MaxStack int
	Code     []byte
	Callees  []int
}

var bundleMagic = [4]byte{'N', 'F', 'N', 'B'}

// bundleVersion is bumped whenever the instruction encoding or the table
// layout changes.
const bundleVersion byte = 0x01

// NewBundle flattens u and its callees.
func NewBundle(u *Unit) *Bundle {
	closure := u.Closure()
	index := make(map[*Unit]int, len(closure))
	b := &Bundle{}
	for i, unit := range closure {
		index[unit] = i
		entry := BundledUnit{
			Name:     unit.Name,
			NumIn:    unit.NumIn,
			NumOut:   unit.NumOut,
			NumSlots: unit.NumSlots,
			MaxStack: unit.MaxStack,
			Code:     append([]byte(nil), unit.Code...),
		}
		for _, c := range unit.Callees {
			entry.Callees = append(entry.Callees, index[c])
		}
		b.Units = append(b.Units, entry)
	}
	b.Root = index[u]
	return b
}

// Serialize converts the bundle to binary format:
//   - magic number (4 bytes): "NFNB"
//   - version (1 byte)
//   - gob-encoded Bundle
func (b *Bundle) Serialize() ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(bundleMagic[:])
	buf.WriteByte(bundleVersion)

	enc := gob.NewEncoder(buf)
	if err := enc.Encode(b); err != nil {
		return nil, fmt.Errorf("bundle gob encoding failed: %w", err)
	}
	return buf.Bytes(), nil
}

// Deserialize reads and validates a serialized bundle.
func Deserialize(data []byte) (*Bundle, error) {
	if len(data) < 5 {
		return nil, fmt.Errorf("bundle data too short")
	}
	if !bytes.Equal(data[:4], bundleMagic[:]) {
		return nil, fmt.Errorf("invalid magic number, expected NFNB")
	}
	if version := data[4]; version != bundleVersion {
		return nil, fmt.Errorf("unsupported bundle version: %d (this binary supports version %d)", version, bundleVersion)
	}

	var b Bundle
	if err := gob.NewDecoder(bytes.NewReader(data[5:])).Decode(&b); err != nil {
		return nil, fmt.Errorf("bundle gob decoding failed: %w", err)
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("bundle validation failed: %w", err)
	}
	return &b, nil
}

// Validate checks the table before it is turned back into units. Callees
// must precede their callers, which also rules out cycles.
func (b *Bundle) Validate() error {
	if len(b.Units) == 0 {
		return fmt.Errorf("bundle has no units")
	}
	if b.Root < 0 || b.Root >= len(b.Units) {
		return fmt.Errorf("root index %d out of range", b.Root)
	}
	for i, u := range b.Units {
		if len(u.Code) == 0 {
			return fmt.Errorf("unit %d (%s) has empty bytecode", i, u.Name)
		}
		if u.NumIn < 0 || u.NumOut < 0 || u.NumSlots < u.NumIn {
			return fmt.Errorf("unit %d (%s) has inconsistent arity", i, u.Name)
		}
		if u.MaxStack < u.NumOut {
			return fmt.Errorf("unit %d (%s) stack requirement below its outputs", i, u.Name)
		}
		for _, c := range u.Callees {
			if c < 0 || c >= i {
				return fmt.Errorf("unit %d (%s) has callee index %d out of range", i, u.Name, c)
			}
		}
	}
	return nil
}

// Unit rebuilds the unit graph and returns the root.
func (b *Bundle) Unit() (*Unit, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	units := make([]*Unit, len(b.Units))
	for i, e := range b.Units {
		u := &Unit{
			Name:     e.Name,
			NumIn:    e.NumIn,
			NumOut:   e.NumOut,
			NumSlots: e.NumSlots,
			MaxStack: e.MaxStack,
			Code:     e.Code,
		}
		for _, c := range e.Callees {
			u.Callees = append(u.Callees, units[c])
		}
		units[i] = u
	}
	return units[b.Root], nil
}
