// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package layout describes fixed binary structures field by field.
//
// A Field names a bit range inside a little-endian container of 1, 2 or 4
// bytes at a fixed byte offset. Layouts are declared once as package
// variables and validated when they are built: overlapping bit ranges and
// fields that run past the structure size panic at init time, so a wire
// format that compiles and loads is at least self-consistent.
package layout

import (
	"encoding/binary"
	"fmt"
)

// Field is one value inside a fixed binary structure.
type Field struct {
	Name   string
	Offset int  // byte offset of the container
	Size   int  // container size in bytes: 1, 2 or 4
	Shift  uint // bit position inside the container
	Width  uint // bit width, 1..8*Size
	Signed bool // two's complement in Width bits
}

// U8 declares an unsigned byte.
func U8(name string, off int) Field { return Field{Name: name, Offset: off, Size: 1, Width: 8} }

// S8 declares a signed byte.
func S8(name string, off int) Field {
	return Field{Name: name, Offset: off, Size: 1, Width: 8, Signed: true}
}

// U16 declares an unsigned little-endian 16-bit value.
func U16(name string, off int) Field { return Field{Name: name, Offset: off, Size: 2, Width: 16} }

// S16 declares a signed little-endian 16-bit value.
func S16(name string, off int) Field {
	return Field{Name: name, Offset: off, Size: 2, Width: 16, Signed: true}
}

// U32 declares an unsigned little-endian 32-bit value.
func U32(name string, off int) Field { return Field{Name: name, Offset: off, Size: 4, Width: 32} }

// S32 declares a signed little-endian 32-bit value.
func S32(name string, off int) Field {
	return Field{Name: name, Offset: off, Size: 4, Width: 32, Signed: true}
}

// Bits declares an unsigned bit field inside the dword at off.
func Bits(name string, off int, shift, width uint) Field {
	return Field{Name: name, Offset: off, Size: 4, Shift: shift, Width: width}
}

// SBits declares a signed bit field inside the dword at off.
func SBits(name string, off int, shift, width uint) Field {
	return Field{Name: name, Offset: off, Size: 4, Shift: shift, Width: width, Signed: true}
}

// Flag declares a single bit inside the dword at off.
func Flag(name string, off int, bit uint) Field { return Bits(name, off, bit, 1) }

// DW returns the byte offset of dword i. Command payloads are specified in
// dwords; fields take byte offsets.
func DW(i int) int { return i * 4 }

func (f Field) mask() uint32 {
	if f.Width >= 32 {
		return 0xFFFFFFFF
	}
	return (1 << f.Width) - 1
}

func (f Field) load(b []byte) uint32 {
	switch f.Size {
	case 1:
		return uint32(b[f.Offset])
	case 2:
		return uint32(binary.LittleEndian.Uint16(b[f.Offset:]))
	default:
		return binary.LittleEndian.Uint32(b[f.Offset:])
	}
}

func (f Field) store(b []byte, v uint32) {
	switch f.Size {
	case 1:
		b[f.Offset] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b[f.Offset:], uint16(v))
	default:
		binary.LittleEndian.PutUint32(b[f.Offset:], v)
	}
}

// Get returns the raw field bits.
func (f Field) Get(b []byte) uint32 {
	return (f.load(b) >> f.Shift) & f.mask()
}

// Set stores v truncated to the field width. Bits outside the field are
// preserved.
func (f Field) Set(b []byte, v uint32) {
	m := f.mask() << f.Shift
	c := f.load(b)
	c = (c &^ m) | ((v << f.Shift) & m)
	f.store(b, c)
}

// GetInt returns the field value, sign-extended for signed fields.
func (f Field) GetInt(b []byte) int {
	v := f.Get(b)
	if f.Signed && f.Width < 32 && v&(1<<(f.Width-1)) != 0 {
		return int(int32(v | ^f.mask()))
	}
	if f.Signed {
		return int(int32(v))
	}
	return int(v)
}

// SetInt stores v as two's complement truncated to the field width.
func (f Field) SetInt(b []byte, v int) {
	//nolint:gosec // G115: truncation to the field width is the contract
	f.Set(b, uint32(int32(v)))
}

// SetBool stores 1 or 0.
func (f Field) SetBool(b []byte, v bool) {
	if v {
		f.Set(b, 1)
	} else {
		f.Set(b, 0)
	}
}

// Bool reports whether the field is non-zero.
func (f Field) Bool(b []byte) bool { return f.Get(b) != 0 }

// Range returns the representable value range.
func (f Field) Range() (lo, hi int) {
	if f.Signed {
		return -(1 << (f.Width - 1)), (1 << (f.Width - 1)) - 1
	}
	if f.Width >= 32 {
		return 0, 1<<32 - 1
	}
	return 0, (1 << f.Width) - 1
}

// Array is a run of equally sized fields.
type Array struct {
	Base   Field
	Count  int
	Stride int // bytes between elements
}

// ArrayOf declares count consecutive copies of base spaced by the container size.
func ArrayOf(base Field, count int) Array {
	return Array{Base: base, Count: count, Stride: base.Size}
}

// At returns element i.
func (a Array) At(i int) Field {
	if i < 0 || i >= a.Count {
		panic(fmt.Sprintf("layout: %s[%d] out of range (len %d)", a.Base.Name, i, a.Count))
	}
	f := a.Base
	f.Name = fmt.Sprintf("%s[%d]", a.Base.Name, i)
	f.Offset += i * a.Stride
	return f
}

// Fields expands the array into its elements.
func (a Array) Fields() []Field {
	out := make([]Field, a.Count)
	for i := range out {
		out[i] = a.At(i)
	}
	return out
}

// SetInts stores vs into consecutive elements.
func (a Array) SetInts(b []byte, vs []int) {
	for i, v := range vs {
		a.At(i).SetInt(b, v)
	}
}

// Ints reads every element.
func (a Array) Ints(b []byte) []int {
	out := make([]int, a.Count)
	for i := range out {
		out[i] = a.At(i).GetInt(b)
	}
	return out
}

// Layout is a validated structure of known size.
type Layout struct {
	name   string
	size   int
	fields []Field
	byName map[string]Field
}

// New validates the fields and returns the layout. It panics if a field is
// malformed, runs past size or overlaps another field.
func New(name string, size int, fields ...Field) *Layout {
	if size <= 0 {
		panic(fmt.Sprintf("layout: %s: size %d", name, size))
	}
	used := make([]bool, size*8)
	l := &Layout{name: name, size: size, byName: make(map[string]Field, len(fields))}
	for _, f := range fields {
		if f.Size != 1 && f.Size != 2 && f.Size != 4 {
			panic(fmt.Sprintf("layout: %s.%s: container size %d", name, f.Name, f.Size))
		}
		if f.Width == 0 || f.Shift+f.Width > uint(f.Size*8) {
			panic(fmt.Sprintf("layout: %s.%s: bits %d..%d do not fit %d-byte container",
				name, f.Name, f.Shift, f.Shift+f.Width, f.Size))
		}
		if f.Offset < 0 || f.Offset+f.Size > size {
			panic(fmt.Sprintf("layout: %s.%s: offset %#x past size %#x", name, f.Name, f.Offset, size))
		}
		if _, dup := l.byName[f.Name]; dup {
			panic(fmt.Sprintf("layout: %s.%s declared twice", name, f.Name))
		}
		start := uint(f.Offset*8) + f.Shift
		for bit := start; bit < start+f.Width; bit++ {
			if used[bit] {
				panic(fmt.Sprintf("layout: %s.%s overlaps bit %d", name, f.Name, bit))
			}
			used[bit] = true
		}
		l.fields = append(l.fields, f)
		l.byName[f.Name] = f
	}
	return l
}

// Name returns the structure name.
func (l *Layout) Name() string { return l.name }

// Size returns the structure size in bytes.
func (l *Layout) Size() int { return l.size }

// Fields returns the declared fields in declaration order.
func (l *Layout) Fields() []Field { return l.fields }

// Lookup returns the field called name.
func (l *Layout) Lookup(name string) (Field, bool) {
	f, ok := l.byName[name]
	return f, ok
}

// Alloc returns a zeroed buffer of the structure size.
func (l *Layout) Alloc() []byte { return make([]byte, l.size) }

// Check returns an error if b cannot hold the structure.
func (l *Layout) Check(b []byte) error {
	if len(b) < l.size {
		return fmt.Errorf("layout: %s needs %d bytes, have %d", l.name, l.size, len(b))
	}
	return nil
}

// Dump formats every field value, for debug logs and test failures.
func (l *Layout) Dump(b []byte) string {
	s := l.name + "{"
	for i, f := range l.fields {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%s=%d", f.Name, f.GetInt(b))
	}
	return s + "}"
}

// Builder collects fields while a structure is declared, so each field is
// named once.
type Builder struct {
	fields []Field
}

// Add records f and returns it.
func (b *Builder) Add(f Field) Field {
	b.fields = append(b.fields, f)
	return f
}

// AddArray records every element of a and returns it.
func (b *Builder) AddArray(a Array) Array {
	b.fields = append(b.fields, a.Fields()...)
	return a
}

// Build validates the collected fields. See New.
func (b *Builder) Build(name string, size int) *Layout {
	return New(name, size, b.fields...)
}
