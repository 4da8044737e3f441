// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package layout

import (
	"strings"
	"testing"
)

var (
	testA   = U8("A", 0)
	testB   = S8("B", 1)
	testC   = U16("C", 2)
	testLo  = SBits("Lo", 4, 0, 4)
	testHi  = Bits("Hi", 4, 4, 12)
	testOn  = Flag("On", 4, 31)
	testArr = ArrayOf(S8("Arr", 8), 4)
	testW   = S32("W", 12)
)

func testLayout() *Layout {
	return New("Test", 16, append([]Field{testA, testB, testC, testLo, testHi, testOn, testW}, testArr.Fields()...)...)
}

func TestFieldRoundTrip(t *testing.T) {
	l := testLayout()
	b := l.Alloc()

	tests := []struct {
		name  string
		field Field
		in    int
		want  int
	}{
		{"u8", testA, 200, 200},
		{"u8 truncates", testA, 0x1FF, 0xFF},
		{"s8 negative", testB, -5, -5},
		{"u16", testC, 0xBEEF, 0xBEEF},
		{"4-bit signed -8", testLo, -8, -8},
		{"4-bit signed 7", testLo, 7, 7},
		{"4-bit signed wraps", testLo, 8, -8},
		{"12-bit", testHi, 0xABC, 0xABC},
		{"flag", testOn, 1, 1},
		{"s32", testW, -100000, -100000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.field.SetInt(b, tt.in)
			if got := tt.field.GetInt(b); got != tt.want {
				t.Errorf("GetInt() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFieldPreservesNeighbours(t *testing.T) {
	b := make([]byte, 8)
	testLo.SetInt(b, -1)
	testHi.Set(b, 0x123)
	testOn.SetBool(b, true)

	if got := testLo.GetInt(b); got != -1 {
		t.Errorf("Lo = %d, want -1", got)
	}
	if got := testHi.Get(b); got != 0x123 {
		t.Errorf("Hi = %#x, want 0x123", got)
	}
	if !testOn.Bool(b) {
		t.Error("On not set")
	}
	// Little-endian dword: 0x8000_123F.
	want := []byte{0x3F, 0x12, 0x00, 0x80}
	for i, w := range want {
		if b[4+i] != w {
			t.Errorf("byte %d = %#x, want %#x", 4+i, b[4+i], w)
		}
	}

	testOn.SetBool(b, false)
	if testOn.Bool(b) || testHi.Get(b) != 0x123 {
		t.Error("clearing On disturbed Hi")
	}
}

func TestArray(t *testing.T) {
	b := make([]byte, 16)
	testArr.SetInts(b, []int{-1, 2, -3, 4})
	got := testArr.Ints(b)
	want := []int{-1, 2, -3, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Arr[%d] = %d, want %d", i, got[i], want[i])
		}
	}
	if f := testArr.At(2); f.Offset != 10 || f.Name != "Arr[2]" {
		t.Errorf("At(2) = %+v", f)
	}
}

func TestRange(t *testing.T) {
	tests := []struct {
		f      Field
		lo, hi int
	}{
		{testLo, -8, 7},
		{testA, 0, 255},
		{testHi, 0, 4095},
		{testB, -128, 127},
	}
	for _, tt := range tests {
		lo, hi := tt.f.Range()
		if lo != tt.lo || hi != tt.hi {
			t.Errorf("%s.Range() = (%d, %d), want (%d, %d)", tt.f.Name, lo, hi, tt.lo, tt.hi)
		}
	}
}

func TestNewRejectsMalformed(t *testing.T) {
	tests := []struct {
		name   string
		fields []Field
	}{
		{"overlap", []Field{U16("X", 0), U8("Y", 1)}},
		{"bit overlap", []Field{Bits("X", 0, 0, 5), Bits("Y", 0, 4, 2)}},
		{"past end", []Field{U32("X", 6)}},
		{"too wide", []Field{Bits("X", 0, 30, 4)}},
		{"zero width", []Field{{Name: "X", Size: 4}}},
		{"bad container", []Field{{Name: "X", Size: 3, Width: 8}}},
		{"duplicate", []Field{U8("X", 0), U8("X", 1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("New did not panic")
				}
			}()
			New("Bad", 8, tt.fields...)
		})
	}
}

func TestLayoutAccessors(t *testing.T) {
	l := testLayout()
	if l.Name() != "Test" || l.Size() != 16 {
		t.Errorf("Name/Size = %q/%d", l.Name(), l.Size())
	}
	if len(l.Fields()) != 11 {
		t.Errorf("len(Fields()) = %d, want 11", len(l.Fields()))
	}
	if f, ok := l.Lookup("Hi"); !ok || f != testHi {
		t.Errorf("Lookup(Hi) = %+v, %v", f, ok)
	}
	if _, ok := l.Lookup("Missing"); ok {
		t.Error("Lookup(Missing) succeeded")
	}
	if err := l.Check(make([]byte, 15)); err == nil {
		t.Error("Check accepted short buffer")
	}

	b := l.Alloc()
	testB.SetInt(b, -2)
	if d := l.Dump(b); !strings.Contains(d, "B=-2") {
		t.Errorf("Dump() = %q", d)
	}
}

func TestDW(t *testing.T) {
	if DW(0) != 0 || DW(5) != 20 {
		t.Errorf("DW mismatch")
	}
}

func TestBuilder(t *testing.T) {
	var lb Builder
	x := lb.Add(U16("X", 0))
	arr := lb.AddArray(ArrayOf(U8("Y", 2), 2))
	l := lb.Build("Built", 4)

	if len(l.Fields()) != 3 {
		t.Fatalf("len(Fields()) = %d, want 3", len(l.Fields()))
	}
	b := l.Alloc()
	x.Set(b, 0x1234)
	arr.At(1).Set(b, 7)
	if b[0] != 0x34 || b[1] != 0x12 || b[3] != 7 {
		t.Errorf("bytes = %v", b)
	}
}
