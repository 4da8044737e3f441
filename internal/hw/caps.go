// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package hw

// Caps describes what one codec on one hardware generation can do.
type Caps struct {
	Codec      Codec
	Generation Generation

	// BlockSize is the coding-block granularity in pixels (16 or 64).
	BlockSize int

	// MaxWidth and MaxHeight bound the frame size in pixels.
	MaxWidth  int
	MaxHeight int

	// MaxPasses is the hardware limit for multi-pass BRC.
	MaxPasses int

	// DefaultPasses is the pass budget used when the host does not ask for one.
	DefaultPasses int

	// MaxRefs is the number of active references per list.
	MaxRefs int

	// RefSlots is the number of reference-picture slots the session keeps.
	RefSlots int

	// MaxSlices bounds the slices (AVC) or tile columns (VP9) per frame.
	MaxSlices int

	// BSlices reports bidirectional prediction support.
	BSlices bool

	// SliceWalker reports whether each slice is started with its own walker
	// command instead of the last header insertion.
	SliceWalker bool

	// HuC reports whether the firmware BRC path exists.
	HuC bool

	// MinQP and MaxQP bound the quantizer on the AVC QP scale. VP9 maps it
	// to a qindex through the constant tables.
	MinQP int
	MaxQP int
}

var capsTable = []Caps{
	{
		Codec: CodecAVC, Generation: Gen9,
		BlockSize: 16, MaxWidth: 4096, MaxHeight: 4096,
		MaxPasses: 4, DefaultPasses: 2, MaxRefs: 3, RefSlots: 16, MaxSlices: 256,
		BSlices: false, SliceWalker: true, HuC: true, MinQP: 1, MaxQP: 51,
	},
	{
		Codec: CodecAVC, Generation: Gen10,
		BlockSize: 16, MaxWidth: 4096, MaxHeight: 4096,
		MaxPasses: 4, DefaultPasses: 2, MaxRefs: 3, RefSlots: 16, MaxSlices: 256,
		BSlices: false, SliceWalker: true, HuC: true, MinQP: 1, MaxQP: 51,
	},
	{
		Codec: CodecAVC, Generation: Gen11,
		BlockSize: 16, MaxWidth: 4096, MaxHeight: 4096,
		MaxPasses: 4, DefaultPasses: 2, MaxRefs: 3, RefSlots: 16, MaxSlices: 512,
		BSlices: false, SliceWalker: false, HuC: true, MinQP: 1, MaxQP: 51,
	},
	{
		Codec: CodecVP9, Generation: Gen10,
		BlockSize: 64, MaxWidth: 8192, MaxHeight: 8192,
		MaxPasses: 4, DefaultPasses: 2, MaxRefs: 3, RefSlots: 8, MaxSlices: 4,
		BSlices: false, SliceWalker: true, HuC: true, MinQP: 1, MaxQP: 51,
	},
	{
		Codec: CodecVP9, Generation: Gen11,
		BlockSize: 64, MaxWidth: 8192, MaxHeight: 8192,
		MaxPasses: 4, DefaultPasses: 2, MaxRefs: 3, RefSlots: 8, MaxSlices: 4,
		BSlices: false, SliceWalker: true, HuC: true, MinQP: 1, MaxQP: 51,
	},
}

// LookupCaps returns the capabilities for codec on gen.
func LookupCaps(codec Codec, gen Generation) (Caps, bool) {
	for _, c := range capsTable {
		if c.Codec == codec && c.Generation == gen {
			return c, true
		}
	}
	return Caps{}, false
}

// AllCaps returns a copy of the capability table.
func AllCaps() []Caps {
	out := make([]Caps, len(capsTable))
	copy(out, capsTable)
	return out
}
