// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pipeline

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gogpu/hwenc/internal/hw"
)

// Factory creates the codec steps for one hardware generation.
type Factory func(caps hw.Caps) Steps

type key struct {
	codec hw.Codec
	gen   hw.Generation
}

// registry holds registered step factories.
var (
	registryMu sync.RWMutex
	factories  = make(map[key]Factory)
)

func init() {
	for _, gen := range []hw.Generation{hw.Gen9, hw.Gen10, hw.Gen11} {
		Register(hw.CodecAVC, gen, newAVCSteps)
	}
	for _, gen := range []hw.Generation{hw.Gen10, hw.Gen11} {
		Register(hw.CodecVP9, gen, newVP9Steps)
	}
}

// Register registers the step factory for codec on gen.
// If a factory is already registered for the pair, it is replaced.
func Register(codec hw.Codec, gen hw.Generation, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[key{codec, gen}] = f
}

// Unregister removes the factory for codec on gen.
// This is useful for testing.
func Unregister(codec hw.Codec, gen hw.Generation) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(factories, key{codec, gen})
}

// Lookup resolves the sequencer for codec on gen. It fails with
// ErrUnsupported when no factory is registered or the capability table
// has no entry for the pair.
func Lookup(codec hw.Codec, gen hw.Generation) (*Sequencer, error) {
	caps, ok := hw.LookupCaps(codec, gen)
	if !ok {
		return nil, fmt.Errorf("%w: no capabilities for %s on %s", ErrUnsupported, codec, gen)
	}

	registryMu.RLock()
	f, ok := factories[key{codec, gen}]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no sequencer for %s on %s", ErrUnsupported, codec, gen)
	}
	return &Sequencer{caps: caps, steps: f(caps)}, nil
}

// Available returns the registered codec and generation pairs, sorted.
func Available() []hw.Caps {
	registryMu.RLock()
	defer registryMu.RUnlock()

	out := make([]hw.Caps, 0, len(factories))
	for k := range factories {
		if c, ok := hw.LookupCaps(k.codec, k.gen); ok {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Codec != out[j].Codec {
			return out[i].Codec < out[j].Codec
		}
		return out[i].Generation < out[j].Generation
	})
	return out
}
