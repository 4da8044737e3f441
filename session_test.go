// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package hwenc

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/hwenc/hwsim"
	"github.com/gogpu/hwenc/internal/mi"
	"github.com/gogpu/hwenc/internal/params"
	"github.com/gogpu/hwenc/resource"
)

var testHeader = []byte{0, 0, 0, 1, 0x67}

func cqpConfig(width, height int) Config {
	return Config{
		Codec:       CodecAVC,
		Generation:  Gen10,
		Width:       width,
		Height:      height,
		RateControl: RateControlCQP,
		QP:          26,
	}
}

func cbrConfig(width, height int) Config {
	return Config{
		Codec:           CodecAVC,
		Generation:      Gen10,
		Width:           width,
		Height:          height,
		RateControl:     RateControlCBR,
		TargetBitrate:   4_000_000,
		VBVBits:         8_000_000,
		InitialFullness: 4_000_000,
		FPSNum:          30,
		FPSDen:          1,
	}
}

func newTestSession(t testing.TB, cfg Config, opts ...Option) *Session {
	t.Helper()
	s, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New(%+v) failed: %v", cfg, err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// newSimSession returns a session submitting to a simulator the test can
// inspect.
func newSimSession(t testing.TB, cfg Config, sim hwsim.Config) (*Session, *hwsim.GPU) {
	t.Helper()
	reg := resource.NewRegistry(nil)
	gpu := hwsim.New(reg, sim)
	return newTestSession(t, cfg, WithRegistry(reg), WithSubmitter(gpu)), gpu
}

func testPicture(width, height int) *image.YCbCr {
	img := image.NewYCbCr(image.Rect(0, 0, width, height), image.YCbCrSubsampleRatio420)
	for y := range height {
		for x := range width {
			img.Y[img.YOffset(x, y)] = uint8((x + y) & 0xFF)
		}
	}
	for i := range img.Cb {
		img.Cb[i], img.Cr[i] = 128, 128
	}
	return img
}

func createNoopDevice(t *testing.T) (hal.Device, hal.Queue, func()) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	cleanup := func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return openDev.Device, openDev.Queue, cleanup
}

func TestNewInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"zero width", func(c *Config) { c.Width = 0 }, ErrInvalidConfig},
		{"VP9 on Gen9", func(c *Config) { c.Codec, c.Generation = CodecVP9, Gen9 }, ErrUnsupported},
		{"CBR without bitrate", func(c *Config) { c.RateControl = RateControlCBR }, ErrInvalidConfig},
		{"too many passes", func(c *Config) { c.MaxPasses = 5 }, ErrUnsupported},
		{"more slices than rows", func(c *Config) { c.Slices = 16 }, ErrUnsupported},
		{"too many references", func(c *Config) { c.NumRefs = 4 }, ErrUnsupported},
		{"QP above range", func(c *Config) { c.QP = 52 }, ErrInvalidConfig},
		{"inverted QP range", func(c *Config) { c.MinQP, c.MaxQP = 40, 20 }, ErrInvalidConfig},
		{"oversized", func(c *Config) { c.Width = 8192 }, ErrUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := cqpConfig(320, 240)
			tt.mutate(&cfg)
			s, err := New(cfg)
			if !errors.Is(err, tt.want) {
				t.Errorf("New() error = %v, want %v", err, tt.want)
			}
			if s != nil {
				t.Error("New() returned a session with an error")
			}
		})
	}
}

func TestNewAllocatesFixedSubset(t *testing.T) {
	s := newTestSession(t, cbrConfig(320, 240))
	f := &s.fixed

	if len(f.updateDMEM) != s.caps.MaxPasses || len(f.imageBatch) != s.caps.MaxPasses {
		t.Errorf("per-pass buffers = %d DMEM, %d batches, want %d each",
			len(f.updateDMEM), len(f.imageBatch), s.caps.MaxPasses)
	}
	for _, tt := range []struct {
		name string
		h    resource.Handle
		size int
		kind resource.Kind
	}{
		{"history", f.history, params.HistorySize, resource.KindHistory},
		{"init DMEM", f.initDMEM, params.DMEMSize, resource.KindDMEM},
		{"HuC status", f.hucStatus, params.HuCStatusSize, resource.KindStatus},
		{"PAK status", f.pakStatus, s.caps.MaxPasses * params.PAKStatusSlotSize, resource.KindStatus},
		{"image input", f.imageInput, params.AVCImageStateSize, resource.KindImageState},
		{"const data", f.constData, params.ConstDataSize, resource.KindConst},
	} {
		if got := s.reg.Size(tt.h); got != tt.size {
			t.Errorf("%s size = %d, want %d", tt.name, got, tt.size)
		}
		if got := s.reg.Kind(tt.h); got != tt.kind {
			t.Errorf("%s kind = %v, want %v", tt.name, got, tt.kind)
		}
	}

	b, err := s.reg.Read(f.hucStatus, 0, params.HuCStatusSize)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got := params.HuCStatus.Status2Mask.Get(b); got != mi.HuCFirmwareLoaded {
		t.Errorf("HuC status mask = %#x, want %#x", got, mi.HuCFirmwareLoaded)
	}
}

func TestNewAllocatesSizedSubset(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		rowStores int
		streamIn  resource.Kind
		width     int
		height    int
	}{
		{"AVC", cqpConfig(320, 240), 3, resource.KindStreamIn, 320, 240},
		{"VP9", func() Config {
			c := cqpConfig(320, 240)
			c.Codec = CodecVP9
			return c
		}(), 5, resource.KindSegmentMap, 320, 256},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSession(t, tt.cfg)
			z := &s.sized
			if z.width != tt.width || z.height != tt.height {
				t.Errorf("aligned size = %dx%d, want %dx%d", z.width, z.height, tt.width, tt.height)
			}
			n := 0
			for _, h := range z.rowStore {
				if !h.IsZero() {
					n++
				}
			}
			if n != tt.rowStores {
				t.Errorf("row stores = %d, want %d", n, tt.rowStores)
			}
			if got := s.reg.Kind(z.streamIn); got != tt.streamIn {
				t.Errorf("stream-in kind = %v, want %v", got, tt.streamIn)
			}
			if z.codedSize != params.CodedStatusSize+tt.width*tt.height*3/2 {
				t.Errorf("coded size = %d", z.codedSize)
			}
			if !z.source.Valid(s.reg) || !s.cur.Picture.Valid(s.reg) || !s.cur.Scaled.Valid(s.reg) {
				t.Error("source or picture slot not allocated")
			}
		})
	}
}

func TestNewOutOfMemoryRollsBack(t *testing.T) {
	reg := resource.NewRegistry(resource.NewHostAllocator(resource.HostConfig{BudgetBytes: 1024}))
	_, err := New(cbrConfig(320, 240), WithRegistry(reg))
	if !errors.Is(err, ErrResource) || !errors.Is(err, resource.ErrOutOfMemory) {
		t.Fatalf("New() error = %v, want ErrResource wrapping ErrOutOfMemory", err)
	}
	if st := reg.Stats(); st.Live != 0 {
		t.Errorf("after failed New: %s, want nothing live", st)
	}
}

func TestCodedBufferSizeOption(t *testing.T) {
	s := newTestSession(t, cqpConfig(320, 240), WithCodedBufferSize(64<<10))
	if got := s.reg.Size(s.sized.coded); got != 64<<10 {
		t.Errorf("coded buffer size = %d, want %d", got, 64<<10)
	}
}

func TestCloseIdempotent(t *testing.T) {
	reg := resource.NewRegistry(nil)
	s, err := New(cqpConfig(320, 240), WithRegistry(reg))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := s.EncodeFrame(context.Background(), FrameParams{Type: FrameI}); err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if st := reg.Stats(); st.Live != 0 {
		t.Errorf("after Close: %s, want nothing live", st)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() = %v, want nil", err)
	}
	if _, err := s.EncodeFrame(context.Background(), FrameParams{}); !errors.Is(err, ErrClosed) {
		t.Errorf("EncodeFrame after Close error = %v, want ErrClosed", err)
	}
	if err := s.Reconfigure(cqpConfig(320, 240)); !errors.Is(err, ErrClosed) {
		t.Errorf("Reconfigure after Close error = %v, want ErrClosed", err)
	}
}

func TestReconfigureResize(t *testing.T) {
	s := newTestSession(t, cqpConfig(320, 240))
	ctx := context.Background()
	if _, err := s.EncodeFrame(ctx, FrameParams{Type: FrameI}); err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}
	fixed := s.fixed
	fixed.updateDMEM = append([]resource.Handle(nil), s.fixed.updateDMEM...)
	coded := s.sized.coded

	if err := s.Reconfigure(cqpConfig(640, 480)); err != nil {
		t.Fatalf("Reconfigure failed: %v", err)
	}
	if s.fixed.history != fixed.history || s.fixed.pakStatus != fixed.pakStatus || s.fixed.constData != fixed.constData {
		t.Error("resize reallocated fixed buffers")
	}
	for i, h := range s.fixed.updateDMEM {
		if h != fixed.updateDMEM[i] {
			t.Errorf("update DMEM %d reallocated", i)
		}
	}
	if s.sized.coded == coded || s.reg.Valid(coded) {
		t.Error("resize kept the old coded buffer")
	}
	if s.sized.width != 640 || s.sized.height != 480 {
		t.Errorf("sized subset = %dx%d, want 640x480", s.sized.width, s.sized.height)
	}
	if s.refs.Len() != 0 {
		t.Errorf("references after resize = %d, want 0", s.refs.Len())
	}
	if got := s.Stats().Reallocs; got != 1 {
		t.Errorf("Reallocs = %d, want 1", got)
	}

	// The references are gone: inter frames fail, intra frames work.
	if _, err := s.EncodeFrame(ctx, FrameParams{Type: FrameP}); !errors.Is(err, ErrInvalidFrame) {
		t.Errorf("P frame after resize error = %v, want ErrInvalidFrame", err)
	}
	res, err := s.EncodeFrame(ctx, FrameParams{Type: FrameI, Picture: testPicture(640, 480)})
	if err != nil {
		t.Fatalf("I frame after resize failed: %v", err)
	}
	if res.Bytes == 0 {
		t.Error("I frame after resize is empty")
	}
}

func TestReconfigureRejectsCodecChange(t *testing.T) {
	s := newTestSession(t, cqpConfig(320, 240))
	cfg := cqpConfig(320, 240)
	cfg.Codec = CodecVP9
	if err := s.Reconfigure(cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Reconfigure(VP9) error = %v, want ErrInvalidConfig", err)
	}
	if got := s.Config().Codec; got != CodecAVC {
		t.Errorf("codec after rejected Reconfigure = %v, want AVC", got)
	}
}

func TestReconfigureBitrateResetsBRC(t *testing.T) {
	s := newTestSession(t, cbrConfig(320, 240))
	ctx := context.Background()
	if _, err := s.EncodeFrame(ctx, FrameParams{Type: FrameI}); err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}
	if s.rc.NeedsInit() {
		t.Fatal("BRC still needs init after the first frame")
	}

	cfg := cbrConfig(320, 240)
	cfg.TargetBitrate = 2_000_000
	cfg.VBVBits = 4_000_000
	cfg.InitialFullness = 2_000_000
	if err := s.Reconfigure(cfg); err != nil {
		t.Fatalf("Reconfigure failed: %v", err)
	}
	if !s.rc.NeedsInit() {
		t.Error("bitrate change did not request a BRC reset")
	}
	res, err := s.EncodeFrame(ctx, FrameParams{Type: FrameP})
	if err != nil {
		t.Fatalf("EncodeFrame after Reconfigure failed: %v", err)
	}
	if got := s.Stats().Resets; got != 1 {
		t.Errorf("Resets = %d, want 1", got)
	}
	if res.TargetSize != 2_000_000 {
		t.Errorf("TargetSize after reset = %d, want 2000000", res.TargetSize)
	}
}

func TestNoopDeviceSession(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	s, err := New(cqpConfig(320, 240), WithDevice(device, queue))
	if err != nil {
		t.Fatalf("New(WithDevice) failed: %v", err)
	}
	res, err := s.EncodeFrame(context.Background(), FrameParams{Type: FrameI, Headers: [][]byte{testHeader}})
	if err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}
	if res.Bytes == 0 || len(res.Bitstream) != res.Bytes {
		t.Errorf("Bytes = %d, bitstream %d bytes", res.Bytes, len(res.Bitstream))
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
	if st := s.Registry().Stats(); st.Live != 0 {
		t.Errorf("after Close: %s", st)
	}
}

func TestStatsString(t *testing.T) {
	s := Stats{Frames: 3, Passes: 5, Bytes: 100, NotConverged: 1, Resets: 2}
	want := "Stats[frames=3 passes=5 bytes=100 notConverged=1 resets=2]"
	if got := s.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
