// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package hwenc

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/gogpu/hwenc/cmdbuf"
	"github.com/gogpu/hwenc/hwsim"
	"github.com/gogpu/hwenc/internal/hw"
	"github.com/gogpu/hwenc/internal/mi"
	"github.com/gogpu/hwenc/internal/params"
	"github.com/gogpu/hwenc/internal/pipeline"
	"github.com/gogpu/hwenc/internal/ratectl"
	"github.com/gogpu/hwenc/resource"
	"github.com/gogpu/hwenc/surface"
)

// Stats are cumulative session counters.
type Stats struct {
	Frames       uint64
	Passes       uint64
	Bytes        uint64
	NotConverged uint64 // BRC frames accepted after the last pass
	Resets       uint64 // BRC resets after the first init
	Reallocs     uint64 // resolution changes
}

// String formats the counters for logs.
func (s Stats) String() string {
	return fmt.Sprintf("Stats[frames=%d passes=%d bytes=%d notConverged=%d resets=%d]",
		s.Frames, s.Passes, s.Bytes, s.NotConverged, s.Resets)
}

// Session is one encoder context: a codec and hardware generation fixed at
// creation, the buffers its passes reference and the rate-control state
// carried between frames.
//
// Frames are encoded one at a time; EncodeFrame holds the session lock
// for the whole frame.
type Session struct {
	mu sync.Mutex

	id   uuid.UUID
	log  *slog.Logger
	cfg  Config
	caps hw.Caps
	seq  *pipeline.Sequencer

	reg    *resource.Registry
	sub    Submitter
	tables params.Tables
	cmd    *cmdbuf.Buffer
	coded  int // coded buffer size option

	rc    *ratectl.State
	fixed fixedResources
	sized sizedResources

	refs  *surface.ReferenceSet
	cur   surface.Reference   // picture slot the next frame reconstructs into
	spare []surface.Reference // evicted slots kept for reuse

	frameNum uint32
	stats    Stats
	failed   error
	closed   bool
}

// fixedResources are sized from hardware constants and survive resolution
// changes.
type fixedResources struct {
	history    resource.Handle
	initDMEM   resource.Handle
	updateDMEM []resource.Handle
	hucStatus  resource.Handle
	pakStatus  resource.Handle
	imageInput resource.Handle
	imageBatch []resource.Handle
	constData  resource.Handle
	stats      resource.Handle
}

// sizedResources depend on the frame size.
type sizedResources struct {
	width, height int // block-aligned
	rowStore      [pipeline.NumRowStores]resource.Handle
	mvTemporal    resource.Handle
	streamIn      resource.Handle
	coded         resource.Handle
	codedSize     int
	source        surface.Surface
}

// New validates cfg, resolves the sequencer for its codec and generation
// and allocates every fixed-size session buffer.
func New(cfg Config, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	seq, err := pipeline.Lookup(cfg.Codec, cfg.Generation)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupported, err)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	reg, err := o.newRegistry()
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:     uuid.New(),
		cfg:    cfg,
		caps:   seq.Caps(),
		seq:    seq,
		reg:    reg,
		sub:    o.submitter,
		tables: params.DefaultTables(),
		cmd:    cmdbuf.New("pass", o.cmdWords),
		coded:  o.codedBytes,
		rc:     ratectl.NewState(cfg.rateParams()),
		refs:   surface.NewReferenceSet(cfg.NumRefs),
	}
	if o.tables != nil {
		s.tables = *o.tables
	}
	if s.sub == nil {
		s.sub = hwsim.New(reg, hwsim.Config{Tables: &s.tables})
	}
	s.log = Logger().With(slog.String("session", s.id.String()))

	if err := s.allocFixed(); err != nil {
		s.release()
		return nil, fmt.Errorf("%w: %w", ErrResource, err)
	}
	if err := s.allocSized(); err != nil {
		s.release()
		return nil, fmt.Errorf("%w: %w", ErrResource, err)
	}

	s.log.Info("hwenc: session open",
		slog.String("codec", cfg.Codec.String()),
		slog.String("generation", cfg.Generation.String()),
		slog.Int("width", cfg.Width),
		slog.Int("height", cfg.Height),
		slog.String("rc", cfg.RateControl.String()),
		slog.Int("passes", cfg.passBudget(s.caps)),
	)
	return s, nil
}

func (o *options) newRegistry() (*resource.Registry, error) {
	if o.registry != nil {
		return o.registry, nil
	}
	alloc := o.allocator
	switch {
	case alloc != nil:
	case o.device != nil || o.queue != nil:
		a, err := resource.NewHALAllocator(o.device, o.queue)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrResource, err)
		}
		alloc = a
	case o.provider != nil:
		a, err := resource.NewHALAllocatorFromProvider(o.provider)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrResource, err)
		}
		alloc = a
	}
	return resource.NewRegistry(alloc), nil
}

// ID returns the session identifier carried by its log lines.
func (s *Session) ID() uuid.UUID { return s.id }

// Config returns the active configuration with defaults applied.
func (s *Session) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Caps returns the capabilities of the session's codec and generation.
func (s *Session) Caps() Caps { return s.caps }

// Registry returns the registry the session allocates from.
func (s *Session) Registry() *resource.Registry { return s.reg }

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Reconfigure is the "update parameters" entry point. Rate-control
// changes reset the BRC before the next frame; a new frame size
// reallocates the size-dependent buffers and drops the references, so the
// next frame must be intra. Codec and generation cannot change.
func (s *Session) Reconfigure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg = cfg.withDefaults()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.failed != nil {
		return fmt.Errorf("%w: %w", ErrSessionFailed, s.failed)
	}
	if cfg.Codec != s.cfg.Codec || cfg.Generation != s.cfg.Generation {
		return fmt.Errorf("%w: codec and generation are fixed for a session", ErrInvalidConfig)
	}

	old := s.cfg
	s.cfg = cfg
	s.rc.SetParams(cfg.rateParams())
	if cfg.RateControl != old.RateControl || cfg.InitialQP != old.InitialQP ||
		cfg.MinQP != old.MinQP || cfg.MaxQP != old.MaxQP || cfg.MaxFrameBytes != old.MaxFrameBytes ||
		cfg.MaxBitrate != old.MaxBitrate || cfg.MaxPasses != old.MaxPasses {
		s.rc.RequestReset()
	}
	if cfg.NumRefs != old.NumRefs {
		s.dropReferences()
		s.refs = surface.NewReferenceSet(cfg.NumRefs)
	}

	w, h := s.alignedSize(cfg)
	if w != s.sized.width || h != s.sized.height {
		s.freeSized()
		s.dropReferences()
		s.rc.RequestReset()
		if err := s.allocSized(); err != nil {
			return s.fail(fmt.Errorf("%w: %w", ErrResource, err))
		}
		s.stats.Reallocs++
	}

	s.log.Info("hwenc: session reconfigured",
		slog.Int("width", cfg.Width),
		slog.Int("height", cfg.Height),
		slog.String("rc", cfg.RateControl.String()),
		slog.Uint64("bitrate", cfg.TargetBitrate),
		slog.Bool("reset", s.rc.NeedsInit()),
	)
	return nil
}

// Close releases every session buffer. Buffers that were never allocated
// are skipped; closing twice is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.release()
	s.log.Info("hwenc: session closed", slog.String("stats", s.stats.String()))
	return nil
}

// fail marks the session failed and returns err.
func (s *Session) fail(err error) error {
	if s.failed == nil {
		s.failed = err
		s.log.Error("hwenc: session failed", slog.String("err", err.Error()))
	}
	return err
}

// frameError classifies an error that aborts one frame. Capability and
// parameter errors leave the session usable; anything else fails it.
func (s *Session) frameError(err error) error {
	switch {
	case errors.Is(err, pipeline.ErrUnsupported), errors.Is(err, params.ErrTooManyROI):
		return fmt.Errorf("%w: %w", ErrUnsupported, err)
	case errors.Is(err, pipeline.ErrInvalidFrame), errors.Is(err, surface.ErrInvalidReference),
		errors.Is(err, surface.ErrInvalidSize), errors.Is(err, surface.ErrFormat):
		return fmt.Errorf("%w: %w", ErrInvalidFrame, err)
	case errors.Is(err, ErrFirmware), errors.Is(err, ErrSessionFailed):
		return s.fail(err)
	default:
		return s.fail(fmt.Errorf("%w: %w", ErrResource, err))
	}
}

// alignedSize returns the frame size aligned to the block size.
func (s *Session) alignedSize(cfg Config) (w, h int) {
	return hw.AlignUp(cfg.Width, s.caps.BlockSize), hw.AlignUp(cfg.Height, s.caps.BlockSize)
}

// passSlot returns the offset of the PAK status slot of pass.
func passSlot(pass int) int { return pass * params.PAKStatusSlotSize }

// allocFixed allocates the buffers whose size depends only on the codec
// and generation, and writes the blocks that never change.
func (s *Session) allocFixed() error {
	f := &s.fixed
	passes := s.caps.MaxPasses
	var err error
	alloc := func(size int, kind resource.Kind, label string) resource.Handle {
		if err != nil {
			return resource.Handle{}
		}
		var h resource.Handle
		h, err = s.reg.Allocate(size, kind, label)
		return h
	}

	f.history = alloc(params.HistorySize, resource.KindHistory, "brc-history")
	f.initDMEM = alloc(params.DMEMSize, resource.KindDMEM, "brc-init-dmem")
	for p := range passes {
		f.updateDMEM = append(f.updateDMEM, alloc(params.DMEMSize, resource.KindDMEM, fmt.Sprintf("brc-update-dmem-%d", p)))
		f.imageBatch = append(f.imageBatch, alloc(params.ImageBatchSize, resource.KindBatch, fmt.Sprintf("image-batch-%d", p)))
	}
	f.hucStatus = alloc(params.HuCStatusSize, resource.KindStatus, "huc-status")
	f.pakStatus = alloc(passSlot(passes), resource.KindStatus, "pak-status")
	f.imageInput = alloc(params.ImageStateSize(s.cfg.Codec), resource.KindImageState, "image-input")
	f.constData = alloc(params.ConstDataSize, resource.KindConst, "const-data")
	f.stats = alloc(params.FrameStatsSize, resource.KindStats, "frame-stats")
	if err != nil {
		return err
	}

	if err := params.WriteBlock(s.reg, f.constData, s.tables.WriteConstData); err != nil {
		return err
	}
	return params.WriteBlock(s.reg, f.hucStatus, func(b []byte) error {
		params.HuCStatus.Status2Mask.Set(b, mi.HuCFirmwareLoaded)
		return nil
	})
}

// rowStoreBytesPerBlock is the row-store footprint of one block column.
const rowStoreBytesPerBlock = 64

// allocSized allocates the buffers whose size follows the frame size and
// the first picture slot.
func (s *Session) allocSized() error {
	z := &s.sized
	z.width, z.height = s.alignedSize(s.cfg)
	wMB, hMB := hw.Blocks(z.width, 16), hw.Blocks(z.height, 16)

	rowStores := pipeline.RowStoreBSDMPC + 1
	if s.cfg.Codec == CodecVP9 {
		rowStores = pipeline.NumRowStores
	}
	var err error
	for i := range rowStores {
		if z.rowStore[i], err = s.reg.Allocate(wMB*rowStoreBytesPerBlock, resource.KindRowStore, fmt.Sprintf("row-store-%d", i)); err != nil {
			return err
		}
	}
	if z.mvTemporal, err = s.reg.Allocate(wMB*hMB*16, resource.KindScratch, "mv-temporal"); err != nil {
		return err
	}
	if s.cfg.Codec == CodecVP9 {
		z.streamIn, err = s.reg.Allocate(params.SegmentMapSize(z.width, z.height), resource.KindSegmentMap, "segment-map")
	} else {
		z.streamIn, err = s.reg.Allocate(params.StreamInSize(wMB, hMB), resource.KindStreamIn, "stream-in")
	}
	if err != nil {
		return err
	}

	z.codedSize = s.coded
	if z.codedSize <= params.CodedStatusSize {
		z.codedSize = params.CodedStatusSize + z.width*z.height*3/2
	}
	if z.coded, err = s.reg.Allocate(z.codedSize, resource.KindCoded, "coded"); err != nil {
		return err
	}
	if z.source, err = surface.New(s.reg, z.width, z.height, "source"); err != nil {
		return err
	}
	return s.ensureSlot()
}

// ensureSlot makes sure a picture slot is ready for the next frame.
func (s *Session) ensureSlot() error {
	if !s.cur.Picture.IsZero() {
		return nil
	}
	if n := len(s.spare); n > 0 {
		s.cur = s.spare[n-1]
		s.spare = s.spare[:n-1]
		return nil
	}
	pic, err := surface.New(s.reg, s.sized.width, s.sized.height, "recon")
	if err != nil {
		return err
	}
	ds, err := surface.NewScaled(s.reg, pic, "recon-4x")
	if err != nil {
		pic.Free(s.reg)
		return err
	}
	s.cur = surface.Reference{Picture: pic, Scaled: ds}
	return nil
}

func freeSlot(reg *resource.Registry, r *surface.Reference) {
	r.Picture.Free(reg)
	r.Scaled.Free(reg)
}

// dropReferences frees every reference and spare slot.
func (s *Session) dropReferences() {
	for _, r := range s.refs.Clear() {
		freeSlot(s.reg, &r)
	}
	for i := range s.spare {
		freeSlot(s.reg, &s.spare[i])
	}
	s.spare = nil
}

func (s *Session) freeSized() {
	z := &s.sized
	for _, h := range z.rowStore {
		s.reg.Free(h)
	}
	s.reg.Free(z.mvTemporal)
	s.reg.Free(z.streamIn)
	s.reg.Free(z.coded)
	z.source.Free(s.reg)
	freeSlot(s.reg, &s.cur)
	*z = sizedResources{}
	s.cur = surface.Reference{}
}

func (s *Session) freeFixed() {
	f := &s.fixed
	for _, h := range append(f.updateDMEM, f.imageBatch...) {
		s.reg.Free(h)
	}
	for _, h := range []resource.Handle{f.history, f.initDMEM, f.hucStatus, f.pakStatus, f.imageInput, f.constData, f.stats} {
		s.reg.Free(h)
	}
	*f = fixedResources{}
}

// release frees everything the session allocated.
func (s *Session) release() {
	s.dropReferences()
	s.freeSized()
	s.freeFixed()
}
