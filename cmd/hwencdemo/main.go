// Command hwencdemo encodes a synthetic clip on the simulated encoder and
// prints the rate-control statistics of every frame.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"log"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/hwenc"
	"github.com/gogpu/hwenc/hwsim"
	"github.com/gogpu/hwenc/resource"
)

func main() {
	var (
		codecName  = flag.String("codec", "avc", "codec: avc or vp9")
		width      = flag.Int("width", 1280, "frame width")
		height     = flag.Int("height", 720, "frame height")
		frames     = flag.Int("frames", 30, "number of frames")
		rcName     = flag.String("rc", "cbr", "rate control: cbr, vbr or cqp")
		bitrate    = flag.Uint64("bitrate", 2_000_000, "target bitrate in bits per second")
		qp         = flag.Int("qp", 26, "QP for cqp")
		passes     = flag.Int("passes", 0, "maximum PAK passes per frame (0 = default)")
		gop        = flag.Int("gop", 30, "intra period in frames")
		complexity = flag.Float64("complexity", 1, "scene complexity of the simulated encoder")
		sceneCut   = flag.Int("scenecut", 0, "frame at which the complexity doubles (0 = never)")
		verbose    = flag.Bool("v", false, "log per-pass diagnostics")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	hwenc.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg := hwenc.Config{
		Codec:         parseCodec(*codecName),
		Generation:    hwenc.Gen10,
		Width:         *width,
		Height:        *height,
		RateControl:   parseRateControl(*rcName),
		TargetBitrate: *bitrate,
		QP:            *qp,
		MaxPasses:     *passes,
		GOPSize:       *gop,
	}
	if !cfg.RateControl.BRC() {
		cfg.TargetBitrate = 0
	}

	reg := resource.NewRegistry(nil)
	sim := hwsim.New(reg, hwsim.Config{Complexity: *complexity})
	s, err := hwenc.New(cfg, hwenc.WithRegistry(reg), hwenc.WithSubmitter(sim))
	if err != nil {
		log.Fatalf("Failed to open session: %v", err)
	}
	defer s.Close()

	p := message.NewPrinter(language.English)
	p.Printf("%s %dx%d %s, %d bps\n", cfg.Codec, cfg.Width, cfg.Height, cfg.RateControl, cfg.TargetBitrate)
	p.Printf("%5s %4s %6s %4s %12s %12s %s\n", "frame", "type", "passes", "qp", "bits", "target", "status")

	ctx := context.Background()
	for i := range *frames {
		if *sceneCut > 0 && i == *sceneCut {
			sim.SetComplexity(*complexity * 2)
		}
		res, err := s.EncodeFrame(ctx, hwenc.FrameParams{
			Type:        s.NextFrameType(),
			Picture:     pattern(*width, *height, i),
			SceneChange: *sceneCut > 0 && i == *sceneCut,
		})
		if err != nil {
			log.Fatalf("Frame %d failed: %v", i, err)
		}
		p.Printf("%5d %4v %6s %4d %12d %12d %s\n",
			res.FrameNum, res.Type, passLabel(res), res.QP, res.Bytes*8, res.TargetSize, status(res))
	}

	st := s.Stats()
	p.Printf("\n%d frames, %d passes, %d bytes", st.Frames, st.Passes, st.Bytes)
	if st.Frames > 0 {
		p.Printf(", %.2f passes/frame", float64(st.Passes)/float64(st.Frames))
	}
	p.Printf(", %d frames outside the window\n", st.NotConverged)
}

func parseCodec(name string) hwenc.Codec {
	switch strings.ToLower(name) {
	case "avc", "h264":
		return hwenc.CodecAVC
	case "vp9":
		return hwenc.CodecVP9
	}
	log.Fatalf("Unknown codec %q", name)
	return 0
}

func parseRateControl(name string) hwenc.RateControlMode {
	switch strings.ToLower(name) {
	case "cbr":
		return hwenc.RateControlCBR
	case "vbr":
		return hwenc.RateControlVBR
	case "cqp":
		return hwenc.RateControlCQP
	}
	log.Fatalf("Unknown rate control %q", name)
	return 0
}

func passLabel(res *hwenc.FrameResult) string {
	return fmt.Sprintf("%d/%d", res.Passes, res.PassBudget)
}

func status(res *hwenc.FrameResult) string {
	switch {
	case !res.BRC:
		return "cqp"
	case res.Converged:
		return "ok"
	case res.Overflow:
		return "overflow"
	case res.Underflow:
		return "underflow"
	}
	return "outside"
}

// pattern draws a diagonal ramp that scrolls one pixel per frame.
func pattern(w, h, frame int) *image.YCbCr {
	img := image.NewYCbCr(image.Rect(0, 0, w, h), image.YCbCrSubsampleRatio420)
	for y := range h {
		for x := range w {
			img.Y[img.YOffset(x, y)] = uint8((x + y + frame) & 0xFF)
		}
	}
	for i := range img.Cb {
		img.Cb[i], img.Cr[i] = 128, 128
	}
	return img
}
