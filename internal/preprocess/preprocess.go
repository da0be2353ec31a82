// Package preprocess turns a raw fingerprint capture into a one pixel wide
// binary ridge skeleton.
package preprocess

import (
	"errors"
	"fmt"
	"image"
	"log"

	"gocv.io/x/gocv"

	"github.com/high-horse/fingerprint-server/internal/imaging"
)

const (
	MaxDimension = 512

	denoiseStrength = 10
	denoiseTemplate = 7
	denoiseSearch   = 21

	claheDarkClip   = 3.0
	claheBrightClip = 2.0
	claheMeanCutoff = 127.0
	claheTiles      = 8
)

// Snapshot stages handed to the Sink.
const (
	StageOriginal  = "original"
	StageGrayscale = "grayscale"
	StageCLAHE     = "clahe"
	StageThreshold = "threshold"
	StageFinal     = "final"
)

var (
	ErrEmptyImage          = errors.New("preprocess: empty image")
	ErrUnsupportedChannels = errors.New("preprocess: unsupported channel count")
)

type Option func(*Preprocessor)

// WithSink routes stage snapshots to s.
func WithSink(s Sink) Option {
	return func(p *Preprocessor) {
		if s != nil {
			p.sink = s
		}
	}
}

// Preprocessor is stateless apart from its sink and safe for concurrent use
// when the sink is.
type Preprocessor struct {
	sink Sink
}

func New(opts ...Option) *Preprocessor {
	p := &Preprocessor{sink: NopSink{}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs the full pipeline on src, which is left untouched. tag
// prefixes the sink keys so snapshots of both images of a pair stay apart.
func (p *Preprocessor) Process(src gocv.Mat, tag string) (imaging.Gray, error) {
	if src.Empty() {
		return imaging.Gray{}, fmt.Errorf("%s: %w", StageOriginal, ErrEmptyImage)
	}
	p.snapshot(tag, 1, StageOriginal, src)

	resized, err := downscale(src)
	if err != nil {
		return imaging.Gray{}, err
	}
	defer resized.Close()

	gray, err := toGray(resized)
	if err != nil {
		return imaging.Gray{}, err
	}
	defer gray.Close()
	p.snapshot(tag, 2, StageGrayscale, gray)

	denoised := gocv.NewMat()
	defer denoised.Close()
	gocv.FastNlMeansDenoisingWithParams(gray, &denoised, denoiseStrength, denoiseTemplate, denoiseSearch)
	if denoised.Empty() {
		return imaging.Gray{}, fmt.Errorf("denoise: %w", ErrEmptyImage)
	}

	equalized := gocv.NewMat()
	defer equalized.Close()
	clahe := gocv.NewCLAHEWithParams(clipLimit(denoised.Mean().Val1), image.Pt(claheTiles, claheTiles))
	defer clahe.Close()
	clahe.Apply(denoised, &equalized)
	if equalized.Empty() {
		return imaging.Gray{}, fmt.Errorf("%s: %w", StageCLAHE, ErrEmptyImage)
	}
	p.snapshot(tag, 3, StageCLAHE, equalized)

	sharpened := gocv.NewMat()
	defer sharpened.Close()
	kernel := sharpenKernel()
	defer kernel.Close()
	gocv.Filter2D(equalized, &sharpened, -1, kernel, image.Pt(-1, -1), 0, gocv.BorderDefault)
	if sharpened.Empty() {
		return imaging.Gray{}, fmt.Errorf("sharpen: %w", ErrEmptyImage)
	}

	binary := binarize(sharpened)
	defer binary.Close()
	if binary.Empty() {
		return imaging.Gray{}, fmt.Errorf("%s: %w", StageThreshold, ErrEmptyImage)
	}
	p.snapshot(tag, 4, StageThreshold, binary)

	closed := gocv.NewMat()
	defer closed.Close()
	ellipse := gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(3, 3))
	defer ellipse.Close()
	gocv.MorphologyEx(binary, &closed, gocv.MorphClose, ellipse)
	if closed.Empty() {
		return imaging.Gray{}, fmt.Errorf("close: %w", ErrEmptyImage)
	}

	ridges, err := imaging.GrayFromMat(closed)
	if err != nil {
		return imaging.Gray{}, fmt.Errorf("close: %w", err)
	}
	skeleton := Thin(ridges)
	if skeleton.Empty() {
		return imaging.Gray{}, fmt.Errorf("%s: %w", StageFinal, ErrEmptyImage)
	}

	if p.wants(tag, 5, StageFinal) {
		if m, err := imaging.GrayToMat(skeleton); err == nil {
			p.snapshot(tag, 5, StageFinal, m)
			m.Close()
		}
	}
	return skeleton, nil
}

// binarize applies Otsu's threshold. A flat image has no ridges to
// separate and becomes all background.
func binarize(src gocv.Mat) gocv.Mat {
	minVal, maxVal, _, _ := gocv.MinMaxLoc(src)
	if minVal == maxVal {
		return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), src.Rows(), src.Cols(), gocv.MatTypeCV8UC1)
	}
	dst := gocv.NewMat()
	gocv.Threshold(src, &dst, 0, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)
	return dst
}

func clipLimit(mean float64) float64 {
	if mean < claheMeanCutoff {
		return claheDarkClip
	}
	return claheBrightClip
}

// downscale shrinks src so neither side exceeds MaxDimension. The result is
// always a new Mat owned by the caller.
func downscale(src gocv.Mat) (gocv.Mat, error) {
	w, h := src.Cols(), src.Rows()
	if w <= MaxDimension && h <= MaxDimension {
		return src.Clone(), nil
	}
	longest := w
	if h > longest {
		longest = h
	}
	scale := float64(MaxDimension) / float64(longest)
	size := image.Pt(int(float64(w)*scale), int(float64(h)*scale))
	if size.X < 1 || size.Y < 1 {
		return gocv.NewMat(), fmt.Errorf("resize: %w", ErrEmptyImage)
	}

	dst := gocv.NewMat()
	gocv.Resize(src, &dst, size, 0, 0, gocv.InterpolationLanczos4)
	if dst.Empty() {
		dst.Close()
		return gocv.NewMat(), fmt.Errorf("resize: %w", ErrEmptyImage)
	}
	return dst, nil
}

// toGray converts BGR or BGRA input with the BT.601 luma weights.
func toGray(src gocv.Mat) (gocv.Mat, error) {
	dst := gocv.NewMat()
	switch src.Channels() {
	case 1:
		src.CopyTo(&dst)
	case 3:
		gocv.CvtColor(src, &dst, gocv.ColorBGRToGray)
	case 4:
		gocv.CvtColor(src, &dst, gocv.ColorBGRAToGray)
	default:
		dst.Close()
		return gocv.NewMat(), fmt.Errorf("%s: %w: %d", StageGrayscale, ErrUnsupportedChannels, src.Channels())
	}
	if dst.Empty() {
		dst.Close()
		return gocv.NewMat(), fmt.Errorf("%s: %w", StageGrayscale, ErrEmptyImage)
	}
	if dst.Type() != gocv.MatTypeCV8UC1 {
		conv := gocv.NewMat()
		dst.ConvertTo(&conv, gocv.MatTypeCV8UC1)
		dst.Close()
		dst = conv
	}
	return dst, nil
}

func sharpenKernel() gocv.Mat {
	k := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV32F)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			k.SetFloatAt(r, c, -1)
		}
	}
	k.SetFloatAt(1, 1, 9)
	return k
}

func snapshotKey(tag string, n int, stage string) string {
	if tag == "" {
		return fmt.Sprintf("%d_%s", n, stage)
	}
	return fmt.Sprintf("%s/%d_%s", tag, n, stage)
}

func (p *Preprocessor) wants(tag string, n int, stage string) bool {
	return p.sink.Accepts(snapshotKey(tag, n, stage))
}

func (p *Preprocessor) snapshot(tag string, n int, stage string, m gocv.Mat) {
	key := snapshotKey(tag, n, stage)
	if !p.sink.Accepts(key) {
		return
	}
	data, err := imaging.EncodePNG(m)
	if err != nil {
		log.Printf("snapshot %s: %v", key, err)
		return
	}
	if err := p.sink.Accept(key, "image/png", data); err != nil {
		log.Printf("snapshot %s: %v", key, err)
	}
}
