package features

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/high-horse/fingerprint-server/internal/imaging"
)

// SIFT parameters tuned for fine ridge texture: unlimited features and a low
// contrast threshold so faint ridges still produce keypoints.
const (
	MaxFeatures       int     = 0
	OctaveLayers      int     = 5
	ContrastThreshold float64 = 0.02
	EdgeThreshold     float64 = 15
	Sigma             float64 = 1.6
)

// Extractor runs SIFT on preprocessed images. It holds no detector state, a
// new detector is created per call so one Extractor may serve many
// goroutines.
type Extractor struct{}

func NewExtractor() *Extractor { return &Extractor{} }

// Extract detects keypoints on img and computes their descriptors.
func (e *Extractor) Extract(img imaging.Gray) (FeatureSet, error) {
	m, err := imaging.GrayToMat(img)
	if err != nil {
		return FeatureSet{}, fmt.Errorf("extract: %w", err)
	}
	defer m.Close()
	return e.ExtractMat(m)
}

// ExtractMat is Extract for a single-channel 8-bit matrix.
func (e *Extractor) ExtractMat(m gocv.Mat) (FeatureSet, error) {
	if m.Empty() {
		return FeatureSet{}, ErrNoFeatures
	}

	sift := newSIFT()
	defer sift.Close()

	mask := gocv.NewMat()
	defer mask.Close()

	kps, desc := sift.DetectAndCompute(m, mask)
	defer desc.Close()

	if len(kps) == 0 || desc.Empty() {
		return FeatureSet{}, ErrNoFeatures
	}
	if desc.Rows() != len(kps) {
		return FeatureSet{}, fmt.Errorf("%w: %d keypoints, %d descriptors", ErrDescriptorMissing, len(kps), desc.Rows())
	}

	fs := FeatureSet{
		Keypoints:   make([]Keypoint, len(kps)),
		Descriptors: make([]Descriptor, len(kps)),
	}
	cols := desc.Cols()
	for i, kp := range kps {
		fs.Keypoints[i] = Keypoint{
			X:        kp.X,
			Y:        kp.Y,
			Size:     kp.Size,
			Angle:    kp.Angle,
			Response: kp.Response,
			Octave:   kp.Octave,
		}
		d := make(Descriptor, cols)
		for c := 0; c < cols; c++ {
			d[c] = desc.GetFloatAt(i, c)
		}
		fs.Descriptors[i] = d
	}
	return fs, fs.Validate()
}

// newSIFT builds a detector with the package parameters. gocv takes every
// parameter by pointer, nil meaning the OpenCV default.
func newSIFT() gocv.SIFT {
	nf, layers := MaxFeatures, OctaveLayers
	ct, et, sigma := ContrastThreshold, EdgeThreshold, Sigma
	return gocv.NewSIFTWithParams(&nf, &layers, &ct, &et, &sigma)
}
