// Package features detects scale and rotation invariant keypoints on a
// preprocessed ridge image and describes their neighbourhoods.
package features

import (
	"errors"
	"fmt"
)

var (
	ErrNoFeatures        = errors.New("features: no keypoints detected")
	ErrDescriptorLength  = errors.New("features: inconsistent descriptor length")
	ErrDescriptorMissing = errors.New("features: keypoint and descriptor counts differ")
)

// Keypoint is an interest point in pixel space. Its index within a
// FeatureSet is its identity.
type Keypoint struct {
	X        float64 `cbor:"1,keyasint"`
	Y        float64 `cbor:"2,keyasint"`
	Size     float64 `cbor:"3,keyasint"`
	Angle    float64 `cbor:"4,keyasint"`
	Response float64 `cbor:"5,keyasint"`
	Octave   int     `cbor:"6,keyasint"`
}

// Descriptor characterizes the neighbourhood of the keypoint sharing its
// index.
type Descriptor []float32

// FeatureSet pairs keypoints with descriptors by index.
type FeatureSet struct {
	Keypoints   []Keypoint   `cbor:"1,keyasint"`
	Descriptors []Descriptor `cbor:"2,keyasint"`
}

func (fs FeatureSet) Len() int { return len(fs.Keypoints) }

// Dim is the descriptor length, 0 for an empty set.
func (fs FeatureSet) Dim() int {
	if len(fs.Descriptors) == 0 {
		return 0
	}
	return len(fs.Descriptors[0])
}

// Validate checks that the set is non-empty, that every keypoint has a
// descriptor and that all descriptors share one length.
func (fs FeatureSet) Validate() error {
	if len(fs.Keypoints) == 0 || len(fs.Descriptors) == 0 {
		return ErrNoFeatures
	}
	if len(fs.Keypoints) != len(fs.Descriptors) {
		return fmt.Errorf("%w: %d keypoints, %d descriptors",
			ErrDescriptorMissing, len(fs.Keypoints), len(fs.Descriptors))
	}
	dim := fs.Dim()
	if dim == 0 {
		return fmt.Errorf("%w: zero length", ErrDescriptorLength)
	}
	for i, d := range fs.Descriptors {
		if len(d) != dim {
			return fmt.Errorf("%w: descriptor %d has %d, want %d", ErrDescriptorLength, i, len(d), dim)
		}
	}
	return nil
}

// Compatible reports whether descriptors of a and b can be compared.
func Compatible(a, b FeatureSet) error {
	if a.Dim() != b.Dim() {
		return fmt.Errorf("%w: %d vs %d", ErrDescriptorLength, a.Dim(), b.Dim())
	}
	return nil
}
