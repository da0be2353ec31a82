package features

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/high-horse/fingerprint-server/internal/imaging"
)

var ErrBadSkeleton = errors.New("features: template skeleton is empty or inconsistent")

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
}

// Template is an image after preprocessing and extraction: the ridge
// skeleton scoring reads patches from, and its features.
type Template struct {
	Skeleton imaging.Gray `cbor:"1,keyasint"`
	Features FeatureSet   `cbor:"2,keyasint"`
}

// Marshal encodes t as deterministic CBOR.
func Marshal(t Template) ([]byte, error) {
	data, err := encMode.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshal template: %w", err)
	}
	return data, nil
}

// Unmarshal decodes and validates a Template.
func Unmarshal(data []byte) (Template, error) {
	var t Template
	if err := cbor.Unmarshal(data, &t); err != nil {
		return Template{}, fmt.Errorf("unmarshal template: %w", err)
	}
	if t.Skeleton.Empty() {
		return Template{}, ErrBadSkeleton
	}
	if err := t.Features.Validate(); err != nil {
		return Template{}, err
	}
	return t, nil
}
