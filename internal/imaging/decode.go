package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	wsq "github.com/jtejido/go-wsq"
	"github.com/spakin/netpbm"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

var (
	ErrEmptyPayload      = errors.New("imaging: empty image payload")
	ErrUnsupportedFormat = errors.New("imaging: unsupported image format")
)

// Decode decodes an encoded fingerprint image. Besides the formats registered
// with the image package (JPEG, PNG, GIF, BMP, TIFF) it understands WSQ, the
// FBI fingerprint codec, and the Netpbm family scanners commonly emit.
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", ErrEmptyPayload
	}

	switch {
	case isWSQ(data):
		img, err := wsq.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, "wsq", fmt.Errorf("decode wsq: %w", err)
		}
		return img, "wsq", nil
	case isNetpbm(data):
		img, err := netpbm.Decode(bytes.NewReader(data), &netpbm.DecodeOptions{
			Target: netpbm.PGM,
			Exact:  false,
		})
		if err != nil {
			return nil, "netpbm", fmt.Errorf("decode netpbm: %w", err)
		}
		return img, "netpbm", nil
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, "", ErrUnsupportedFormat
		}
		return nil, format, fmt.Errorf("decode %s: %w", format, err)
	}
	return img, format, nil
}

// DecodeGray decodes data straight to a Gray raster.
func DecodeGray(data []byte) (Gray, error) {
	img, _, err := Decode(data)
	if err != nil {
		return Gray{}, err
	}
	return FromImage(img), nil
}

// WSQ streams open with the SOI marker 0xFFA0.
func isWSQ(data []byte) bool {
	return len(data) >= 2 && data[0] == 0xFF && data[1] == 0xA0
}

func isNetpbm(data []byte) bool {
	if len(data) < 3 || data[0] != 'P' || data[1] < '1' || data[1] > '7' {
		return false
	}
	switch data[2] {
	case ' ', '\t', '\n', '\r':
		return true
	}
	return false
}
