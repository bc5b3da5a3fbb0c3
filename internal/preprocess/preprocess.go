// Package preprocess holds the pluggable image-cleanup step the pipeline
// runs before recognition. Implementations receive and return encoded image
// bytes so engines stay decoupled from in-memory pixel formats.
package preprocess

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
)

// Preprocessor transforms a page image before it reaches an engine.
type Preprocessor interface {
	Process(data []byte) ([]byte, error)
}

// Noop passes the image through unchanged.
type Noop struct{}

func (Noop) Process(data []byte) ([]byte, error) { return data, nil }

// Chain applies preprocessors in order, feeding each the previous output.
type Chain []Preprocessor

func (c Chain) Process(data []byte) ([]byte, error) {
	var err error
	for _, p := range c {
		if data, err = p.Process(data); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// Grayscale converts the image to 8-bit grayscale, which most OCR backends
// handle better than color scans.
type Grayscale struct{}

func (Grayscale) Process(data []byte) ([]byte, error) {
	img, err := decode(data)
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			gray.Set(x, y, color.GrayModel.Convert(img.At(x, y)))
		}
	}
	return encode(gray)
}

// Scale caps the longer image edge at MaxEdge pixels, downscaling oversized
// scans so engine calls stay within memory and latency bounds. Smaller
// images pass through untouched.
type Scale struct {
	MaxEdge int
}

func (s Scale) Process(data []byte) ([]byte, error) {
	if s.MaxEdge <= 0 {
		return data, nil
	}
	img, err := decode(data)
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	longest := max(width, height)
	if longest <= s.MaxEdge {
		return data, nil
	}

	scale := float64(s.MaxEdge) / float64(longest)
	dst := image.NewRGBA(image.Rect(0, 0, int(float64(width)*scale), int(float64(height)*scale)))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return encode(dst)
}

func decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode page image: %w", err)
	}
	return img, nil
}

func encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode processed image: %w", err)
	}
	return buf.Bytes(), nil
}
