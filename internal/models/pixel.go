// Package models holds the small shared data types used across the
// photometry pipeline packages.
package models

import "fmt"

// Pixel identifies a single detector pixel by its position in the image.
type Pixel struct {
	// Row is the zero-based row index of the pixel.
	Row int

	// Col is the zero-based column index of the pixel.
	Col int
}

// String returns the pixel position in (row, col) form.
func (p Pixel) String() string {
	return fmt.Sprintf("(%d, %d)", p.Row, p.Col)
}

// Index returns the row-major linear index of the pixel for a square
// image with the given side length.
func (p Pixel) Index(side int) int {
	return p.Row*side + p.Col
}

// PixelFromIndex converts a row-major linear index back into a Pixel
// for a square image with the given side length.
func PixelFromIndex(idx, side int) Pixel {
	return Pixel{Row: idx / side, Col: idx % side}
}

// LightCurve is a single time series extracted from an image cube.
type LightCurve struct {
	// Time holds the sample timestamps.
	Time []float64

	// Flux holds the flux value at each timestamp.
	Flux []float64
}
