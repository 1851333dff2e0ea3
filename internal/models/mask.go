package models

// Mask is a boolean mask over the pixel positions of a square image.
// It is used both for eligibility masks (true = pixel may be used as a
// predictor) and for display masks highlighting chosen pixels.
type Mask struct {
	// Side is the side length of the square image the mask covers.
	Side int

	// Bits holds the mask values in row-major order.
	Bits []bool
}

// NewMask returns an all-false mask for a side x side image.
func NewMask(side int) Mask {
	return Mask{Side: side, Bits: make([]bool, side*side)}
}

// At reports the mask value at (row, col).
func (m Mask) At(row, col int) bool {
	return m.Bits[row*m.Side+col]
}

// Set assigns the mask value at (row, col).
func (m Mask) Set(row, col int, v bool) {
	m.Bits[row*m.Side+col] = v
}

// Count returns the number of true entries in the mask.
func (m Mask) Count() int {
	n := 0
	for _, b := range m.Bits {
		if b {
			n++
		}
	}
	return n
}

// Pixels returns the positions of all true entries in row-major order.
func (m Mask) Pixels() []Pixel {
	var px []Pixel
	for i, b := range m.Bits {
		if b {
			px = append(px, PixelFromIndex(i, m.Side))
		}
	}
	return px
}
