// Package cube holds the validated image cube a photometry session works
// on: the raw flux measurements, their errors, the per-sample quality
// flags, and the derived per-pixel medians and median-rescaled fluxes.
//
// The cube is built once from already-parsed arrays (reading the source
// imaging format is the caller's job) and is immutable afterwards. The
// only place samples are ever permanently dropped is Load itself, when
// the RemoveBad option discards every sample with a nonzero quality flag.
package cube

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
)

// Options controls how Load builds the cube.
type Options struct {
	// RemoveBad drops every time index whose quality flag is nonzero
	// from the time, flux, and error arrays before anything is derived.
	RemoveBad bool

	// WCS carries optional world-coordinate-system metadata through the
	// pipeline. The fitting core never reads it.
	WCS any
}

// Cube is a time-ordered stack of square detector images together with
// the quantities derived from it at load time.
//
// Flux, Errs, and Rescaled are stored flat in [time, row, col] order:
// sample t of pixel (r, c) lives at index t*Side*Side + r*Side + c.
// Medians is an Side*Side image in row-major order.
type Cube struct {
	Side    int
	Time    []float64
	Flux    []float64
	Errs    []float64
	Quality []int32

	// Removed is the number of flagged samples dropped by RemoveBad.
	Removed int

	// DumpTimes holds the timestamps of the dropped samples.
	DumpTimes []float64

	// Medians is the per-pixel median flux over time, ignoring NaN.
	Medians []float64

	// Rescaled is flux/median - 1 per pixel. Entries where the median
	// is zero or NaN are NaN; they propagate rather than crash.
	Rescaled []float64

	// WCS is pass-through metadata, unused by the fitting core.
	WCS any
}

// Load validates the input arrays and derives the median image and the
// rescaled cube. flux must hold len(time) square images of side x side
// values in [time, row, col] order, and errs and quality must match the
// time axis. The input slices are copied; the caller keeps ownership.
func Load(time, flux, errs []float64, quality []int32, side int, opts Options) (*Cube, error) {
	if side <= 0 {
		return nil, fmt.Errorf("cube: side length must be positive, got %d", side)
	}
	n := len(time)
	if n == 0 {
		return nil, fmt.Errorf("cube: empty time axis")
	}
	if len(flux) != n*side*side {
		return nil, fmt.Errorf("cube: flux length %d does not match %d samples of %dx%d images",
			len(flux), n, side, side)
	}
	if len(errs) != len(flux) {
		return nil, fmt.Errorf("cube: error cube length %d does not match flux length %d",
			len(errs), len(flux))
	}
	if len(quality) != n {
		return nil, fmt.Errorf("cube: quality length %d does not match %d time samples",
			len(quality), n)
	}

	c := &Cube{
		Side:    side,
		Time:    append([]float64(nil), time...),
		Flux:    append([]float64(nil), flux...),
		Errs:    append([]float64(nil), errs...),
		Quality: append([]int32(nil), quality...),
		WCS:     opts.WCS,
	}

	for i, q := range quality {
		if q != 0 {
			c.DumpTimes = append(c.DumpTimes, time[i])
		}
	}

	if opts.RemoveBad {
		c.removeBad()
	}

	c.deriveMedians()
	c.deriveRescaled()
	return c, nil
}

// Samples returns the number of time samples in the cube.
func (c *Cube) Samples() int {
	return len(c.Time)
}

// Index returns the flat index of sample t at pixel (row, col).
func (c *Cube) Index(t, row, col int) int {
	return t*c.Side*c.Side + row*c.Side + col
}

// Series returns a copy of the raw flux time series at (row, col).
func (c *Cube) Series(row, col int) []float64 {
	return c.extract(c.Flux, row, col)
}

// ErrorSeries returns a copy of the flux error time series at (row, col).
func (c *Cube) ErrorSeries(row, col int) []float64 {
	return c.extract(c.Errs, row, col)
}

// RescaledSeries returns a copy of the median-rescaled flux time series
// at (row, col).
func (c *Cube) RescaledSeries(row, col int) []float64 {
	return c.extract(c.Rescaled, row, col)
}

// MedianAt returns the per-pixel median flux at (row, col).
func (c *Cube) MedianAt(row, col int) float64 {
	return c.Medians[row*c.Side+col]
}

func (c *Cube) extract(data []float64, row, col int) []float64 {
	n := len(c.Time)
	out := make([]float64, n)
	for t := 0; t < n; t++ {
		out[t] = data[c.Index(t, row, col)]
	}
	return out
}

// removeBad discards every sample with a nonzero quality flag, keeping
// the time, flux, and error arrays aligned.
func (c *Cube) removeBad() {
	n := len(c.Time)
	px := c.Side * c.Side
	keptTime := c.Time[:0]
	keptQuality := c.Quality[:0]
	keptFlux := c.Flux[:0]
	keptErrs := c.Errs[:0]
	for t := 0; t < n; t++ {
		if c.Quality[t] != 0 {
			c.Removed++
			continue
		}
		keptTime = append(keptTime, c.Time[t])
		keptQuality = append(keptQuality, c.Quality[t])
		keptFlux = append(keptFlux, c.Flux[t*px:(t+1)*px]...)
		keptErrs = append(keptErrs, c.Errs[t*px:(t+1)*px]...)
	}
	c.Time = keptTime
	c.Quality = keptQuality
	c.Flux = keptFlux
	c.Errs = keptErrs
}

// deriveMedians computes the per-pixel median over time, ignoring NaN
// entries. A pixel whose series is entirely NaN gets a NaN median.
func (c *Cube) deriveMedians() {
	px := c.Side * c.Side
	n := len(c.Time)
	c.Medians = make([]float64, px)
	vals := make([]float64, 0, n)
	for p := 0; p < px; p++ {
		vals = vals[:0]
		for t := 0; t < n; t++ {
			v := c.Flux[t*px+p]
			if !math.IsNaN(v) {
				vals = append(vals, v)
			}
		}
		med, err := stats.Median(vals)
		if err != nil {
			med = math.NaN()
		}
		c.Medians[p] = med
	}
}

// deriveRescaled computes flux/median - 1 per pixel. Where the median is
// zero or NaN the ratio is undefined and the entry becomes NaN.
func (c *Cube) deriveRescaled() {
	px := c.Side * c.Side
	c.Rescaled = make([]float64, len(c.Flux))
	for i, v := range c.Flux {
		med := c.Medians[i%px]
		if med == 0 || math.IsNaN(med) {
			c.Rescaled[i] = math.NaN()
			continue
		}
		c.Rescaled[i] = v/med - 1
	}
}
