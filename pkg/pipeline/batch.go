package pipeline

import (
	"context"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"cpmphot/internal/models"
)

// BatchConfig is the shared per-pixel configuration of a batch run.
type BatchConfig struct {
	// Reg is the predictor regularization strength of every fit.
	Reg float64

	ExclusionSize   int
	ExclusionMethod ExclusionMethod

	PredictorCount  int
	PredictorMethod PredictorMethod

	// Seed feeds PickRandom selection; negative draws fresh sequences.
	Seed int64

	Rescale  bool
	UseTrend bool

	// Workers is the worker-pool size. Zero or negative uses all CPUs.
	Workers int
}

// Aperture is the difference-image stack over a square pixel window,
// plus its per-time sum.
type Aperture struct {
	// RowLo/RowHi and ColLo/ColHi are the half-open window bounds after
	// clamping at the image boundary.
	RowLo, RowHi int
	ColLo, ColHi int

	// Diff holds the difference-cube values inside the window, flat in
	// [time, row, col] order with (RowHi-RowLo) x (ColHi-ColLo) frames.
	Diff []float64

	// LightCurve is the window sum of Diff at each time sample.
	LightCurve []float64
}

// DifferenceImage re-runs the target -> exclusion -> predictors -> fit
// chain for every listed pixel and stores each pixel's predicted series
// in a prediction cube, then derives the difference cube
// rescaled - predicted. Pixels that are not in targets stay NaN in both
// cubes.
//
// The per-pixel fits are independent, so they run on a worker pool;
// every worker owns a session clone with isolated selection/fit state.
// Cancellation via ctx stops the pool between pixels.
func (s *Session) DifferenceImage(ctx context.Context, targets []models.Pixel, cfg BatchConfig) error {
	if len(targets) == 0 {
		return &ParamError{Op: "DifferenceImage", Msg: "no target pixels given"}
	}

	predicted := make([]float64, len(s.cube.Flux))
	for i := range predicted {
		predicted[i] = math.NaN()
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(targets) {
		workers = len(targets)
	}
	s.logf("batch: fitting %d pixels with %d workers", len(targets), workers)

	g, ctx := errgroup.WithContext(ctx)
	jobs := make(chan models.Pixel)
	g.Go(func() error {
		defer close(jobs)
		for _, px := range targets {
			select {
			case jobs <- px:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			w := s.clone()
			for px := range jobs {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := w.fitPixel(px, cfg, predicted); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	diff := make([]float64, len(predicted))
	for i := range diff {
		diff[i] = s.cube.Rescaled[i] - predicted[i]
	}
	s.predicted = predicted
	s.diff = diff
	s.fullFrame = false
	return nil
}

// fitPixel runs the full selection and fit chain for one pixel and
// writes its predicted series into the shared prediction cube. Targets
// are distinct, so workers write disjoint entries.
func (s *Session) fitPixel(px models.Pixel, cfg BatchConfig, predicted []float64) error {
	err := s.SetTargetExclusionPredictors(px.Row, px.Col, cfg.ExclusionSize, cfg.ExclusionMethod,
		cfg.PredictorCount, cfg.PredictorMethod, cfg.Seed)
	if err != nil {
		return err
	}
	if _, _, err := s.Fit(FitOptions{Reg: cfg.Reg, Rescale: cfg.Rescale, UseTrend: cfg.UseTrend}); err != nil {
		return err
	}

	series := s.fit.Prediction
	if cfg.UseTrend {
		// The trend terms model the target's own slow variation, not
		// the shared systematics; the systematics map keeps only the
		// predictor contribution plus the constant offset.
		series = diffModel(s.fit.PredictorComponent, s.fit.Constant)
	}
	for t, v := range series {
		predicted[s.cube.Index(t, px.Row, px.Col)] = v
	}
	return nil
}

// EntireImage runs DifferenceImage over every pixel of the image,
// producing a full-frame systematics map that AperturePhotometry can
// reuse.
func (s *Session) EntireImage(ctx context.Context, cfg BatchConfig) error {
	side := s.cube.Side
	targets := make([]models.Pixel, 0, side*side)
	for i := 0; i < side*side; i++ {
		targets = append(targets, models.PixelFromIndex(i, side))
	}
	if err := s.DifferenceImage(ctx, targets, cfg); err != nil {
		return err
	}
	s.fullFrame = true
	return nil
}

// AperturePhotometry extracts the difference-image stack over the square
// window of half-width size around (row, col), clamped at the image
// boundary, and sums it per time sample into an aperture light curve.
// When a full-frame difference cube already exists it is reused;
// otherwise only the window's pixels are fit.
func (s *Session) AperturePhotometry(ctx context.Context, row, col, size int, cfg BatchConfig) (*Aperture, error) {
	side := s.cube.Side
	if row < 0 || row >= side || col < 0 || col >= side {
		return nil, &ParamError{
			Op:  "AperturePhotometry",
			Msg: "center pixel outside the image",
		}
	}

	rowLo, rowHi := clampBand(row, size, side)
	colLo, colHi := clampBand(col, size, side)

	if !s.fullFrame {
		var targets []models.Pixel
		for r := rowLo; r < rowHi; r++ {
			for c := colLo; c < colHi; c++ {
				targets = append(targets, models.Pixel{Row: r, Col: c})
			}
		}
		if err := s.DifferenceImage(ctx, targets, cfg); err != nil {
			return nil, err
		}
	}

	n := s.cube.Samples()
	ap := &Aperture{
		RowLo: rowLo, RowHi: rowHi,
		ColLo: colLo, ColHi: colHi,
		Diff:       make([]float64, 0, n*(rowHi-rowLo)*(colHi-colLo)),
		LightCurve: make([]float64, n),
	}
	for t := 0; t < n; t++ {
		sum := 0.0
		for r := rowLo; r < rowHi; r++ {
			for c := colLo; c < colHi; c++ {
				v := s.diff[s.cube.Index(t, r, c)]
				ap.Diff = append(ap.Diff, v)
				sum += v
			}
		}
		ap.LightCurve[t] = sum
	}
	return ap, nil
}
