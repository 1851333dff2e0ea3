package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"cpmphot/pkg/config"
	"cpmphot/pkg/cube"
	"cpmphot/pkg/pipeline"
)

func main() {
	fluxPath := flag.String("flux", "", "Raw flux cube file (little-endian float64, [time,row,col] order)")
	errsPath := flag.String("errors", "", "Flux error cube file (same layout as -flux; zeros when omitted)")
	qualityPath := flag.String("quality", "", "Quality flag file (little-endian int32 per sample; zeros when omitted)")
	timePath := flag.String("time", "", "Timestamp file (little-endian float64 per sample; sample index when omitted)")
	side := flag.Int("side", 0, "Side length of the square images")
	samples := flag.Int("samples", 0, "Number of time samples in the cube")
	configPath := flag.String("config", "cpmphot.yaml", "YAML configuration file")
	row := flag.Int("row", -1, "Target pixel row")
	col := flag.Int("col", -1, "Target pixel column")
	clip := flag.Bool("clip", false, "Run iterative sigma clipping after the fit")
	aperture := flag.Int("aperture", -1, "Aperture half-width for difference-image photometry (off when negative)")
	outPath := flag.String("out", "", "CSV file for the aperture light curve")
	flag.Parse()

	if *fluxPath == "" || *side <= 0 || *samples <= 0 || *row < 0 || *col < 0 {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := loadCube(*fluxPath, *errsPath, *qualityPath, *timePath, *samples, *side, cfg.Input.RemoveBad)
	if err != nil {
		log.Fatalf("Failed to load cube: %v", err)
	}
	fmt.Printf("Loaded %d samples of %dx%d images", c.Samples(), c.Side, c.Side)
	if c.Removed > 0 {
		fmt.Printf(" (removed %d flagged samples)", c.Removed)
	}
	fmt.Println()

	exclusionMethod, err := pipeline.ParseExclusionMethod(cfg.Selection.ExclusionMethod)
	if err != nil {
		log.Fatalf("Bad config: %v", err)
	}
	predictorMethod, err := pipeline.ParsePredictorMethod(cfg.Selection.PredictorMethod)
	if err != nil {
		log.Fatalf("Bad config: %v", err)
	}

	sess := pipeline.NewSession(c)
	sess.Verbose = cfg.Output.Verbose

	if cfg.Fit.UseTrend {
		if err := sess.SetTrendModel(cfg.Fit.TrendHalfWidth, cfg.Fit.TrendTerms, cfg.Fit.TrendReg); err != nil {
			log.Fatalf("Failed to build trend basis: %v", err)
		}
	}

	err = sess.SetTargetExclusionPredictors(*row, *col, cfg.Selection.ExclusionSize, exclusionMethod,
		cfg.Selection.PredictorCount, predictorMethod, cfg.Selection.Seed)
	if err != nil {
		log.Fatalf("Pixel selection failed: %v", err)
	}

	_, residual, err := sess.Fit(pipeline.FitOptions{
		Reg:      cfg.Fit.Reg,
		Rescale:  cfg.Fit.Rescale,
		UseTrend: cfg.Fit.UseTrend,
	})
	if err != nil {
		log.Fatalf("Fit failed: %v", err)
	}
	fmt.Printf("Fit target (%d, %d) against %d predictors (reg=%g)\n",
		*row, *col, cfg.Selection.PredictorCount, cfg.Fit.Reg)
	fmt.Printf("Residual RMS: %.6g\n", rms(residual))

	if *clip {
		res, err := sess.SigmaClip(ctx, cfg.Clip.Sigma, false, cfg.Clip.MaxIter)
		if err != nil {
			log.Fatalf("Sigma clip failed: %v", err)
		}
		fmt.Printf("Sigma clip: %d samples removed in %d iterations (converged=%v)\n",
			res.Clipped, res.Iterations, res.Converged)
	}

	top, _, err := sess.Contributors(5)
	if err != nil {
		log.Fatalf("Failed to rank contributors: %v", err)
	}
	labels := make([]string, len(top))
	for i, px := range top {
		labels[i] = px.String()
	}
	fmt.Printf("Top contributing predictors: %s\n", strings.Join(labels, " "))

	if *aperture >= 0 {
		batchCfg := pipeline.BatchConfig{
			Reg:             cfg.Fit.Reg,
			ExclusionSize:   cfg.Selection.ExclusionSize,
			ExclusionMethod: exclusionMethod,
			PredictorCount:  cfg.Selection.PredictorCount,
			PredictorMethod: predictorMethod,
			Seed:            cfg.Selection.Seed,
			Rescale:         cfg.Fit.Rescale,
			UseTrend:        cfg.Fit.UseTrend,
			Workers:         cfg.Batch.Workers,
		}
		ap, err := sess.AperturePhotometry(ctx, *row, *col, *aperture, batchCfg)
		if err != nil {
			log.Fatalf("Aperture photometry failed: %v", err)
		}
		fmt.Printf("Aperture light curve over rows [%d,%d) cols [%d,%d): %d samples\n",
			ap.RowLo, ap.RowHi, ap.ColLo, ap.ColHi, len(ap.LightCurve))
		if *outPath != "" {
			if err := writeLightCurve(*outPath, c.Time, ap.LightCurve); err != nil {
				log.Fatalf("Failed to write light curve: %v", err)
			}
			fmt.Printf("Light curve written to %s\n", *outPath)
		}
	}
}

// loadCube reads the raw binary inputs and builds the validated cube.
// Parsing the source imaging format (FITS or otherwise) into these flat
// arrays is up to whatever produced the files.
func loadCube(fluxPath, errsPath, qualityPath, timePath string, samples, side int, removeBad bool) (*cube.Cube, error) {
	px := side * side

	flux, err := readFloats(fluxPath, samples*px)
	if err != nil {
		return nil, fmt.Errorf("flux: %w", err)
	}

	errs := make([]float64, samples*px)
	if errsPath != "" {
		if errs, err = readFloats(errsPath, samples*px); err != nil {
			return nil, fmt.Errorf("errors: %w", err)
		}
	}

	quality := make([]int32, samples)
	if qualityPath != "" {
		if quality, err = readInt32s(qualityPath, samples); err != nil {
			return nil, fmt.Errorf("quality: %w", err)
		}
	}

	times := make([]float64, samples)
	for i := range times {
		times[i] = float64(i)
	}
	if timePath != "" {
		if times, err = readFloats(timePath, samples); err != nil {
			return nil, fmt.Errorf("time: %w", err)
		}
	}

	return cube.Load(times, flux, errs, quality, side, cube.Options{RemoveBad: removeBad})
}

func readFloats(path string, n int) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := make([]float64, n)
	if err := binary.Read(f, binary.LittleEndian, out); err != nil {
		return nil, fmt.Errorf("reading %d float64 values: %w", n, err)
	}
	return out, nil
}

func readInt32s(path string, n int) ([]int32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := make([]int32, n)
	if err := binary.Read(f, binary.LittleEndian, out); err != nil {
		return nil, fmt.Errorf("reading %d int32 values: %w", n, err)
	}
	return out, nil
}

func writeLightCurve(path string, times, flux []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := fmt.Fprintln(f, "time,flux"); err != nil {
		return err
	}
	for i := range times {
		if _, err := fmt.Fprintf(f, "%g,%g\n", times[i], flux[i]); err != nil {
			return err
		}
	}
	return nil
}

func rms(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum / float64(len(v)))
}
