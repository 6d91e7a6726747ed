package batch

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	xxhash "github.com/cespare/xxhash/v2"

	"github.com/sticky3d/glbrescale/config"
	"github.com/sticky3d/glbrescale/glb"
)

// ErrNotFound is recorded for entries whose input file does not exist.
var ErrNotFound = errors.New("input file not found")

// Status is the outcome of one configured asset.
type Status string

const (
	StatusOK      Status = "ok"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Result describes what happened to one configured asset.
type Result struct {
	Name       string
	Scale      float64
	Status     Status
	Err        error
	Objects    int
	Dimensions glb.Dimensions // combined bounds of every object
	First      glb.Dimensions // bounds of the first mesh object
	InputPath  string
	OutputPath string
	InputHash  uint64
	OutputHash uint64
}

// Summary holds the run counters.
type Summary struct {
	Succeeded int
	Failed    int
	Skipped   int
}

// Add counts one result.
func (s *Summary) Add(r Result) {
	switch r.Status {
	case StatusOK:
		s.Succeeded++
	case StatusFailed:
		s.Failed++
	case StatusSkipped:
		s.Skipped++
	}
}

// Pipeline imports and exports assets for the runner.
type Pipeline interface {
	Import(path string) (*glb.Scene, error)
	Export(s *glb.Scene, path string) error
}

// GLBPipeline reads and writes GLB files on disk.
type GLBPipeline struct{}

func (GLBPipeline) Import(path string) (*glb.Scene, error) { return glb.Open(path) }

func (GLBPipeline) Export(s *glb.Scene, path string) error { return s.Save(path) }

// Runner drives one batch.
type Runner struct {
	Config   config.Config
	Pipeline Pipeline
	Report   *Reporter
}

// NewRunner returns a runner for cfg backed by GLB files on disk.
func NewRunner(cfg config.Config, report *Reporter) *Runner {
	if report == nil {
		report = NewReporter(os.Stdout)
	}
	return &Runner{Config: cfg, Pipeline: GLBPipeline{}, Report: report}
}

// Run processes every configured entry in order. Per-asset failures are
// reported and counted; only an unusable output directory aborts the run.
func (r *Runner) Run() (Summary, []Result, error) {
	var sum Summary
	if err := os.MkdirAll(r.Config.OutputDir, 0o755); err != nil {
		return sum, nil, fmt.Errorf("create output directory: %w", err)
	}

	r.Report.banner("GLB BATCH PROP RESCALER")
	r.Report.Printf("Input: %s\nOutput: %s\nProps to rescale: %d", r.Config.InputDir, r.Config.OutputDir, len(r.Config.Entries))
	r.Report.Printf(rule)

	results := make([]Result, 0, len(r.Config.Entries))
	for _, e := range r.Config.Entries {
		var res Result
		if r.Config.Skipped(e.Name) {
			r.Report.skipped(e.Name)
			res = Result{Name: e.Name, Scale: e.Scale, Status: StatusSkipped}
		} else {
			res = r.Rescale(e)
		}
		sum.Add(res)
		results = append(results, res)
	}

	r.Report.summary(sum)
	return sum, results, nil
}

// Rescale processes a single entry: import, scale, bake, measure, export.
// The working scene is cleared before returning.
func (r *Runner) Rescale(e config.Entry) Result {
	res := Result{
		Name:       e.Name,
		Scale:      e.Scale,
		Status:     StatusFailed,
		InputPath:  filepath.Join(r.Config.InputDir, e.Name),
		OutputPath: filepath.Join(r.Config.OutputDir, e.Name),
	}
	r.Report.header(e.Name, e.Scale)

	if _, err := os.Stat(res.InputPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			res.Err = ErrNotFound
			r.Report.warn("File not found: %s", res.InputPath)
			return res
		}
		res.Err = err
		r.Report.fail("Cannot read input: %v", err)
		return res
	}
	if h, err := hashFile(res.InputPath); err == nil {
		res.InputHash = h
	}

	scene, err := r.Pipeline.Import(res.InputPath)
	if err != nil {
		res.Err = err
		r.Report.fail("Failed to import: %v", err)
		return res
	}
	defer scene.Clear()

	res.Objects = len(scene.Objects())
	if res.Objects == 0 {
		res.Err = glb.ErrNoObjects
		r.Report.fail("No objects found in %s", e.Name)
		return res
	}

	if err := scene.Rescale(e.Scale); err != nil {
		res.Err = err
		r.Report.fail("Failed to rescale: %v", err)
		return res
	}

	dims, first, err := scene.Measure()
	if err != nil {
		res.Err = err
		r.Report.fail("Failed to measure: %v", err)
		return res
	}
	res.Dimensions, res.First = dims, first
	r.Report.Printf("New dimensions: %s", dims)
	if res.Objects > 1 {
		r.Report.Printf("First object: %s", first)
	}

	if err := r.Pipeline.Export(scene, res.OutputPath); err != nil {
		res.Err = err
		r.Report.fail("Failed to export: %v", err)
		return res
	}
	if h, err := hashFile(res.OutputPath); err == nil {
		res.OutputHash = h
	}
	res.Status = StatusOK
	r.Report.Printf("Exported: %s", res.OutputPath)
	return res
}

func hashFile(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	d := xxhash.New()
	if _, err := io.Copy(d, f); err != nil {
		return 0, err
	}
	return d.Sum64(), nil
}
