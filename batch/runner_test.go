package batch

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	xxhash "github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sticky3d/glbrescale/config"
	"github.com/sticky3d/glbrescale/glb"
)

func writeCube(t *testing.T, path string) {
	t.Helper()
	s := glb.NewScene()
	pos, idx := glb.UnitCube()
	s.AddMesh("Cube", pos, idx, -1)
	require.NoError(t, s.Save(path))
}

// countingPipeline wraps GLBPipeline and records every call.
type countingPipeline struct {
	imports   []string
	exports   []string
	exportErr error
}

func (p *countingPipeline) Import(path string) (*glb.Scene, error) {
	p.imports = append(p.imports, filepath.Base(path))
	return GLBPipeline{}.Import(path)
}

func (p *countingPipeline) Export(s *glb.Scene, path string) error {
	p.exports = append(p.exports, filepath.Base(path))
	if p.exportErr != nil {
		return p.exportErr
	}
	return GLBPipeline{}.Export(s, path)
}

func newTestRunner(t *testing.T, entries config.Entries, skip []string) (*Runner, *countingPipeline, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Config{
		InputDir:  filepath.Join(dir, "in"),
		OutputDir: filepath.Join(dir, "out"),
		Entries:   entries,
		Skip:      skip,
	}
	require.NoError(t, os.MkdirAll(cfg.InputDir, 0o755))
	var out bytes.Buffer
	p := &countingPipeline{}
	r := &Runner{Config: cfg, Pipeline: p, Report: NewReporter(&out)}
	return r, p, &out
}

func TestRunEndToEnd(t *testing.T) {
	r, p, out := newTestRunner(t, config.Entries{{Name: "A.glb", Scale: 2}}, nil)
	writeCube(t, filepath.Join(r.Config.InputDir, "A.glb"))

	sum, results, err := r.Run()
	require.NoError(t, err)
	assert.Equal(t, Summary{Succeeded: 1}, sum)
	require.Len(t, results, 1)
	assert.Equal(t, StatusOK, results[0].Status)
	assert.Equal(t, []string{"A.glb"}, p.imports)
	assert.Equal(t, []string{"A.glb"}, p.exports)

	back, err := glb.Open(filepath.Join(r.Config.OutputDir, "A.glb"))
	require.NoError(t, err)
	dims, _, err := back.Measure()
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		assert.InDelta(t, 2.0, dims[i], 1e-5)
	}

	assert.Contains(t, out.String(), "Processing: A.glb")
	assert.Contains(t, out.String(), "New dimensions: 2.000m × 2.000m × 2.000m")
	assert.Contains(t, out.String(), "Success: 1")
	assert.NotZero(t, results[0].InputHash)
	assert.NotZero(t, results[0].OutputHash)
}

func TestRunSkipsListedEntries(t *testing.T) {
	entries := config.Entries{{Name: "A.glb", Scale: 1}, {Name: "B.glb", Scale: 2}, {Name: "C.glb", Scale: 3}, {Name: "D.glb", Scale: 4}}
	r, p, out := newTestRunner(t, entries, []string{"B.glb", "D.glb", "not-configured.glb"})
	for _, e := range entries {
		writeCube(t, filepath.Join(r.Config.InputDir, e.Name))
	}

	sum, results, err := r.Run()
	require.NoError(t, err)
	assert.Equal(t, Summary{Succeeded: 2, Skipped: 2}, sum)
	assert.Equal(t, []string{"A.glb", "C.glb"}, p.imports)
	require.Len(t, results, 4)
	assert.Equal(t, StatusSkipped, results[1].Status)
	assert.Contains(t, out.String(), "skip: B.glb")
	_, err = os.Stat(filepath.Join(r.Config.OutputDir, "B.glb"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRunMissingInputNeverImports(t *testing.T) {
	r, p, out := newTestRunner(t, config.Entries{{Name: "Gone.glb", Scale: 2}, {Name: "A.glb", Scale: 2}}, nil)
	writeCube(t, filepath.Join(r.Config.InputDir, "A.glb"))

	sum, results, err := r.Run()
	require.NoError(t, err)
	assert.Equal(t, Summary{Succeeded: 1, Failed: 1}, sum)
	assert.ErrorIs(t, results[0].Err, ErrNotFound)
	assert.Equal(t, []string{"A.glb"}, p.imports)
	assert.Equal(t, []string{"A.glb"}, p.exports)
	assert.Contains(t, out.String(), "warning: File not found")
}

func TestRunUnreadableInputIsNotReportedMissing(t *testing.T) {
	r, p, out := newTestRunner(t, config.Entries{{Name: "A.glb", Scale: 2}}, nil)
	// a regular file in place of the input directory makes Stat fail with ENOTDIR
	blocker := filepath.Join(t.TempDir(), "models")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	r.Config.InputDir = blocker

	sum, results, err := r.Run()
	require.NoError(t, err)
	assert.Equal(t, Summary{Failed: 1}, sum)
	assert.Error(t, results[0].Err)
	assert.NotErrorIs(t, results[0].Err, ErrNotFound)
	assert.Empty(t, p.imports)
	assert.Contains(t, out.String(), "error: Cannot read input")
	assert.NotContains(t, out.String(), "File not found")
}

func TestRunExportFailureContinues(t *testing.T) {
	r, p, out := newTestRunner(t, config.Entries{{Name: "A.glb", Scale: 2}, {Name: "B.glb", Scale: 3}}, nil)
	writeCube(t, filepath.Join(r.Config.InputDir, "A.glb"))
	writeCube(t, filepath.Join(r.Config.InputDir, "B.glb"))
	p.exportErr = errors.New("disk full")

	sum, results, err := r.Run()
	require.NoError(t, err)
	assert.Equal(t, Summary{Failed: 2}, sum)
	assert.Equal(t, []string{"A.glb", "B.glb"}, p.exports)
	assert.EqualError(t, results[1].Err, "disk full")
	assert.Equal(t, 2, strings.Count(out.String(), "error: Failed to export"))

	entries, err := os.ReadDir(r.Config.OutputDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunImportFailureContinues(t *testing.T) {
	r, p, out := newTestRunner(t, config.Entries{{Name: "Bad.glb", Scale: 2}, {Name: "A.glb", Scale: 2}}, nil)
	require.NoError(t, os.WriteFile(filepath.Join(r.Config.InputDir, "Bad.glb"), []byte("not a glb"), 0o644))
	writeCube(t, filepath.Join(r.Config.InputDir, "A.glb"))

	sum, _, err := r.Run()
	require.NoError(t, err)
	assert.Equal(t, Summary{Succeeded: 1, Failed: 1}, sum)
	assert.Equal(t, []string{"A.glb"}, p.exports)
	assert.Contains(t, out.String(), "error: Failed to import")
}

func TestRunEmptySceneFails(t *testing.T) {
	r, p, out := newTestRunner(t, config.Entries{{Name: "Empty.glb", Scale: 2}}, nil)
	require.NoError(t, glb.NewScene().Save(filepath.Join(r.Config.InputDir, "Empty.glb")))

	sum, results, err := r.Run()
	require.NoError(t, err)
	assert.Equal(t, Summary{Failed: 1}, sum)
	assert.ErrorIs(t, results[0].Err, glb.ErrNoObjects)
	assert.Empty(t, p.exports)
	assert.Contains(t, out.String(), "No objects found in Empty.glb")
}

func TestRunOutputDirUnusable(t *testing.T) {
	r, _, _ := newTestRunner(t, config.Entries{{Name: "A.glb", Scale: 2}}, nil)
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	r.Config.OutputDir = filepath.Join(blocker, "out")

	_, _, err := r.Run()
	assert.Error(t, err)
}

func TestManifestAndBundle(t *testing.T) {
	r, _, _ := newTestRunner(t, config.Entries{{Name: "A.glb", Scale: 2}, {Name: "Gone.glb", Scale: 1}, {Name: "C.glb", Scale: 0.5}}, []string{"C.glb"})
	writeCube(t, filepath.Join(r.Config.InputDir, "A.glb"))
	sum, results, err := r.Run()
	require.NoError(t, err)

	path, err := WriteManifest(r.Config.OutputDir, sum, results)
	require.NoError(t, err)
	m, err := ReadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, sum, m.Summary)
	require.Len(t, m.Assets, 3)
	assert.Equal(t, StatusOK, m.Assets[0].Status)
	require.NotNil(t, m.Assets[0].Dimensions)
	assert.InDelta(t, 2.0, m.Assets[0].Dimensions[1], 1e-5)
	assert.Equal(t, ErrNotFound.Error(), m.Assets[1].Error)
	assert.Equal(t, StatusSkipped, m.Assets[2].Status)

	data, err := os.ReadFile(filepath.Join(r.Config.OutputDir, "A.glb"))
	require.NoError(t, err)
	h, err := ParseHash(m.Assets[0].OutputHash)
	require.NoError(t, err)
	assert.Equal(t, xxhash.Sum64(data), h)

	packPath := filepath.Join(t.TempDir(), "props.glbpack")
	n, err := Bundle(packPath, results, glb.LayoutCDC, glb.PackCompZstd)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	raw, err := os.ReadFile(packPath)
	require.NoError(t, err)
	pack, _, err := glb.UnmarshalPack(raw)
	require.NoError(t, err)
	require.Len(t, pack.Entries, 1)
	assert.Equal(t, "A.glb", pack.Entries[0].Name)
	assert.Equal(t, 2.0, pack.Entries[0].Scale)
	assert.Equal(t, data, pack.Entries[0].Payload)

	_, err = Bundle(packPath, results[1:], glb.LayoutRaw, glb.PackCompNone)
	assert.Error(t, err)
}

func TestReporterLogFile(t *testing.T) {
	var out bytes.Buffer
	rep := NewReporter(&out)
	path := filepath.Join(t.TempDir(), "logs", "rescale.txt")
	require.NoError(t, rep.OpenLog(path))
	rep.Printf("one\ntwo")
	require.NoError(t, rep.Close())
	rep.Printf("three")

	assert.Equal(t, "one\ntwo\nthree\n", out.String())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "["))
	assert.True(t, strings.HasSuffix(lines[1], "] two"))
}
