package batch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sticky3d/glbrescale/glb"
)

// ManifestName is the file WriteManifest creates in the output directory.
const ManifestName = "manifest.json"

// ManifestEntry is the JSON form of a Result.
type ManifestEntry struct {
	File       string      `json:"file"`
	Scale      float64     `json:"scale"`
	Status     Status      `json:"status"`
	Error      string      `json:"error,omitempty"`
	Dimensions *[3]float64 `json:"dimensions,omitempty"`
	InputHash  string      `json:"input_xxhash,omitempty"`
	OutputHash string      `json:"output_xxhash,omitempty"`
}

// Manifest records one run.
type Manifest struct {
	Generated time.Time       `json:"generated"`
	Summary   Summary         `json:"summary"`
	Assets    []ManifestEntry `json:"assets"`
}

func hexHash(h uint64) string {
	if h == 0 {
		return ""
	}
	return fmt.Sprintf("%016x", h)
}

// NewManifest builds a manifest from run results.
func NewManifest(sum Summary, results []Result) Manifest {
	m := Manifest{Generated: time.Now().UTC(), Summary: sum}
	for _, r := range results {
		e := ManifestEntry{
			File:       r.Name,
			Scale:      r.Scale,
			Status:     r.Status,
			InputHash:  hexHash(r.InputHash),
			OutputHash: hexHash(r.OutputHash),
		}
		if r.Err != nil {
			e.Error = r.Err.Error()
		}
		if r.Status == StatusOK {
			d := [3]float64(r.Dimensions)
			e.Dimensions = &d
		}
		m.Assets = append(m.Assets, e)
	}
	return m
}

// WriteManifest writes manifest.json into dir.
func WriteManifest(dir string, sum Summary, results []Result) (string, error) {
	data, err := json.MarshalIndent(NewManifest(sum, results), "", "\t")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, ManifestName)
	return path, os.WriteFile(path, data, 0o644)
}

// ReadManifest loads a manifest written by WriteManifest.
func ReadManifest(path string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("parse %s: %w", path, err)
	}
	return m, nil
}

// ParseHash decodes a hex xxhash digest from a manifest.
func ParseHash(s string) (uint64, error) {
	return strconv.ParseUint(s, 16, 64)
}

// Bundle packs every successfully exported asset into a .glbpack at path.
func Bundle(path string, results []Result, layout glb.PackLayout, comp glb.PackCompression) (int, error) {
	pack := &glb.Pack{}
	for _, r := range results {
		if r.Status != StatusOK {
			continue
		}
		data, err := os.ReadFile(r.OutputPath)
		if err != nil {
			return 0, err
		}
		pack.Entries = append(pack.Entries, glb.PackEntry{Name: r.Name, Scale: r.Scale, Payload: data})
	}
	if len(pack.Entries) == 0 {
		return 0, fmt.Errorf("no exported assets to bundle")
	}
	data, err := pack.Marshal(layout, comp)
	if err != nil {
		return 0, err
	}
	return len(pack.Entries), os.WriteFile(path, data, 0o644)
}
