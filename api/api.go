package api

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/sticky3d/glbrescale/glb"
)

// RescaleGLBBytes rescales a .glb held in memory and returns the new .glb
// bytes together with the combined dimensions of the result.
func RescaleGLBBytes(data []byte, factor float64) ([]byte, glb.Dimensions, error) {
	scene, err := glb.Decode(data)
	if err != nil {
		return nil, glb.Dimensions{}, err
	}
	defer scene.Clear()
	if len(scene.Objects()) == 0 {
		return nil, glb.Dimensions{}, glb.ErrNoObjects
	}
	if err := scene.Rescale(factor); err != nil {
		return nil, glb.Dimensions{}, err
	}
	dims, _, err := scene.Measure()
	if err != nil {
		return nil, glb.Dimensions{}, err
	}
	var out bytes.Buffer
	if err := scene.Encode(&out); err != nil {
		return nil, glb.Dimensions{}, err
	}
	return out.Bytes(), dims, nil
}

// MeasureGLBBytes returns the combined and first-object dimensions of a .glb.
func MeasureGLBBytes(data []byte) (scene, first glb.Dimensions, err error) {
	s, err := glb.Decode(data)
	if err != nil {
		return scene, first, err
	}
	defer s.Clear()
	return s.Measure()
}

// PackGLBs builds a zstd-compressed .glbpack from file blobs keyed by name.
// Entries are stored in name order.
func PackGLBs(files map[string][]byte) ([]byte, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no files")
	}
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	pack := &glb.Pack{Entries: make([]glb.PackEntry, 0, len(names))}
	for _, name := range names {
		pack.Entries = append(pack.Entries, glb.PackEntry{Name: name, Payload: files[name]})
	}
	return pack.Marshal(glb.LayoutCDC, glb.PackCompZstd)
}

// UnpackGLBPackToMemory returns a map of file name -> .glb bytes from a .glbpack blob.
func UnpackGLBPackToMemory(packBytes []byte) (map[string][]byte, error) {
	pack, _, err := glb.UnmarshalPack(packBytes)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(pack.Entries))
	for _, e := range pack.Entries {
		out[e.Name] = e.Payload
	}
	return out, nil
}
