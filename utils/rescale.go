package utils

import (
	"fmt"
	"io"
	"os"

	"github.com/sticky3d/glbrescale/glb"
)

// RunRescaleGLB rescales a single .glb by factor and writes it to outPath.
func RunRescaleGLB(inPath, outPath string, factor float64) error {
	scene, err := glb.Open(inPath)
	if err != nil {
		return err
	}
	defer scene.Clear()
	if err := scene.Rescale(factor); err != nil {
		return fmt.Errorf("rescale: %w", err)
	}
	dims, _, err := scene.Measure()
	if err != nil {
		return err
	}
	if err := scene.Save(outPath); err != nil {
		return err
	}
	if fi, err := os.Stat(outPath); err == nil {
		fmt.Printf(".glb saved (%d bytes), dimensions %s\n", fi.Size(), dims)
	} else {
		fmt.Println(".glb saved.")
	}
	return nil
}

// RunMeasureGLB prints the world-space dimensions of every object in a .glb
// followed by the combined scene bounds.
func RunMeasureGLB(path string, w io.Writer) error {
	scene, err := glb.Open(path)
	if err != nil {
		return err
	}
	defer scene.Clear()
	objects := scene.Objects()
	if len(objects) == 0 {
		return glb.ErrNoObjects
	}
	fmt.Fprintf(w, "%s\n", path)
	for _, o := range objects {
		if !o.HasMesh() {
			continue
		}
		box, err := scene.ObjectBounds(o)
		if err != nil {
			return err
		}
		name := o.Name
		if name == "" {
			name = fmt.Sprintf("node %d", o.Node)
		}
		fmt.Fprintf(w, "  %-24s %s\n", name, glb.Dimensions(box.Size()))
	}
	box, err := scene.Bounds()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "  %-24s %s\n", "(scene)", glb.Dimensions(box.Size()))
	return nil
}
