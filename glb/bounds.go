package glb

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

// Box is an axis-aligned bounding box.
type Box struct {
	Min, Max mgl64.Vec3
}

// EmptyBox returns a box that any point extends.
func EmptyBox() Box {
	inf := math.Inf(1)
	return Box{
		Min: mgl64.Vec3{inf, inf, inf},
		Max: mgl64.Vec3{-inf, -inf, -inf},
	}
}

// IsEmpty reports whether no point has been added to the box.
func (b Box) IsEmpty() bool {
	return b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] || b.Min[2] > b.Max[2]
}

// Extend grows the box to contain p.
func (b Box) Extend(p mgl64.Vec3) Box {
	for i := 0; i < 3; i++ {
		b.Min[i] = math.Min(b.Min[i], p[i])
		b.Max[i] = math.Max(b.Max[i], p[i])
	}
	return b
}

// Union returns the box containing both boxes.
func (b Box) Union(o Box) Box {
	if o.IsEmpty() {
		return b
	}
	return b.Extend(o.Min).Extend(o.Max)
}

// Size is the extent along each axis (max - min).
func (b Box) Size() mgl64.Vec3 {
	if b.IsEmpty() {
		return mgl64.Vec3{}
	}
	return b.Max.Sub(b.Min)
}

// Corners returns the eight corners of the box.
func (b Box) Corners() [8]mgl64.Vec3 {
	var out [8]mgl64.Vec3
	for i := 0; i < 8; i++ {
		out[i] = mgl64.Vec3{
			pick(i&1 != 0, b.Max[0], b.Min[0]),
			pick(i&2 != 0, b.Max[1], b.Min[1]),
			pick(i&4 != 0, b.Max[2], b.Min[2]),
		}
	}
	return out
}

func pick(cond bool, a, b float64) float64 {
	if cond {
		return a
	}
	return b
}

// WorldBox transforms the corners of a local box into world space and
// returns their axis-aligned bounds.
func WorldBox(local Box, world mgl64.Mat4) Box {
	if local.IsEmpty() {
		return local
	}
	out := EmptyBox()
	for _, c := range local.Corners() {
		out = out.Extend(mgl64.TransformCoordinate(c, world))
	}
	return out
}

// Dimensions is a measured width/height/depth triple in scene units (meters).
type Dimensions [3]float64

func (d Dimensions) String() string {
	return fmt.Sprintf("%.3fm × %.3fm × %.3fm", d[0], d[1], d[2])
}

// LocalBox returns the bounds of every POSITION attribute of a mesh in the
// mesh's own space.
func LocalBox(doc *gltf.Document, mesh int) (Box, error) {
	box := EmptyBox()
	if mesh < 0 || mesh >= len(doc.Meshes) {
		return box, fmt.Errorf("mesh %d out of range", mesh)
	}
	for _, prim := range doc.Meshes[mesh].Primitives {
		idx, ok := prim.Attributes[gltf.POSITION]
		if !ok || int(idx) >= len(doc.Accessors) {
			continue
		}
		positions, err := modeler.ReadPosition(doc, doc.Accessors[idx], nil)
		if err != nil {
			return box, fmt.Errorf("mesh %d: read positions: %w", mesh, err)
		}
		for _, p := range positions {
			box = box.Extend(mgl64.Vec3{float64(p[0]), float64(p[1]), float64(p[2])})
		}
	}
	return box, nil
}

// ObjectBounds returns the world-space bounds of one object.
func (s *Scene) ObjectBounds(o Object) (Box, error) {
	if !o.HasMesh() {
		return EmptyBox(), nil
	}
	local, err := LocalBox(s.Doc, o.Mesh)
	if err != nil {
		return local, err
	}
	return WorldBox(local, o.World), nil
}

// Bounds returns the combined world-space bounds of every mesh object.
func (s *Scene) Bounds() (Box, error) {
	box := EmptyBox()
	for _, o := range s.Objects() {
		b, err := s.ObjectBounds(o)
		if err != nil {
			return box, err
		}
		box = box.Union(b)
	}
	return box, nil
}

// FirstObjectBounds returns the bounds of the first object that carries a
// mesh, in scene traversal order. ok is false when the scene has no meshes.
func (s *Scene) FirstObjectBounds() (o Object, box Box, ok bool, err error) {
	for _, o := range s.Objects() {
		if !o.HasMesh() {
			continue
		}
		box, err := s.ObjectBounds(o)
		return o, box, err == nil, err
	}
	return Object{Mesh: -1}, EmptyBox(), false, nil
}

// Measure returns the combined and first-object dimensions of the scene.
func (s *Scene) Measure() (scene, first Dimensions, err error) {
	all, err := s.Bounds()
	if err != nil {
		return scene, first, err
	}
	_, fb, _, err := s.FirstObjectBounds()
	if err != nil {
		return scene, first, err
	}
	return Dimensions(all.Size()), Dimensions(fb.Size()), nil
}
