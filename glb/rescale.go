package glb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"maps"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

var (
	// ErrSkinned is returned when baking a document with skins; joint
	// hierarchies and inverse bind matrices are not rewritten.
	ErrSkinned = errors.New("skinned meshes are not supported")
	// ErrShear is returned when a non-uniform scale would have to be pushed
	// through a rotated child node.
	ErrShear = errors.New("non-uniform scale through rotated node")
	// ErrAnimated is returned when an animation drives a node's translation
	// or scale; keyframes would overwrite the baked transform.
	ErrAnimated = errors.New("translation or scale animation is not supported")
)

// SetUniformScale sets the scale of every top-level object to (f, f, f).
// Nested objects inherit the factor through their parents.
func (s *Scene) SetUniformScale(f float64) error {
	if !(f > 0) || math.IsInf(f, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidScale, f)
	}
	roots := s.roots()
	if len(roots) == 0 {
		return ErrNoObjects
	}
	for _, r := range roots {
		if r < 0 || r >= len(s.Doc.Nodes) {
			continue
		}
		n := s.Doc.Nodes[r]
		decompose(n)
		n.Scale = [3]float64{f, f, f}
	}
	return nil
}

// ApplyScale bakes every node's scale into its mesh data so that the stored
// scale of each node returns to one. World-space geometry is unchanged.
func (s *Scene) ApplyScale() error {
	if len(s.Doc.Skins) > 0 {
		return ErrSkinned
	}
	for _, a := range s.Doc.Animations {
		for _, ch := range a.Channels {
			if ch.Target.Path == gltf.TRSTranslation || ch.Target.Path == gltf.TRSScale {
				return fmt.Errorf("%w: animation %q", ErrAnimated, a.Name)
			}
		}
	}
	b := &baker{
		doc:       s.Doc,
		meshScale: make(map[int]mgl64.Vec3),
		accScale:  make(map[int]mgl64.Vec3),
		seen:      make(map[int]bool),
	}
	for _, r := range s.roots() {
		if err := b.node(r, mgl64.Vec3{1, 1, 1}); err != nil {
			return err
		}
	}
	return nil
}

// Rescale sets a uniform scale on the scene and bakes it into the geometry.
func (s *Scene) Rescale(f float64) error {
	if err := s.SetUniformScale(f); err != nil {
		return err
	}
	return s.ApplyScale()
}

type baker struct {
	doc       *gltf.Document
	meshScale map[int]mgl64.Vec3 // scale already baked into a mesh
	accScale  map[int]mgl64.Vec3 // scale already written into an accessor
	seen      map[int]bool
}

// node bakes the node's own scale, multiplied by the scale removed from its
// parent, into its mesh and pushes the total down to its children.
func (b *baker) node(i int, pending mgl64.Vec3) error {
	if i < 0 || i >= len(b.doc.Nodes) || b.seen[i] {
		return nil
	}
	b.seen[i] = true
	n := b.doc.Nodes[i]
	decompose(n)

	if !isUniform(pending) && !isIdentityRotation(nodeRotation(n)) {
		return fmt.Errorf("node %d (%s): %w", i, n.Name, ErrShear)
	}
	n.Translation = [3]float64(mulVec3(pending, nodeTranslation(n)))
	total := mulVec3(pending, nodeScale(n))
	n.Scale = [3]float64{1, 1, 1}

	if n.Mesh != nil {
		mesh, err := b.mesh(int(*n.Mesh), total)
		if err != nil {
			return fmt.Errorf("node %d (%s): %w", i, n.Name, err)
		}
		if mesh != int(*n.Mesh) {
			setIndex(&n.Mesh, mesh)
		}
	}
	for _, c := range n.Children {
		if err := b.node(int(c), total); err != nil {
			return err
		}
	}
	return nil
}

// mesh bakes scale into mesh m and returns the mesh index the node should
// reference. A mesh already baked with a different scale is cloned.
func (b *baker) mesh(m int, scale mgl64.Vec3) (int, error) {
	if m < 0 || m >= len(b.doc.Meshes) {
		return m, fmt.Errorf("mesh %d out of range", m)
	}
	target := b.doc.Meshes[m]
	if prev, ok := b.meshScale[m]; ok {
		if sameScale(prev, scale) {
			return m, nil
		}
		target = cloneMesh(target)
		b.doc.Meshes = append(b.doc.Meshes, target)
		m = len(b.doc.Meshes) - 1
	}
	b.meshScale[m] = scale
	for _, prim := range target.Primitives {
		if err := b.primitive(prim, scale); err != nil {
			return m, err
		}
	}
	return m, nil
}

// cloneMesh copies a mesh with its own attribute maps; accessors are still
// shared until they are rescaled.
func cloneMesh(src *gltf.Mesh) *gltf.Mesh {
	clone := &gltf.Mesh{Name: src.Name, Weights: src.Weights, Extras: src.Extras}
	for _, p := range src.Primitives {
		cp := *p
		cp.Attributes = maps.Clone(p.Attributes)
		if len(p.Targets) > 0 {
			cp.Targets = append(p.Targets[:0:0], p.Targets...)
			for k := range cp.Targets {
				cp.Targets[k] = maps.Clone(cp.Targets[k])
			}
		}
		clone.Primitives = append(clone.Primitives, &cp)
	}
	return clone
}

func (b *baker) primitive(prim *gltf.Primitive, scale mgl64.Vec3) error {
	if idx, ok := prim.Attributes[gltf.POSITION]; ok {
		out, err := b.scaleAccessor(int(idx), scale, positionOp)
		if err != nil {
			return fmt.Errorf("POSITION: %w", err)
		}
		putAttribute(&prim.Attributes, gltf.POSITION, out)
	}
	if idx, ok := prim.Attributes[gltf.NORMAL]; ok {
		out, err := b.scaleAccessor(int(idx), scale, normalOp)
		if err != nil {
			return fmt.Errorf("NORMAL: %w", err)
		}
		putAttribute(&prim.Attributes, gltf.NORMAL, out)
	}
	for k := range prim.Targets {
		if idx, ok := prim.Targets[k][gltf.POSITION]; ok {
			out, err := b.scaleAccessor(int(idx), scale, positionOp)
			if err != nil {
				return fmt.Errorf("target %d POSITION: %w", k, err)
			}
			putAttribute(&prim.Targets[k], gltf.POSITION, out)
		}
	}
	return nil
}

type vecOp struct {
	apply func(v [3]float32, s mgl64.Vec3) [3]float32
	// directional data is unaffected by uniform scale
	directional bool
}

var (
	positionOp = vecOp{apply: func(v [3]float32, s mgl64.Vec3) [3]float32 {
		return [3]float32{
			float32(float64(v[0]) * s[0]),
			float32(float64(v[1]) * s[1]),
			float32(float64(v[2]) * s[2]),
		}
	}}
	// inverse-transpose of a diagonal scale, re-normalised
	normalOp = vecOp{directional: true, apply: func(v [3]float32, s mgl64.Vec3) [3]float32 {
		n := mgl64.Vec3{float64(v[0]) / s[0], float64(v[1]) / s[1], float64(v[2]) / s[2]}
		if l := n.Len(); l > 0 {
			n = n.Mul(1 / l)
		}
		return [3]float32{float32(n[0]), float32(n[1]), float32(n[2])}
	}}
)

// scaleAccessor brings accessor a from the scale it currently holds to
// target and returns the index of the accessor holding the result. Float
// VEC3 data seen for the first time is rewritten in place; an accessor that
// already holds another scale is left alone and a new one is written.
func (b *baker) scaleAccessor(a int, target mgl64.Vec3, op vecOp) (int, error) {
	if a < 0 || a >= len(b.doc.Accessors) {
		return a, fmt.Errorf("accessor %d out of range", a)
	}
	stored, done := b.accScale[a]
	if !done {
		stored = mgl64.Vec3{1, 1, 1}
	}
	rel := mgl64.Vec3{target[0] / stored[0], target[1] / stored[1], target[2] / stored[2]}
	if isOne(rel) || (op.directional && isUniform(rel)) {
		if !done {
			b.accScale[a] = target
		}
		return a, nil
	}
	acc := b.doc.Accessors[a]
	// positions and normals share the float VEC3 layout
	data, err := modeler.ReadPosition(b.doc, acc, nil)
	if err != nil {
		return a, err
	}
	for i := range data {
		data[i] = op.apply(data[i], rel)
	}
	if !done && inPlace(b.doc, acc) {
		writeVec3(b.doc, acc, data)
		setMinMax(acc, data)
		b.accScale[a] = target
		return a, nil
	}
	out := int(modeler.WritePosition(b.doc, data))
	setMinMax(b.doc.Accessors[out], data)
	b.accScale[out] = target
	return out, nil
}

func inPlace(doc *gltf.Document, acc *gltf.Accessor) bool {
	if acc.BufferView == nil || acc.Sparse != nil || acc.Normalized {
		return false
	}
	if acc.ComponentType != gltf.ComponentFloat || acc.Type != gltf.AccessorVec3 {
		return false
	}
	bv := int(*acc.BufferView)
	if bv >= len(doc.BufferViews) {
		return false
	}
	view := doc.BufferViews[bv]
	if int(view.Buffer) >= len(doc.Buffers) {
		return false
	}
	stride := int(view.ByteStride)
	if stride == 0 {
		stride = 12
	}
	end := int(view.ByteOffset) + int(acc.ByteOffset) + stride*(int(acc.Count)-1) + 12
	return int(acc.Count) > 0 && end <= len(doc.Buffers[view.Buffer].Data)
}

func writeVec3(doc *gltf.Document, acc *gltf.Accessor, data [][3]float32) {
	view := doc.BufferViews[*acc.BufferView]
	buf := doc.Buffers[view.Buffer].Data
	stride := int(view.ByteStride)
	if stride == 0 {
		stride = 12
	}
	off := int(view.ByteOffset) + int(acc.ByteOffset)
	for i, v := range data {
		p := off + i*stride
		binary.LittleEndian.PutUint32(buf[p:], math.Float32bits(v[0]))
		binary.LittleEndian.PutUint32(buf[p+4:], math.Float32bits(v[1]))
		binary.LittleEndian.PutUint32(buf[p+8:], math.Float32bits(v[2]))
	}
}

func setMinMax(acc *gltf.Accessor, data [][3]float32) {
	if len(data) == 0 {
		return
	}
	lo := [3]float64{math.Inf(1), math.Inf(1), math.Inf(1)}
	hi := [3]float64{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
	for _, v := range data {
		for k := 0; k < 3; k++ {
			lo[k] = math.Min(lo[k], float64(v[k]))
			hi[k] = math.Max(hi[k], float64(v[k]))
		}
	}
	acc.Min = lo[:]
	acc.Max = hi[:]
}
