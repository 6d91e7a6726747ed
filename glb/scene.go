package glb

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/qmuntal/gltf"
)

// Generator is written into the asset header of every exported document.
const Generator = "glbrescale"

var (
	// ErrNoObjects is returned when an imported document has no nodes in its active scene.
	ErrNoObjects = errors.New("no objects in scene")
	// ErrInvalidScale is returned for scale factors that are not finite and positive.
	ErrInvalidScale = errors.New("scale factor must be a positive number")
)

// Scene is the working document for one asset. It is created by Open or
// Decode and discarded with Clear once the asset has been exported.
type Scene struct {
	Doc *gltf.Document
}

// Object is a node reachable from the active scene.
type Object struct {
	Node  int
	Name  string
	Mesh  int // -1 when the node has no mesh
	World mgl64.Mat4
}

// HasMesh reports whether the object carries geometry.
func (o Object) HasMesh() bool { return o.Mesh >= 0 }

// NewScene returns an empty scene with a single default glTF scene.
func NewScene() *Scene {
	return &Scene{Doc: gltf.NewDocument()}
}

// Open imports a .glb or .gltf file.
func Open(path string) (*Scene, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", filepath.Base(path), err)
	}
	return &Scene{Doc: doc}, nil
}

// Decode imports a self-contained GLB (or embedded glTF) from memory.
func Decode(data []byte) (*Scene, error) {
	doc := new(gltf.Document)
	if err := gltf.NewDecoder(bytes.NewReader(data)).Decode(doc); err != nil {
		return nil, fmt.Errorf("decode glb: %w", err)
	}
	return &Scene{Doc: doc}, nil
}

// Clear drops every object and all buffer data held by the scene.
func (s *Scene) Clear() {
	s.Doc = gltf.NewDocument()
}

// Encode writes the scene as binary glTF.
func (s *Scene) Encode(w io.Writer) error {
	s.Doc.Asset.Generator = Generator
	enc := gltf.NewEncoder(w)
	enc.AsBinary = true
	return enc.Encode(s.Doc)
}

// Save exports the scene as a GLB file. The document is written to a
// temporary file next to path and renamed into place, so a failed export
// leaves neither an open handle nor a partial file behind.
func (s *Scene) Save(path string) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("export %s: %w", filepath.Base(path), err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()
	if err = s.Encode(f); err != nil {
		return fmt.Errorf("export %s: %w", filepath.Base(path), err)
	}
	if err = f.Chmod(outputMode(path)); err != nil {
		return fmt.Errorf("export %s: %w", filepath.Base(path), err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("export %s: %w", filepath.Base(path), err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return fmt.Errorf("export %s: %w", filepath.Base(path), err)
	}
	return nil
}

// outputMode returns the permissions of the file at path, or 0644 if there
// is none.
func outputMode(path string) os.FileMode {
	if fi, err := os.Stat(path); err == nil && fi.Mode().IsRegular() {
		return fi.Mode().Perm()
	}
	return 0o644
}

// roots returns the top-level nodes of the active scene. Documents without
// scenes fall back to every node that is nobody's child.
func (s *Scene) roots() []int {
	doc := s.Doc
	if len(doc.Scenes) > 0 {
		idx := 0
		if doc.Scene != nil {
			idx = int(*doc.Scene)
		}
		if idx < 0 || idx >= len(doc.Scenes) {
			idx = 0
		}
		out := make([]int, 0, len(doc.Scenes[idx].Nodes))
		for _, n := range doc.Scenes[idx].Nodes {
			out = append(out, int(n))
		}
		return out
	}
	child := make([]bool, len(doc.Nodes))
	for _, n := range doc.Nodes {
		for _, c := range n.Children {
			if int(c) < len(child) {
				child[c] = true
			}
		}
	}
	var out []int
	for i := range doc.Nodes {
		if !child[i] {
			out = append(out, i)
		}
	}
	return out
}

// Objects walks the active scene depth first and returns every node with
// its world transform.
func (s *Scene) Objects() []Object {
	var out []Object
	seen := make(map[int]bool)
	var walk func(i int, parent mgl64.Mat4)
	walk = func(i int, parent mgl64.Mat4) {
		if i < 0 || i >= len(s.Doc.Nodes) || seen[i] {
			return
		}
		seen[i] = true
		n := s.Doc.Nodes[i]
		world := parent.Mul4(localMatrix(n))
		obj := Object{Node: i, Name: n.Name, Mesh: -1, World: world}
		if n.Mesh != nil && int(*n.Mesh) < len(s.Doc.Meshes) {
			obj.Mesh = int(*n.Mesh)
		}
		out = append(out, obj)
		for _, c := range n.Children {
			walk(int(c), world)
		}
	}
	for _, r := range s.roots() {
		walk(r, mgl64.Ident4())
	}
	return out
}
