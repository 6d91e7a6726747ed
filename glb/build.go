package glb

import (
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

// AddMesh appends a triangle mesh node to the scene and returns the node
// index. The node becomes a child of parent, or a top-level object when
// parent is negative.
func (s *Scene) AddMesh(name string, positions [][3]float32, indices []uint32, parent int) int {
	doc := s.Doc
	prim := &gltf.Primitive{Mode: gltf.PrimitiveTriangles}
	putAttribute(&prim.Attributes, gltf.POSITION, int(modeler.WritePosition(doc, positions)))
	if len(indices) > 0 {
		setIndex(&prim.Indices, int(modeler.WriteIndices(doc, indices)))
	}
	doc.Meshes = append(doc.Meshes, &gltf.Mesh{Name: name, Primitives: []*gltf.Primitive{prim}})

	node := &gltf.Node{Name: name, Scale: [3]float64{1, 1, 1}, Rotation: [4]float64{0, 0, 0, 1}}
	setIndex(&node.Mesh, len(doc.Meshes)-1)
	return s.addNode(node, parent)
}

// AddEmpty appends a node without geometry.
func (s *Scene) AddEmpty(name string, parent int) int {
	node := &gltf.Node{Name: name, Scale: [3]float64{1, 1, 1}, Rotation: [4]float64{0, 0, 0, 1}}
	return s.addNode(node, parent)
}

func (s *Scene) addNode(node *gltf.Node, parent int) int {
	doc := s.Doc
	doc.Nodes = append(doc.Nodes, node)
	idx := len(doc.Nodes) - 1
	if parent >= 0 && parent < idx {
		appendIndex(&doc.Nodes[parent].Children, idx)
		return idx
	}
	if len(doc.Scenes) == 0 {
		doc.Scenes = append(doc.Scenes, &gltf.Scene{})
		setIndex(&doc.Scene, 0)
	}
	scene := 0
	if doc.Scene != nil {
		scene = int(*doc.Scene)
	}
	appendIndex(&doc.Scenes[scene].Nodes, idx)
	return idx
}

// UnitCube returns the positions and triangle indices of a cube spanning
// -0.5..0.5 on every axis.
func UnitCube() ([][3]float32, []uint32) {
	positions := [][3]float32{
		{-0.5, -0.5, -0.5}, {0.5, -0.5, -0.5}, {0.5, 0.5, -0.5}, {-0.5, 0.5, -0.5},
		{-0.5, -0.5, 0.5}, {0.5, -0.5, 0.5}, {0.5, 0.5, 0.5}, {-0.5, 0.5, 0.5},
	}
	indices := []uint32{
		0, 2, 1, 0, 3, 2, // -z
		4, 5, 6, 4, 6, 7, // +z
		0, 1, 5, 0, 5, 4, // -y
		3, 7, 6, 3, 6, 2, // +y
		0, 4, 7, 0, 7, 3, // -x
		1, 2, 6, 1, 6, 5, // +x
	}
	return positions, indices
}
