package glb

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/qmuntal/gltf"
)

const epsilon = 1e-9

// A zero-valued TRS component means "not set" in the document and is read
// as its glTF default.

func nodeTranslation(n *gltf.Node) mgl64.Vec3 {
	return mgl64.Vec3(n.Translation)
}

func nodeScale(n *gltf.Node) mgl64.Vec3 {
	if n.Scale == [3]float64{} {
		return mgl64.Vec3{1, 1, 1}
	}
	return mgl64.Vec3(n.Scale)
}

func nodeRotation(n *gltf.Node) mgl64.Quat {
	r := n.Rotation
	if r == [4]float64{} {
		return mgl64.QuatIdent()
	}
	return mgl64.Quat{W: r[3], V: mgl64.Vec3{r[0], r[1], r[2]}}
}

// nodeMatrix returns the explicit matrix of a node, or false when the node
// is described by TRS.
func nodeMatrix(n *gltf.Node) (mgl64.Mat4, bool) {
	m := mgl64.Mat4(n.Matrix)
	if m == (mgl64.Mat4{}) || m == mgl64.Ident4() {
		return m, false
	}
	return m, true
}

func localMatrix(n *gltf.Node) mgl64.Mat4 {
	if m, ok := nodeMatrix(n); ok {
		return m
	}
	t := nodeTranslation(n)
	s := nodeScale(n)
	return mgl64.Translate3D(t[0], t[1], t[2]).
		Mul4(nodeRotation(n).Normalize().Mat4()).
		Mul4(mgl64.Scale3D(s[0], s[1], s[2]))
}

// decompose rewrites a matrix-described node as TRS. Shear is dropped.
func decompose(n *gltf.Node) {
	m, ok := nodeMatrix(n)
	if !ok {
		return
	}
	sx := m.Col(0).Vec3().Len()
	sy := m.Col(1).Vec3().Len()
	sz := m.Col(2).Vec3().Len()
	if m.Mat3().Det() < 0 {
		sx = -sx
	}
	var rot mgl64.Mat3
	if sx != 0 && sy != 0 && sz != 0 {
		rot = mgl64.Mat3FromCols(
			m.Col(0).Vec3().Mul(1/sx),
			m.Col(1).Vec3().Mul(1/sy),
			m.Col(2).Vec3().Mul(1/sz),
		)
	} else {
		rot = mgl64.Ident3()
	}
	q := mgl64.Mat4ToQuat(rot.Mat4()).Normalize()
	t := m.Col(3).Vec3()

	n.Matrix = [16]float64{}
	n.Translation = [3]float64(t)
	n.Rotation = [4]float64{q.V[0], q.V[1], q.V[2], q.W}
	n.Scale = [3]float64{sx, sy, sz}
}

func isIdentityRotation(q mgl64.Quat) bool {
	q = q.Normalize()
	return math.Abs(math.Abs(q.W)-1) < epsilon
}

func isUniform(v mgl64.Vec3) bool {
	return nearlyEqual(v[0], v[1]) && nearlyEqual(v[1], v[2])
}

func isOne(v mgl64.Vec3) bool {
	return nearlyEqual(v[0], 1) && nearlyEqual(v[1], 1) && nearlyEqual(v[2], 1)
}

func sameScale(a, b mgl64.Vec3) bool {
	return nearlyEqual(a[0], b[0]) && nearlyEqual(a[1], b[1]) && nearlyEqual(a[2], b[2])
}

func nearlyEqual(a, b float64) bool {
	d := math.Abs(a - b)
	if d < epsilon {
		return true
	}
	return d <= epsilon*math.Max(math.Abs(a), math.Abs(b))
}

func mulVec3(a, b mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{a[0] * b[0], a[1] * b[1], a[2] * b[2]}
}
