package glb

// The gltf document stores node, mesh and accessor references as small
// integer indices. These helpers write them without depending on the exact
// integer type the document uses.

type index interface{ ~int | ~uint32 }

func setIndex[V index](dst **V, i int) {
	v := V(i)
	*dst = &v
}

func putAttribute[M ~map[string]V, V index](m *M, key string, i int) {
	if *m == nil {
		*m = make(M)
	}
	(*m)[key] = V(i)
}

func appendIndex[S ~[]V, V index](s *S, i int) {
	*s = append(*s, V(i))
}
