package local

func sum(a []int) (s int) {
	for i := 0; i < len(a); i++ {
		x := a[i]
		s += x
	}

	return s
}
