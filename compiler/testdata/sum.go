package sum

func sum(a []int) (s int) {
	for i := 0; i < len(a); i++ {
		s += a[i]
	}

	return s
}
