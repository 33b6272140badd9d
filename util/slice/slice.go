package slice

func FindPos(s []string, v string) int {
	for i, sv := range s {
		if sv == v {
			return i
		}
	}
	return -1
}

func Filter(vals []string, cond func(string) bool) []string {
	var result = make([]string, 0, len(vals))
	for i := range vals {
		if cond(vals[i]) {
			result = append(result, vals[i])
		}
	}
	return result
}

// DiscardFromSlice reuses the provided slice capacity. The input slice
// should not be used after without reassigning to the func return!
func DiscardFromSlice[T any](elements []T, isDiscarded func(T) bool) []T {
	var n int
	for _, x := range elements {
		if !isDiscarded(x) {
			elements[n] = x
			n++
		}
	}
	return elements[:n]
}
