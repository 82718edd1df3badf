package diarize

// kmeans2 固定 k=2 的确定性聚类。
// 初始中心取 pitch 维度 (归一化后第 0 维) 的最小/最大点，保证可复现。
func kmeans2(features [][]float64) []int {
	n := len(features)
	if n == 0 {
		return nil
	}
	assignments := make([]int, n)
	if n < 2 {
		return assignments
	}

	lo, hi := 0, 0
	for i, f := range features {
		if f[0] < features[lo][0] {
			lo = i
		}
		if f[0] > features[hi][0] {
			hi = i
		}
	}
	if lo == hi {
		return assignments // 所有点一样，单簇
	}

	dims := len(features[0])
	centroids := [2][]float64{
		append([]float64(nil), features[lo]...),
		append([]float64(nil), features[hi]...),
	}

	for iter := 0; iter < 20; iter++ {
		changed := false
		for i, f := range features {
			c := 0
			if sqDist(f, centroids[1]) < sqDist(f, centroids[0]) {
				c = 1
			}
			if assignments[i] != c {
				assignments[i] = c
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		// 重新计算中心
		var counts [2]int
		sums := [2][]float64{make([]float64, dims), make([]float64, dims)}
		for i, f := range features {
			c := assignments[i]
			counts[c]++
			for d := 0; d < dims; d++ {
				sums[c][d] += f[d]
			}
		}
		for c := 0; c < 2; c++ {
			if counts[c] == 0 {
				continue
			}
			for d := 0; d < dims; d++ {
				centroids[c][d] = sums[c][d] / float64(counts[c])
			}
		}
	}

	return assignments
}

func sqDist(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
