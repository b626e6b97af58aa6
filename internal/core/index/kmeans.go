package index

import (
	"math"
	"math/rand"
	"sort"
)

// trainKMeans はLloyd法でk個のセントロイドを学習する。
// 粗量子化器の学習専用で、距離は二乗ユークリッド距離を使う。
func trainKMeans(vectors [][]float32, k, maxIter int, rng *rand.Rand) [][]float32 {
	n := len(vectors)
	dim := len(vectors[0])

	centroids := make([][]float32, k)
	perm := rng.Perm(n)
	for i := 0; i < k; i++ {
		centroids[i] = make([]float32, dim)
		copy(centroids[i], vectors[perm[i]])
	}

	assignments := make([]int, n)
	counts := make([]int, k)
	sums := make([][]float64, k)
	for i := range sums {
		sums[i] = make([]float64, dim)
	}

	for iter := 0; iter < maxIter; iter++ {
		changed := false

		// 割り当てステップ
		for i, vec := range vectors {
			best, _ := nearestCentroid(vec, centroids)
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}

		if !changed && iter > 0 {
			break
		}

		// 更新ステップ
		for j := 0; j < k; j++ {
			counts[j] = 0
			for d := 0; d < dim; d++ {
				sums[j][d] = 0
			}
		}
		for i, vec := range vectors {
			cluster := assignments[i]
			counts[cluster]++
			for d, v := range vec {
				sums[cluster][d] += float64(v)
			}
		}

		for j := 0; j < k; j++ {
			if counts[j] > 0 {
				scale := 1.0 / float64(counts[j])
				for d := 0; d < dim; d++ {
					centroids[j][d] = float32(sums[j][d] * scale)
				}
			} else {
				// 空クラスタはランダムな点で再初期化する
				copy(centroids[j], vectors[rng.Intn(n)])
			}
		}
	}

	return centroids
}

// nearestCentroid はベクトルに最も近いセントロイドの番号と二乗距離を返す
func nearestCentroid(vec []float32, centroids [][]float32) (int, float64) {
	best := -1
	minDist := math.MaxFloat64

	for j, center := range centroids {
		d := squaredL2(vec, center)
		if d < minDist {
			minDist = d
			best = j
		}
	}

	return best, minDist
}

// closestCentroids はクエリに近い順にn個のセントロイド番号を返す
func closestCentroids(query []float32, centroids [][]float32, n int) []int {
	if n > len(centroids) {
		n = len(centroids)
	}

	type centroidDist struct {
		id   int
		dist float64
	}

	dists := make([]centroidDist, len(centroids))
	for i, center := range centroids {
		dists[i] = centroidDist{id: i, dist: squaredL2(query, center)}
	}

	sort.Slice(dists, func(i, j int) bool {
		return dists[i].dist < dists[j].dist
	})

	result := make([]int, n)
	for i := 0; i < n; i++ {
		result[i] = dists[i].id
	}
	return result
}

// squaredL2 は二乗ユークリッド距離を返す。
// 正規化済みベクトル同士ではコサイン距離と単調に一致する。
func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
