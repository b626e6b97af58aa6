package index

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sort"
)

const (
	// kmeansMaxIter は粗量子化器学習の最大反復回数
	kmeansMaxIter = 25

	// kmeansSeed は学習の再現性のための固定シード。
	// 同一入力からの再構築は同一のパーティショニングになる。
	kmeansSeed = 42
)

var (
	errNotTrained = errors.New("quantizer not trained")
	errTrainEmpty = errors.New("no vectors to train on")
)

// ivfFlat は転置ファイル方式（IVF-Flat）の近似最近傍インデックス。
// 学習済みの粗量子化器（セントロイド）と、パーティションごとの
// 挿入順位置リスト、および位置順の元ベクトルを保持する。
type ivfFlat struct {
	Dim       int
	Nlist     int
	Centroids [][]float32
	Lists     [][]int32
	Vectors   [][]float32
}

func newIVFFlat(dim, nlist int) *ivfFlat {
	return &ivfFlat{
		Dim:   dim,
		Nlist: nlist,
		Lists: make([][]int32, nlist),
	}
}

// train は全学習ベクトルから粗量子化器を学習する
func (ix *ivfFlat) train(vectors [][]float32) error {
	if len(vectors) == 0 {
		return errTrainEmpty
	}
	if ix.Nlist < 1 || ix.Nlist > len(vectors) {
		return fmt.Errorf("nlist %d out of range [1, %d]", ix.Nlist, len(vectors))
	}

	rng := rand.New(rand.NewSource(kmeansSeed))
	ix.Centroids = trainKMeans(vectors, ix.Nlist, kmeansMaxIter, rng)
	return nil
}

// add は学習済みパーティションにベクトルを挿入順で追加する
func (ix *ivfFlat) add(vectors [][]float32) error {
	if len(ix.Centroids) == 0 {
		return errNotTrained
	}

	for _, vec := range vectors {
		position := int32(len(ix.Vectors))
		ix.Vectors = append(ix.Vectors, vec)
		partition, _ := nearestCentroid(vec, ix.Centroids)
		ix.Lists[partition] = append(ix.Lists[partition], position)
	}
	return nil
}

// candidate は検索候補1件（挿入順位置と二乗L2距離）
type candidate struct {
	position int
	distance float64
}

// search はnprobe個のパーティションを走査し、距離昇順で最大k件の候補を返す。
// 候補がk件に満たない場合はあるだけ返す（プレースホルダで埋めない）。
func (ix *ivfFlat) search(query []float32, k, nprobe int) []candidate {
	if len(ix.Centroids) == 0 || k <= 0 {
		return nil
	}

	partitions := closestCentroids(query, ix.Centroids, nprobe)

	var candidates []candidate
	for _, p := range partitions {
		for _, position := range ix.Lists[p] {
			d := squaredL2(query, ix.Vectors[position])
			candidates = append(candidates, candidate{position: int(position), distance: d})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].distance < candidates[j].distance
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates
}

func (ix *ivfFlat) count() int {
	return len(ix.Vectors)
}

// encode はインデックス構造をシリアライズする
func (ix *ivfFlat) encode(w io.Writer) error {
	if err := gob.NewEncoder(w).Encode(ix); err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}
	return nil
}

// decodeIVFFlat はシリアライズ済みのインデックス構造を復元する
func decodeIVFFlat(r io.Reader) (*ivfFlat, error) {
	var ix ivfFlat
	if err := gob.NewDecoder(r).Decode(&ix); err != nil {
		return nil, fmt.Errorf("failed to decode index: %w", err)
	}
	return &ix, nil
}
