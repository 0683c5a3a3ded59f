package model

import (
	"math/rand/v2"
	"sort"
)

// node is one decision-tree node. Leaves carry the positive-class
// fraction of the training samples that reached them.
type node struct {
	Leaf      bool    `json:"leaf,omitempty"`
	Prob      float64 `json:"p,omitempty"`
	Feature   int     `json:"f,omitempty"`
	Threshold float64 `json:"t,omitempty"`
	Left      *node   `json:"l,omitempty"`
	Right     *node   `json:"r,omitempty"`
}

func (n *node) predict(x []float64) float64 {
	for !n.Leaf {
		if x[n.Feature] <= n.Threshold {
			n = n.Left
		} else {
			n = n.Right
		}
	}
	return n.Prob
}

const minSamplesSplit = 2

// treeBuilder grows one CART tree over a bootstrap sample, considering a
// random feature subset at each split and accumulating impurity-decrease
// feature importance weighted by node size.
type treeBuilder struct {
	x           [][]float64
	y           []int
	rng         *rand.Rand
	maxFeatures int
	rootSize    int
	importance  []float64
}

func (b *treeBuilder) build(idx []int) *node {
	pos := 0
	for _, i := range idx {
		pos += b.y[i]
	}

	if pos == 0 || pos == len(idx) || len(idx) < minSamplesSplit {
		return &node{Leaf: true, Prob: float64(pos) / float64(len(idx))}
	}

	feature, threshold, gain, left, right := b.bestSplit(idx)
	if gain <= 0 {
		return &node{Leaf: true, Prob: float64(pos) / float64(len(idx))}
	}

	b.importance[feature] += float64(len(idx)) / float64(b.rootSize) * gain

	return &node{
		Feature:   feature,
		Threshold: threshold,
		Left:      b.build(left),
		Right:     b.build(right),
	}
}

func (b *treeBuilder) bestSplit(idx []int) (feature int, threshold, gain float64, left, right []int) {
	parent := giniOf(b.y, idx)
	feature = -1

	candidates := b.rng.Perm(len(b.x[0]))[:b.maxFeatures]
	sort.Ints(candidates)

	for _, f := range candidates {
		thr, g, ok := b.scanFeature(idx, f, parent)
		if ok && g > gain {
			feature, threshold, gain = f, thr, g
		}
	}

	if feature < 0 {
		return -1, 0, 0, nil, nil
	}

	for _, i := range idx {
		if b.x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return feature, threshold, gain, left, right
}

// scanFeature finds the best midpoint threshold for one feature by a
// single pass over the samples sorted by that feature's value.
func (b *treeBuilder) scanFeature(idx []int, f int, parent float64) (threshold, gain float64, ok bool) {
	sorted := make([]int, len(idx))
	copy(sorted, idx)
	sort.SliceStable(sorted, func(a, c int) bool {
		return b.x[sorted[a]][f] < b.x[sorted[c]][f]
	})

	total := len(sorted)
	totalPos := 0
	for _, i := range sorted {
		totalPos += b.y[i]
	}

	leftPos := 0
	for s := 1; s < total; s++ {
		leftPos += b.y[sorted[s-1]]

		prev := b.x[sorted[s-1]][f]
		cur := b.x[sorted[s]][f]
		if prev == cur {
			continue
		}

		lw := float64(s) / float64(total)
		rw := 1 - lw
		weighted := lw*gini(leftPos, s) + rw*gini(totalPos-leftPos, total-s)

		if g := parent - weighted; g > gain {
			gain = g
			threshold = prev + (cur-prev)/2
			ok = true
		}
	}

	return threshold, gain, ok
}

func gini(pos, n int) float64 {
	if n == 0 {
		return 0
	}
	p := float64(pos) / float64(n)
	return 2 * p * (1 - p)
}

func giniOf(y []int, idx []int) float64 {
	pos := 0
	for _, i := range idx {
		pos += y[i]
	}
	return gini(pos, len(idx))
}
