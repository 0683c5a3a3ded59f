package model

import (
	"errors"
	"math"
	"math/rand/v2"
)

const (
	TreesDefault = 100
	SeedDefault  = uint64(42)
)

// Forest is a bagged ensemble of decision trees. Probabilities are the
// mean of per-tree leaf positive fractions.
type Forest struct {
	Trees       []*node   `json:"trees"`
	NumFeatures int       `json:"num_features"`
	Importance  []float64 `json:"importance"`
}

// Fit trains the ensemble: each tree grows on a bootstrap sample of the
// rows with sqrt(p) candidate features per split. The same seed over the
// same input reproduces the identical forest.
func Fit(x [][]float64, y []int, trees int, seed uint64) (*Forest, error) {
	if len(x) == 0 {
		return nil, errors.New("no training rows")
	}
	if len(x) != len(y) {
		return nil, errors.New("feature and label row counts differ")
	}
	if trees <= 0 {
		trees = TreesDefault
	}

	n := len(x)
	p := len(x[0])
	maxFeatures := int(math.Sqrt(float64(p)))
	if maxFeatures < 1 {
		maxFeatures = 1
	}

	rng := rand.New(rand.NewPCG(seed, 1))
	importance := make([]float64, p)

	f := &Forest{
		Trees:       make([]*node, 0, trees),
		NumFeatures: p,
		Importance:  importance,
	}

	for t := 0; t < trees; t++ {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = rng.IntN(n)
		}

		b := &treeBuilder{
			x:           x,
			y:           y,
			rng:         rng,
			maxFeatures: maxFeatures,
			rootSize:    n,
			importance:  importance,
		}
		f.Trees = append(f.Trees, b.build(idx))
	}

	return f, nil
}

// PredictProba returns the predicted probability of the positive class.
func (f *Forest) PredictProba(x []float64) float64 {
	if len(f.Trees) == 0 {
		return 0
	}
	var sum float64
	for _, t := range f.Trees {
		sum += t.predict(x)
	}
	return sum / float64(len(f.Trees))
}

// NormalizedImportance scales the accumulated impurity decreases to sum
// to 1 across features.
func (f *Forest) NormalizedImportance() []float64 {
	out := make([]float64, len(f.Importance))
	var total float64
	for _, v := range f.Importance {
		total += v
	}
	if total == 0 {
		return out
	}
	for i, v := range f.Importance {
		out[i] = v / total
	}
	return out
}
