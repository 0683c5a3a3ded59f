package model

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/mchmarny/churnctl/pkg/data"
)

const (
	TestFractionDefault = 0.2

	positiveThreshold = 0.5
)

// ErrNoAnnotatedRows means the imputation mean is undefined: not a single
// row carries an annotation, which is a configuration error, not data.
var ErrNoAnnotatedRows = errors.New("no annotated risk scores to impute from")

// TrainConfig configures one training run.
type TrainConfig struct {
	Trees        int
	Seed         uint64
	TestFraction float64
	ModelPath    string
}

// ClassMetrics is the per-class slice of the evaluation report.
type ClassMetrics struct {
	Precision float64 `json:"precision" yaml:"precision"`
	Recall    float64 `json:"recall" yaml:"recall"`
	F1        float64 `json:"f1" yaml:"f1"`
	Support   int     `json:"support" yaml:"support"`
}

// Evaluation is the held-out evaluation report.
type Evaluation struct {
	Accuracy float64      `json:"accuracy" yaml:"accuracy"`
	Active   ClassMetrics `json:"active" yaml:"active"`
	Churned  ClassMetrics `json:"churned" yaml:"churned"`
}

// FeatureImportance is one entry of the descending importance ranking.
type FeatureImportance struct {
	Feature string  `json:"feature" yaml:"feature"`
	Score   float64 `json:"score" yaml:"score"`
}

// TrainResult summarizes one training run.
type TrainResult struct {
	Rows           int                 `json:"rows" yaml:"rows"`
	TrainRows      int                 `json:"train_rows" yaml:"trainRows"`
	TestRows       int                 `json:"test_rows" yaml:"testRows"`
	ImputationMean float64             `json:"imputation_mean" yaml:"imputationMean"`
	Evaluation     *Evaluation         `json:"evaluation" yaml:"evaluation"`
	Importance     []FeatureImportance `json:"importance" yaml:"importance"`
	ModelPath      string              `json:"model_path" yaml:"modelPath"`
	Duration       string              `json:"duration" yaml:"duration"`
}

// ImputationMean is the arithmetic mean of all annotated risk scores.
// Returns ErrNoAnnotatedRows when no row carries an annotation.
func ImputationMean(vectors []*data.FeatureVector) (float64, error) {
	var sum float64
	var n int
	for _, v := range vectors {
		if v.GroqRiskScore.Scored {
			sum += float64(v.GroqRiskScore.Value)
			n++
		}
	}
	if n == 0 {
		return 0, ErrNoAnnotatedRows
	}
	return sum / float64(n), nil
}

// featureMatrix lays vectors out in FeatureNames order, substituting the
// imputation mean for unscored annotations. No sentinel survives here.
func featureMatrix(vectors []*data.FeatureVector, mean float64) [][]float64 {
	x := make([][]float64, len(vectors))
	for i, v := range vectors {
		score := mean
		if v.GroqRiskScore.Scored {
			score = float64(v.GroqRiskScore.Value)
		}
		x[i] = []float64{
			v.PlanAmount,
			float64(v.SubscriptionAgeDays),
			float64(v.TotalInvoices),
			v.TotalPaid,
			v.PaymentFailureRate,
			score,
		}
	}
	return x
}

func labels(vectors []*data.FeatureVector) []int {
	y := make([]int, len(vectors))
	for i, v := range vectors {
		y[i] = v.IsChurned
	}
	return y
}

// splitIndices deterministically partitions row indices into train and
// test sets; identical input and seed always yield the same partition.
func splitIndices(n int, fraction float64, seed uint64) (train, test []int) {
	if fraction <= 0 || fraction >= 1 {
		fraction = TestFractionDefault
	}

	rng := rand.New(rand.NewPCG(seed, 0))
	perm := rng.Perm(n)

	testN := int(math.Round(float64(n) * fraction))
	if testN < 1 && n > 1 {
		testN = 1
	}
	if testN >= n {
		testN = n - 1
	}

	return perm[testN:], perm[:testN]
}

// Train imputes the feature table, fits the ensemble on the training
// split, evaluates on the held-out split, and persists the artifact.
func Train(vectors []*data.FeatureVector, cfg TrainConfig) (*TrainResult, error) {
	start := time.Now()

	if len(vectors) < 2 {
		return nil, fmt.Errorf("need at least 2 feature rows, have %d", len(vectors))
	}

	trees := cfg.Trees
	if trees <= 0 {
		trees = TreesDefault
	}

	mean, err := ImputationMean(vectors)
	if err != nil {
		return nil, err
	}

	x := featureMatrix(vectors, mean)
	y := labels(vectors)

	trainIdx, testIdx := splitIndices(len(vectors), cfg.TestFraction, cfg.Seed)

	xTrain, yTrain := subset(x, y, trainIdx)
	xTest, yTest := subset(x, y, testIdx)

	slog.Info("training ensemble",
		"rows", len(vectors), "train", len(trainIdx), "test", len(testIdx),
		"trees", trees, "seed", cfg.Seed)

	forest, err := Fit(xTrain, yTrain, trees, cfg.Seed)
	if err != nil {
		return nil, fmt.Errorf("failed to fit ensemble: %w", err)
	}

	eval := evaluate(forest, xTest, yTest)

	a := &Artifact{
		FormatVersion:  FormatVersion,
		Features:       FeatureNames,
		Trees:          trees,
		Seed:           cfg.Seed,
		TrainedAt:      start.UTC().Format(time.RFC3339),
		ImputationMean: mean,
		Forest:         forest,
	}
	if err := SaveArtifact(cfg.ModelPath, a); err != nil {
		return nil, err
	}

	slog.Info("model trained", "accuracy", eval.Accuracy, "path", cfg.ModelPath)

	return &TrainResult{
		Rows:           len(vectors),
		TrainRows:      len(trainIdx),
		TestRows:       len(testIdx),
		ImputationMean: mean,
		Evaluation:     eval,
		Importance:     rankImportance(forest),
		ModelPath:      cfg.ModelPath,
		Duration:       time.Since(start).String(),
	}, nil
}

func subset(x [][]float64, y []int, idx []int) ([][]float64, []int) {
	xs := make([][]float64, len(idx))
	ys := make([]int, len(idx))
	for i, j := range idx {
		xs[i] = x[j]
		ys[i] = y[j]
	}
	return xs, ys
}

func evaluate(f *Forest, x [][]float64, y []int) *Evaluation {
	pred := make([]int, len(x))
	correct := 0
	for i, row := range x {
		if f.PredictProba(row) >= positiveThreshold {
			pred[i] = 1
		}
		if pred[i] == y[i] {
			correct++
		}
	}

	e := &Evaluation{
		Active:  classMetrics(pred, y, 0),
		Churned: classMetrics(pred, y, 1),
	}
	if len(y) > 0 {
		e.Accuracy = float64(correct) / float64(len(y))
	}
	return e
}

func classMetrics(pred, y []int, class int) ClassMetrics {
	var tp, predicted, actual int
	for i := range y {
		if y[i] == class {
			actual++
		}
		if pred[i] == class {
			predicted++
			if y[i] == class {
				tp++
			}
		}
	}

	m := ClassMetrics{Support: actual}
	if predicted > 0 {
		m.Precision = float64(tp) / float64(predicted)
	}
	if actual > 0 {
		m.Recall = float64(tp) / float64(actual)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	return m
}

func rankImportance(f *Forest) []FeatureImportance {
	scores := f.NormalizedImportance()
	list := make([]FeatureImportance, len(FeatureNames))
	for i, name := range FeatureNames {
		list[i] = FeatureImportance{Feature: name, Score: scores[i]}
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Score > list[j].Score
	})
	return list
}
