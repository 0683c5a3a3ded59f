package model

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/mchmarny/churnctl/pkg/data"
)

const (
	RiskLevelHigh   = "HIGH"
	RiskLevelMedium = "MEDIUM"
	RiskLevelLow    = "LOW"

	highThresholdPct   = 70.0
	mediumThresholdPct = 40.0

	// Imputation means this far apart between training and scoring runs
	// indicate the customer population shifted; worth a warning.
	meanDriftThreshold = 0.5
)

// RiskLevel maps a churn percentage to its band using inclusive-lower
// thresholds: [70,100] HIGH, [40,70) MEDIUM, [0,40) LOW.
func RiskLevel(pct float64) string {
	switch {
	case pct >= highThresholdPct:
		return RiskLevelHigh
	case pct >= mediumThresholdPct:
		return RiskLevelMedium
	default:
		return RiskLevelLow
	}
}

// Score computes the churn probability for every vector and returns the
// report rows sorted descending by risk (stable, ties keep table order).
// The imputation mean is recomputed from the current table, matching the
// training policy.
func Score(vectors []*data.FeatureVector, a *Artifact) ([]*data.ScoreResult, error) {
	if a == nil || a.Forest == nil {
		return nil, fmt.Errorf("no trained model")
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no feature rows to score")
	}

	mean, err := ImputationMean(vectors)
	if err != nil {
		return nil, err
	}

	if math.Abs(mean-a.ImputationMean) > meanDriftThreshold {
		slog.Warn("imputation mean drifted since training; scored probabilities may be skewed",
			"training_mean", a.ImputationMean, "scoring_mean", mean)
	}

	x := featureMatrix(vectors, mean)

	results := make([]*data.ScoreResult, len(vectors))
	for i, v := range vectors {
		pct := math.Round(a.Forest.PredictProba(x[i])*1000) / 10
		results[i] = &data.ScoreResult{
			CustomerID:          v.CustomerID,
			Name:                v.Name,
			PlanAmount:          v.PlanAmount,
			SubscriptionAgeDays: v.SubscriptionAgeDays,
			PaymentFailureRate:  v.PaymentFailureRate,
			GroqRiskScore:       v.GroqRiskScore.Sentinel(),
			ChurnRiskPct:        pct,
			RiskLevel:           RiskLevel(pct),
			IsChurned:           v.IsChurned,
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].ChurnRiskPct > results[j].ChurnRiskPct
	})

	return results, nil
}

// BandCounts tallies results per risk band.
func BandCounts(results []*data.ScoreResult) map[string]int {
	counts := map[string]int{
		RiskLevelHigh:   0,
		RiskLevelMedium: 0,
		RiskLevelLow:    0,
	}
	for _, r := range results {
		counts[r.RiskLevel]++
	}
	return counts
}
