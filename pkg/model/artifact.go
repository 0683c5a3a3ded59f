package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

const (
	// FormatVersion tags the artifact layout; loaders reject anything else.
	FormatVersion = 1

	ModelFileName = "churn_model.json"

	artifactFileMode = 0600
)

var (
	// FeatureNames is the ordered feature list the classifier is fit
	// against. The order is part of the artifact contract.
	FeatureNames = []string{
		"plan_amount",
		"subscription_age_days",
		"total_invoices",
		"total_paid",
		"payment_failure_rate",
		"groq_risk_score",
	}

	ErrFeatureMismatch = errors.New("artifact feature order does not match current schema")
)

// Artifact is the persisted trained model: the serialized ensemble plus
// everything needed to validate compatibility and reproduce predictions.
type Artifact struct {
	FormatVersion  int      `json:"format_version"`
	Features       []string `json:"features"`
	Trees          int      `json:"trees"`
	Seed           uint64   `json:"seed"`
	TrainedAt      string   `json:"trained_at"`
	ImputationMean float64  `json:"imputation_mean"`
	Forest         *Forest  `json:"forest"`
}

// SaveArtifact writes the artifact atomically (temp file + rename) so a
// failed run never leaves a partial model behind.
func SaveArtifact(path string, a *Artifact) error {
	if path == "" {
		return errors.New("model path not specified")
	}
	if a == nil || a.Forest == nil {
		return errors.New("artifact has no trained forest")
	}

	b, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal model artifact: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".churn_model-*")
	if err != nil {
		return fmt.Errorf("failed to create temp model file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write model artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp model file: %w", err)
	}
	if err := os.Chmod(tmpPath, artifactFileMode); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set model file mode: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace model artifact %s: %w", path, err)
	}

	return nil
}

// LoadArtifact reads and validates a persisted model. It fails on a
// missing file, corrupt content, unknown format version, or a feature
// order that no longer matches the current schema.
func LoadArtifact(path string) (*Artifact, error) {
	if path == "" {
		return nil, errors.New("model path not specified")
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model artifact %s: %w", path, err)
	}

	a := &Artifact{}
	if err := json.Unmarshal(b, a); err != nil {
		return nil, fmt.Errorf("corrupt model artifact %s: %w", path, err)
	}

	if a.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("unsupported model format version %d (want %d)", a.FormatVersion, FormatVersion)
	}

	if !slices.Equal(a.Features, FeatureNames) {
		return nil, fmt.Errorf("%w: artifact %v, current %v", ErrFeatureMismatch, a.Features, FeatureNames)
	}

	if a.Forest == nil || len(a.Forest.Trees) == 0 {
		return nil, fmt.Errorf("model artifact %s has no trees", path)
	}

	return a, nil
}
