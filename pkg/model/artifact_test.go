package model

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testArtifact(t *testing.T) *Artifact {
	t.Helper()
	x, y := separableData(40)
	f, err := Fit(x, y, 10, 42)
	require.NoError(t, err)

	return &Artifact{
		FormatVersion:  FormatVersion,
		Features:       FeatureNames,
		Trees:          10,
		Seed:           42,
		TrainedAt:      time.Now().UTC().Format(time.RFC3339),
		ImputationMean: 5.5,
		Forest:         f,
	}
}

func TestArtifact_RoundTrip(t *testing.T) {
	a := testArtifact(t)
	path := filepath.Join(t.TempDir(), ModelFileName)

	require.NoError(t, SaveArtifact(path, a))

	loaded, err := LoadArtifact(path)
	require.NoError(t, err)
	assert.Equal(t, a.FormatVersion, loaded.FormatVersion)
	assert.Equal(t, a.Features, loaded.Features)
	assert.Equal(t, a.Seed, loaded.Seed)
	assert.Equal(t, a.ImputationMean, loaded.ImputationMean)

	// reloaded model reproduces bit-identical probabilities
	probes := [][]float64{{0.5, 3}, {0.92, 17}, {0.11, 29}}
	for _, p := range probes {
		assert.Equal(t, a.Forest.PredictProba(p), loaded.Forest.PredictProba(p))
	}
}

func TestSaveArtifact_ReplacesPrior(t *testing.T) {
	a := testArtifact(t)
	path := filepath.Join(t.TempDir(), ModelFileName)

	require.NoError(t, SaveArtifact(path, a))

	b := testArtifact(t)
	b.ImputationMean = 7.25
	require.NoError(t, SaveArtifact(path, b))

	loaded, err := LoadArtifact(path)
	require.NoError(t, err)
	assert.Equal(t, 7.25, loaded.ImputationMean)
}

func TestSaveArtifact_Validation(t *testing.T) {
	assert.Error(t, SaveArtifact("", testArtifact(t)))
	assert.Error(t, SaveArtifact(filepath.Join(t.TempDir(), "m.json"), nil))
	assert.Error(t, SaveArtifact(filepath.Join(t.TempDir(), "m.json"), &Artifact{}))
}

func TestLoadArtifact_Missing(t *testing.T) {
	_, err := LoadArtifact(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoadArtifact_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("not json at all"), 0600))

	_, err := LoadArtifact(path)
	assert.Error(t, err)
}

func TestLoadArtifact_UnsupportedVersion(t *testing.T) {
	a := testArtifact(t)
	a.FormatVersion = 99
	path := filepath.Join(t.TempDir(), ModelFileName)
	require.NoError(t, SaveArtifact(path, a))

	_, err := LoadArtifact(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "format version")
}

func TestLoadArtifact_FeatureMismatch(t *testing.T) {
	a := testArtifact(t)
	a.Features = []string{"plan_amount", "something_else"}
	path := filepath.Join(t.TempDir(), ModelFileName)
	require.NoError(t, SaveArtifact(path, a))

	_, err := LoadArtifact(path)
	assert.ErrorIs(t, err, ErrFeatureMismatch)
}

func TestLoadArtifact_NoTrees(t *testing.T) {
	a := testArtifact(t)
	a.Forest = &Forest{NumFeatures: 6}
	path := filepath.Join(t.TempDir(), ModelFileName)

	// bypass SaveArtifact's forest check by giving it an empty but non-nil forest
	require.NoError(t, SaveArtifact(path, a))

	_, err := LoadArtifact(path)
	assert.Error(t, err)
}
