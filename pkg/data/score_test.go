package data

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testScoreResults() []*ScoreResult {
	return []*ScoreResult{
		{CustomerID: "cust_0002", Name: "B", PlanAmount: 2999, SubscriptionAgeDays: 40,
			PaymentFailureRate: 0.75, GroqRiskScore: 9, ChurnRiskPct: 91.5, RiskLevel: "HIGH", IsChurned: 1},
		{CustomerID: "cust_0001", Name: "A", PlanAmount: 499, SubscriptionAgeDays: 300,
			PaymentFailureRate: 0, GroqRiskScore: -1, ChurnRiskPct: 12.0, RiskLevel: "LOW", IsChurned: 0},
	}
}

func TestSaveScores_PreservesRank(t *testing.T) {
	db := setupTestDB(t)

	require.NoError(t, SaveScores(db, testScoreResults()))

	rows, err := db.Query(`SELECT customer_id, churn_risk_pct, risk_level FROM scores ORDER BY rowid`)
	require.NoError(t, err)
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id, level string
		var pct float64
		require.NoError(t, rows.Scan(&id, &pct, &level))
		ids = append(ids, id)
	}
	assert.Equal(t, []string{"cust_0002", "cust_0001"}, ids)
}

func TestSaveScores_ReplacesPriorRun(t *testing.T) {
	db := setupTestDB(t)

	require.NoError(t, SaveScores(db, testScoreResults()))
	require.NoError(t, SaveScores(db, testScoreResults()[:1]))

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM scores`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestSaveScores_NilDB(t *testing.T) {
	err := SaveScores(nil, testScoreResults())
	assert.Error(t, err)
}

func TestExportScoresCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scores.csv")

	require.NoError(t, ExportScoresCSV(path, testScoreResults()))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, []string{
		"customer_id", "name", "plan_amount", "subscription_age_days",
		"payment_failure_rate", "groq_risk_score", "churn_risk_pct",
		"risk_level", "is_churned",
	}, records[0])

	assert.Equal(t, []string{"cust_0002", "B", "2999", "40", "0.75", "9", "91.5", "HIGH", "1"}, records[1])
	assert.Equal(t, []string{"cust_0001", "A", "499", "300", "0.00", "-1", "12.0", "LOW", "0"}, records[2])
}

func TestExportScoresCSV_EmptyPath(t *testing.T) {
	assert.Error(t, ExportScoresCSV("", testScoreResults()))
}
