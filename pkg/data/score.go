package data

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

const (
	deleteScoresSQL = `DELETE FROM scores`

	insertScoreSQL = `INSERT INTO scores (
			customer_id,
			name,
			plan_amount,
			subscription_age_days,
			payment_failure_rate,
			groq_risk_score,
			churn_risk_pct,
			risk_level,
			is_churned
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
)

// ScoreResult is one row of the ranked churn report.
type ScoreResult struct {
	CustomerID          string  `json:"customer_id" yaml:"customerId"`
	Name                string  `json:"name" yaml:"name"`
	PlanAmount          float64 `json:"plan_amount" yaml:"planAmount"`
	SubscriptionAgeDays int     `json:"subscription_age_days" yaml:"subscriptionAgeDays"`
	PaymentFailureRate  float64 `json:"payment_failure_rate" yaml:"paymentFailureRate"`
	GroqRiskScore       int     `json:"groq_risk_score" yaml:"groqRiskScore"`
	ChurnRiskPct        float64 `json:"churn_risk_pct" yaml:"churnRiskPct"`
	RiskLevel           string  `json:"risk_level" yaml:"riskLevel"`
	IsChurned           int     `json:"is_churned" yaml:"isChurned"`
}

// SaveScores fully replaces the scores table in one transaction,
// preserving the ranked order of the input.
func SaveScores(db *sql.DB, results []*ScoreResult) error {
	if db == nil {
		return errDBNotInitialized
	}

	stmt, err := db.Prepare(insertScoreSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare score insert statement: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if _, err := tx.Exec(deleteScoresSQL); err != nil {
		rollbackTransaction(tx)
		return fmt.Errorf("failed to clear scores table: %w", err)
	}

	for i, r := range results {
		if _, err := tx.Stmt(stmt).Exec(r.CustomerID, r.Name, r.PlanAmount,
			r.SubscriptionAgeDays, r.PaymentFailureRate, r.GroqRiskScore,
			r.ChurnRiskPct, r.RiskLevel, r.IsChurned); err != nil {
			rollbackTransaction(tx)
			return fmt.Errorf("error inserting score[%d]: %s: %w", i, r.CustomerID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ExportScoresCSV writes the ranked report to a CSV file.
func ExportScoresCSV(path string, results []*ScoreResult) error {
	if path == "" {
		return fmt.Errorf("output path not specified")
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create scores file %s: %w", path, err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	header := []string{
		"customer_id", "name", "plan_amount", "subscription_age_days",
		"payment_failure_rate", "groq_risk_score", "churn_risk_pct",
		"risk_level", "is_churned",
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write scores header: %w", err)
	}

	for _, r := range results {
		rec := []string{
			r.CustomerID,
			r.Name,
			strconv.FormatFloat(r.PlanAmount, 'f', -1, 64),
			strconv.Itoa(r.SubscriptionAgeDays),
			strconv.FormatFloat(r.PaymentFailureRate, 'f', 2, 64),
			strconv.Itoa(r.GroqRiskScore),
			strconv.FormatFloat(r.ChurnRiskPct, 'f', 1, 64),
			r.RiskLevel,
			strconv.Itoa(r.IsChurned),
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("failed to write score row for %s: %w", r.CustomerID, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush scores file: %w", err)
	}

	return nil
}
