package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/mchmarny/churnctl/pkg/annotate"
)

const (
	// RiskScoreUnscored is the storage-boundary sentinel for rows the
	// annotator never saw. Inside the pipeline the tagged RiskScore type
	// is used instead.
	RiskScoreUnscored = -1

	AnnotationQuotaDefault = 20

	dateLayout = "2006-01-02"

	deleteFeaturesSQL = `DELETE FROM features`

	insertFeatureSQL = `INSERT INTO features (
			customer_id,
			name,
			plan_amount,
			subscription_age_days,
			total_invoices,
			total_paid,
			payment_failure_rate,
			groq_risk_score,
			is_churned
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	selectFeaturesSQL = `SELECT
			customer_id,
			name,
			plan_amount,
			subscription_age_days,
			total_invoices,
			total_paid,
			payment_failure_rate,
			groq_risk_score,
			is_churned
		FROM features
		ORDER BY rowid
	`
)

// RiskScore is the annotation opinion for one customer. The zero value
// means "unscored"; the -1 sentinel is only used in the features table.
type RiskScore struct {
	Value  int
	Scored bool
}

// Sentinel converts the score to its storage representation.
func (r RiskScore) Sentinel() int {
	if !r.Scored {
		return RiskScoreUnscored
	}
	return r.Value
}

// RiskScoreFromSentinel converts a stored value back to the tagged form.
func RiskScoreFromSentinel(v int) RiskScore {
	if v == RiskScoreUnscored {
		return RiskScore{}
	}
	return RiskScore{Value: v, Scored: true}
}

// FeatureVector is the fixed-schema billing summary of one customer.
type FeatureVector struct {
	CustomerID          string
	Name                string
	PlanAmount          float64
	SubscriptionAgeDays int
	TotalInvoices       int
	TotalPaid           float64
	PaymentFailureRate  float64
	GroqRiskScore       RiskScore
	IsChurned           int
}

// Metrics shapes the vector for the annotation service.
func (v *FeatureVector) Metrics() annotate.Metrics {
	return annotate.Metrics{
		SubscriptionAgeDays: v.SubscriptionAgeDays,
		PlanAmount:          v.PlanAmount,
		TotalInvoices:       v.TotalInvoices,
		PaymentFailureRate:  v.PaymentFailureRate,
		TotalPaid:           v.TotalPaid,
	}
}

// FeatureImportResult summarizes one feature build run.
type FeatureImportResult struct {
	Customers int    `json:"customers" yaml:"customers"`
	Annotated int    `json:"annotated" yaml:"annotated"`
	Excluded  int    `json:"excluded" yaml:"excluded"`
	Duration  string `json:"duration" yaml:"duration"`
}

// BuildFeatures joins the three raw tables into one vector per customer,
// annotates the first quota rows, and fully replaces the features table.
// Customers missing a subscription or any invoice are silently excluded
// (inner-join semantics, a deliberate completeness trade-off).
func BuildFeatures(ctx context.Context, db *sql.DB, annotator annotate.Annotator, quota int) (*FeatureImportResult, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	start := time.Now()

	customers, err := GetCustomers(db)
	if err != nil {
		return nil, fmt.Errorf("failed to read customers: %w", err)
	}

	subs, err := GetSubscriptions(db)
	if err != nil {
		return nil, fmt.Errorf("failed to read subscriptions: %w", err)
	}

	invoices, err := GetInvoicesByCustomer(db)
	if err != nil {
		return nil, fmt.Errorf("failed to read invoices: %w", err)
	}

	vectors := make([]*FeatureVector, 0, len(customers))
	noSub, noInv := 0, 0

	for _, c := range customers {
		sub, ok := subs[c.CustomerID]
		if !ok {
			noSub++
			continue
		}
		invs, ok := invoices[c.CustomerID]
		if !ok || len(invs) == 0 {
			noInv++
			continue
		}

		age, err := subscriptionAgeDays(sub.CreatedAt, start)
		if err != nil {
			return nil, fmt.Errorf("invalid subscription date for %s: %w", c.CustomerID, err)
		}

		total := countInvoices(invs)
		vectors = append(vectors, &FeatureVector{
			CustomerID:          c.CustomerID,
			Name:                c.Name,
			PlanAmount:          sub.PlanAmount,
			SubscriptionAgeDays: age,
			TotalInvoices:       total,
			TotalPaid:           sumAmountPaid(invs),
			PaymentFailureRate:  FailureRate(countFailedInvoices(invs), total),
			IsChurned:           sub.IsChurned,
		})
	}

	if noSub > 0 || noInv > 0 {
		slog.Info("excluded customers missing join records",
			"no_subscription", noSub, "no_invoices", noInv)
	}

	annotated, err := annotateVectors(ctx, annotator, vectors, quota)
	if err != nil {
		return nil, err
	}

	if err := SaveFeatures(db, vectors); err != nil {
		return nil, err
	}

	slog.Info("feature table replaced",
		"customers", len(vectors), "annotated", annotated)

	return &FeatureImportResult{
		Customers: len(vectors),
		Annotated: annotated,
		Excluded:  noSub + noInv,
		Duration:  time.Since(start).String(),
	}, nil
}

func annotateVectors(ctx context.Context, annotator annotate.Annotator, vectors []*FeatureVector, quota int) (int, error) {
	if annotator == nil || quota <= 0 {
		return 0, nil
	}

	annotated := 0
	for i, v := range vectors {
		if i >= quota {
			break
		}
		score, err := annotator.Annotate(ctx, v.Metrics())
		if err != nil {
			return annotated, fmt.Errorf("annotation aborted at row %d: %w", i, err)
		}
		v.GroqRiskScore = RiskScore{Value: score, Scored: true}
		annotated++
		slog.Debug("annotated customer", "customer", v.CustomerID, "score", score)
	}

	return annotated, nil
}

// FailureRate is failed/total rounded to 2 decimals, defined as 0 when
// the customer has no invoices.
func FailureRate(failed, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(failed)/float64(total)*100) / 100
}

func subscriptionAgeDays(createdAt string, now time.Time) (int, error) {
	t, err := time.Parse(dateLayout, createdAt)
	if err != nil {
		if t, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return 0, fmt.Errorf("unparseable date %q: %w", createdAt, err)
		}
	}
	days := int(now.Sub(t).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return days, nil
}

// SaveFeatures fully replaces the features table in one transaction.
func SaveFeatures(db *sql.DB, vectors []*FeatureVector) error {
	if db == nil {
		return errDBNotInitialized
	}

	stmt, err := db.Prepare(insertFeatureSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare feature insert statement: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if _, err := tx.Exec(deleteFeaturesSQL); err != nil {
		rollbackTransaction(tx)
		return fmt.Errorf("failed to clear features table: %w", err)
	}

	for i, v := range vectors {
		if _, err := tx.Stmt(stmt).Exec(v.CustomerID, v.Name, v.PlanAmount,
			v.SubscriptionAgeDays, v.TotalInvoices, v.TotalPaid,
			v.PaymentFailureRate, v.GroqRiskScore.Sentinel(), v.IsChurned); err != nil {
			rollbackTransaction(tx)
			return fmt.Errorf("error inserting feature[%d]: %s: %w", i, v.CustomerID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetFeatureVectors reads the features table in its build order.
func GetFeatureVectors(db *sql.DB) ([]*FeatureVector, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	rows, err := db.Query(selectFeaturesSQL)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to query features: %w", err)
	}
	defer rows.Close()

	list := make([]*FeatureVector, 0)
	for rows.Next() {
		v := &FeatureVector{}
		var sentinel int
		if err := rows.Scan(&v.CustomerID, &v.Name, &v.PlanAmount,
			&v.SubscriptionAgeDays, &v.TotalInvoices, &v.TotalPaid,
			&v.PaymentFailureRate, &sentinel, &v.IsChurned); err != nil {
			return nil, fmt.Errorf("failed to scan feature row: %w", err)
		}
		v.GroqRiskScore = RiskScoreFromSentinel(sentinel)
		list = append(list, v)
	}

	return list, nil
}
