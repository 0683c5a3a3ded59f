package data

import (
	"database/sql"
	"errors"
	"fmt"
)

const (
	InvoiceStatusPaid   = "paid"
	InvoiceStatusFailed = "failed"

	selectCustomersSQL = `SELECT customer_id, name
		FROM customers
		ORDER BY customer_id
	`

	selectSubscriptionsSQL = `SELECT customer_id, plan_amount, created_at, is_churned
		FROM subscriptions
	`

	selectInvoicesSQL = `SELECT invoice_id, customer_id, amount_paid, status
		FROM invoices
	`

	selectTableCountSQL = `SELECT COUNT(*) FROM %s`
)

// Customer is one row of the loader-owned customers table.
type Customer struct {
	CustomerID string `json:"customer_id" yaml:"customerId"`
	Name       string `json:"name" yaml:"name"`
}

// Subscription is the billing contract for one customer. The loader
// guarantees at most one record per customer.
type Subscription struct {
	CustomerID string  `json:"customer_id" yaml:"customerId"`
	PlanAmount float64 `json:"plan_amount" yaml:"planAmount"`
	CreatedAt  string  `json:"created_at" yaml:"createdAt"`
	IsChurned  int     `json:"is_churned" yaml:"isChurned"`
}

// Invoice is one billing attempt for a customer.
type Invoice struct {
	InvoiceID  string  `json:"invoice_id" yaml:"invoiceId"`
	CustomerID string  `json:"customer_id" yaml:"customerId"`
	AmountPaid float64 `json:"amount_paid" yaml:"amountPaid"`
	Status     string  `json:"status" yaml:"status"`
}

func GetCustomers(db *sql.DB) ([]*Customer, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	rows, err := db.Query(selectCustomersSQL)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to query customers: %w", err)
	}
	defer rows.Close()

	list := make([]*Customer, 0)
	for rows.Next() {
		c := &Customer{}
		if err := rows.Scan(&c.CustomerID, &c.Name); err != nil {
			return nil, fmt.Errorf("failed to scan customer row: %w", err)
		}
		list = append(list, c)
	}

	return list, nil
}

// GetSubscriptions returns subscriptions keyed by customer ID.
func GetSubscriptions(db *sql.DB) (map[string]*Subscription, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	rows, err := db.Query(selectSubscriptionsSQL)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	m := make(map[string]*Subscription)
	for rows.Next() {
		s := &Subscription{}
		if err := rows.Scan(&s.CustomerID, &s.PlanAmount, &s.CreatedAt, &s.IsChurned); err != nil {
			return nil, fmt.Errorf("failed to scan subscription row: %w", err)
		}
		m[s.CustomerID] = s
	}

	return m, nil
}

// GetInvoicesByCustomer returns all invoices grouped by customer ID.
func GetInvoicesByCustomer(db *sql.DB) (map[string][]*Invoice, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	rows, err := db.Query(selectInvoicesSQL)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	m := make(map[string][]*Invoice)
	for rows.Next() {
		i := &Invoice{}
		if err := rows.Scan(&i.InvoiceID, &i.CustomerID, &i.AmountPaid, &i.Status); err != nil {
			return nil, fmt.Errorf("failed to scan invoice row: %w", err)
		}
		m[i.CustomerID] = append(m[i.CustomerID], i)
	}

	return m, nil
}

func countInvoices(list []*Invoice) int {
	return len(list)
}

func sumAmountPaid(list []*Invoice) float64 {
	var total float64
	for _, i := range list {
		total += i.AmountPaid
	}
	return total
}

func countFailedInvoices(list []*Invoice) int {
	var failed int
	for _, i := range list {
		if i.Status == InvoiceStatusFailed {
			failed++
		}
	}
	return failed
}

// TableCounts holds per-table row counts for the loader-owned tables,
// used to verify the store was loaded before the pipeline runs.
type TableCounts struct {
	Customers     int `json:"customers" yaml:"customers"`
	Subscriptions int `json:"subscriptions" yaml:"subscriptions"`
	Invoices      int `json:"invoices" yaml:"invoices"`
}

func GetTableCounts(db *sql.DB) (*TableCounts, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	c := &TableCounts{}
	for table, target := range map[string]*int{
		"customers":     &c.Customers,
		"subscriptions": &c.Subscriptions,
		"invoices":      &c.Invoices,
	} {
		if err := db.QueryRow(fmt.Sprintf(selectTableCountSQL, table)).Scan(target); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
	}

	return c, nil
}
