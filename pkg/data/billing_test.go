package data

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func insertCustomer(t *testing.T, db *sql.DB, id, name string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO customers (customer_id, name, email, created_at, city)
		VALUES (?, ?, ?, ?, ?)`, id, name, id+"@example.com", "2025-01-01", "Pune")
	require.NoError(t, err)
}

func insertSubscription(t *testing.T, db *sql.DB, customerID string, planAmount float64, createdAt string, churned int) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO subscriptions (subscription_id, customer_id, status, plan, plan_amount, created_at, current_period_end, is_churned)
		VALUES (?, ?, 'active', 'pro', ?, ?, '2027-01-01', ?)`,
		"sub_"+customerID, customerID, planAmount, createdAt, churned)
	require.NoError(t, err)
}

func insertInvoice(t *testing.T, db *sql.DB, invoiceID, customerID string, amountPaid float64, status string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO invoices (invoice_id, customer_id, amount_due, amount_paid, status, created_at)
		VALUES (?, ?, ?, ?, ?, '2025-02-01')`,
		invoiceID, customerID, amountPaid, amountPaid, status)
	require.NoError(t, err)
}

func TestGetCustomers(t *testing.T) {
	db := setupTestDB(t)

	insertCustomer(t, db, "cust_0002", "Priya Patel")
	insertCustomer(t, db, "cust_0001", "Aarav Sharma")

	list, err := GetCustomers(db)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "cust_0001", list[0].CustomerID)
	assert.Equal(t, "Aarav Sharma", list[0].Name)
	assert.Equal(t, "cust_0002", list[1].CustomerID)
}

func TestGetCustomers_NilDB(t *testing.T) {
	_, err := GetCustomers(nil)
	assert.Error(t, err)
}

func TestGetSubscriptions(t *testing.T) {
	db := setupTestDB(t)

	insertSubscription(t, db, "cust_0001", 999, "2025-01-15", 1)

	m, err := GetSubscriptions(db)
	require.NoError(t, err)
	require.Len(t, m, 1)
	sub := m["cust_0001"]
	require.NotNil(t, sub)
	assert.Equal(t, 999.0, sub.PlanAmount)
	assert.Equal(t, "2025-01-15", sub.CreatedAt)
	assert.Equal(t, 1, sub.IsChurned)
}

func TestGetInvoicesByCustomer(t *testing.T) {
	db := setupTestDB(t)

	insertInvoice(t, db, "inv_00001", "cust_0001", 999, InvoiceStatusPaid)
	insertInvoice(t, db, "inv_00002", "cust_0001", 0, InvoiceStatusFailed)
	insertInvoice(t, db, "inv_00003", "cust_0002", 499, InvoiceStatusPaid)

	m, err := GetInvoicesByCustomer(db)
	require.NoError(t, err)
	assert.Len(t, m, 2)
	assert.Len(t, m["cust_0001"], 2)
	assert.Len(t, m["cust_0002"], 1)
}

func TestInvoiceAggregations(t *testing.T) {
	list := []*Invoice{
		{InvoiceID: "a", AmountPaid: 999, Status: InvoiceStatusPaid},
		{InvoiceID: "b", AmountPaid: 0, Status: InvoiceStatusFailed},
		{InvoiceID: "c", AmountPaid: 499, Status: InvoiceStatusPaid},
		{InvoiceID: "d", AmountPaid: 999, Status: InvoiceStatusPaid},
	}

	assert.Equal(t, 4, countInvoices(list))
	assert.Equal(t, 2497.0, sumAmountPaid(list))
	assert.Equal(t, 1, countFailedInvoices(list))

	assert.Equal(t, 0, countInvoices(nil))
	assert.Equal(t, 0.0, sumAmountPaid(nil))
	assert.Equal(t, 0, countFailedInvoices(nil))
}

func TestGetTableCounts(t *testing.T) {
	db := setupTestDB(t)

	insertCustomer(t, db, "cust_0001", "Aarav Sharma")
	insertSubscription(t, db, "cust_0001", 999, "2025-01-01", 0)
	insertInvoice(t, db, "inv_00001", "cust_0001", 999, InvoiceStatusPaid)
	insertInvoice(t, db, "inv_00002", "cust_0001", 999, InvoiceStatusPaid)

	c, err := GetTableCounts(db)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Customers)
	assert.Equal(t, 1, c.Subscriptions)
	assert.Equal(t, 2, c.Invoices)
}
