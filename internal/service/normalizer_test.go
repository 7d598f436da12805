package service

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/taxlens/ledgersync-worker/internal/models"
)

func amountOf(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad test amount %q: %v", s, err)
	}
	return d
}

func fy2324() FinancialYear {
	return FinancialYear{
		Label: "FY2023-24",
		Start: time.Date(2023, time.July, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, time.June, 30, 0, 0, 0, 0, time.UTC),
	}
}

func TestNormalize_TypedFields(t *testing.T) {
	record := map[string]interface{}{
		"transactionID": "txn-001",
		"total":         1250.75,
		"date":          "2023-08-15",
		"contact":       map[string]interface{}{"name": "Acme Supplies"},
		"description":   "Office equipment",
	}

	txn, err := Normalize("t1", fy2324(), record)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if txn.TenantID != "t1" {
		t.Errorf("expected tenant t1, got %s", txn.TenantID)
	}
	if txn.TransactionID != "txn-001" {
		t.Errorf("expected txn-001, got %s", txn.TransactionID)
	}
	if txn.FinancialYear != "FY2023-24" {
		t.Errorf("expected FY2023-24, got %s", txn.FinancialYear)
	}
	if txn.TotalAmount == nil || !txn.TotalAmount.Equal(amountOf(t, "1250.75")) {
		t.Errorf("expected amount 1250.75, got %v", txn.TotalAmount)
	}
	if txn.TransactionDate == nil || txn.TransactionDate.Format("2006-01-02") != "2023-08-15" {
		t.Errorf("expected date 2023-08-15, got %v", txn.TransactionDate)
	}
	if txn.ContactName == nil || *txn.ContactName != "Acme Supplies" {
		t.Errorf("expected contact Acme Supplies, got %v", txn.ContactName)
	}
	if txn.Description == nil || *txn.Description != "Office equipment" {
		t.Errorf("expected description, got %v", txn.Description)
	}
	if txn.RawData == nil {
		t.Error("expected raw payload to be retained")
	}
}

func TestNormalize_PascalCaseKeys(t *testing.T) {
	// Some source endpoints return PascalCase keys
	record := map[string]interface{}{
		"TransactionID": "txn-002",
		"Total":         99.50,
		"Date":          "2023-11-01T10:30:00",
		"Contact":       map[string]interface{}{"Name": "Widgets Pty Ltd"},
	}

	txn, err := Normalize("t1", fy2324(), record)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if txn.TransactionID != "txn-002" {
		t.Errorf("expected txn-002, got %s", txn.TransactionID)
	}
	if txn.TotalAmount == nil {
		t.Fatal("expected amount extracted from Total")
	}
	if txn.ContactName == nil || *txn.ContactName != "Widgets Pty Ltd" {
		t.Errorf("expected contact name, got %v", txn.ContactName)
	}
}

func TestNormalize_MissingTypedFieldsNotBackfilled(t *testing.T) {
	// Typed extraction must not dig into line items; that is the readers' job
	record := map[string]interface{}{
		"transactionID": "txn-003",
		"lineItems": []interface{}{
			map[string]interface{}{"description": "Consulting", "lineAmount": 500.0},
		},
	}

	txn, err := Normalize("t1", fy2324(), record)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if txn.TotalAmount != nil {
		t.Errorf("expected no typed amount, got %v", txn.TotalAmount)
	}
	if txn.Description != nil {
		t.Errorf("expected no typed description, got %v", txn.Description)
	}
	if txn.RawData == nil {
		t.Fatal("expected raw payload to be retained")
	}
}

func TestNormalize_MissingTransactionID(t *testing.T) {
	record := map[string]interface{}{
		"total": 10.0,
	}

	_, err := Normalize("t1", fy2324(), record)
	if err == nil {
		t.Fatal("expected error for record without transaction id, got nil")
	}
}

func TestFallbackAmount(t *testing.T) {
	tests := []struct {
		name     string
		raw      models.JSONB
		expected string // empty means nil expected
	}{
		{
			name:     "numeric total",
			raw:      models.JSONB{"total": 42.10},
			expected: "42.1",
		},
		{
			name:     "string total",
			raw:      models.JSONB{"total": "19.99"},
			expected: "19.99",
		},
		{
			name: "line item sum",
			raw: models.JSONB{
				"lineItems": []interface{}{
					map[string]interface{}{"lineAmount": 10.0},
					map[string]interface{}{"lineAmount": 5.5},
				},
			},
			expected: "15.5",
		},
		{
			name:     "nothing usable",
			raw:      models.JSONB{"reference": "INV-1"},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FallbackAmount(tt.raw)
			if tt.expected == "" {
				if got != nil {
					t.Errorf("expected nil, got %v", got)
				}
				return
			}
			if got == nil || !got.Equal(amountOf(t, tt.expected)) {
				t.Errorf("expected %s, got %v", tt.expected, got)
			}
		})
	}
}

func TestFallbackDescription(t *testing.T) {
	tests := []struct {
		name     string
		raw      models.JSONB
		expected string
	}{
		{
			name:     "top level description",
			raw:      models.JSONB{"description": "Rent"},
			expected: "Rent",
		},
		{
			name:     "reference",
			raw:      models.JSONB{"reference": "INV-042"},
			expected: "INV-042",
		},
		{
			name: "line item description",
			raw: models.JSONB{
				"lineItems": []interface{}{
					map[string]interface{}{"description": "Consulting services"},
				},
			},
			expected: "Consulting services",
		},
		{
			name:     "nothing usable",
			raw:      models.JSONB{"total": 1.0},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FallbackDescription(tt.raw)
			if tt.expected == "" {
				if got != nil {
					t.Errorf("expected nil, got %v", *got)
				}
				return
			}
			if got == nil || *got != tt.expected {
				t.Errorf("expected %s, got %v", tt.expected, got)
			}
		})
	}
}

func TestFallbackContact(t *testing.T) {
	nested := models.JSONB{"contact": map[string]interface{}{"name": "Acme"}}
	if got := FallbackContact(nested); got == nil || *got != "Acme" {
		t.Errorf("expected Acme, got %v", got)
	}

	flat := models.JSONB{"contactName": "Widgets"}
	if got := FallbackContact(flat); got == nil || *got != "Widgets" {
		t.Errorf("expected Widgets, got %v", got)
	}

	if got := FallbackContact(models.JSONB{}); got != nil {
		t.Errorf("expected nil, got %v", *got)
	}
}
