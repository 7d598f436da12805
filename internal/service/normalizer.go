package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/taxlens/ledgersync-worker/internal/models"
)

// Date layouts seen in accounting API payloads
var transactionDateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// Normalize maps one external transaction record into cache-schema fields.
// Typed columns are populated only when the source exposes them as typed
// fields; nothing is back-filled from the raw payload here. The full payload
// is always retained in RawData, and callers needing a best-effort value for
// a missing typed column use the Fallback* extractors below.
func Normalize(tenantID string, fy FinancialYear, record map[string]interface{}) (models.CachedTransaction, error) {
	id := stringField(record, "transactionID", "bankTransactionID", "id")
	if id == "" {
		return models.CachedTransaction{}, fmt.Errorf("record has no transaction id")
	}

	txn := models.CachedTransaction{
		TenantID:      tenantID,
		TransactionID: id,
		FinancialYear: fy.Label,
		RawData:       models.JSONB(record),
	}

	if amount, ok := numberField(record, "total"); ok {
		d := decimal.NewFromFloat(amount)
		txn.TotalAmount = &d
	}

	if dateStr := stringField(record, "date", "transactionDate"); dateStr != "" {
		if parsed, err := parseTransactionDate(dateStr); err == nil {
			txn.TransactionDate = &parsed
		}
	}

	if contact, ok := mapField(record, "contact"); ok {
		if name := stringField(contact, "name"); name != "" {
			txn.ContactName = &name
		}
	}

	if desc := stringField(record, "description"); desc != "" {
		txn.Description = &desc
	}

	return txn, nil
}

// FallbackAmount derives a best-effort amount from the raw payload: the raw
// total (numeric or string), or the sum of line-item amounts.
func FallbackAmount(raw models.JSONB) *decimal.Decimal {
	record := map[string]interface{}(raw)

	if amount, ok := numberField(record, "total", "amount", "subTotal"); ok {
		d := decimal.NewFromFloat(amount)
		return &d
	}
	if s := stringField(record, "total", "amount"); s != "" {
		if d, err := decimal.NewFromString(s); err == nil {
			return &d
		}
	}

	items, ok := sliceField(record, "lineItems")
	if !ok {
		return nil
	}
	sum := decimal.Zero
	found := false
	for _, item := range items {
		line, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if amount, ok := numberField(line, "lineAmount", "amount"); ok {
			sum = sum.Add(decimal.NewFromFloat(amount))
			found = true
		}
	}
	if !found {
		return nil
	}
	return &sum
}

// FallbackContact derives a best-effort contact name from the raw payload
func FallbackContact(raw models.JSONB) *string {
	record := map[string]interface{}(raw)

	if contact, ok := mapField(record, "contact"); ok {
		if name := stringField(contact, "name"); name != "" {
			return &name
		}
	}
	if name := stringField(record, "contactName"); name != "" {
		return &name
	}
	return nil
}

// FallbackDescription derives a best-effort description from the raw payload:
// the record description, its reference, or the first line-item description.
func FallbackDescription(raw models.JSONB) *string {
	record := map[string]interface{}(raw)

	if desc := stringField(record, "description", "reference", "narration"); desc != "" {
		return &desc
	}

	items, ok := sliceField(record, "lineItems")
	if !ok {
		return nil
	}
	for _, item := range items {
		line, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if desc := stringField(line, "description"); desc != "" {
			return &desc
		}
	}
	return nil
}

func parseTransactionDate(s string) (time.Time, error) {
	for _, layout := range transactionDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date: %s", s)
}

// Payload key casing varies by source endpoint ("Total" vs "total"), so all
// lookups are case-insensitive.
func lookupField(record map[string]interface{}, keys ...string) (interface{}, bool) {
	for _, key := range keys {
		if v, ok := record[key]; ok {
			return v, true
		}
	}
	for k, v := range record {
		for _, key := range keys {
			if strings.EqualFold(k, key) {
				return v, true
			}
		}
	}
	return nil, false
}

func stringField(record map[string]interface{}, keys ...string) string {
	if v, ok := lookupField(record, keys...); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func numberField(record map[string]interface{}, keys ...string) (float64, bool) {
	if v, ok := lookupField(record, keys...); ok {
		if f, ok := v.(float64); ok {
			return f, true
		}
	}
	return 0, false
}

func mapField(record map[string]interface{}, keys ...string) (map[string]interface{}, bool) {
	if v, ok := lookupField(record, keys...); ok {
		if m, ok := v.(map[string]interface{}); ok {
			return m, true
		}
	}
	return nil, false
}

func sliceField(record map[string]interface{}, keys ...string) ([]interface{}, bool) {
	if v, ok := lookupField(record, keys...); ok {
		if s, ok := v.([]interface{}); ok {
			return s, true
		}
	}
	return nil, false
}
