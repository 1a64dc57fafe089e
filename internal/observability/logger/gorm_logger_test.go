package logger

import "testing"

func TestOperationFromSQL(t *testing.T) {
	cases := map[string]string{
		"SELECT id FROM invoices":                       "SELECT",
		"  update payment_transactions SET status = ?":  "UPDATE",
		"WITH x AS (SELECT 1) DELETE FROM invoice_items": "SELECT",
		"": "UNKNOWN",
	}
	for sql, want := range cases {
		if got := operationFromSQL(sql); got != want {
			t.Fatalf("operationFromSQL(%q) = %q, want %q", sql, got, want)
		}
	}
}
