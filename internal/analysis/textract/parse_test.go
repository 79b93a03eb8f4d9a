package textract

import (
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"

	"invoice-backend/internal/analysis"
)

func TestDecodeStatus(t *testing.T) {
	cases := []struct {
		raw  types.JobStatus
		want analysis.JobStatus
	}{
		{types.JobStatusInProgress, analysis.JobStatusRunning},
		{types.JobStatusSucceeded, analysis.JobStatusSucceeded},
		{types.JobStatusPartialSuccess, analysis.JobStatusSucceeded},
		{types.JobStatusFailed, analysis.JobStatusFailed},
		{types.JobStatus("SOMETHING_NEW"), analysis.JobStatusUnknown},
		{types.JobStatus(""), analysis.JobStatusUnknown},
	}
	for _, tc := range cases {
		if got := decodeStatus(tc.raw); got != tc.want {
			t.Errorf("decodeStatus(%q) = %s, want %s", tc.raw, got, tc.want)
		}
	}
}

func summaryField(fieldType, value string, confidence float32) types.ExpenseField {
	return types.ExpenseField{
		Type: &types.ExpenseType{Text: aws.String(fieldType)},
		ValueDetection: &types.ExpenseDetection{
			Text:       aws.String(value),
			Confidence: aws.Float32(confidence),
		},
	}
}

func TestParseExpenseDocuments(t *testing.T) {
	docs := []types.ExpenseDocument{{
		SummaryFields: []types.ExpenseField{
			summaryField("VENDOR_NAME", "Dairy Co", 95),
			summaryField("INVOICE_RECEIPT_ID", "INV-1001", 90),
			summaryField("INVOICE_RECEIPT_DATE", "2026-08-01", 90),
			summaryField("SUBTOTAL", "$90.00", 92),
			summaryField("TAX", "$10.00", 92),
			summaryField("TOTAL", "$100.00", 93),
		},
		LineItemGroups: []types.LineItemGroup{{
			LineItems: []types.LineItemFields{{
				LineItemExpenseFields: []types.ExpenseField{
					summaryField("ITEM", "Milk", 94),
					summaryField("QUANTITY", "2", 94),
					summaryField("UNIT_PRICE", "$5.00", 94),
				},
			}},
		}},
	}}

	invoice, raw, err := parseExpenseDocuments(docs)
	if err != nil {
		t.Fatalf("parseExpenseDocuments: %v", err)
	}
	if len(raw) == 0 {
		t.Fatal("expected raw payload snapshot")
	}
	if invoice.SupplierName != "Dairy Co" || invoice.InvoiceNumber != "INV-1001" {
		t.Fatalf("header = %q/%q", invoice.SupplierName, invoice.InvoiceNumber)
	}
	if invoice.Total != 100.00 {
		t.Fatalf("total = %v, want 100.00", invoice.Total)
	}
	if invoice.Subtotal == nil || *invoice.Subtotal != 90 {
		t.Fatalf("subtotal = %v, want 90", invoice.Subtotal)
	}
	if invoice.CurrencyCode != "USD" {
		t.Fatalf("currency = %q, want USD", invoice.CurrencyCode)
	}
	want := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	if invoice.InvoiceDate == nil || !invoice.InvoiceDate.Equal(want) {
		t.Fatalf("date = %v, want %v", invoice.InvoiceDate, want)
	}
	if invoice.Confidence <= 0 || invoice.Confidence > 1 {
		t.Fatalf("confidence = %v, want normalized to (0,1]", invoice.Confidence)
	}

	if len(invoice.LineItems) != 1 {
		t.Fatalf("line items = %d, want 1", len(invoice.LineItems))
	}
	line := invoice.LineItems[0]
	if line.Description != "Milk" || line.Quantity != 2 || line.UnitPrice != 5 {
		t.Fatalf("line = %+v", line)
	}
	if line.LineTotal != 10 {
		t.Fatalf("line total = %v, want unit price times quantity fallback", line.LineTotal)
	}
}

func TestParseExpenseDocumentsEmpty(t *testing.T) {
	if _, _, err := parseExpenseDocuments(nil); err == nil {
		t.Fatal("expected error for empty response")
	}
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		raw  string
		want float64
		ok   bool
	}{
		{"$1,234.56", 1234.56, true},
		{"€99.00", 99, true},
		{"42", 42, true},
		{"n/a", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, ok := parseAmount(tc.raw)
		if ok != tc.ok || got != tc.want {
			t.Errorf("parseAmount(%q) = (%v, %v), want (%v, %v)", tc.raw, got, ok, tc.want, tc.ok)
		}
	}
}
