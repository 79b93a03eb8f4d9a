package textract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"

	"invoice-backend/internal/analysis"
)

var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"02/01/2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
}

// parseExpenseDocuments flattens Textract expense output into an invoice
// payload. The first expense document carries the header fields; line item
// groups from all documents are concatenated.
func parseExpenseDocuments(docs []types.ExpenseDocument) (*analysis.Invoice, json.RawMessage, error) {
	if len(docs) == 0 {
		return nil, nil, fmt.Errorf("no expense documents in response")
	}

	raw, err := json.Marshal(docs)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal raw payload: %w", err)
	}

	invoice := &analysis.Invoice{}
	var confidenceSum float64
	var confidenceCount int

	for _, field := range docs[0].SummaryFields {
		fieldType := expenseText(field.Type)
		value := detectionText(field.ValueDetection)
		if value == "" {
			continue
		}
		if conf := detectionConfidence(field.ValueDetection); conf > 0 {
			confidenceSum += conf
			confidenceCount++
		}

		switch fieldType {
		case "VENDOR_NAME":
			invoice.SupplierName = value
		case "INVOICE_RECEIPT_ID":
			invoice.InvoiceNumber = value
		case "INVOICE_RECEIPT_DATE":
			if ts, ok := parseDate(value); ok {
				invoice.InvoiceDate = &ts
			}
		case "SUBTOTAL":
			if amount, ok := parseAmount(value); ok {
				invoice.Subtotal = &amount
			}
		case "TAX":
			if amount, ok := parseAmount(value); ok {
				invoice.Tax = &amount
			}
		case "TOTAL":
			if amount, ok := parseAmount(value); ok {
				invoice.Total = amount
			}
			if invoice.CurrencyCode == "" {
				invoice.CurrencyCode = currencyFromText(value)
			}
		}
	}

	for _, doc := range docs {
		for _, group := range doc.LineItemGroups {
			for _, item := range group.LineItems {
				line := parseLineItem(item)
				if line.Description == "" && line.LineTotal == 0 {
					continue
				}
				if conf := lineConfidence(item); conf > 0 {
					confidenceSum += conf
					confidenceCount++
				}
				invoice.LineItems = append(invoice.LineItems, line)
			}
		}
	}

	if confidenceCount > 0 {
		invoice.Confidence = confidenceSum / float64(confidenceCount) / 100.0
	}
	return invoice, raw, nil
}

func parseLineItem(item types.LineItemFields) analysis.LineItem {
	var line analysis.LineItem
	for _, field := range item.LineItemExpenseFields {
		value := detectionText(field.ValueDetection)
		if value == "" {
			continue
		}
		switch expenseText(field.Type) {
		case "ITEM":
			line.Description = value
		case "QUANTITY":
			if qty, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
				line.Quantity = qty
			}
		case "UNIT_PRICE":
			if amount, ok := parseAmount(value); ok {
				line.UnitPrice = amount
			}
		case "PRICE":
			if amount, ok := parseAmount(value); ok {
				line.LineTotal = amount
			}
		case "PRODUCT_CODE":
			line.CategoryCode = value
		}
	}
	if line.Quantity == 0 {
		line.Quantity = 1
	}
	if line.LineTotal == 0 && line.UnitPrice != 0 {
		line.LineTotal = line.UnitPrice * line.Quantity
	}
	return line
}

func expenseText(t *types.ExpenseType) string {
	if t == nil {
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(aws.ToString(t.Text)))
}

func detectionText(d *types.ExpenseDetection) string {
	if d == nil {
		return ""
	}
	return strings.TrimSpace(aws.ToString(d.Text))
}

func detectionConfidence(d *types.ExpenseDetection) float64 {
	if d == nil || d.Confidence == nil {
		return 0
	}
	return float64(*d.Confidence)
}

func lineConfidence(item types.LineItemFields) float64 {
	var sum float64
	var count int
	for _, field := range item.LineItemExpenseFields {
		if conf := detectionConfidence(field.ValueDetection); conf > 0 {
			sum += conf
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

func parseAmount(raw string) (float64, bool) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimLeft(cleaned, "$€£ ")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return 0, false
	}
	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return amount, true
}

func parseDate(raw string) (time.Time, bool) {
	cleaned := strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, cleaned); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func currencyFromText(raw string) string {
	switch {
	case strings.Contains(raw, "$"):
		return "USD"
	case strings.Contains(raw, "€"):
		return "EUR"
	case strings.Contains(raw, "£"):
		return "GBP"
	default:
		return ""
	}
}
