package extraction

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Upsert replaces the extracted document for a record in a transaction. The
// existing row's ID is preserved; line items are rewritten wholesale.
func (r *PGRepo) Upsert(ctx context.Context, doc ExtractedDocument) (ExtractedDocument, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return ExtractedDocument{}, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var existingID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM extracted_documents WHERE document_id = $1`, doc.DocumentID,
	).Scan(&existingID)
	switch {
	case err == nil:
		doc.ID = existingID
	case errors.Is(err, sql.ErrNoRows):
		if doc.ID == "" {
			doc.ID = uuid.NewString()
		}
	default:
		return ExtractedDocument{}, err
	}

	const upsert = `
INSERT INTO extracted_documents (
    id, document_id, supplier_id, supplier_name, invoice_number, invoice_date,
    subtotal, tax, total, currency_code, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
ON CONFLICT (document_id) DO UPDATE SET
    supplier_id = EXCLUDED.supplier_id,
    supplier_name = EXCLUDED.supplier_name,
    invoice_number = EXCLUDED.invoice_number,
    invoice_date = EXCLUDED.invoice_date,
    subtotal = EXCLUDED.subtotal,
    tax = EXCLUDED.tax,
    total = EXCLUDED.total,
    currency_code = EXCLUDED.currency_code,
    updated_at = EXCLUDED.updated_at`

	var supplierID sql.NullString
	if doc.SupplierID != "" {
		supplierID = sql.NullString{String: doc.SupplierID, Valid: true}
	}
	if _, err := tx.ExecContext(ctx, upsert,
		doc.ID, doc.DocumentID, supplierID, doc.SupplierName, doc.InvoiceNumber,
		doc.InvoiceDate, doc.Subtotal, doc.Tax, doc.Total, doc.CurrencyCode, now,
	); err != nil {
		return ExtractedDocument{}, err
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM line_items WHERE extracted_document_id = $1`, doc.ID,
	); err != nil {
		return ExtractedDocument{}, err
	}

	const insertItem = `
INSERT INTO line_items (
    id, extracted_document_id, description, quantity, unit_price, line_total,
    category_code, position
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	items := make([]LineItem, len(doc.LineItems))
	for i, item := range doc.LineItems {
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		item.ExtractedDocumentID = doc.ID
		item.Position = i
		if _, err := tx.ExecContext(ctx, insertItem,
			item.ID, doc.ID, item.Description, item.Quantity, item.UnitPrice,
			item.LineTotal, item.CategoryCode, item.Position,
		); err != nil {
			return ExtractedDocument{}, err
		}
		items[i] = item
	}
	doc.LineItems = items
	doc.UpdatedAt = now

	if err := tx.Commit(); err != nil {
		return ExtractedDocument{}, err
	}
	return doc, nil
}

// GetByDocument returns the extracted document and its line items.
func (r *PGRepo) GetByDocument(ctx context.Context, documentID string) (ExtractedDocument, error) {
	const query = `
SELECT id, document_id, supplier_id, supplier_name, invoice_number, invoice_date, subtotal, tax, total, currency_code, created_at, updated_at
FROM extracted_documents
WHERE document_id = $1
LIMIT 1`

	var doc ExtractedDocument
	var supplierID sql.NullString
	var invoiceDate sql.NullTime
	var subtotal, tax sql.NullFloat64
	err := r.DB.QueryRowContext(ctx, query, documentID).Scan(
		&doc.ID,
		&doc.DocumentID,
		&supplierID,
		&doc.SupplierName,
		&doc.InvoiceNumber,
		&invoiceDate,
		&subtotal,
		&tax,
		&doc.Total,
		&doc.CurrencyCode,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ExtractedDocument{}, ErrNotFound
		}
		return ExtractedDocument{}, err
	}
	if supplierID.Valid {
		doc.SupplierID = supplierID.String
	}
	if invoiceDate.Valid {
		t := invoiceDate.Time
		doc.InvoiceDate = &t
	}
	if subtotal.Valid {
		v := subtotal.Float64
		doc.Subtotal = &v
	}
	if tax.Valid {
		v := tax.Float64
		doc.Tax = &v
	}

	items, err := r.listItems(ctx, doc.ID)
	if err != nil {
		return ExtractedDocument{}, err
	}
	doc.LineItems = items
	return doc, nil
}

func (r *PGRepo) listItems(ctx context.Context, extractedDocumentID string) ([]LineItem, error) {
	const query = `
SELECT id, extracted_document_id, description, quantity, unit_price, line_total, category_code, position
FROM line_items
WHERE extracted_document_id = $1
ORDER BY position ASC`
	rows, err := r.DB.QueryContext(ctx, query, extractedDocumentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LineItem
	for rows.Next() {
		var item LineItem
		if err := rows.Scan(
			&item.ID,
			&item.ExtractedDocumentID,
			&item.Description,
			&item.Quantity,
			&item.UnitPrice,
			&item.LineTotal,
			&item.CategoryCode,
			&item.Position,
		); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// KeepLineItems deletes every line item except the given ones.
func (r *PGRepo) KeepLineItems(ctx context.Context, extractedDocumentID string, keepIDs []string) error {
	const query = `
DELETE FROM line_items
WHERE extracted_document_id = $1 AND NOT (id = ANY($2::uuid[]))`
	_, err := r.DB.ExecContext(ctx, query, extractedDocumentID, uuidArray(keepIDs))
	return err
}

// SetSupplier stamps the resolved supplier on the extracted document.
func (r *PGRepo) SetSupplier(ctx context.Context, extractedDocumentID, supplierID, supplierName string) error {
	const query = `
UPDATE extracted_documents
SET supplier_id = $1, supplier_name = $2, updated_at = NOW()
WHERE id = $3`
	var sid sql.NullString
	if supplierID != "" {
		sid = sql.NullString{String: supplierID, Valid: true}
	}
	res, err := r.DB.ExecContext(ctx, query, sid, supplierName, extractedDocumentID)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveResult stores a raw provider payload snapshot. One row is kept per
// (document, job handle); replaying the same completion is a no-op.
func (r *PGRepo) SaveResult(ctx context.Context, res AnalysisResult) error {
	const query = `
INSERT INTO analysis_results (id, document_id, job_handle, raw, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (document_id, job_handle) WHERE job_handle <> '' DO NOTHING`
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}
	_, err := r.DB.ExecContext(ctx, query, res.ID, res.DocumentID, res.JobHandle, []byte(res.Raw), res.CreatedAt)
	return err
}

// ListResults returns payload snapshots for a document, newest first.
func (r *PGRepo) ListResults(ctx context.Context, documentID string, limit int) ([]AnalysisResult, error) {
	if limit <= 0 {
		limit = 10
	}
	const query = `
SELECT id, document_id, job_handle, raw, created_at
FROM analysis_results
WHERE document_id = $1
ORDER BY created_at DESC
LIMIT $2`
	rows, err := r.DB.QueryContext(ctx, query, documentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AnalysisResult
	for rows.Next() {
		var res AnalysisResult
		var raw []byte
		if err := rows.Scan(&res.ID, &res.DocumentID, &res.JobHandle, &raw, &res.CreatedAt); err != nil {
			return nil, err
		}
		res.Raw = raw
		out = append(out, res)
	}
	return out, rows.Err()
}

// DeleteByDocument removes the extracted document and payload snapshots. The
// line items fall with the extracted document via ON DELETE CASCADE.
func (r *PGRepo) DeleteByDocument(ctx context.Context, documentID string) error {
	if _, err := r.DB.ExecContext(ctx,
		`DELETE FROM extracted_documents WHERE document_id = $1`, documentID,
	); err != nil {
		return err
	}
	if _, err := r.DB.ExecContext(ctx,
		`DELETE FROM analysis_results WHERE document_id = $1`, documentID,
	); err != nil {
		return err
	}
	return nil
}

// uuidArray renders ids as a Postgres array literal for use with ANY($n).
func uuidArray(ids []string) string {
	out := "{"
	for i, id := range ids {
		if i > 0 {
			out += ","
		}
		out += id
	}
	return out + "}"
}

var _ Repo = (*PGRepo)(nil)
