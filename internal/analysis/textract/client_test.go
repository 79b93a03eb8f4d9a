package textract

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"

	"invoice-backend/internal/analysis"
)

type pagedExpenseAPI struct {
	pages  []*textract.GetExpenseAnalysisOutput
	inputs []*textract.GetExpenseAnalysisInput
}

func (f *pagedExpenseAPI) StartExpenseAnalysis(ctx context.Context, in *textract.StartExpenseAnalysisInput, _ ...func(*textract.Options)) (*textract.StartExpenseAnalysisOutput, error) {
	return nil, errors.New("not used")
}

func (f *pagedExpenseAPI) GetExpenseAnalysis(ctx context.Context, in *textract.GetExpenseAnalysisInput, _ ...func(*textract.Options)) (*textract.GetExpenseAnalysisOutput, error) {
	f.inputs = append(f.inputs, in)
	if len(f.inputs) > len(f.pages) {
		return nil, errors.New("requested more pages than the job has")
	}
	return f.pages[len(f.inputs)-1], nil
}

func lineItemPage(status types.JobStatus, nextToken string, summary []types.ExpenseField, items ...string) *textract.GetExpenseAnalysisOutput {
	fields := make([]types.LineItemFields, len(items))
	for i, item := range items {
		fields[i] = types.LineItemFields{
			LineItemExpenseFields: []types.ExpenseField{
				summaryField("ITEM", item, 94),
				summaryField("PRICE", "$10.00", 94),
			},
		}
	}
	out := &textract.GetExpenseAnalysisOutput{
		JobStatus: status,
		ExpenseDocuments: []types.ExpenseDocument{{
			SummaryFields:  summary,
			LineItemGroups: []types.LineItemGroup{{LineItems: fields}},
		}},
	}
	if nextToken != "" {
		out.NextToken = aws.String(nextToken)
	}
	return out
}

func TestGetJobStatusFollowsPagination(t *testing.T) {
	api := &pagedExpenseAPI{pages: []*textract.GetExpenseAnalysisOutput{
		lineItemPage(types.JobStatusSucceeded, "page-2", []types.ExpenseField{
			summaryField("VENDOR_NAME", "Dairy Co", 95),
			summaryField("TOTAL", "$20.00", 93),
		}, "Milk"),
		lineItemPage(types.JobStatusSucceeded, "", nil, "Butter"),
	}}
	c := &Client{api: api, bucket: "invoices"}

	res, err := c.GetJobStatus(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("GetJobStatus: %v", err)
	}
	if res.Status != analysis.JobStatusSucceeded {
		t.Fatalf("status = %s, want %s", res.Status, analysis.JobStatusSucceeded)
	}

	if len(api.inputs) != 2 {
		t.Fatalf("made %d GetExpenseAnalysis calls, want 2", len(api.inputs))
	}
	if tok := api.inputs[1].NextToken; tok == nil || *tok != "page-2" {
		t.Fatalf("second call NextToken = %v, want page-2", tok)
	}

	if got := len(res.Invoice.LineItems); got != 2 {
		t.Fatalf("line items = %d, later pages must not be dropped", got)
	}
	if res.Invoice.LineItems[1].Description != "Butter" {
		t.Fatalf("second line = %q, want Butter from the second page", res.Invoice.LineItems[1].Description)
	}
	if !bytes.Contains(res.Raw, []byte("Butter")) {
		t.Fatal("raw snapshot must cover every page")
	}
}

func TestGetJobStatusSinglePage(t *testing.T) {
	api := &pagedExpenseAPI{pages: []*textract.GetExpenseAnalysisOutput{
		lineItemPage(types.JobStatusSucceeded, "", []types.ExpenseField{
			summaryField("TOTAL", "$10.00", 93),
		}, "Milk"),
	}}
	c := &Client{api: api, bucket: "invoices"}

	res, err := c.GetJobStatus(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("GetJobStatus: %v", err)
	}
	if len(api.inputs) != 1 {
		t.Fatalf("made %d calls, want 1 when there is no next token", len(api.inputs))
	}
	if len(res.Invoice.LineItems) != 1 {
		t.Fatalf("line items = %d, want 1", len(res.Invoice.LineItems))
	}
}

func TestGetJobStatusRunningDoesNotFetchResults(t *testing.T) {
	api := &pagedExpenseAPI{pages: []*textract.GetExpenseAnalysisOutput{
		{JobStatus: types.JobStatusInProgress, NextToken: aws.String("ignored")},
	}}
	c := &Client{api: api, bucket: "invoices"}

	res, err := c.GetJobStatus(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("GetJobStatus: %v", err)
	}
	if res.Status != analysis.JobStatusRunning {
		t.Fatalf("status = %s, want %s", res.Status, analysis.JobStatusRunning)
	}
	if len(api.inputs) != 1 {
		t.Fatalf("made %d calls, an unfinished job needs no result pages", len(api.inputs))
	}
}
