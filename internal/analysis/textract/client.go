package textract

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"

	"invoice-backend/internal/analysis"
)

// expenseAPI is the slice of the Textract API this client uses.
type expenseAPI interface {
	StartExpenseAnalysis(ctx context.Context, in *textract.StartExpenseAnalysisInput, optFns ...func(*textract.Options)) (*textract.StartExpenseAnalysisOutput, error)
	GetExpenseAnalysis(ctx context.Context, in *textract.GetExpenseAnalysisInput, optFns ...func(*textract.Options)) (*textract.GetExpenseAnalysisOutput, error)
}

var _ expenseAPI = (*textract.Client)(nil)

// Client implements the analysis gateway with Amazon Textract expense analysis.
type Client struct {
	api    expenseAPI
	bucket string
	prefix string
}

// New constructs a Textract-backed analysis client reading objects from the
// given S3 bucket.
func New(ctx context.Context, region, bucket, prefix string) (*Client, error) {
	if bucket == "" {
		return nil, fmt.Errorf("textract: s3 bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &Client{
		api:    textract.NewFromConfig(cfg),
		bucket: bucket,
		prefix: strings.Trim(strings.TrimSpace(prefix), "/"),
	}, nil
}

// StartJob kicks off an asynchronous expense analysis of the stored object.
func (c *Client) StartJob(ctx context.Context, storageKey string) (string, error) {
	out, err := c.api.StartExpenseAnalysis(ctx, &textract.StartExpenseAnalysisInput{
		DocumentLocation: &types.DocumentLocation{
			S3Object: &types.S3Object{
				Bucket: aws.String(c.bucket),
				Name:   aws.String(c.objectKey(storageKey)),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("textract start expense analysis key=%s: %w", storageKey, err)
	}
	if out.JobId == nil || *out.JobId == "" {
		return "", fmt.Errorf("textract start expense analysis key=%s: empty job id", storageKey)
	}
	return *out.JobId, nil
}

// GetJobStatus fetches and decodes the current state of a job.
func (c *Client) GetJobStatus(ctx context.Context, jobHandle string) (analysis.JobResult, error) {
	out, err := c.api.GetExpenseAnalysis(ctx, &textract.GetExpenseAnalysisInput{
		JobId: aws.String(jobHandle),
	})
	if err != nil {
		return analysis.JobResult{}, fmt.Errorf("textract get expense analysis job=%s: %w", jobHandle, err)
	}

	status := decodeStatus(out.JobStatus)
	result := analysis.JobResult{Status: status}
	switch status {
	case analysis.JobStatusSucceeded:
		docs, err := c.collectExpenseDocuments(ctx, jobHandle, out)
		if err != nil {
			return analysis.JobResult{}, err
		}
		invoice, raw, err := parseExpenseDocuments(docs)
		if err != nil {
			return analysis.JobResult{}, fmt.Errorf("textract parse expense job=%s: %w", jobHandle, err)
		}
		result.Invoice = invoice
		result.Raw = raw
	case analysis.JobStatusFailed:
		result.FailureReason = aws.ToString(out.StatusMessage)
	}
	return result, nil
}

// collectExpenseDocuments follows NextToken until the full result set is in
// hand. Multi-page jobs split their expense documents across pages; parsing a
// partial set would drop line items without any signal.
func (c *Client) collectExpenseDocuments(ctx context.Context, jobHandle string, first *textract.GetExpenseAnalysisOutput) ([]types.ExpenseDocument, error) {
	docs := first.ExpenseDocuments
	next := first.NextToken
	for next != nil {
		page, err := c.api.GetExpenseAnalysis(ctx, &textract.GetExpenseAnalysisInput{
			JobId:     aws.String(jobHandle),
			NextToken: next,
		})
		if err != nil {
			return nil, fmt.Errorf("textract get expense analysis page job=%s: %w", jobHandle, err)
		}
		docs = append(docs, page.ExpenseDocuments...)
		next = page.NextToken
	}
	return docs, nil
}

func (c *Client) objectKey(storageKey string) string {
	key := strings.TrimLeft(storageKey, "/")
	if c.prefix == "" {
		return key
	}
	return c.prefix + "/" + key
}

// decodeStatus maps Textract job states to the closed status enum. Anything
// unrecognized decodes to Unknown so a provider API change cannot be mistaken
// for a terminal outcome.
func decodeStatus(raw types.JobStatus) analysis.JobStatus {
	switch raw {
	case types.JobStatusInProgress:
		return analysis.JobStatusRunning
	case types.JobStatusSucceeded, types.JobStatusPartialSuccess:
		return analysis.JobStatusSucceeded
	case types.JobStatusFailed:
		return analysis.JobStatusFailed
	default:
		return analysis.JobStatusUnknown
	}
}

var _ analysis.Client = (*Client)(nil)
