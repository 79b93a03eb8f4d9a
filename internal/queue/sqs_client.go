package queue

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// SQSClient sends and receives queue messages via AWS SQS.
type SQSClient struct {
	client   *sqs.Client
	queueURL string
}

// NewSQSClient constructs an SQS-backed queue client for the given queue URL.
func NewSQSClient(ctx context.Context, region, queueURL string) (*SQSClient, error) {
	if queueURL == "" {
		return nil, fmt.Errorf("sqs queue url is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &SQSClient{
		client:   sqs.NewFromConfig(cfg),
		queueURL: queueURL,
	}, nil
}

// Send delivers a message to the configured SQS queue.
func (s *SQSClient) Send(ctx context.Context, msg Message) error {
	payload, err := EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode sqs message: %w", err)
	}

	_, err = s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(payload)),
	})
	if err != nil {
		return fmt.Errorf("sqs send message: %w", err)
	}
	return nil
}

// Received is one message pulled off the queue along with the handle needed
// to delete it after processing.
type Received struct {
	Message       Message
	ReceiptHandle string
}

// Receive long-polls the queue for up to max messages.
func (s *SQSClient) Receive(ctx context.Context, max int32) ([]Received, error) {
	out, err := s.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(s.queueURL),
		MaxNumberOfMessages: max,
		WaitTimeSeconds:     20,
	})
	if err != nil {
		return nil, fmt.Errorf("sqs receive message: %w", err)
	}

	var received []Received
	for _, m := range out.Messages {
		msg, err := DecodeMessage([]byte(aws.ToString(m.Body)))
		if err != nil {
			// Malformed payloads are dropped, not redelivered forever.
			_ = s.Delete(ctx, aws.ToString(m.ReceiptHandle))
			continue
		}
		received = append(received, Received{
			Message:       msg,
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
		})
	}
	return received, nil
}

// Delete removes a processed message from the queue.
func (s *SQSClient) Delete(ctx context.Context, receiptHandle string) error {
	_, err := s.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(s.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("sqs delete message: %w", err)
	}
	return nil
}

var _ Client = (*SQSClient)(nil)
