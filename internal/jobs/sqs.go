package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

const (
	defaultReceiveBatchSize = 5
	maxReceiveBatchSize     = 10
	defaultReceiveWaitSecs  = 20
	deleteTimeout           = 5 * time.Second
)

type sqsAPI interface {
	ReceiveMessage(context.Context, *sqs.ReceiveMessageInput, ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(context.Context, *sqs.DeleteMessageInput, ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// SQSTriggerSource consumes job triggers published by the external
// scheduler. Runs that fail for a transient reason stay on the queue and are
// redelivered after the visibility timeout.
type SQSTriggerSource struct {
	client     sqsAPI
	queueURL   string
	dispatcher *Dispatcher
	logger     *logging.Logger
	batchSize  int
	waitSecs   int
	wg         sync.WaitGroup
}

// NewSQSTriggerSource wraps client for queueURL.
func NewSQSTriggerSource(client sqsAPI, queueURL string, dispatcher *Dispatcher, logger *logging.Logger) *SQSTriggerSource {
	if client == nil {
		panic("jobs: SQS client cannot be nil")
	}
	if queueURL == "" {
		panic("jobs: SQS queueURL cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SQSTriggerSource{
		client:     client,
		queueURL:   queueURL,
		dispatcher: dispatcher,
		logger:     logger,
		batchSize:  defaultReceiveBatchSize,
		waitSecs:   defaultReceiveWaitSecs,
	}
}

func (s *SQSTriggerSource) WithReceiveBatchSize(n int) *SQSTriggerSource {
	if n > 0 {
		if n > maxReceiveBatchSize {
			n = maxReceiveBatchSize
		}
		s.batchSize = n
	}
	return s
}

func (s *SQSTriggerSource) WithReceiveWaitSeconds(secs int) *SQSTriggerSource {
	if secs >= 0 {
		s.waitSecs = secs
	}
	return s
}

// Start launches the consumer until ctx is cancelled.
func (s *SQSTriggerSource) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
}

// Wait blocks until the consumer exits.
func (s *SQSTriggerSource) Wait() {
	s.wg.Wait()
}

func (s *SQSTriggerSource) run(ctx context.Context) {
	defer s.wg.Done()
	s.logger.Debug("job trigger consumer started")

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("job trigger consumer stopping")
			return
		default:
		}

		messages, err := s.receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Error("failed to receive job triggers", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			s.handleMessage(ctx, msg)
		}
	}
}

func (s *SQSTriggerSource) receive(ctx context.Context) ([]queueMessage, error) {
	out, err := s.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(s.queueURL),
		MaxNumberOfMessages: int32(s.batchSize),
		WaitTimeSeconds:     int32(s.waitSecs),
	})
	if err != nil {
		return nil, fmt.Errorf("jobs: failed to receive SQS messages: %w", err)
	}
	messages := make([]queueMessage, 0, len(out.Messages))
	for _, msg := range out.Messages {
		messages = append(messages, queueMessage{
			ID:            aws.ToString(msg.MessageId),
			Body:          aws.ToString(msg.Body),
			ReceiptHandle: aws.ToString(msg.ReceiptHandle),
		})
	}
	return messages, nil
}

// handleMessage deletes the message unless the run failed for a reason a
// retry could fix.
func (s *SQSTriggerSource) handleMessage(ctx context.Context, msg queueMessage) {
	trigger, err := ParseTrigger([]byte(msg.Body))
	if err != nil {
		s.logger.Error("dropping malformed job trigger", "msg_id", msg.ID, "error", err)
		s.deleteMessage(msg.ReceiptHandle)
		return
	}
	trigger.Source = SourceSQS

	if _, err := s.dispatcher.Dispatch(ctx, trigger); err != nil {
		if scheduling.IsKind(err, scheduling.ValidationError) || scheduling.IsKind(err, scheduling.ConfigurationError) {
			s.logger.Error("dropping rejected job trigger", "msg_id", msg.ID, "job", trigger.Job, "error", err)
			s.deleteMessage(msg.ReceiptHandle)
			return
		}
		s.logger.Warn("job run failed; leaving trigger for redelivery", "msg_id", msg.ID, "job", trigger.Job, "error", err)
		return
	}
	s.deleteMessage(msg.ReceiptHandle)
}

func (s *SQSTriggerSource) deleteMessage(receiptHandle string) {
	if receiptHandle == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), deleteTimeout)
	defer cancel()
	_, err := s.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(s.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		s.logger.Error("failed to delete job trigger", "error", err)
	}
}
