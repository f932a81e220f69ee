package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSQS struct {
	mu       sync.Mutex
	batches  [][]sqstypes.Message
	deleted  []string
	cancel   context.CancelFunc
	receives int
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receives++
	if len(f.batches) == 0 {
		f.cancel()
		return nil, context.Canceled
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return &sqs.ReceiveMessageOutput{Messages: batch}, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func message(id, body string) sqstypes.Message {
	return sqstypes.Message{MessageId: aws.String(id), Body: aws.String(body), ReceiptHandle: aws.String("rh-" + id)}
}

func TestSQSTriggerSourceConsumes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rem := &fakeReminders{}
	wl := &fakeWaitlist{err: errors.New("db down")}
	ledger := &fakeLedger{}
	client := &fakeSQS{cancel: cancel, batches: [][]sqstypes.Message{{
		message("1", `{"job":"reminders","hours_ahead":24}`),
		message("2", `{"job":"reminders","hours_ahead":5}`),
		message("3", `garbage`),
		message("4", `{"job":"waitlist"}`),
	}}}

	src := NewSQSTriggerSource(client, "https://sqs.local/queue/job-triggers", NewDispatcher(rem, wl, ledger, nil), nil).
		WithReceiveBatchSize(50).
		WithReceiveWaitSeconds(0)
	assert.Equal(t, maxReceiveBatchSize, src.batchSize)

	src.Start(ctx)
	src.Wait()

	assert.Equal(t, []int{24}, rem.hours)
	assert.Equal(t, 1, wl.calls)
	// succeeded, invalid and malformed are deleted; the failed waitlist run stays queued
	assert.ElementsMatch(t, []string{"rh-1", "rh-2", "rh-3"}, client.deleted)
	require.Len(t, ledger.runs, 2)
	for _, run := range ledger.runs {
		assert.Equal(t, SourceSQS, run.Source)
	}
}

func TestNewSQSTriggerSourcePanics(t *testing.T) {
	assert.Panics(t, func() { NewSQSTriggerSource(nil, "url", nil, nil) })
	assert.Panics(t, func() { NewSQSTriggerSource(&fakeSQS{}, "", nil, nil) })
}
