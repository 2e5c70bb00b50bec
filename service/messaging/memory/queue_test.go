package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axeberg/axebergos/service/messaging"
)

type TestPayload struct {
	ID      string
	Message string
	Count   int
}

func TestQueue(t *testing.T) {
	queue := NewQueue[TestPayload](DefaultConfig())
	ctx := context.Background()
	payload := TestPayload{ID: "test-1", Message: "Hello, world!", Count: 1}

	require.NoError(t, queue.Publish(ctx, &payload))
	assert.Equal(t, 1, queue.Size())

	message, err := queue.Consume(ctx)
	require.NoError(t, err)
	require.NotNil(t, message)
	assert.Equal(t, 0, queue.Size())
	assert.NotEmpty(t, message.ID())
	assert.Equal(t, payload, *message.T())

	assert.NoError(t, message.Ack())
	assert.ErrorIs(t, message.Ack(), messaging.ErrAlreadyProcessed)
	assert.ErrorIs(t, message.Nack(nil), messaging.ErrAlreadyProcessed)
}

func TestQueue_TryPublishConsume(t *testing.T) {
	queue := NewQueue[TestPayload](Config{QueueBuffer: 2})
	assert.Equal(t, 2, queue.Capacity())

	_, err := queue.TryConsume()
	assert.ErrorIs(t, err, messaging.ErrQueueEmpty)

	for i := 0; i < 2; i++ {
		require.NoError(t, queue.TryPublish(&TestPayload{Count: i}))
	}
	assert.ErrorIs(t, queue.TryPublish(&TestPayload{Count: 2}), messaging.ErrQueueFull)

	for i := 0; i < 2; i++ {
		message, err := queue.TryConsume()
		require.NoError(t, err)
		assert.Equal(t, i, message.T().Count)
	}
}

func TestQueueRetries(t *testing.T) {
	testCases := []struct {
		description string
		maxRetries  int
		deadLetter  bool
		expectDLQ   int
	}{
		{description: "retries then dead letter", maxRetries: 2, deadLetter: true, expectDLQ: 1},
		{description: "retries then drop", maxRetries: 2, deadLetter: false, expectDLQ: 0},
		{description: "no retries", maxRetries: 0, deadLetter: true, expectDLQ: 1},
	}

	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			queue := NewQueue[TestPayload](Config{MaxRetries: testCase.maxRetries, DeadLetter: testCase.deadLetter, QueueBuffer: 4})
			require.NoError(t, queue.TryPublish(&TestPayload{ID: "retry-test"}))

			for attempt := 0; attempt <= testCase.maxRetries; attempt++ {
				message, err := queue.TryConsume()
				require.NoError(t, err, "attempt %d", attempt)
				assert.Equal(t, "retry-test", message.T().ID)
				require.NoError(t, message.Nack(fmt.Errorf("attempt %d", attempt)))
			}
			assert.Equal(t, 0, queue.Size())
			assert.Equal(t, testCase.expectDLQ, queue.DLQSize())
			if testCase.expectDLQ > 0 {
				assert.Equal(t, "retry-test", queue.DeadLetters()[0].ID)
			}
		})
	}
}

func TestQueueConcurrency(t *testing.T) {
	queue := NewQueue[TestPayload](DefaultConfig())
	ctx := context.Background()
	concurrency := 10
	messagesPerProducer := 10

	var wg sync.WaitGroup
	wg.Add(concurrency * 2)
	var consumedCount int
	var consumedMu sync.Mutex

	for i := 0; i < concurrency; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < messagesPerProducer; j++ {
				message, err := queue.Consume(ctx)
				if err != nil {
					t.Errorf("Error consuming: %v", err)
					return
				}
				assert.NoError(t, message.Ack())
				consumedMu.Lock()
				consumedCount++
				consumedMu.Unlock()
			}
		}()
	}
	for i := 0; i < concurrency; i++ {
		go func(producerID int) {
			defer wg.Done()
			for j := 0; j < messagesPerProducer; j++ {
				payload := TestPayload{ID: fmt.Sprintf("p%d-m%d", producerID, j), Count: j}
				if err := queue.Publish(ctx, &payload); err != nil {
					t.Errorf("Error publishing: %v", err)
				}
			}
		}(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Test timed out")
	}
	assert.Equal(t, concurrency*messagesPerProducer, consumedCount)
	assert.Equal(t, 0, queue.Size())
}

func TestQueueContextCancellation(t *testing.T) {
	queue := NewQueue[TestPayload](DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	payload := TestPayload{ID: "test"}
	assert.ErrorIs(t, queue.Publish(ctx, &payload), context.Canceled)

	ctxWithTimeout, cancelTimeout := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancelTimeout()
	_, err := queue.Consume(ctxWithTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, queue.Publish(context.Background(), &payload))
	message, err := queue.Consume(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, message)
}
