package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryQueue_PriorityAndFIFO(t *testing.T) {
	q := NewInMemoryQueue()
	ctx := context.Background()

	require.NoError(t, q.Push(&Task{ID: "a", Priority: 0}))
	require.NoError(t, q.Push(&Task{ID: "b", Priority: 1}))
	require.NoError(t, q.Push(&Task{ID: "c", Priority: 0}))
	require.NoError(t, q.Push(&Task{ID: "d", Priority: 1}))
	assert.Equal(t, 4, q.Size())

	var order []string
	for {
		task, err := q.Pop(ctx)
		if errors.Is(err, ErrQueueEmpty) {
			break
		}
		require.NoError(t, err)
		assert.False(t, task.CreatedAt.IsZero())
		order = append(order, task.ID)
	}

	assert.Equal(t, []string{"b", "d", "a", "c"}, order)
}

func TestInMemoryQueue_Close(t *testing.T) {
	q := NewInMemoryQueue()
	ctx := context.Background()

	require.NoError(t, q.Push(&Task{ID: "a"}))
	require.NoError(t, q.Close())

	assert.ErrorIs(t, q.Push(&Task{ID: "b"}), ErrQueueClosed)

	task, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", task.ID)

	_, err = q.Pop(ctx)
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestInMemoryQueue_PopCancelled(t *testing.T) {
	q := NewInMemoryQueue()
	require.NoError(t, q.Push(&Task{ID: "a"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Pop(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, q.Size())
}

func TestRetry(t *testing.T) {
	q := NewInMemoryQueue()
	task := &Task{ID: "seller", Priority: 0}
	cause := errors.New("timeout")

	for i := 1; i <= 2; i++ {
		requeued, err := Retry(q, task, cause, 2)
		require.NoError(t, err)
		assert.True(t, requeued)
		assert.Equal(t, i, task.Retries)
		_, _ = q.Pop(context.Background())
	}

	requeued, err := Retry(q, task, cause, 2)
	require.NoError(t, err)
	assert.False(t, requeued)
	assert.Equal(t, "timeout", task.LastError)
	assert.Equal(t, 0, q.Size())
}
