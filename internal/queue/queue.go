package queue

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	ErrQueueEmpty  = errors.New("queue is empty")
	ErrQueueClosed = errors.New("queue is closed")
)

// Task is one seller page to visit during enrichment. Row points back into
// the table being enriched.
type Task struct {
	ID        string
	Row       int
	URL       string
	Merchant  string
	Priority  int
	Retries   int
	LastError string
	CreatedAt time.Time
}

type Queue interface {
	Push(task *Task) error
	Pop(ctx context.Context) (*Task, error)
	Size() int
	Close() error
}

// InMemoryQueue is a priority queue; tasks with equal priority keep FIFO
// order. Pop never blocks: an empty queue returns ErrQueueEmpty, an empty
// closed queue ErrQueueClosed.
type InMemoryQueue struct {
	tasks  []*Task
	mu     sync.Mutex
	closed bool
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		tasks: make([]*Task, 0),
	}
}

func (q *InMemoryQueue) Push(task *Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}

	q.tasks = append(q.tasks, task)
	sort.SliceStable(q.tasks, func(i, j int) bool {
		return q.tasks[i].Priority > q.tasks[j].Priority
	})

	return nil
}

func (q *InMemoryQueue) Pop(ctx context.Context) (*Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		if q.closed {
			return nil, ErrQueueClosed
		}
		return nil, ErrQueueEmpty
	}

	task := q.tasks[0]
	q.tasks = q.tasks[1:]

	return task, nil
}

func (q *InMemoryQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Close stops accepting new tasks; queued tasks can still be popped.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	return nil
}

// Retry requeues a failed task with lowered priority until maxRetries is
// reached. It reports whether the task was requeued.
func Retry(q Queue, task *Task, cause error, maxRetries int) (bool, error) {
	task.Retries++
	if cause != nil {
		task.LastError = cause.Error()
	}
	if task.Retries > maxRetries {
		return false, nil
	}
	task.Priority--
	if err := q.Push(task); err != nil {
		return false, err
	}
	return true, nil
}
