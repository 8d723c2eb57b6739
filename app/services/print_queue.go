package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"OrderDesk/app/models"
)

// DefaultPrintDelay gives the printer time to drain its buffer between tickets
const DefaultPrintDelay = 2 * time.Second

// ErrQueueClosed is returned by Enqueue after Close
var ErrQueueClosed = errors.New("print queue closed")

// PrintJob is one ticket to print
type PrintJob struct {
	ID        string
	Target    models.PrinterTarget
	Execute   func(ctx context.Context) error
	OnSuccess func()
	OnError   func(error)
}

// PrintQueue prints jobs one at a time in arrival order.
//
// A failed job is logged and reported to its OnError callback; it is never
// retried and never stops the queue. After every job the queue waits a fixed
// delay before starting the next one.
type PrintQueue struct {
	mu         sync.Mutex
	jobs       []*PrintJob
	processing bool
	closed     bool
	idle       chan struct{} // closed while the queue is idle
	stopChan   chan struct{}
	wg         sync.WaitGroup
	delay      time.Duration
	logger     *LoggerService
}

// NewPrintQueue creates an idle queue. A zero delay disables the pause.
func NewPrintQueue(delay time.Duration, logger *LoggerService) *PrintQueue {
	idle := make(chan struct{})
	close(idle)
	return &PrintQueue{
		idle:     idle,
		stopChan: make(chan struct{}),
		delay:    delay,
		logger:   logger,
	}
}

// Enqueue appends a job and starts the worker if the queue was idle
func (q *PrintQueue) Enqueue(job *PrintJob) error {
	if job == nil || job.Execute == nil {
		return fmt.Errorf("print job has nothing to execute")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	q.jobs = append(q.jobs, job)

	if !q.processing {
		q.processing = true
		q.idle = make(chan struct{})
		q.wg.Add(1)
		go q.run()
	}
	return nil
}

// Len returns the number of jobs waiting, excluding the one being printed
func (q *PrintQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Processing reports whether the worker is printing or cooling down
func (q *PrintQueue) Processing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.processing
}

// WaitIdle blocks until the queue is empty and the worker has stopped
func (q *PrintQueue) WaitIdle(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs, lets the current job finish and drops the rest
func (q *PrintQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	dropped := len(q.jobs)
	q.jobs = nil
	close(q.stopChan)
	q.mu.Unlock()

	if dropped > 0 {
		q.logger.LogWarning("PrintQueue: closed with pending jobs", fmt.Sprintf("dropped=%d", dropped))
	}
	q.wg.Wait()
}

// run drains the queue, one job per delay period
func (q *PrintQueue) run() {
	defer q.wg.Done()
	defer q.logger.RecoverPanic()

	for {
		job := q.next()
		if job == nil {
			return
		}

		q.execute(job)

		if q.delay > 0 {
			select {
			case <-time.After(q.delay):
			case <-q.stopChan:
			}
		}
	}
}

// next pops the head job, or marks the queue idle when nothing is left
func (q *PrintQueue) next() *PrintJob {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 || q.closed {
		q.processing = false
		close(q.idle)
		return nil
	}
	job := q.jobs[0]
	q.jobs[0] = nil
	q.jobs = q.jobs[1:]
	return job
}

func (q *PrintQueue) execute(job *PrintJob) {
	err := safeExecute(job)
	if err != nil {
		q.logger.LogError("PrintQueue: job failed", err, fmt.Sprintf("job=%s target=%s", job.ID, job.Target))
		if job.OnError != nil {
			job.OnError(err)
		}
		return
	}
	q.logger.LogInfo("PrintQueue: job printed", fmt.Sprintf("job=%s target=%s", job.ID, job.Target))
	if job.OnSuccess != nil {
		job.OnSuccess()
	}
}

// safeExecute turns a panicking job into an error
func safeExecute(job *PrintJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("print job panicked: %v", r)
		}
	}()
	return job.Execute(context.Background())
}
