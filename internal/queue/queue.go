package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

var ErrQueueClosed = errors.New("request queue is shut down")

type Job struct {
	Fn   func() error
	Errc chan error
}

// RequestQueueManager runs HTTP handler jobs on a fixed pool of workers.
type RequestQueueManager struct {
	jobs       chan Job
	maxWorkers int
	wg         sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewRequestQueueManager(queueSize int, maxWorkers int) *RequestQueueManager {
	manager := &RequestQueueManager{
		jobs:       make(chan Job, queueSize),
		maxWorkers: maxWorkers,
	}
	manager.startWorkers()
	return manager
}

func (rqm *RequestQueueManager) startWorkers() {
	for i := 0; i < rqm.maxWorkers; i++ {
		rqm.wg.Add(1)
		go func(workerID int) {
			defer rqm.wg.Done()
			slog.Debug("queue worker started", "worker", workerID)
			for job := range rqm.jobs {
				err := job.Fn()
				if job.Errc != nil {
					job.Errc <- err
				}
			}
			slog.Debug("queue worker stopped", "worker", workerID)
		}(i)
	}
}

// EnqueueJob blocks until a slot frees up, the context ends or the queue shuts down.
func (rqm *RequestQueueManager) EnqueueJob(ctx context.Context, job Job) error {
	rqm.mu.RLock()
	defer rqm.mu.RUnlock()
	if rqm.closed {
		return ErrQueueClosed
	}

	select {
	case rqm.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Depth reports how many jobs are waiting for a worker.
func (rqm *RequestQueueManager) Depth() int {
	return len(rqm.jobs)
}

func (rqm *RequestQueueManager) Workers() int {
	return rqm.maxWorkers
}

// Shutdown stops accepting jobs and waits for queued ones to finish.
func (rqm *RequestQueueManager) Shutdown() {
	rqm.mu.Lock()
	if rqm.closed {
		rqm.mu.Unlock()
		return
	}
	rqm.closed = true
	close(rqm.jobs)
	rqm.mu.Unlock()

	rqm.wg.Wait()
}
