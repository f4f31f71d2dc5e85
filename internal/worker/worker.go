// Package worker serializes inbound-event processing per conversation: one
// conversation's events run strictly in arrival order, while distinct
// conversations run concurrently on an elastic worker pool with round-robin
// fairness between busy conversations.
package worker

import (
	"context"

	"teamassist/internal/manager"
	"teamassist/internal/platform"
)

type JobType string

const (
	Event JobType = "event"
	Stop  JobType = "stop"
)

// Handler processes one inbound event end to end.
type Handler interface {
	HandleEvent(ctx context.Context, evt platform.InboundEvent) manager.Result
}

type eventTask struct {
	ctx    context.Context
	event  platform.InboundEvent
	result chan manager.Result
	// done is set by the dispatcher; it releases the conversation's
	// in-flight gate once processing finished.
	done func()
}

type Job struct {
	Type JobType
	Task *eventTask
}

type Worker struct {
	pool       *jobChannelPool
	handler    Handler
	jobChannel chan Job
}

func NewWorker(pool *jobChannelPool, handler Handler) *Worker {
	return &Worker{
		pool:       pool,
		handler:    handler,
		jobChannel: make(chan Job),
	}
}

func (w *Worker) Start() {
	go func() {
		for job := range w.jobChannel {
			if job.Type == Stop {
				w.pool.retire(w.jobChannel)
				return
			}
			w.execute(job.Task)
			w.pool.Release(w.jobChannel)
		}
	}()
}

func (w *Worker) execute(task *eventTask) {
	if task == nil {
		return
	}
	res := w.handler.HandleEvent(task.ctx, task.event)
	task.result <- res
	if task.done != nil {
		task.done()
	}
}
