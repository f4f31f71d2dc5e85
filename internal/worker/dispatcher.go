package worker

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"teamassist/internal/manager"
	"teamassist/internal/platform"
)

// ErrDispatcherBusy is returned by Submit when the intake queue is full.
var ErrDispatcherBusy = errors.New("dispatcher queue is full")

type DispatcherConfig struct {
	MinWorkers int
	MaxWorkers int
	QueueSize  int
	// WorkerIdleTimeout retires idle workers above MinWorkers.
	WorkerIdleTimeout time.Duration
}

type conversationQueue struct {
	jobs     []Job
	enqueued bool // conversation is in the ready list
	inflight bool // a job of this conversation is currently running
}

// Dispatcher guarantees per-conversation FIFO processing: at most one job per
// conversation is in flight at a time, and a conversation's next job starts
// only after the previous one completed. The ready list is serviced in LRU
// order so one busy conversation cannot starve the others.
type Dispatcher struct {
	pool     *jobChannelPool
	JobQueue chan Job
	logger   *zap.Logger
	wake     chan struct{}

	mu        sync.Mutex
	queues    map[string]*conversationQueue
	ready     *list.List // conversation ids awaiting service
	positions map[string]*list.Element
}

func NewDispatcher(cfg DispatcherConfig, handler Handler, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MinWorkers <= 0 {
		cfg.MinWorkers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	pool := newJobChannelPool(cfg.MinWorkers, cfg.MaxWorkers, cfg.WorkerIdleTimeout, handler)

	d := &Dispatcher{
		pool:      pool,
		JobQueue:  make(chan Job, cfg.QueueSize),
		logger:    logger,
		wake:      make(chan struct{}, 1),
		queues:    make(map[string]*conversationQueue),
		ready:     list.New(),
		positions: make(map[string]*list.Element),
	}
	for i := 0; i < cfg.MinWorkers; i++ {
		d.pool.spawnWorker()
	}
	go d.run()
	return d
}

// Submit queues one inbound event and blocks until its result is ready or the
// context is done. Events of the same conversation are processed in the order
// they were submitted.
func (d *Dispatcher) Submit(ctx context.Context, evt platform.InboundEvent) (manager.Result, error) {
	task := &eventTask{
		ctx:    ctx,
		event:  evt,
		result: make(chan manager.Result, 1),
	}
	select {
	case d.JobQueue <- Job{Type: Event, Task: task}:
	default:
		d.logger.Warn("dispatcher intake full",
			zap.String("conversation_id", evt.ConversationID))
		return manager.Result{}, ErrDispatcherBusy
	}

	select {
	case res := <-task.result:
		return res, nil
	case <-ctx.Done():
		return manager.Result{}, ctx.Err()
	}
}

// CancelConversation drops any queued (not yet running) jobs for the
// conversation.
func (d *Dispatcher) CancelConversation(conversationID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if q := d.queues[conversationID]; q != nil {
		q.jobs = nil
		if !q.inflight {
			delete(d.queues, conversationID)
		}
	}
	if elem, ok := d.positions[conversationID]; ok {
		d.ready.Remove(elem)
		delete(d.positions, conversationID)
	}
}

func (d *Dispatcher) run() {
	for {
		if !d.dispatchOne() {
			select {
			case job := <-d.JobQueue: // block until there is work
				d.enqueueJob(job)
			case <-d.wake:
			}
			continue
		}
		select {
		case job := <-d.JobQueue:
			d.enqueueJob(job)
		default:
		}
	}
}

func (d *Dispatcher) enqueueJob(job Job) {
	conversationID := job.conversationID()

	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[conversationID]
	if q == nil {
		q = &conversationQueue{}
		d.queues[conversationID] = q
	}
	q.jobs = append(q.jobs, job)
	// Join the ready list only when not already there and no job of this
	// conversation is running; jobCompleted re-adds it otherwise.
	if q.enqueued || q.inflight {
		return
	}
	q.enqueued = true
	d.positions[conversationID] = d.ready.PushBack(conversationID)
}

// dispatchOne services the least recently served ready conversation: takes
// its oldest job, marks the conversation in flight and hands the job to a
// worker. Returns false when nothing is ready.
func (d *Dispatcher) dispatchOne() bool {
	d.mu.Lock()
	elem := d.ready.Front()
	if elem == nil {
		d.mu.Unlock()
		return false
	}
	conversationID := elem.Value.(string)
	q := d.queues[conversationID]
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	q.inflight = true
	q.enqueued = false
	d.ready.Remove(elem)
	delete(d.positions, conversationID)
	d.mu.Unlock()

	if job.Task != nil {
		job.Task.done = func() { d.jobCompleted(conversationID) }
	}

	workerChan := d.pool.acquire()
	d.logger.Debug("dispatching job",
		zap.String("conversation_id", conversationID), zap.String("type", string(job.Type)))
	workerChan <- job
	return true
}

// jobCompleted clears the in-flight mark and re-queues the conversation when
// it has more waiting jobs.
func (d *Dispatcher) jobCompleted(conversationID string) {
	d.mu.Lock()
	q := d.queues[conversationID]
	if q == nil {
		d.mu.Unlock()
		return
	}
	q.inflight = false
	if len(q.jobs) == 0 {
		delete(d.queues, conversationID)
		d.mu.Unlock()
		return
	}
	q.enqueued = true
	d.positions[conversationID] = d.ready.PushBack(conversationID)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (job Job) conversationID() string {
	if job.Task != nil {
		return job.Task.event.ConversationID
	}
	return ""
}
