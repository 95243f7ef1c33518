package queue

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/codeready-toolchain/ctxengine/pkg/ctxerr"
	"github.com/codeready-toolchain/ctxengine/pkg/ids"
)

// Config sizes and paces the queue.
type Config struct {
	WorkerCount           int
	MaxQueueSize          int
	MaxConcurrentPerAgent int
	MinDelayPerAgent      time.Duration
	MaxRetryAttempts      int
	RetryDelay            time.Duration
}

func (c Config) withDefaults() Config {
	if c.WorkerCount <= 0 {
		c.WorkerCount = 4
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = 10_000
	}
	if c.MaxConcurrentPerAgent <= 0 {
		c.MaxConcurrentPerAgent = 1
	}
	if c.MaxRetryAttempts <= 0 {
		c.MaxRetryAttempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 2 * time.Second
	}
	return c
}

// dedupeEntry tracks the active request for one Identity and the
// one-shot reply channels of every waiter attached to it.
type dedupeEntry struct {
	requestID string
	waiters   []chan Outcome
}

// Queue is the generation queue: a single max-priority queue of
// Requests behind a mutex, a worker pool, a per-agent rate limiter,
// and an in-flight dedupe index.
type Queue struct {
	cfg       Config
	processor RequestProcessor
	log       *slog.Logger

	mu   sync.Mutex // queue mutex; always acquired before dedupeMu
	heap requestHeap

	dedupeMu sync.Mutex
	dedupe   map[Identity]*dedupeEntry

	notifyCh chan struct{}
	limiters *rateLimiters
	sf       singleflight.Group

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	stats counters
}

// New constructs a Queue. processor drives the provider round trip for
// each popped request.
func New(cfg Config, processor RequestProcessor) *Queue {
	cfg = cfg.withDefaults()
	return &Queue{
		cfg:       cfg,
		processor: processor,
		log:       slog.Default(),
		dedupe:    make(map[Identity]*dedupeEntry),
		notifyCh:  make(chan struct{}, 1),
		limiters:  newRateLimiters(cfg.MaxConcurrentPerAgent, cfg.MinDelayPerAgent),
		stopCh:    make(chan struct{}),
	}
}

// Start spawns the worker pool of WorkerCount workers. It keeps no
// started state: each further call spawns another WorkerCount workers.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.cfg.WorkerCount; i++ {
		q.wg.Add(1)
		go q.runWorker(ctx)
	}
}

// Stop signals all workers to stop after their current request
// finishes, then waits for them to exit. Shutdown never cancels an
// in-flight provider call.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() { close(q.stopCh) })
	q.wg.Wait()
}

// Stats returns a point-in-time snapshot.
func (q *Queue) Stats() Stats {
	return q.stats.snapshot()
}

func (q *Queue) notify() {
	select {
	case q.notifyCh <- struct{}{}:
	default:
	}
}

// HeadLookup lets EnqueueAndWait short-circuit before enqueue when a
// head already exists. Queue doesn't hold a reference to the head
// index directly, so the caller supplies the lookup; Processor.Process
// re-checks immediately before provider IO for the same reason.
type HeadLookup func(nodeID ids.NodeID, frameType string) (ids.FrameID, bool)

// Enqueue stages req without waiting for completion. A duplicate
// identity returns the existing request's id instead of enqueuing a
// new one.
func (q *Queue) Enqueue(req *Request) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.dedupeMu.Lock()
	if entry, exists := q.dedupe[req.Identity()]; exists {
		id := entry.requestID
		q.dedupeMu.Unlock()
		return id, nil
	}
	if len(q.heap) >= q.cfg.MaxQueueSize {
		q.dedupeMu.Unlock()
		return "", ctxerr.New(ctxerr.KindGenerationFailed, "queue is at capacity (%d)", q.cfg.MaxQueueSize)
	}
	q.dedupe[req.Identity()] = &dedupeEntry{requestID: req.RequestID}
	q.dedupeMu.Unlock()

	heap.Push(&q.heap, req)
	q.stats.pending.Add(1)
	q.notify()
	return req.RequestID, nil
}

// EnqueueAndWait stages req (or attaches to an already in-flight
// request sharing its identity) and blocks until it settles or ctx is
// cancelled / timeout elapses. If !req.Options.Force and a head
// already exists for the identity, headLookup short-circuits with the
// existing head and no dedupe entry is created.
func (q *Queue) EnqueueAndWait(ctx context.Context, req *Request, headLookup HeadLookup, timeout time.Duration) (ids.FrameID, error) {
	if !req.Options.Force && headLookup != nil {
		if frameID, ok := headLookup(req.NodeID, req.FrameType); ok {
			return frameID, nil
		}
	}

	waiter := make(chan Outcome, 1)

	q.mu.Lock()
	q.dedupeMu.Lock()
	if entry, exists := q.dedupe[req.Identity()]; exists {
		entry.waiters = append(entry.waiters, waiter)
		q.dedupeMu.Unlock()
		q.mu.Unlock()
		return q.awaitOutcome(ctx, waiter, timeout)
	}
	if len(q.heap) >= q.cfg.MaxQueueSize {
		q.dedupeMu.Unlock()
		q.mu.Unlock()
		return ids.FrameID{}, ctxerr.New(ctxerr.KindGenerationFailed, "queue is at capacity (%d)", q.cfg.MaxQueueSize)
	}
	q.dedupe[req.Identity()] = &dedupeEntry{requestID: req.RequestID, waiters: []chan Outcome{waiter}}
	q.dedupeMu.Unlock()

	heap.Push(&q.heap, req)
	q.stats.pending.Add(1)
	q.mu.Unlock()
	q.notify()

	return q.awaitOutcome(ctx, waiter, timeout)
}

func (q *Queue) awaitOutcome(ctx context.Context, waiter chan Outcome, timeout time.Duration) (ids.FrameID, error) {
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}
	select {
	case outcome := <-waiter:
		return outcome.FrameID, outcome.Err
	case <-ctx.Done():
		// Dropping a waiter never cancels the underlying request:
		// other waiters, or no waiters at all, may still depend on it
		// running to completion.
		return ids.FrameID{}, ctx.Err()
	case <-timeoutCh:
		return ids.FrameID{}, fmt.Errorf("queue: enqueue_and_wait timed out after %s", timeout)
	}
}

// BatchEnqueue stages every request atomically: the dedupe check for
// the whole batch runs inside one mutex transaction (so duplicates
// within the batch collapse to a single request) and the batch fails
// all-or-nothing if it would exceed MaxQueueSize.
func (q *Queue) BatchEnqueue(reqs []*Request) ([]string, error) {
	ids, _, err := q.batchEnqueue(reqs, false)
	return ids, err
}

// BatchEnqueueWait is BatchEnqueue plus one waiter per request,
// attached inside the same mutex transaction so no request can settle
// between staging and attach. Requests sharing an identity share the
// underlying provider call but each receives the outcome on its own
// channel.
func (q *Queue) BatchEnqueueWait(reqs []*Request) ([]<-chan Outcome, error) {
	_, waiters, err := q.batchEnqueue(reqs, true)
	return waiters, err
}

func (q *Queue) batchEnqueue(reqs []*Request, withWaiters bool) ([]string, []<-chan Outcome, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dedupeMu.Lock()
	defer q.dedupeMu.Unlock()

	seenInBatch := make(map[Identity]string, len(reqs))
	newCount := 0
	for _, req := range reqs {
		identity := req.Identity()
		if _, ok := seenInBatch[identity]; ok {
			continue
		}
		if _, exists := q.dedupe[identity]; exists {
			continue
		}
		seenInBatch[identity] = req.RequestID
		newCount++
	}
	if len(q.heap)+newCount > q.cfg.MaxQueueSize {
		return nil, nil, ctxerr.New(ctxerr.KindGenerationFailed,
			"batch of %d would exceed max_queue_size (%d); queue currently holds %d", newCount, q.cfg.MaxQueueSize, len(q.heap))
	}

	requestIDs := make([]string, 0, len(reqs))
	var waiters []<-chan Outcome
	for _, req := range reqs {
		identity := req.Identity()
		entry, exists := q.dedupe[identity]
		if !exists {
			entry = &dedupeEntry{requestID: req.RequestID}
			q.dedupe[identity] = entry
			heap.Push(&q.heap, req)
			q.stats.pending.Add(1)
		}
		requestIDs = append(requestIDs, entry.requestID)
		if withWaiters {
			w := make(chan Outcome, 1)
			entry.waiters = append(entry.waiters, w)
			waiters = append(waiters, w)
		}
	}
	q.notify()
	return requestIDs, waiters, nil
}

func (q *Queue) popNext() (*Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.heap) == 0 {
		return nil, false
	}
	req := heap.Pop(&q.heap).(*Request)
	q.stats.pending.Add(-1)
	q.stats.processing.Add(1)
	return req, true
}

func (q *Queue) requeue(req *Request) {
	q.mu.Lock()
	heap.Push(&q.heap, req)
	q.stats.processing.Add(-1)
	q.stats.pending.Add(1)
	q.mu.Unlock()
	q.notify()
}

// runWorker is the worker loop: pop, rate-limit, process, settle or
// retry.
func (q *Queue) runWorker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-q.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		req, ok := q.popNext()
		if !ok {
			select {
			case <-q.stopCh:
				return
			case <-ctx.Done():
				return
			case <-q.notifyCh:
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		q.log.Info("queue: request_processing", "request_id", req.RequestID, "node_id", req.NodeID.String(), "agent_id", req.AgentID, "frame_type", req.FrameType)
		q.handle(ctx, req)
	}
}

func (q *Queue) handle(ctx context.Context, req *Request) {
	release, err := q.limiters.Acquire(ctx, req.AgentID)
	if err != nil {
		q.requeue(req)
		return
	}

	frameID, procErr := q.processOnce(ctx, req)
	release()

	if procErr == nil {
		q.settle(req, Outcome{FrameID: frameID}, true)
		return
	}

	if isRetryable(procErr) && req.RetryCount+1 <= q.cfg.MaxRetryAttempts {
		req.RetryCount++
		q.stats.retried.Add(1)
		select {
		case <-time.After(q.cfg.RetryDelay):
		case <-q.stopCh:
		}
		q.requeue(req)
		return
	}

	q.settle(req, Outcome{Err: procErr}, false)
}

// processOnce coalesces concurrent calls sharing an identity through
// singleflight on top of the enqueue-time dedupe, keeping the
// at-most-one-concurrent-provider-call-per-identity guarantee even if
// two workers ever hold requests with the same identity.
func (q *Queue) processOnce(ctx context.Context, req *Request) (ids.FrameID, error) {
	key := fmt.Sprintf("%s|%s|%s", req.NodeID.String(), req.AgentID, req.FrameType)
	v, err, _ := q.sf.Do(key, func() (any, error) {
		return q.processor.Process(ctx, req)
	})
	if err != nil {
		return ids.FrameID{}, err
	}
	return v.(ids.FrameID), nil
}

func (q *Queue) settle(req *Request, outcome Outcome, success bool) {
	q.dedupeMu.Lock()
	entry := q.dedupe[req.Identity()]
	delete(q.dedupe, req.Identity())
	q.dedupeMu.Unlock()

	if entry != nil {
		for _, w := range entry.waiters {
			w <- outcome
		}
	}

	q.stats.processing.Add(-1)
	if success {
		q.stats.succeeded.Add(1)
	} else {
		q.stats.failed.Add(1)
		q.log.Error("queue: request failed terminally", "request_id", req.RequestID, "error", outcome.Err)
	}
}
