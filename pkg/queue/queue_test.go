package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/ctxengine/pkg/ctxerr"
	"github.com/codeready-toolchain/ctxengine/pkg/ids"
)

// countingProcessor counts every call it receives and returns a
// deterministic FrameID derived from the node id.
type countingProcessor struct {
	mu       sync.Mutex
	calls    int32
	delay    time.Duration
	failWith error // if set, every call fails with this error
}

func (p *countingProcessor) Process(ctx context.Context, req *Request) (ids.FrameID, error) {
	atomic.AddInt32(&p.calls, 1)
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return ids.FrameID{}, ctx.Err()
		}
	}
	if p.failWith != nil {
		return ids.FrameID{}, p.failWith
	}
	return req.NodeID, nil // reuse NodeID bytes as a stand-in FrameID
}

func (p *countingProcessor) count() int32 {
	return atomic.LoadInt32(&p.calls)
}

func TestEnqueueAndWaitDedupeSharesOneProviderCall(t *testing.T) {
	proc := &countingProcessor{delay: 50 * time.Millisecond}
	q := New(Config{WorkerCount: 4}, proc)
	q.Start(context.Background())
	defer q.Stop()

	nodeID := ids.ID{9}
	const n = 5
	results := make([]ids.FrameID, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := NewRequest(nodeID, "writer1", "openai-test", "ctx", PriorityNormal, Options{})
			results[i], errs[i] = q.EnqueueAndWait(context.Background(), req, nil, 5*time.Second)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, nodeID, results[i])
	}
	assert.Equal(t, int32(1), proc.count(), "dedupe must coalesce all concurrent waiters into one provider call")
}

func TestEnqueueFireAndForgetDedupeReturnsSameRequestID(t *testing.T) {
	proc := &countingProcessor{delay: 200 * time.Millisecond}
	q := New(Config{WorkerCount: 1}, proc)
	// Don't start workers: keep both enqueues pending so both see the
	// same dedupe entry regardless of scheduling.
	nodeID := ids.ID{3}
	req1 := NewRequest(nodeID, "writer1", "p", "ctx", PriorityNormal, Options{})
	req2 := NewRequest(nodeID, "writer1", "p", "ctx", PriorityNormal, Options{})

	id1, err := q.Enqueue(req1)
	require.NoError(t, err)
	id2, err := q.Enqueue(req2)
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Equal(t, int64(1), q.Stats().Pending)
}

func TestPriorityOrdering(t *testing.T) {
	var mu sync.Mutex
	var order []string
	release := make(chan struct{})

	gate := &gatingProcessor{release: release, order: &order, mu: &mu}
	q := New(Config{WorkerCount: 1}, gate)

	low := NewRequest(ids.ID{1}, "w", "p", "low", PriorityLow, Options{})
	high := NewRequest(ids.ID{2}, "w", "p", "high", PriorityHigh, Options{})
	urgent := NewRequest(ids.ID{3}, "w", "p", "urgent", PriorityUrgent, Options{})

	// Enqueue out of priority order; the heap must still pop urgent
	// first, then high, then low.
	_, err := q.Enqueue(low)
	require.NoError(t, err)
	_, err = q.Enqueue(high)
	require.NoError(t, err)
	_, err = q.Enqueue(urgent)
	require.NoError(t, err)

	q.Start(context.Background())
	defer q.Stop()

	close(release)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 3
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"urgent", "high", "low"}, order)
}

type gatingProcessor struct {
	release <-chan struct{}
	order   *[]string
	mu      *sync.Mutex
}

func (g *gatingProcessor) Process(ctx context.Context, req *Request) (ids.FrameID, error) {
	<-g.release
	g.mu.Lock()
	*g.order = append(*g.order, req.FrameType)
	g.mu.Unlock()
	return req.NodeID, nil
}

func TestRetryClassification(t *testing.T) {
	assert.True(t, isRetryable(ctxerr.New(ctxerr.KindProviderRateLimit, "x")))
	assert.True(t, isRetryable(ctxerr.New(ctxerr.KindProviderError, "x")))
	assert.False(t, isRetryable(ctxerr.New(ctxerr.KindConfigError, "x")))
	assert.False(t, isRetryable(ctxerr.MissingPromptContractField("agent", "field")))
	assert.False(t, isRetryable(ctxerr.New(ctxerr.KindFrameMetadataPolicyViolation, "x")))
	assert.False(t, isRetryable(ctxerr.New(ctxerr.KindProviderNotConfigured, "x")))
	assert.False(t, isRetryable(nil))
}

func TestRetryThenSucceed(t *testing.T) {
	proc := &flakyProcessor{failTimes: 2}
	q := New(Config{WorkerCount: 1, MaxRetryAttempts: 3, RetryDelay: 5 * time.Millisecond}, proc)
	q.Start(context.Background())
	defer q.Stop()

	req := NewRequest(ids.ID{7}, "w", "p", "ctx", PriorityNormal, Options{})
	frameID, err := q.EnqueueAndWait(context.Background(), req, nil, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, ids.ID{7}, frameID)
	assert.Equal(t, int64(1), q.Stats().Succeeded)
	assert.Equal(t, int64(2), q.Stats().Retried)
}

type flakyProcessor struct {
	mu        sync.Mutex
	failTimes int
	calls     int
}

func (p *flakyProcessor) Process(ctx context.Context, req *Request) (ids.FrameID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls <= p.failTimes {
		return ids.FrameID{}, ctxerr.New(ctxerr.KindProviderError, "transient failure %d", p.calls)
	}
	return req.NodeID, nil
}

func TestEnqueueAndWaitHeadShortCircuitSkipsProvider(t *testing.T) {
	proc := &countingProcessor{}
	q := New(Config{WorkerCount: 1}, proc)
	q.Start(context.Background())
	defer q.Stop()

	preSeeded := ids.ID{42}
	lookup := func(nodeID ids.NodeID, frameType string) (ids.FrameID, bool) {
		return preSeeded, true
	}

	req := NewRequest(ids.ID{1}, "w", "p", "ctx", PriorityNormal, Options{})
	frameID, err := q.EnqueueAndWait(context.Background(), req, lookup, time.Second)
	require.NoError(t, err)
	assert.Equal(t, preSeeded, frameID)
	assert.Equal(t, int32(0), proc.count())
}

func TestBatchEnqueueCollapsesDuplicates(t *testing.T) {
	proc := &countingProcessor{delay: 100 * time.Millisecond}
	q := New(Config{WorkerCount: 1}, proc)

	nodeID := ids.ID{5}
	reqs := []*Request{
		NewRequest(nodeID, "w", "p", "ctx", PriorityNormal, Options{}),
		NewRequest(nodeID, "w", "p", "ctx", PriorityNormal, Options{}),
		NewRequest(ids.ID{6}, "w", "p", "ctx", PriorityNormal, Options{}),
	}
	requestIDs, err := q.BatchEnqueue(reqs)
	require.NoError(t, err)
	require.Len(t, requestIDs, 3)
	assert.Equal(t, requestIDs[0], requestIDs[1])
	assert.NotEqual(t, requestIDs[0], requestIDs[2])
	assert.Equal(t, int64(2), q.Stats().Pending)
}
