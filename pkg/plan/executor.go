package plan

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/ctxengine/pkg/ctxerr"
	"github.com/codeready-toolchain/ctxengine/pkg/queue"
)

// ProgressFunc is invoked once per completed level. levelIndex is
// zero-based.
type ProgressFunc func(levelIndex, totalLevels, succeeded, failed int)

// LevelResult aggregates the outcome of one level.
type LevelResult struct {
	Succeeded int
	Failed    int
	Errors    []error
}

// Report is the aggregated result of executing a Plan.
type Report struct {
	PlanID  string
	Levels  []LevelResult
	Aborted bool
}

// TotalSucceeded sums Succeeded across every level.
func (r *Report) TotalSucceeded() int {
	n := 0
	for _, l := range r.Levels {
		n += l.Succeeded
	}
	return n
}

// TotalFailed sums Failed across every level.
func (r *Report) TotalFailed() int {
	n := 0
	for _, l := range r.Levels {
		n += l.Failed
	}
	return n
}

// Executor drives a Plan level-by-level through the generation queue,
// awaiting each level's completion before starting the next. A
// level's items run concurrently against each other, since
// they share no dependency; levels run strictly in order, since a
// directory's level depends on its children's level having settled.
type Executor struct {
	Queue *queue.Queue
	// Timeout bounds how long Execute waits for a level to settle;
	// zero means wait indefinitely.
	Timeout time.Duration
	// Progress, if set, is called once per completed level.
	Progress ProgressFunc
}

// Execute runs every level of plan in order, stopping at the first
// level containing a failure.
func (e *Executor) Execute(ctx context.Context, p *Plan) (*Report, error) {
	planID := uuid.NewString()
	report := &Report{PlanID: planID, Levels: make([]LevelResult, 0, len(p.Levels))}
	totalLevels := len(p.Levels)

	for i, level := range p.Levels {
		lr := e.executeLevel(ctx, planID, level)
		report.Levels = append(report.Levels, lr)

		if e.Progress != nil {
			e.Progress(i, totalLevels, lr.Succeeded, lr.Failed)
		}

		if lr.Failed > 0 {
			report.Aborted = true
			return report, ctxerr.New(ctxerr.KindGenerationFailed,
				"plan %s aborted at level %d/%d: %d item(s) failed", planID, i+1, totalLevels, lr.Failed)
		}
	}

	return report, nil
}

// executeLevel stages the whole level as one atomic batch (so in-level
// duplicates collapse and the capacity check is all-or-nothing) with a
// waiter attached to every item, then blocks until each settles.
func (e *Executor) executeLevel(ctx context.Context, planID string, level Level) LevelResult {
	reqs := make([]*queue.Request, len(level))
	for i, item := range level {
		reqs[i] = queue.NewRequest(item.NodeID, item.AgentID, item.ProviderName, item.FrameType,
			queue.PriorityNormal, queue.Options{Force: item.Force, PlanID: planID})
	}

	waiters, err := e.Queue.BatchEnqueueWait(reqs)
	if err != nil {
		return LevelResult{Failed: len(level), Errors: []error{err}}
	}

	var lr LevelResult
	var timeoutCh <-chan time.Time
	if e.Timeout > 0 {
		timer := time.NewTimer(e.Timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}
	timedOut := false
	for _, w := range waiters {
		if timedOut {
			// The level deadline already passed; don't block on the
			// remaining waiters.
			lr.Failed++
			lr.Errors = append(lr.Errors, fmt.Errorf("plan: level timed out after %s", e.Timeout))
			continue
		}
		select {
		case outcome := <-w:
			if outcome.Err != nil {
				lr.Failed++
				lr.Errors = append(lr.Errors, outcome.Err)
			} else {
				lr.Succeeded++
			}
		case <-ctx.Done():
			lr.Failed++
			lr.Errors = append(lr.Errors, ctx.Err())
		case <-timeoutCh:
			timedOut = true
			lr.Failed++
			lr.Errors = append(lr.Errors, fmt.Errorf("plan: level timed out after %s", e.Timeout))
		}
	}
	return lr
}
