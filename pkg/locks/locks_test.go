package locks

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/ctxengine/pkg/ids"
)

func TestLockReturnsSameMutexForSameID(t *testing.T) {
	m := New()
	id := ids.ID{1}
	assert.Same(t, m.Lock(id), m.Lock(id))
}

func TestLockIsPerNode(t *testing.T) {
	m := New()
	assert.NotSame(t, m.Lock(ids.ID{1}), m.Lock(ids.ID{2}))
}

func TestWithWriteLockSerializesConcurrentWriters(t *testing.T) {
	m := New()
	id := ids.ID{1}
	var counter int64
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.WithWriteLock(id, func() error {
				cur := atomic.LoadInt64(&counter)
				atomic.StoreInt64(&counter, cur+1)
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(50), counter)
}

func TestWithReadLockRunsFn(t *testing.T) {
	m := New()
	id := ids.ID{1}
	err := m.WithReadLock(id, func() error { return nil })
	assert.NoError(t, err)
}
