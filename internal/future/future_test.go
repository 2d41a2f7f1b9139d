package future

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveBeforeAwait(t *testing.T) {
	f := New[int]()
	require.NoError(t, f.Resolve(7))
	v, err := f.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.True(t, f.Completed())
}

func TestAwaitBeforeResolveManyWaiters(t *testing.T) {
	f := New[string]()
	const n = 16
	var wg sync.WaitGroup
	got := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := f.Await(context.Background())
			assert.NoError(t, err)
			got[i] = v
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, f.Resolve("stdin"))
	wg.Wait()
	for _, v := range got {
		assert.Equal(t, "stdin", v)
	}
}

func TestResolveOnlyOnce(t *testing.T) {
	f := New[int]()
	require.NoError(t, f.Resolve(1))
	assert.ErrorIs(t, f.Resolve(2), ErrAlreadyCompleted)
	assert.False(t, f.Cancel(nil))
	v, err := f.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestCancel(t *testing.T) {
	f := New[int]()
	assert.True(t, f.Cancel(nil))
	_, err := f.Await(context.Background())
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, f.Resolve(3), ErrAlreadyCompleted)
}

func TestCancelWithCause(t *testing.T) {
	cause := errors.New("exec: not found")
	f := New[int]()
	f.Cancel(cause)
	_, err := f.Await(context.Background())
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "not found")
}

func TestAwaitContextDeadline(t *testing.T) {
	f := New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, f.Completed())
}

func TestAwaitPrefersCompletedValue(t *testing.T) {
	f := New[int]()
	require.NoError(t, f.Resolve(5))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	v, err := f.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, v)
}

func TestConcurrentCompletion(t *testing.T) {
	f := New[int]()
	var wg sync.WaitGroup
	wins := make(chan int, 20)
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			if f.Resolve(i) == nil {
				wins <- i
			}
		}(i)
		go func() {
			defer wg.Done()
			if f.Cancel(nil) {
				wins <- -1
			}
		}()
	}
	wg.Wait()
	close(wins)
	count := 0
	for range wins {
		count++
	}
	assert.Equal(t, 1, count)
}
