package rate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type step struct {
	value float64
	err   error
}

// scriptedSource отдаёт ответы по порядку, последний повторяется.
type scriptedSource struct {
	mu    sync.Mutex
	steps []step
	calls int
}

func (s *scriptedSource) FetchRate(ctx context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.calls
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	s.calls++
	return s.steps[i].value, s.steps[i].err
}

func (s *scriptedSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

var errUnavailable = errors.New("source unavailable")

func newTestCache(src Source, interval time.Duration) *Cache {
	return NewCache(src, zap.NewNop(), interval, 5*time.Millisecond)
}

func TestInit_RetriesUntilSuccess(t *testing.T) {
	src := &scriptedSource{steps: []step{
		{err: errUnavailable},
		{err: errUnavailable},
		{value: 12.5},
	}}
	c := newTestCache(src, time.Hour)

	require.False(t, c.Ready())
	require.NoError(t, c.Init(context.Background()))

	assert.True(t, c.Ready())
	assert.Equal(t, 12.5, c.Current())
	assert.Equal(t, 3, src.Calls())
	assert.False(t, c.UpdatedAt().IsZero())
}

func TestInit_RejectsNonPositiveRate(t *testing.T) {
	src := &scriptedSource{steps: []step{
		{value: 0},
		{value: 13.1},
	}}
	c := newTestCache(src, time.Hour)

	require.NoError(t, c.Init(context.Background()))
	assert.Equal(t, 13.1, c.Current())
}

func TestInit_StopsOnContextCancel(t *testing.T) {
	src := &scriptedSource{steps: []step{{err: errUnavailable}}}
	c := newTestCache(src, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := c.Init(ctx)
	require.Error(t, err)
	assert.False(t, c.Ready())
}

func TestRefresh_FailureKeepsPreviousValue(t *testing.T) {
	src := &scriptedSource{steps: []step{
		{value: 12.5},
		{err: errUnavailable},
	}}
	c := newTestCache(src, time.Hour)
	require.NoError(t, c.Init(context.Background()))

	err := c.Refresh(context.Background())
	require.ErrorIs(t, err, errUnavailable)
	assert.Equal(t, 12.5, c.Current())
}

func TestRefresh_ReplacesValue(t *testing.T) {
	src := &scriptedSource{steps: []step{
		{value: 12.5},
		{value: 12.9},
	}}
	c := newTestCache(src, time.Hour)
	require.NoError(t, c.Init(context.Background()))

	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, 12.9, c.Current())
}

func TestCurrent_PanicsBeforeInit(t *testing.T) {
	c := newTestCache(&scriptedSource{steps: []step{{value: 1}}}, time.Hour)

	assert.Panics(t, func() { c.Current() })
	assert.True(t, c.UpdatedAt().IsZero())
}

func TestRun_RefreshesPeriodically(t *testing.T) {
	src := &scriptedSource{steps: []step{
		{value: 12.5},
		{err: errUnavailable},
		{value: 13.0},
	}}
	c := newTestCache(src, 10*time.Millisecond)
	require.NoError(t, c.Init(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return c.Current() == 13.0 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}

func TestCurrent_ConcurrentReadsDuringRefresh(t *testing.T) {
	src := &scriptedSource{steps: []step{{value: 12.5}}}
	c := newTestCache(src, time.Hour)
	require.NoError(t, c.Init(context.Background()))

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				assert.Equal(t, 12.5, c.Current())
			}
		}()
	}
	for range 20 {
		require.NoError(t, c.Refresh(context.Background()))
	}
	wg.Wait()
}
