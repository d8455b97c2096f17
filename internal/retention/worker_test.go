package retention

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakePruner struct {
	mu    sync.Mutex
	calls int
	ttls  []time.Duration
	n     int64
	err   error
}

func (f *fakePruner) PruneExchanges(_ context.Context, ttl time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.ttls = append(f.ttls, ttl)
	return f.n, f.err
}

func (f *fakePruner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestSweep(t *testing.T) {
	p := &fakePruner{n: 4}
	assert.Equal(t, int64(4), Sweep(context.Background(), p, time.Hour))
	assert.Equal(t, []time.Duration{time.Hour}, p.ttls)
}

func TestSweepError(t *testing.T) {
	p := &fakePruner{err: errors.New("disk I/O error")}
	assert.Equal(t, int64(0), Sweep(context.Background(), p, time.Hour))
}

func TestStartWorkerRunsUntilCancelled(t *testing.T) {
	p := &fakePruner{}
	ctx, cancel := context.WithCancel(context.Background())

	StartWorker(ctx, p, time.Hour, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return p.callCount() >= 2 }, time.Second, 5*time.Millisecond)

	cancel()
	time.Sleep(20 * time.Millisecond)
	after := p.callCount()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, p.callCount())
}
