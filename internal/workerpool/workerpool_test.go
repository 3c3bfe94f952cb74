package workerpool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSubmitRunsJobOffCaller(t *testing.T) {
	p := New(Config{WorkerCount: 2, GlobalBuffer: 8})
	defer p.Close()

	// The job waits for Submit to have returned; run inline on the
	// caller it would give up after a second and never close ran.
	submitted := make(chan struct{})
	ran := make(chan struct{})
	p.Submit(func() {
		select {
		case <-submitted:
			close(ran)
		case <-time.After(time.Second):
		}
	})
	close(submitted)

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("submitted job never ran")
	}
}

func TestSubmitRunsAllJobs(t *testing.T) {
	p := New(Config{WorkerCount: 4, GlobalBuffer: 100})
	defer p.Close()

	var n atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		p.Submit(func() {
			n.Add(1)
			wg.Done()
		})
	}
	wg.Wait()
	require.Equal(t, int64(50), n.Load())
}

func TestTrySubmitReportsFullBuffer(t *testing.T) {
	p := New(Config{WorkerCount: 1, GlobalBuffer: 1})
	defer p.Close()

	block := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.TrySubmit(func() {
		close(started)
		<-block
	}))
	<-started
	// The one worker is now blocked inside that job; the queue itself
	// still has room for GlobalBuffer=1 pending entries.
	require.NoError(t, p.TrySubmit(func() {}))

	err := p.TrySubmit(func() {})
	require.Error(t, err)

	close(block)
}

func TestDefaultsApplied(t *testing.T) {
	cfg := Config{}.withDefaults()
	require.Greater(t, cfg.WorkerCount, 0)
	require.Equal(t, 10000, cfg.GlobalBuffer)
}
