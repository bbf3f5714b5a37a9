package async

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	mu   sync.Mutex
	errs map[string]error
}

func (r *recorded) handler(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.errs == nil {
		r.errs = make(map[string]error)
	}
	r.errs[name] = err
}

func (r *recorded) get(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errs[name]
}

func TestSafeGo_Success(t *testing.T) {
	done := make(chan struct{})

	SafeGo(context.Background(), time.Second, "test task", nil, func(ctx context.Context) error {
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SafeGo did not execute function")
	}
}

func TestGroup_ReportsError(t *testing.T) {
	var rec recorded
	g := NewGroup(rec.handler)

	g.Go(context.Background(), time.Second, "failing", func(ctx context.Context) error {
		return errors.New("test error")
	})

	require.NoError(t, g.Wait(context.Background()))
	assert.EqualError(t, rec.get("failing"), "test error")
}

func TestGroup_RecoversPanic(t *testing.T) {
	var rec recorded
	g := NewGroup(rec.handler)

	g.Go(context.Background(), time.Second, "panicking", func(ctx context.Context) error {
		panic("test panic")
	})

	require.NoError(t, g.Wait(context.Background()))

	var perr *PanicError
	require.ErrorAs(t, rec.get("panicking"), &perr)
	assert.Equal(t, "test panic", perr.Value)
	assert.NotEmpty(t, perr.Stack)
}

func TestGroup_Timeout(t *testing.T) {
	var rec recorded
	g := NewGroup(rec.handler)

	g.Go(context.Background(), 20*time.Millisecond, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	require.NoError(t, g.Wait(context.Background()))
	assert.ErrorIs(t, rec.get("slow"), context.DeadlineExceeded)
}

func TestGroup_DetachedFromParentCancellation(t *testing.T) {
	g := NewGroup(nil)
	parent, cancel := context.WithCancel(context.Background())

	var sawCancel atomic.Bool
	release := make(chan struct{})
	g.Go(context.WithoutCancel(parent), time.Second, "detached", func(ctx context.Context) error {
		<-release
		sawCancel.Store(ctx.Err() != nil)
		return nil
	})

	cancel()
	close(release)

	require.NoError(t, g.Wait(context.Background()))
	assert.False(t, sawCancel.Load())
}

func TestGroup_WaitHonoursContext(t *testing.T) {
	g := NewGroup(nil)
	release := make(chan struct{})
	defer close(release)

	g.Go(context.Background(), 0, "blocked", func(ctx context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, g.Wait(ctx), context.DeadlineExceeded)
}
