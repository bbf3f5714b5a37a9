package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownManager_ReverseOrder(t *testing.T) {
	sm := NewShutdownManager(NopLogger(), time.Second)

	var order []string
	for _, name := range []string{"pool", "hooks", "http"} {
		name := name
		sm.Register(name, func(context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	require.NoError(t, sm.Shutdown(context.Background()))
	assert.Equal(t, []string{"http", "hooks", "pool"}, order)
}

func TestShutdownManager_ContinuesAfterFailure(t *testing.T) {
	sm := NewShutdownManager(NopLogger(), time.Second)

	ran := false
	sm.Register("first", func(context.Context) error {
		ran = true
		return nil
	})
	sm.Register("second", func(context.Context) error {
		return errors.New("boom")
	})

	err := sm.Shutdown(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "second: boom")
	assert.True(t, ran)
}

func TestShutdownManager_RunsOnce(t *testing.T) {
	sm := NewShutdownManager(NopLogger(), time.Second)

	calls := 0
	sm.Register("step", func(context.Context) error {
		calls++
		return nil
	})

	_ = sm.Shutdown(context.Background())
	_ = sm.Shutdown(context.Background())
	assert.Equal(t, 1, calls)
}

func TestShutdownManager_Timeout(t *testing.T) {
	sm := NewShutdownManager(NopLogger(), 20*time.Millisecond)

	sm.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	err := sm.Shutdown(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestShutdownManager_WaitForSignalOnContextDone(t *testing.T) {
	sm := NewShutdownManager(NopLogger(), time.Second)

	called := false
	sm.Register("step", func(context.Context) error {
		called = true
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, sm.WaitForSignal(ctx))
	assert.True(t, called)
}
