package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		Factor:      2,
		MaxDelay:    5 * time.Millisecond,
	}
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), fastPolicy(5), "op", func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 1, calls)
}

func TestDo_RetryBound(t *testing.T) {
	calls := 0
	boom := errors.New("rate limited")
	_, err := Do(context.Background(), fastPolicy(5), "generate", func(context.Context) (int, error) {
		calls++
		return 0, Transient(boom)
	})

	assert.Equal(t, 5, calls)
	assert.ErrorIs(t, err, ErrMaxAttempts)
	assert.ErrorIs(t, err, boom)
}

func TestDo_RecoversAfterTransient(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), fastPolicy(5), "op", func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, Transient(fmt.Errorf("503"))
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentErrorNotRetried(t *testing.T) {
	calls := 0
	perm := errors.New("bad request")
	_, err := Do(context.Background(), fastPolicy(5), "op", func(context.Context) (int, error) {
		calls++
		return 0, perm
	})
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, perm)
	assert.NotErrorIs(t, err, ErrMaxAttempts)
}

func TestDo_CustomClassifier(t *testing.T) {
	calls := 0
	p := fastPolicy(3)
	p.Classify = func(error) bool { return true }

	_, err := Do(context.Background(), p, "op", func(context.Context) (int, error) {
		calls++
		return 0, errors.New("plain")
	})
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, ErrMaxAttempts)
}

func TestDo_ReconnectBetweenAttempts(t *testing.T) {
	reconnects := 0
	p := fastPolicy(3)
	p.Reconnect = func(context.Context) error {
		reconnects++
		return errors.New("still down")
	}

	err := Run(context.Background(), p, "write", func(context.Context) error {
		return Transient(errors.New("connection reset"))
	})
	require.Error(t, err)
	assert.Equal(t, 2, reconnects, "reconnect runs before each retry, not after the last attempt")
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := fastPolicy(5)
	p.BaseDelay = time.Hour
	p.MaxDelay = time.Hour

	done := make(chan error, 1)
	go func() {
		_, err := Do(ctx, p, "op", func(context.Context) (int, error) {
			return 0, Transient(errors.New("busy"))
		})
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

func TestPolicy_Delay(t *testing.T) {
	p := Policy{BaseDelay: 2 * time.Second, Factor: 2, MaxDelay: 30 * time.Second}

	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 4*time.Second, p.Delay(2))
	assert.Equal(t, 8*time.Second, p.Delay(3))
	assert.Equal(t, 30*time.Second, p.Delay(10))

	p.Jitter = 0.5
	p.rand = func() float64 { return 1 }
	assert.Equal(t, 3*time.Second, p.Delay(1))
	assert.Equal(t, 30*time.Second, p.Delay(5), "cap applies after jitter")
}

func TestTransient(t *testing.T) {
	assert.Nil(t, Transient(nil))

	base := errors.New("x")
	wrapped := fmt.Errorf("upload: %w", Transient(base))
	assert.True(t, IsTransient(wrapped))
	assert.ErrorIs(t, wrapped, base)
	assert.False(t, IsTransient(base))
}
