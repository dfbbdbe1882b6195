//go:build integration

package reminder_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"slipgate/internal/reminder"
	"slipgate/pkg/testutil/containers"
)

func TestRedisLock(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	rc := containers.NewRedisContainer(t)

	t.Run("second holder is refused while held", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))
		first := reminder.NewRedisLock(rc.Client, "slipgate:test-lease", time.Minute)
		second := reminder.NewRedisLock(rc.Client, "slipgate:test-lease", time.Minute)

		ok, err := first.TryAcquire(ctx)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = second.TryAcquire(ctx)
		require.NoError(t, err)
		require.False(t, ok)

		require.NoError(t, first.Release(ctx))

		ok, err = second.TryAcquire(ctx)
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("release only frees the owner's lease", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))
		holder := reminder.NewRedisLock(rc.Client, "slipgate:test-lease", time.Minute)
		intruder := reminder.NewRedisLock(rc.Client, "slipgate:test-lease", time.Minute)

		ok, err := holder.TryAcquire(ctx)
		require.NoError(t, err)
		require.True(t, ok)

		// An instance that never held the lease must not release it.
		require.NoError(t, intruder.Release(ctx))

		ok, err = intruder.TryAcquire(ctx)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("lease expires on its own", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))
		short := reminder.NewRedisLock(rc.Client, "slipgate:test-lease", time.Second)
		next := reminder.NewRedisLock(rc.Client, "slipgate:test-lease", time.Minute)

		ok, err := short.TryAcquire(ctx)
		require.NoError(t, err)
		require.True(t, ok)

		require.Eventually(t, func() bool {
			ok, err := next.TryAcquire(ctx)
			return err == nil && ok
		}, 5*time.Second, 200*time.Millisecond)
	})
}
