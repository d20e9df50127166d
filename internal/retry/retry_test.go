package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlmodel/internal/sqlerr"
)

func fastOpts() Options {
	return Options{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func TestRetriesRetryableErrors(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastOpts(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return sqlerr.New(sqlerr.QueryDeadlock, "deadlock")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestStopsOnPermanentError(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastOpts(), func(ctx context.Context) error {
		attempts++
		return sqlerr.New(sqlerr.QuerySyntax, "bad sql")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, sqlerr.QuerySyntax, sqlerr.KindOf(err))
}

func TestExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastOpts(), func(ctx context.Context) error {
		attempts++
		return sqlerr.New(sqlerr.QuerySerialization, "again")
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	attempts := 0
	err := Do(ctx, fastOpts(), func(ctx context.Context) error {
		attempts++
		return sqlerr.New(sqlerr.QueryDeadlock, "deadlock")
	})
	require.Error(t, err)
	assert.LessOrEqual(t, attempts, 1)
}
