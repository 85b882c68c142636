package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-jobqueue/internal/domain/model"
)

func TestNewRetryPolicy(t *testing.T) {
	t.Run("rejects negative unit", func(t *testing.T) {
		policy, err := NewRetryPolicy(-time.Second)
		require.ErrorIs(t, err, ErrInvalidRetryUnit)
		assert.Nil(t, policy)
	})

	t.Run("allows zero unit", func(t *testing.T) {
		policy, err := NewRetryPolicy(0)
		require.NoError(t, err)
		assert.Equal(t, time.Duration(0), policy.Delay(3))
	})
}

func TestRetryPolicy_DelayIsLinear(t *testing.T) {
	policy, err := NewRetryPolicy(100 * time.Millisecond)
	require.NoError(t, err)

	assert.Equal(t, time.Duration(0), policy.Delay(0))
	assert.Equal(t, 100*time.Millisecond, policy.Delay(1))
	assert.Equal(t, 200*time.Millisecond, policy.Delay(2))
	assert.Equal(t, 5*time.Second, policy.Delay(50), "no upper bound")
}

func TestRetryPolicy_NilSafe(t *testing.T) {
	var policy *RetryPolicy
	assert.Equal(t, time.Duration(0), policy.Unit())
	assert.Equal(t, time.Duration(0), policy.Delay(4))
}

func TestRetryPolicy_Decide(t *testing.T) {
	policy, err := NewRetryPolicy(time.Second)
	require.NoError(t, err)
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	retry := policy.Decide(now, 2, 3)
	assert.True(t, retry.Retry())
	assert.Equal(t, model.JobStatusRetrying, retry.Status)
	require.NotNil(t, retry.NextRunAt)
	assert.Equal(t, now.Add(2*time.Second), *retry.NextRunAt)

	exhausted := policy.Decide(now, 3, 3)
	assert.False(t, exhausted.Retry())
	assert.Equal(t, model.JobStatusFailed, exhausted.Status)
	assert.Nil(t, exhausted.NextRunAt)
}
