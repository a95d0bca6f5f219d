package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponentialBackoff(t *testing.T) {
	b := ExponentialBackoff{Base: 100 * time.Millisecond, Max: time.Second}

	assert.Equal(t, 100*time.Millisecond, b.Next(0))
	assert.Equal(t, 100*time.Millisecond, b.Next(1))
	assert.Equal(t, 200*time.Millisecond, b.Next(2))
	assert.Equal(t, 800*time.Millisecond, b.Next(4))
	assert.Equal(t, time.Second, b.Next(5))
	assert.Equal(t, time.Second, b.Next(500))
}

func TestExponentialBackoffWithoutCapNeverGoesNegative(t *testing.T) {
	b := ExponentialBackoff{Base: time.Second}
	assert.Positive(t, b.Next(200))
}

func TestFixedBackoff(t *testing.T) {
	assert.Equal(t, 2*time.Second, FixedBackoff{Delay: 2 * time.Second}.Next(7))
	assert.Equal(t, time.Second, FixedBackoff{}.Next(1))
}

func TestJitteredBackoffStaysWithinBounds(t *testing.T) {
	b := NewJitteredBackoff(FixedBackoff{Delay: time.Second})
	for i := 1; i <= 50; i++ {
		d := b.Next(i)
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.LessOrEqual(t, d, time.Second)
	}

	pinned := JitteredBackoff{Backoff: FixedBackoff{Delay: time.Second}, rand: func(int64) int64 { return 0 }}
	assert.Equal(t, 500*time.Millisecond, pinned.Next(1))
}

func TestFromPolicy(t *testing.T) {
	b, err := FromPolicy("FIXED", time.Second, 0, false)
	require.NoError(t, err)
	assert.Equal(t, FixedBackoff{Delay: time.Second}, b)

	b, err = FromPolicy("", time.Second, 4*time.Second, true)
	require.NoError(t, err)
	assert.IsType(t, JitteredBackoff{}, b)

	_, err = FromPolicy("linear", time.Second, 0, false)
	assert.Error(t, err)
}
