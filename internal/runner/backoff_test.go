package runner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestBackoff_FirstRetryBounds(t *testing.T) {
	base := 60 * time.Second
	max := 3600 * time.Second

	got := Backoff(0, base, max, 0)
	assert.Equal(t, 60*time.Second, got)

	got = Backoff(0, base, max, 29*time.Second+999*time.Millisecond)
	assert.Less(t, got, 90*time.Second)
	assert.GreaterOrEqual(t, got, 60*time.Second)
}

func TestBackoff_Doubling(t *testing.T) {
	base := 60 * time.Second
	max := 3600 * time.Second

	assert.Equal(t, 120*time.Second, Backoff(1, base, max, 0))
	assert.Equal(t, 240*time.Second, Backoff(2, base, max, 0))
	assert.Equal(t, 480*time.Second, Backoff(3, base, max, 0))
	assert.Equal(t, 480*time.Second+17*time.Second, Backoff(3, base, max, 17*time.Second))
}

func TestBackoff_CapsAtMax(t *testing.T) {
	base := 60 * time.Second
	max := 3600 * time.Second

	assert.Equal(t, max, Backoff(10, base, max, 0))
	assert.Equal(t, max, Backoff(50, base, max, 29*time.Second))
	// Large retry counts must not overflow into negative waits.
	assert.Equal(t, max, Backoff(400, base, max, 0))
}

func TestBackoff_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		retry := rapid.IntRange(0, 200).Draw(t, "retry")
		base := time.Duration(rapid.Int64Range(1, 600).Draw(t, "base")) * time.Second
		max := time.Duration(rapid.Int64Range(1, 7200).Draw(t, "max")) * time.Second
		jitter := time.Duration(rapid.Int64Range(0, int64(MaxJitter)-1).Draw(t, "jitter"))

		got := Backoff(retry, base, max, jitter)
		if got < 0 {
			t.Fatalf("negative wait %v", got)
		}
		if got > max {
			t.Fatalf("wait %v exceeds max %v", got, max)
		}
	})
}

func TestJitter_Bounds(t *testing.T) {
	for i := 0; i < 100; i++ {
		j := Jitter()
		assert.GreaterOrEqual(t, j, time.Duration(0))
		assert.Less(t, j, MaxJitter)
	}
}

func TestParseRateLimitReset(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	t.Run("same day pm", func(t *testing.T) {
		d, ok := ParseRateLimitReset("usage limit reached, resets 4pm", now)
		require.True(t, ok)
		assert.Equal(t, 6*time.Hour+rateLimitBuffer, d)
	})

	t.Run("next day wrap", func(t *testing.T) {
		d, ok := ParseRateLimitReset("resets 9am", now)
		require.True(t, ok)
		assert.Equal(t, 23*time.Hour+rateLimitBuffer, d)
	})

	t.Run("noon", func(t *testing.T) {
		d, ok := ParseRateLimitReset("resets 12pm", now)
		require.True(t, ok)
		assert.Equal(t, 2*time.Hour+rateLimitBuffer, d)
	})

	t.Run("midnight", func(t *testing.T) {
		d, ok := ParseRateLimitReset("resets 12am", now)
		require.True(t, ok)
		assert.Equal(t, 14*time.Hour+rateLimitBuffer, d)
	})

	t.Run("case and spacing", func(t *testing.T) {
		d, ok := ParseRateLimitReset("Resets 11 AM tomorrow", now)
		require.True(t, ok)
		assert.Equal(t, time.Hour+rateLimitBuffer, d)
	})

	t.Run("no hint", func(t *testing.T) {
		_, ok := ParseRateLimitReset("generic failure output", now)
		assert.False(t, ok)
	})

	t.Run("out of range hour", func(t *testing.T) {
		_, ok := ParseRateLimitReset("resets 13pm", now)
		assert.False(t, ok)
	})
}
