package jitter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDuration_Range(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := Duration(time.Second, DefaultJitter)
		assert.GreaterOrEqual(t, d, time.Second)
		assert.LessOrEqual(t, d, 1500*time.Millisecond)
	}

	assert.Equal(t, time.Second, Duration(time.Second, 0))
}

func TestBackoff_Exponential(t *testing.T) {
	b := NewBackoff(100*time.Millisecond, time.Second, 0)

	assert.Equal(t, 100*time.Millisecond, b.Next(0))
	assert.Equal(t, 200*time.Millisecond, b.Next(1))
	assert.Equal(t, 800*time.Millisecond, b.Next(3))
	assert.Equal(t, time.Second, b.Next(4))
	assert.Equal(t, time.Second, b.Next(60))
}
