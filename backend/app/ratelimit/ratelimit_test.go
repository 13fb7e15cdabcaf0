package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPerDevice_BurstThenDeny(t *testing.T) {
	l := New(60, 3)
	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("dev"), "event %d", i)
	}
	assert.False(t, l.Allow("dev"))

	// separate bucket per device
	assert.True(t, l.Allow("other"))

	l.Forget("dev")
	assert.True(t, l.Allow("dev"))
}

func TestPerDevice_Disabled(t *testing.T) {
	l := New(0, 0)
	for i := 0; i < 1000; i++ {
		assert.True(t, l.Allow("dev"))
	}
	var nilLimiter *PerDevice
	assert.True(t, nilLimiter.Allow("dev"))
	nilLimiter.Forget("dev")
}
