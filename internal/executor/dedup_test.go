package executor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDedupClaim(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	d := NewDedup(time.Minute)
	d.now = func() time.Time { return now }

	assert.True(t, d.Claim("o1"))
	assert.False(t, d.Claim("o1"))
	assert.True(t, d.Claim("o2"))

	now = now.Add(time.Minute)
	assert.True(t, d.Claim("o1"), "expired ids can be reused")

	now = now.Add(30 * time.Second)
	d.Sweep()
	assert.Equal(t, 1, d.Len(), "o2 expired, o1 refreshed")
}
