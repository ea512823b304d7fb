package httpapi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_BoundedCallers(t *testing.T) {
	s := NewServer(nil, nil, Options{MaxCallers: 3, CallerIdleTTL: time.Minute})
	clock := time.Unix(1_000, 0)
	s.now = func() time.Time { return clock }

	alice := s.limiter("alice")
	clock = clock.Add(time.Second)
	s.limiter("bob")
	clock = clock.Add(time.Second)
	s.limiter("carol")
	assert.Len(t, s.limiters, 3)

	// mismo caller: mismo bucket, sin crecer
	clock = clock.Add(time.Second)
	assert.Same(t, alice, s.limiter("alice"))
	assert.Len(t, s.limiters, 3)

	// lleno y nadie inactivo: sale el menos reciente (bob)
	s.limiter("dave")
	assert.Len(t, s.limiters, 3)
	assert.NotContains(t, s.limiters, "bob")
	assert.Contains(t, s.limiters, "alice")

	// tras el TTL los inactivos se liberan de golpe
	clock = clock.Add(2 * time.Minute)
	s.limiter("erin")
	assert.Len(t, s.limiters, 1)
	assert.Contains(t, s.limiters, "erin")
}

func TestLimiter_CyclingCallersStayBounded(t *testing.T) {
	s := NewServer(nil, nil, Options{MaxCallers: 50})
	for i := 0; i < 10_000; i++ {
		s.limiter(time.Duration(i).String())
	}
	assert.LessOrEqual(t, len(s.limiters), 50)
}
