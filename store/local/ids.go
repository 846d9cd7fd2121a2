package local

import (
	"strconv"
	"sync"
	"time"
)

// idSource hands out strictly increasing identifiers derived from the
// current time in milliseconds. Two calls in the same millisecond get
// consecutive values instead of colliding.
type idSource struct {
	mu   sync.Mutex
	last int64
}

func (s *idSource) next() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()
	if now <= s.last {
		now = s.last + 1
	}
	s.last = now
	return strconv.FormatInt(now, 10)
}
