package executor

import (
	"context"
	"sync"
	"time"
)

// Dedup remembers order ids for a TTL so a resubmitted order is not
// simulated twice. It is safe for concurrent use.
type Dedup struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

// NewDedup creates a Dedup that treats an id seen within ttl as a duplicate.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Claim records id and reports true, or reports false when id was already
// claimed within the TTL.
func (d *Dedup) Claim(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if at, ok := d.seen[id]; ok && now.Sub(at) < d.ttl {
		return false
	}
	d.seen[id] = now
	return true
}

// Len returns the number of remembered ids.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// Sweep drops expired ids.
func (d *Dedup) Sweep() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for id, at := range d.seen {
		if now.Sub(at) >= d.ttl {
			delete(d.seen, id)
		}
	}
}

// Run sweeps once per TTL until ctx is cancelled.
func (d *Dedup) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.Sweep()
		}
	}
}
