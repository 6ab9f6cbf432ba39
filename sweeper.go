package framesock

import "time"

// sweeper evicts connections that have been inactive for longer than threshold.
type sweeper struct {
	registry  *Registry
	threshold time.Duration
	evict     func(*Conn)
}

// Sweep evicts every connection whose last activity is older than the
// threshold at now and returns their ids. It iterates a snapshot, so evict
// may remove entries from the registry.
func (s *sweeper) Sweep(now time.Time) []ConnID {
	var evicted []ConnID
	for _, c := range s.registry.Snapshot() {
		if now.Sub(c.LastActive()) <= s.threshold {
			continue
		}
		if c.State() != StateOpen {
			continue
		}
		s.evict(c)
		evicted = append(evicted, c.ID())
	}
	return evicted
}
