package engine

import "sync"

// actionGuard is an index-based lock table keyed by position ID. It
// serializes actions per position without a global lock: at most one
// in-flight rebalance or stop-loss action per position at any time.
type actionGuard struct {
	mu       sync.Mutex
	inflight map[string]struct{}
}

func newActionGuard() *actionGuard {
	return &actionGuard{inflight: make(map[string]struct{})}
}

// tryAcquire marks a position as having an in-flight action. Returns false
// when the previous action has not resolved yet; callers skip the position
// for this cycle.
func (g *actionGuard) tryAcquire(positionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.inflight[positionID]; busy {
		return false
	}
	g.inflight[positionID] = struct{}{}
	return true
}

// release clears the in-flight mark.
func (g *actionGuard) release(positionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inflight, positionID)
}
