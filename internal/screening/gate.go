package screening

import "sync/atomic"

// Gate admits at most one run at a time. It never queues: a caller that
// loses the race is told so immediately.
type Gate struct {
	running atomic.Bool
}

// TryAdmit claims the gate. It returns false if a run is already in flight.
func (g *Gate) TryAdmit() bool {
	return g.running.CompareAndSwap(false, true)
}

// Release frees the gate. Callers defer it right after a successful TryAdmit.
func (g *Gate) Release() {
	g.running.Store(false)
}

// Running reports whether a run currently holds the gate.
func (g *Gate) Running() bool {
	return g.running.Load()
}
