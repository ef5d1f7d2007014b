package pool

import "github.com/oriys/fmidb/internal/metrics"

// Stats is a snapshot of slot states.
type Stats struct {
	Name          string  `json:"name"`
	Capacity      int     `json:"capacity"`
	Uninitialized int     `json:"uninitialized"`
	Idle          int     `json:"idle"`
	Busy          int     `json:"busy"`
	Waiters       int     `json:"waiters"`
	States        []State `json:"-"`
}

// Stats returns the current slot states.
func (p *Pool[R]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statsLocked()
}

func (p *Pool[R]) statsLocked() Stats {
	st := Stats{Name: p.name, Capacity: len(p.slots), Waiters: p.waiters}
	st.States = make([]State, len(p.slots))
	for i, sl := range p.slots {
		st.States[i] = sl.state
		switch sl.state {
		case Uninitialized:
			st.Uninitialized++
		case Idle:
			st.Idle++
		case Busy:
			st.Busy++
		}
	}
	return st
}

func (p *Pool[R]) publishLocked() {
	st := p.statsLocked()
	metrics.SetPoolSlots(p.name, st.Uninitialized, st.Idle, st.Busy)
}
