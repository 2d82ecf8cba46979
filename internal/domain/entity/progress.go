package entity

// ProgressEvent reports how many decoded frames were processed so far.
// Total may be an estimate or zero.
type ProgressEvent struct {
	Processed int
	Total     int
}

// Percent is 0 when the total is unknown and never exceeds 100.
func (e ProgressEvent) Percent() float64 {
	if e.Total <= 0 {
		return 0
	}
	p := float64(e.Processed) / float64(e.Total) * 100
	if p > 100 {
		return 100
	}
	return p
}

// ProgressThrottle selects the events worth forwarding to a remote observer:
// the first one, one per Step percent, and the final 100%. When the total is
// unknown it passes every UnknownTotalEvery-th event instead. A Step <= 0
// passes nothing.
type ProgressThrottle struct {
	Step              float64
	UnknownTotalEvery int

	last    float64
	started bool
}

func (t *ProgressThrottle) Due(ev ProgressEvent) bool {
	if t.Step <= 0 {
		return false
	}
	if ev.Total <= 0 {
		return t.UnknownTotalEvery > 0 && ev.Processed%t.UnknownTotalEvery == 0
	}

	pct := ev.Percent()
	if t.started && (pct == t.last || (pct < t.last+t.Step && pct < 100)) {
		return false
	}
	t.last = pct
	t.started = true
	return true
}
