package main

// gapTracker counts packets missing from a stream of 16-bit sequence
// numbers. A jump of more than half the sequence space is taken as a late or
// duplicated packet rather than a loss.
type gapTracker struct {
	started  bool
	next     uint16
	received uint64
	lost     uint64
	late     uint64
}

// observe records seq and returns how many packets were skipped before it.
func (g *gapTracker) observe(seq uint16) uint16 {
	g.received++
	if !g.started {
		g.started = true
		g.next = seq + 1
		return 0
	}

	skipped := seq - g.next
	if skipped >= 1<<15 {
		g.late++
		return 0
	}
	g.lost += uint64(skipped)
	g.next = seq + 1
	return skipped
}
