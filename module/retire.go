package module

import (
	"context"
)

// RetirementList holds Descriptors replaced by incremental reloads.
//
// A retired module may still be executing through an entry point captured
// before the swap, so nothing is released until the host reaches a quiescent
// point (full reset or shutdown) and calls ReleaseAll.
type RetirementList struct {
	items []*Descriptor
}

// Retire appends d. The list keeps oldest first.
func (l *RetirementList) Retire(d *Descriptor) {
	l.items = append(l.items, d)
}

// Len returns the number of retired Descriptors.
func (l *RetirementList) Len() int {
	return len(l.items)
}

// Versions returns the retired versions, oldest first.
func (l *RetirementList) Versions() []int {
	out := make([]int, len(l.items))
	for i, d := range l.items {
		out[i] = d.Version
	}
	return out
}

// ReleaseAll releases every retired Descriptor oldest first and empties the
// list. Release failures are returned but do not stop the sweep.
func (l *RetirementList) ReleaseAll(ctx context.Context) []error {
	var errs []error
	for i, d := range l.items {
		if err := d.Release(ctx); err != nil {
			errs = append(errs, err)
		}
		l.items[i] = nil
	}
	l.items = l.items[:0]
	return errs
}
