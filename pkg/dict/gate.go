package dict

import "sync/atomic"

// ForceResizeRatio is the load factor above which a table grows even while
// its ResizeGate is suspended.
const ForceResizeRatio = 5

// ResizeGate controls automatic growth for a group of tables that must be
// toggled together, such as a keyspace and its expiry index. A nil gate
// always allows resizing.
type ResizeGate struct {
	holds atomic.Int32
}

// NewResizeGate returns an open gate.
func NewResizeGate() *ResizeGate {
	return &ResizeGate{}
}

// Suspend disables automatic growth until the returned release func is
// called. Suspensions nest; release is idempotent.
func (g *ResizeGate) Suspend() (release func()) {
	g.holds.Add(1)
	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			g.holds.Add(-1)
		}
	}
}

// Enabled reports whether automatic resizing is currently allowed.
func (g *ResizeGate) Enabled() bool {
	return g == nil || g.holds.Load() == 0
}
