package object

import "time"

const (
	LRUBits       = 24
	LRUClockMax   = 1<<LRUBits - 1
	LRUResolution = 1000 // milliseconds per LRU clock tick

	LFUInitVal   = 5
	LFUDecayTime = 1 // minutes per counter decrement
)

// LRUClock returns the LRU clock for now.
func LRUClock(now time.Time) uint32 {
	return uint32(now.UnixMilli()/LRUResolution) & LRUClockMax
}

// LFUTimeInMinutes returns the 16 bit minute clock stored with LFU
// counters.
func LFUTimeInMinutes(now time.Time) uint32 {
	return uint32(now.Unix()/60) & 65535
}

// InitAccess stamps a new object with the access metadata of policy.
func (o *Object) InitAccess(policy EvictionPolicy, now time.Time) {
	if policy.IsLFU() {
		o.LRU = LFUTimeInMinutes(now)<<8 | LFUInitVal
		return
	}
	o.LRU = LRUClock(now)
}

// IdleTime estimates how long ago the object was last accessed. It is
// meaningful only when the object carries an LRU clock.
func (o *Object) IdleTime(now time.Time) time.Duration {
	clock := LRUClock(now)
	var ticks uint32
	if clock >= o.LRU {
		ticks = clock - o.LRU
	} else {
		ticks = clock + (LRUClockMax - o.LRU)
	}
	return time.Duration(ticks) * LRUResolution * time.Millisecond
}

// SetIdle sets the LRU clock so that IdleTime reports idle.
func (o *Object) SetIdle(idle time.Duration, now time.Time) {
	clock := int64(LRUClock(now))
	abs := clock - idle.Milliseconds()/LRUResolution
	if abs < 0 {
		abs = (clock + LRUClockMax/2) % LRUClockMax
	}
	o.LRU = uint32(abs)
}

// LFUCounter returns the access counter after applying the decay for the
// minutes elapsed since it was last updated.
func (o *Object) LFUCounter(now time.Time) uint8 {
	ldt := o.LRU >> 8
	counter := o.LRU & 255
	nowMin := LFUTimeInMinutes(now)
	var elapsed uint32
	if nowMin >= ldt {
		elapsed = nowMin - ldt
	} else {
		elapsed = 65535 - ldt + nowMin
	}
	if periods := elapsed / LFUDecayTime; periods > 0 {
		if periods > counter {
			counter = 0
		} else {
			counter -= periods
		}
	}
	return uint8(counter)
}

// SetLFU stores freq as the access counter, stamped with the current
// minute.
func (o *Object) SetLFU(freq uint8, now time.Time) {
	o.LRU = LFUTimeInMinutes(now)<<8 | uint32(freq)
}
