package acquire

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// Sample is one accepted conversion of channels 0, 1 and 2.
type Sample struct {
	Raw   [3]int16
	Volts [3]float32
}

// Record formats the sample as it is sent on the endpoint.
func (s Sample) Record(precision int) string {
	return FormatRecord(s.Volts, precision)
}

// FormatRecord joins the voltages with commas in channel order.
// Format: v0,v1,v2
// Example: 1.2,0.87,2.45
// A negative precision uses the shortest representation that round-trips.
func FormatRecord(volts [3]float32, precision int) string {
	var b strings.Builder
	for i, v := range volts {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', precision, 32))
	}
	return b.String()
}

// Stats counts loop activity.
type Stats struct {
	ticks      atomic.Uint64
	samples    atomic.Uint64
	skipped    atomic.Uint64
	readErrors atomic.Uint64
	linkErrors atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Ticks      uint64 // Loop passes
	Samples    uint64 // Samples read and handed to the endpoint
	Skipped    uint64 // Passes without a completed conversion
	ReadErrors uint64 // Samples dropped on converter errors
	LinkErrors uint64 // Samples the endpoint reported as undelivered
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Ticks:      s.ticks.Load(),
		Samples:    s.samples.Load(),
		Skipped:    s.skipped.Load(),
		ReadErrors: s.readErrors.Load(),
		LinkErrors: s.linkErrors.Load(),
	}
}
