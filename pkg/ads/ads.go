// Package ads describes the ADS1115 analog-to-digital converter as consumed by
// the acquisition loop, together with a periph.io backed driver and a
// simulated converter.
package ads

import (
	"fmt"
	"time"
)

// Channel is a single-ended ADS1115 input.
type Channel uint8

const (
	Channel0 Channel = iota
	Channel1
	Channel2
	Channel3
)

// Channels lists the inputs read on every accepted sample, in transmit order.
var Channels = [3]Channel{Channel0, Channel1, Channel2}

// Gain selects the programmable gain amplifier setting.
type Gain uint8

const (
	GainTwoThirds Gain = iota // +/-6.144V
	GainOne                   // +/-4.096V
	GainTwo                   // +/-2.048V
	GainFour                  // +/-1.024V
	GainEight                 // +/-0.512V
	GainSixteen               // +/-0.256V
)

// DefaultGain is the fixed gain used by the bridge.
const DefaultGain = GainOne

// MilliVolts returns the magnitude of the full-scale range in millivolts.
func (g Gain) MilliVolts() int {
	switch g {
	case GainTwoThirds:
		return 6144
	case GainOne:
		return 4096
	case GainTwo:
		return 2048
	case GainFour:
		return 1024
	case GainEight:
		return 512
	case GainSixteen:
		return 256
	}
	return 0
}

// FullScale returns the magnitude of the full-scale range in volts.
func (g Gain) FullScale() float32 {
	return float32(g.MilliVolts()) / 1000
}

// Volts converts a raw 16-bit conversion code to volts.
// Formula: V = raw * FSR / 32768
func (g Gain) Volts(raw int16) float32 {
	return float32(raw) * (g.FullScale() / 32768)
}

func (g Gain) String() string {
	return fmt.Sprintf("+/-%.3fV", g.FullScale())
}

// DataRate is the continuous conversion rate in samples per second.
type DataRate uint16

const (
	Rate8   DataRate = 8
	Rate16  DataRate = 16
	Rate32  DataRate = 32
	Rate64  DataRate = 64
	Rate128 DataRate = 128
	Rate250 DataRate = 250
	Rate475 DataRate = 475
	Rate860 DataRate = 860
)

// DefaultDataRate is the fixed data rate used by the bridge.
const DefaultDataRate = Rate250

// Valid reports whether the rate is one the ADS1115 supports.
func (r DataRate) Valid() bool {
	switch r {
	case Rate8, Rate16, Rate32, Rate64, Rate128, Rate250, Rate475, Rate860:
		return true
	}
	return false
}

// Period returns the time between two conversions.
func (r DataRate) Period() time.Duration {
	if r == 0 {
		return 0
	}
	return time.Second / time.Duration(r)
}

// Converter is the subset of the ADS1115 driver the acquisition loop uses.
// SetGain and SetDataRate are fire-and-forget; an unsupported value leaves the
// previous setting in place.
type Converter interface {
	Begin() error
	SetGain(g Gain)
	SetDataRate(r DataRate)
	ConversionComplete() bool
	ReadSingleEnded(ch Channel) (int16, error)
	ComputeVolts(raw int16) float32
}

// Ensure ADS1115 implements Converter.
var _ Converter = (*ADS1115)(nil)

// Ensure Mock implements Converter.
var _ Converter = (*Mock)(nil)
