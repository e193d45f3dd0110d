package ads

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/chewxy/math32"
	"github.com/itohio/btadc/pkg/config"
)

// ErrNoDevice is returned by Mock.Begin when configured to fail.
var ErrNoDevice = errors.New("ads1115: device not found")

// Mock simulates an ADS1115 for testing and development. Every channel
// carries offset + amplitude*sin(2*pi*f*t) plus a small deterministic ripple,
// and a new conversion becomes ready once per data-rate period.
type Mock struct {
	cfg *config.MockConfig
	now func() time.Time

	mu        sync.Mutex
	started   bool
	startTime time.Time
	lastRead  time.Time
	gain      Gain
	rate      DataRate
}

// NewMock creates a new simulated converter.
func NewMock(cfg *config.MockConfig) *Mock {
	if cfg == nil {
		def := config.Default().Mock
		cfg = &def
	}
	return &Mock{
		cfg:  cfg,
		now:  time.Now,
		gain: GainTwoThirds,
		rate: Rate128,
	}
}

// Begin simulates probing the bus.
func (m *Mock) Begin() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg.FailInit {
		return ErrNoDevice
	}
	m.started = true
	m.startTime = m.now()
	m.lastRead = m.startTime
	return nil
}

// SetGain sets the simulated full-scale range.
func (m *Mock) SetGain(g Gain) {
	if g.MilliVolts() == 0 {
		return
	}
	m.mu.Lock()
	m.gain = g
	m.mu.Unlock()
}

// SetDataRate sets the simulated conversion rate.
func (m *Mock) SetDataRate(r DataRate) {
	if !r.Valid() {
		return
	}
	m.mu.Lock()
	m.rate = r
	m.mu.Unlock()
}

// ConversionComplete reports whether a data-rate period has elapsed since the
// last read.
func (m *Mock) ConversionComplete() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return false
	}
	return m.now().Sub(m.lastRead) >= m.rate.Period()
}

// ReadSingleEnded returns the simulated raw code for ch.
func (m *Mock) ReadSingleEnded(ch Channel) (int16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return 0, ErrNotStarted
	}
	if ch > Channel3 {
		return 0, fmt.Errorf("invalid channel %d", ch)
	}

	now := m.now()
	m.lastRead = now
	t := float32(now.Sub(m.startTime).Seconds())

	v := pick(m.cfg.Offset, ch) +
		pick(m.cfg.Amplitude, ch)*math32.Sin(2*math32.Pi*pick(m.cfg.Frequency, ch)*t)

	// Ripple stands in for noise but keeps readings reproducible.
	v += (math32.Sin(t*977) + math32.Cos(t*1291)) * float32(m.cfg.NoiseLevel) * 0.5

	return m.toRaw(v), nil
}

// ComputeVolts converts a raw code using the simulated gain.
func (m *Mock) ComputeVolts(raw int16) float32 {
	m.mu.Lock()
	g := m.gain
	m.mu.Unlock()
	return g.Volts(raw)
}

// toRaw converts volts to a clamped 16-bit code. Caller holds mu.
func (m *Mock) toRaw(v float32) int16 {
	code := math32.Round(v / m.gain.FullScale() * 32768)
	if code > math.MaxInt16 {
		return math.MaxInt16
	}
	if code < math.MinInt16 {
		return math.MinInt16
	}
	return int16(code)
}

func pick(values []float64, ch Channel) float32 {
	if int(ch) < len(values) {
		return float32(values[ch])
	}
	return 0
}
