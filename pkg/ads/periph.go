package ads

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"
	"periph.io/x/host/v3"
)

const (
	// DefaultAddress is the I2C address with ADDR tied to GND.
	DefaultAddress = 0x48

	regConfig = 0x01
	// Operational status bit; set when no conversion is in progress.
	configOS = 0x80
)

// ErrNotStarted is returned when reading before a successful Begin.
var ErrNotStarted = errors.New("ads1115: not started")

// ADS1115 drives a real converter through periph.io.
type ADS1115 struct {
	busName string
	addr    uint16

	mu   sync.Mutex
	bus  i2c.BusCloser
	reg  i2c.Dev
	dev  *ads1x15.Dev
	pins map[Channel]ads1x15.PinADC

	gain Gain
	rate DataRate
}

// NewADS1115 creates a driver for the converter at addr on the named I2C bus.
// An empty busName opens the first bus available. No I/O happens until Begin.
func NewADS1115(busName string, addr uint16) *ADS1115 {
	if addr == 0 {
		addr = DefaultAddress
	}
	return &ADS1115{
		busName: busName,
		addr:    addr,
		pins:    make(map[Channel]ads1x15.PinADC),
		gain:    GainTwoThirds,
		rate:    Rate128,
	}
}

// Begin opens the bus and checks that the converter answers.
func (a *ADS1115) Begin() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize host drivers: %w", err)
	}

	bus, err := i2creg.Open(a.busName)
	if err != nil {
		return fmt.Errorf("failed to open I2C bus %q: %w", a.busName, err)
	}

	reg := i2c.Dev{Bus: bus, Addr: a.addr}
	var cfg [2]byte
	if err := reg.Tx([]byte{regConfig}, cfg[:]); err != nil {
		bus.Close()
		return fmt.Errorf("no ADS1115 at 0x%02x: %w", a.addr, err)
	}

	opts := ads1x15.DefaultOpts
	opts.I2cAddress = a.addr
	dev, err := ads1x15.NewADS1115(bus, &opts)
	if err != nil {
		bus.Close()
		return fmt.Errorf("failed to create ADS1115 driver: %w", err)
	}

	a.bus = bus
	a.reg = reg
	a.dev = dev
	return nil
}

// Close halts the converter and releases the bus.
func (a *ADS1115) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.bus == nil {
		return nil
	}
	a.haltPins()
	if err := a.dev.Halt(); err != nil {
		a.bus.Close()
		a.bus = nil
		return err
	}
	err := a.bus.Close()
	a.bus = nil
	return err
}

// SetGain sets the full-scale range used for subsequent conversions.
func (a *ADS1115) SetGain(g Gain) {
	if g.MilliVolts() == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.gain != g {
		a.gain = g
		a.haltPins()
	}
}

// SetDataRate sets the conversion rate used for subsequent conversions.
func (a *ADS1115) SetDataRate(r DataRate) {
	if !r.Valid() {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.rate != r {
		a.rate = r
		a.haltPins()
	}
}

// ConversionComplete reports whether the converter is idle with a result
// ready. Bus errors read as "not ready".
func (a *ADS1115) ConversionComplete() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.bus == nil {
		return false
	}
	var cfg [2]byte
	if err := a.reg.Tx([]byte{regConfig}, cfg[:]); err != nil {
		return false
	}
	return cfg[0]&configOS != 0
}

// ReadSingleEnded runs one conversion on ch and returns the raw code.
func (a *ADS1115) ReadSingleEnded(ch Channel) (int16, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.dev == nil {
		return 0, ErrNotStarted
	}

	pin, err := a.pin(ch)
	if err != nil {
		return 0, err
	}
	s, err := pin.Read()
	if err != nil {
		return 0, fmt.Errorf("failed to read channel %d: %w", ch, err)
	}
	return int16(s.Raw), nil
}

// ComputeVolts converts a raw code using the configured gain.
func (a *ADS1115) ComputeVolts(raw int16) float32 {
	a.mu.Lock()
	g := a.gain
	a.mu.Unlock()
	return g.Volts(raw)
}

// pin returns the cached periph pin for ch, creating it for the current gain
// and rate when needed. Caller holds mu.
func (a *ADS1115) pin(ch Channel) (ads1x15.PinADC, error) {
	if p, ok := a.pins[ch]; ok {
		return p, nil
	}

	var c ads1x15.Channel
	switch ch {
	case Channel0:
		c = ads1x15.Channel0
	case Channel1:
		c = ads1x15.Channel1
	case Channel2:
		c = ads1x15.Channel2
	case Channel3:
		c = ads1x15.Channel3
	default:
		return nil, fmt.Errorf("invalid channel %d", ch)
	}

	maxVoltage := physic.ElectricPotential(a.gain.MilliVolts()) * physic.MilliVolt
	freq := physic.Frequency(a.rate) * physic.Hertz

	p, err := a.dev.PinForChannel(c, maxVoltage, freq, ads1x15.SaveEnergy)
	if err != nil {
		return nil, fmt.Errorf("failed to configure channel %d: %w", ch, err)
	}
	a.pins[ch] = p
	return p, nil
}

// haltPins drops cached pins so the next read picks up new settings.
// Caller holds mu.
func (a *ADS1115) haltPins() {
	for ch, p := range a.pins {
		p.Halt()
		delete(a.pins, ch)
	}
}
