package receiver

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepClock advances by step on every call.
type stepClock struct {
	t    time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	now := c.t
	c.t = c.t.Add(c.step)
	return now
}

func newTestProber(ports map[string]*fakePort) *Prober {
	p := NewProber(0, 0)
	clock := &stepClock{t: time.Unix(1700000000, 0), step: probeReadTimeout}
	p.now = clock.Now
	p.open = func(name string, baud int) (Port, error) {
		port, ok := ports[name]
		if !ok {
			return nil, errors.New("no such port")
		}
		return port, nil
	}
	return p
}

func TestNewProber_Defaults(t *testing.T) {
	p := NewProber(0, 0)
	assert.Equal(t, DefaultBaudRate, p.Baud)
	assert.Equal(t, DefaultProbeTimeout, p.Timeout)
}

func TestProbe(t *testing.T) {
	tests := []struct {
		name    string
		stream  string
		wantErr error
	}{
		{"sample line", "1.2,0.8,2.4\n", nil},
		{"partial line first", ",0.8,2.4\n1.2,0.8,2.4\n", nil},
		{"debug lines then sample", "Bluetooth device started.\n16384\n0,0,0\n", nil},
		{"silent port", "", ErrProbeTimeout},
		{"wrong protocol", "AT+OK\nREADY\n", ErrProbeTimeout},
		{"unterminated line", "1.2,0.8,2.4", ErrProbeTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port := &fakePort{r: strings.NewReader(tt.stream), idle: true}
			p := newTestProber(map[string]*fakePort{"/dev/rfcomm0": port})

			err := p.Probe("/dev/rfcomm0")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.True(t, port.closed, "probe always closes the port")
			assert.Equal(t, probeReadTimeout, port.readTimeout)
		})
	}
}

func TestProbe_OpenError(t *testing.T) {
	p := newTestProber(nil)
	assert.Error(t, p.Probe("/dev/missing"))
}

func TestDiscover(t *testing.T) {
	ports := map[string]*fakePort{
		"/dev/ttyS0":   {r: strings.NewReader(""), idle: true},
		"/dev/ttyUSB0": {r: strings.NewReader("hello\n"), idle: true},
		"/dev/rfcomm0": {r: strings.NewReader("0.5,1,2\n"), idle: true},
	}
	p := newTestProber(ports)

	port, err := p.Discover([]string{"/dev/ttyS0", "/dev/missing", "/dev/ttyUSB0", "/dev/rfcomm0"})
	require.NoError(t, err)
	assert.Equal(t, "/dev/rfcomm0", port)
}

func TestDiscover_NotFound(t *testing.T) {
	ports := map[string]*fakePort{
		"/dev/ttyS0": {r: strings.NewReader(""), idle: true},
	}
	p := newTestProber(ports)

	_, err := p.Discover([]string{"/dev/ttyS0"})
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}
