package acquire

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/itohio/btadc/pkg/ads"
	"github.com/itohio/btadc/pkg/config"
	"github.com/itohio/btadc/pkg/diag"
	"github.com/itohio/btadc/pkg/link"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedADC is a converter whose ready flag and codes are set by the test.
type scriptedADC struct {
	beginErr error
	ready    []bool // consumed one per ConversionComplete call; false once empty
	codes    map[ads.Channel]int16
	readErr  map[ads.Channel]error

	gain      ads.Gain
	rate      ads.DataRate
	readOrder []ads.Channel
	polls     int
}

func newScriptedADC() *scriptedADC {
	return &scriptedADC{
		codes: map[ads.Channel]int16{
			ads.Channel0: 16384,
			ads.Channel1: 8192,
			ads.Channel2: -4096,
		},
		readErr: map[ads.Channel]error{},
	}
}

func (a *scriptedADC) Begin() error { return a.beginErr }

func (a *scriptedADC) SetGain(g ads.Gain) { a.gain = g }

func (a *scriptedADC) SetDataRate(r ads.DataRate) { a.rate = r }

func (a *scriptedADC) ConversionComplete() bool {
	a.polls++
	if len(a.ready) == 0 {
		return false
	}
	r := a.ready[0]
	a.ready = a.ready[1:]
	return r
}

func (a *scriptedADC) ReadSingleEnded(ch ads.Channel) (int16, error) {
	a.readOrder = append(a.readOrder, ch)
	if err := a.readErr[ch]; err != nil {
		return 0, err
	}
	return a.codes[ch], nil
}

func (a *scriptedADC) ComputeVolts(raw int16) float32 {
	return a.gain.Volts(raw)
}

// recordingLink captures published lines.
type recordingLink struct {
	name     string
	beginErr error
	sendErr  error
	lines    []string
}

func (r *recordingLink) Begin(name string) error {
	r.name = name
	return r.beginErr
}

func (r *recordingLink) Println(line string) error {
	r.lines = append(r.lines, line)
	return r.sendErr
}

func newTestLoop(adc ads.Converter, ep link.Endpoint) (*Loop, *bytes.Buffer) {
	var console bytes.Buffer
	return New(adc, ep, diag.New(&console), DefaultOptions()), &console
}

func TestSetup(t *testing.T) {
	adc := newScriptedADC()
	ep := &recordingLink{}
	loop, console := newTestLoop(adc, ep)

	require.NoError(t, loop.Setup())

	assert.Equal(t, "ESP32-BT", ep.name)
	assert.Equal(t, ads.GainOne, adc.gain)
	assert.Equal(t, ads.Rate250, adc.rate)
	assert.Equal(t, "Bluetooth device started. Pair with \"ESP32-BT\".\n", console.String())
	assert.True(t, loop.Starting())
	assert.False(t, loop.Halted())
}

func TestSetup_EndpointFailureIgnored(t *testing.T) {
	adc := newScriptedADC()
	ep := &recordingLink{beginErr: errors.New("no adapter")}
	loop, _ := newTestLoop(adc, ep)

	require.NoError(t, loop.Setup())

	_, ok := loop.Tick()
	assert.True(t, ok)
	assert.Len(t, ep.lines, 1)
}

func TestSetup_ADCFailure(t *testing.T) {
	adc := newScriptedADC()
	adc.beginErr = errors.New("nack")
	adc.ready = []bool{true, true}
	ep := &recordingLink{}
	loop, console := newTestLoop(adc, ep)

	err := loop.Setup()
	assert.ErrorIs(t, err, ErrADCInit)
	assert.True(t, loop.Halted())
	assert.True(t, strings.HasSuffix(console.String(), "Failed to initialize ADS1115!\n"))
	before := console.String()

	// A halted loop never reads or publishes.
	for i := 0; i < 5; i++ {
		_, ok := loop.Tick()
		assert.False(t, ok)
	}
	assert.Empty(t, ep.lines)
	assert.Empty(t, adc.readOrder)
	assert.Zero(t, adc.polls)
	assert.Equal(t, before, console.String())
	assert.Zero(t, loop.Stats().Snapshot().Ticks)
}

func TestTick_FirstPassWithoutConversion(t *testing.T) {
	adc := newScriptedADC()
	ep := &recordingLink{}
	loop, _ := newTestLoop(adc, ep)
	require.NoError(t, loop.Setup())

	s, ok := loop.Tick()
	require.True(t, ok, "first pass publishes even when no conversion is ready")
	assert.Equal(t, [3]int16{16384, 8192, -4096}, s.Raw)
	assert.False(t, loop.Starting())

	for i := 0; i < 10; i++ {
		_, ok := loop.Tick()
		assert.False(t, ok)
		assert.False(t, loop.Starting())
	}
	assert.Len(t, ep.lines, 1)
}

func TestTick_Gate(t *testing.T) {
	ready := []bool{false, true, false, false, true, true, false, true}
	adc := newScriptedADC()
	adc.ready = append([]bool(nil), ready...)
	ep := &recordingLink{}
	loop, _ := newTestLoop(adc, ep)
	require.NoError(t, loop.Setup())

	for i, r := range ready {
		_, ok := loop.Tick()
		want := r || i == 0
		assert.Equal(t, want, ok, "pass %d", i)
	}

	// passes 0, 1, 4, 5, 7
	assert.Len(t, ep.lines, 5)
	snap := loop.Stats().Snapshot()
	assert.Equal(t, uint64(len(ready)), snap.Ticks)
	assert.Equal(t, uint64(5), snap.Samples)
	assert.Equal(t, uint64(3), snap.Skipped)
}

func TestTick_RecordAndConsole(t *testing.T) {
	adc := newScriptedADC()
	ep := &recordingLink{}
	loop, console := newTestLoop(adc, ep)
	require.NoError(t, loop.Setup())
	console.Reset()

	s, ok := loop.Tick()
	require.True(t, ok)

	assert.Equal(t, [3]float32{2.048, 1.024, -0.512}, s.Volts)
	assert.Equal(t, []string{"2.048,1.024,-0.512"}, ep.lines)
	assert.Equal(t, "16384\n", console.String(), "only the raw channel 0 code is printed")
}

func TestTick_ChannelOrder(t *testing.T) {
	adc := newScriptedADC()
	adc.ready = []bool{true, true}
	ep := &recordingLink{}
	loop, _ := newTestLoop(adc, ep)
	require.NoError(t, loop.Setup())

	loop.Tick()
	loop.Tick()
	loop.Tick()

	assert.Equal(t, []ads.Channel{0, 1, 2, 0, 1, 2, 0, 1, 2}, adc.readOrder)
}

func TestTick_LinkErrorIgnored(t *testing.T) {
	adc := newScriptedADC()
	adc.ready = []bool{true, true}
	ep := &recordingLink{sendErr: link.ErrNotConnected}
	loop, _ := newTestLoop(adc, ep)
	require.NoError(t, loop.Setup())

	_, ok := loop.Tick()
	assert.True(t, ok)
	assert.False(t, loop.Starting())

	_, ok = loop.Tick()
	assert.True(t, ok)
	assert.Len(t, ep.lines, 2, "undelivered samples are never resent")
	assert.Equal(t, uint64(2), loop.Stats().Snapshot().LinkErrors)
}

func TestTick_ReadErrorKeepsStarting(t *testing.T) {
	adc := newScriptedADC()
	adc.readErr[ads.Channel1] = errors.New("bus timeout")
	ep := &recordingLink{}
	loop, console := newTestLoop(adc, ep)
	require.NoError(t, loop.Setup())
	console.Reset()

	_, ok := loop.Tick()
	assert.False(t, ok)
	assert.True(t, loop.Starting())
	assert.Empty(t, ep.lines)
	assert.Empty(t, console.String())

	delete(adc.readErr, ads.Channel1)
	_, ok = loop.Tick()
	assert.True(t, ok, "first sample is still taken once reads recover")
	assert.Equal(t, uint64(1), loop.Stats().Snapshot().ReadErrors)
}

func TestTick_Precision(t *testing.T) {
	adc := newScriptedADC()
	ep := &recordingLink{}
	opts := DefaultOptions()
	opts.Precision = 2
	loop := New(adc, ep, nil, opts)
	require.NoError(t, loop.Setup())

	loop.Tick()
	assert.Equal(t, []string{"2.05,1.02,-0.51"}, ep.lines)
}

func TestRun_ADCFailureHalts(t *testing.T) {
	adc := newScriptedADC()
	adc.beginErr = errors.New("nack")
	ep := &recordingLink{}
	loop, _ := newTestLoop(adc, ep)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- loop.Run(ctx)
	}()

	select {
	case err := <-done:
		t.Fatalf("Run returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrADCInit)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	assert.True(t, loop.Halted())
	assert.Empty(t, ep.lines)
	assert.Empty(t, adc.readOrder)
}

func TestRun_PublishesUntilCancelled(t *testing.T) {
	mock := ads.NewMock(&config.MockConfig{
		Amplitude: []float64{0, 0, 0},
		Offset:    []float64{0.5, 1, 2},
		Frequency: []float64{1, 1, 1},
	})
	var out bytes.Buffer
	opts := DefaultOptions()
	opts.PollInterval = time.Millisecond
	loop := New(mock, link.NewWriter(&out), nil, opts)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	require.NoError(t, loop.Run(ctx))

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	require.NotEmpty(t, lines)
	for _, line := range lines {
		assert.Equal(t, "0.5,1,2", line)
	}
	// 250 SPS over 100ms caps the published samples well below the poll count.
	snap := loop.Stats().Snapshot()
	assert.LessOrEqual(t, snap.Samples, uint64(30))
	assert.Equal(t, snap.Samples, uint64(len(lines)))
}

func TestFormatRecord(t *testing.T) {
	tests := []struct {
		name      string
		volts     [3]float32
		precision int
		want      string
	}{
		{"shortest", [3]float32{2.048, 0.5, 0}, -1, "2.048,0.5,0"},
		{"negative", [3]float32{-1.25, -0.001, 4.096}, -1, "-1.25,-0.001,4.096"},
		{"two decimals", [3]float32{1.234, 0.875, 2.45}, 2, "1.23,0.88,2.45"},
		{"zero decimals", [3]float32{1.6, 0.4, 3}, 0, "2,0,3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatRecord(tt.volts, tt.precision)
			assert.Equal(t, tt.want, got)
			assert.Len(t, strings.Split(got, ","), 3)
			assert.Equal(t, strings.TrimSpace(got), got)
		})
	}
}

func TestFormatRecord_RoundTrips(t *testing.T) {
	for raw := -32768; raw <= 32767; raw += 997 {
		v := ads.DefaultGain.Volts(int16(raw))
		got := FormatRecord([3]float32{v, v, v}, -1)
		var a, b, c float32
		_, err := fmt.Sscanf(got, "%g,%g,%g", &a, &b, &c)
		require.NoError(t, err, got)
		assert.Equal(t, v, a)
		assert.Equal(t, v, c)
	}
}
