// Package acquire bridges ADS1115 conversions to a wireless serial endpoint,
// one comma-separated line of channel voltages per completed conversion.
package acquire

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/itohio/btadc/pkg/ads"
	"github.com/itohio/btadc/pkg/config"
	"github.com/itohio/btadc/pkg/diag"
	"github.com/itohio/btadc/pkg/link"
	"github.com/rs/zerolog/log"
)

// InitFailureMessage is printed on the console when the converter is missing.
const InitFailureMessage = "Failed to initialize ADS1115!"

// ErrADCInit is returned by Setup and Run when the converter did not start.
var ErrADCInit = errors.New("failed to initialize ADS1115")

// Options contains loop parameters that are not wired hardware.
type Options struct {
	Name         string        // Advertised device name
	PollInterval time.Duration // Pause between ticks, 0 busy-polls
	Precision    int           // Decimal places per voltage, -1 for shortest
}

// DefaultOptions returns the options matching the stock firmware behavior.
func DefaultOptions() Options {
	return Options{
		Name:         config.DefaultDeviceName,
		PollInterval: 0,
		Precision:    -1,
	}
}

// Loop owns the converter, the endpoint and the acquisition state.
// It is not safe for concurrent use; Stats may be read from any goroutine.
type Loop struct {
	adc     ads.Converter
	link    link.Endpoint
	console *diag.Console
	opts    Options

	starting bool
	halted   bool
	stats    Stats
}

// New creates a loop. A nil console discards diagnostic output.
func New(adc ads.Converter, ep link.Endpoint, console *diag.Console, opts Options) *Loop {
	if console == nil {
		console = diag.New(io.Discard)
	}
	if opts.Name == "" {
		opts.Name = config.DefaultDeviceName
	}
	return &Loop{
		adc:      adc,
		link:     ep,
		console:  console,
		opts:     opts,
		starting: true,
	}
}

// Setup advertises the endpoint and configures the converter. When the
// converter does not start it prints InitFailureMessage, marks the loop halted
// and returns ErrADCInit; a halted loop never ticks.
func (l *Loop) Setup() error {
	if err := l.link.Begin(l.opts.Name); err != nil {
		log.Debug().Err(err).Str("name", l.opts.Name).Msg("endpoint did not start")
	}
	l.console.Println(`Bluetooth device started. Pair with "` + l.opts.Name + `".`)

	if err := l.adc.Begin(); err != nil {
		l.console.Println(InitFailureMessage)
		l.halted = true
		log.Error().Err(err).Msg("converter did not start, halting")
		return ErrADCInit
	}

	l.adc.SetGain(ads.DefaultGain)
	l.adc.SetDataRate(ads.DefaultDataRate)
	return nil
}

// Tick runs one loop pass. It reads and publishes a sample only when the
// converter has a completed conversion or no sample was taken yet; every
// other pass is a no-op. The returned bool reports whether a sample was
// published.
func (l *Loop) Tick() (Sample, bool) {
	if l.halted {
		return Sample{}, false
	}
	l.stats.ticks.Add(1)

	if !l.adc.ConversionComplete() && !l.starting {
		l.stats.skipped.Add(1)
		return Sample{}, false
	}

	var s Sample
	for i, ch := range ads.Channels {
		raw, err := l.adc.ReadSingleEnded(ch)
		if err != nil {
			l.stats.readErrors.Add(1)
			log.Warn().Err(err).Uint8("channel", uint8(ch)).Msg("dropping sample")
			return Sample{}, false
		}
		s.Raw[i] = raw
		s.Volts[i] = l.adc.ComputeVolts(raw)
	}

	l.console.Println(s.Raw[0])

	if err := l.link.Println(s.Record(l.opts.Precision)); err != nil {
		l.stats.linkErrors.Add(1)
		log.Trace().Err(err).Msg("sample not delivered")
	}

	l.starting = false
	l.stats.samples.Add(1)
	return s, true
}

// Run sets the loop up and ticks until ctx is cancelled. If the converter
// does not start, Run halts until ctx is cancelled and returns ErrADCInit.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.Setup(); err != nil {
		l.Halt(ctx)
		return err
	}

	log.Info().
		Str("name", l.opts.Name).
		Stringer("gain", ads.DefaultGain).
		Uint16("rate", uint16(ads.DefaultDataRate)).
		Dur("poll", l.opts.PollInterval).
		Msg("acquisition started")

	var tick <-chan time.Time
	if l.opts.PollInterval > 0 {
		ticker := time.NewTicker(l.opts.PollInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		if tick == nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
		} else {
			select {
			case <-ctx.Done():
				return nil
			case <-tick:
			}
		}
		l.Tick()
	}
}

// Halt blocks until ctx is cancelled. It is the terminal state after a fatal
// setup error and does not spin.
func (l *Loop) Halt(ctx context.Context) {
	l.halted = true
	<-ctx.Done()
}

// Starting reports whether no sample has been published yet.
func (l *Loop) Starting() bool {
	return l.starting
}

// Halted reports whether the loop reached its terminal state.
func (l *Loop) Halted() bool {
	return l.halted
}

// Stats returns the loop counters.
func (l *Loop) Stats() *Stats {
	return &l.stats
}
