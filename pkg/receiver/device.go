// Package receiver reads the comma-separated voltage stream published by the
// bridge on the host side of the Bluetooth serial link.
package receiver

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
)

const (
	// DefaultBaudRate matches the bridge console and RFCOMM tty settings.
	DefaultBaudRate = 115200
	// DefaultBufferSize is the default size for the samples channel buffer.
	DefaultBufferSize = 100
)

// Record is one received line: channel 0, 1 and 2 voltages.
type Record struct {
	Timestamp time.Time // Host receive time
	Volts     [3]float64
}

// Serial represents a connection to the bridge over a serial port.
type Serial struct {
	port     string
	baudRate int
	bufSize  int
	open     func(name string, baud int) (Port, error)

	conn      Port
	samples   chan Record
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool
}

// New creates a new Serial instance with the specified port, baud rate, and buffer size.
func New(port string, baudRate int, bufSize int) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if bufSize == 0 {
		bufSize = DefaultBufferSize
	}

	samples := make(chan Record, bufSize)
	close(samples)

	return &Serial{
		port:     port,
		baudRate: baudRate,
		bufSize:  bufSize,
		open:     openSerial,
		samples:  samples,
	}
}

// Ports returns the names of available serial ports.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}

// Connect opens the serial port, discards stale input and starts reading
// samples. Each connection gets a fresh samples channel, so Samples must be
// called after Connect.
func (d *Serial) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return fmt.Errorf("already connected")
	}

	port, err := d.open(d.port, d.baudRate)
	if err != nil {
		return err
	}
	if err := port.ResetInputBuffer(); err != nil {
		log.Warn().Err(err).Str("port", d.port).Msg("failed to reset input buffer")
	}

	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.samples = make(chan Record, d.bufSize)
	d.conn = port
	d.connected = true

	go readRecords(d.ctx, port, d.samples)

	return nil
}

// Close closes the connection and stops reading samples.
func (d *Serial) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}

	d.cancel()

	if d.conn != nil {
		if err := d.conn.Close(); err != nil {
			log.Warn().Err(err).Str("port", d.port).Msg("error closing serial port")
		}
		d.conn = nil
	}

	d.connected = false

	return nil
}

// Samples returns the channel for reading samples of the current connection.
// It is closed once the reader stops; before the first Connect it is already
// closed.
func (d *Serial) Samples() <-chan Record {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.samples
}

// IsConnected returns whether the device is currently connected.
func (d *Serial) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

func openSerial(name string, baud int) (Port, error) {
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", name, err)
	}
	// DTR low keeps USB-serial bridges from resetting the board.
	if err := port.SetDTR(false); err != nil {
		log.Debug().Err(err).Str("port", name).Msg("failed to clear DTR")
	}
	return port, nil
}

// readRecords parses lines from r into out until r fails or ctx is done,
// then closes out.
func readRecords(ctx context.Context, r io.Reader, out chan<- Record) {
	defer close(out)
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("panic in readRecords")
		}
	}()

	scanner := bufio.NewScanner(r)
	for {
		select {
		case <-ctx.Done():
			return
		default:
			if !scanner.Scan() {
				if err := scanner.Err(); err != nil && ctx.Err() == nil {
					log.Warn().Err(err).Msg("error reading samples")
				}
				return
			}

			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}

			rec, err := ParseLine(line)
			if err != nil {
				log.Debug().Err(err).Str("line", line).Msg("failed to parse line")
				continue
			}
			rec.Timestamp = time.Now()

			select {
			case out <- rec:
			case <-ctx.Done():
				return
			default:
				log.Warn().Msg("samples channel full, dropping sample")
			}
		}
	}
}

// ParseLine parses a line published by the bridge.
// Format: v0,v1,v2
// Example: 1.23,0.87,2.45
func ParseLine(line string) (Record, error) {
	parts := strings.Split(strings.TrimSpace(line), ",")
	if len(parts) != 3 {
		return Record{}, fmt.Errorf("invalid line format: expected 3 comma-separated values, got %d", len(parts))
	}

	var rec Record
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return Record{}, fmt.Errorf("invalid channel %d value: %w", i, err)
		}
		rec.Volts[i] = v
	}
	return rec, nil
}
