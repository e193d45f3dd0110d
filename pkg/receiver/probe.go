package receiver

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultProbeTimeout is how long a port gets to produce a sample line.
	DefaultProbeTimeout = time.Second

	probeReadTimeout = 100 * time.Millisecond
	maxProbeLine     = 256
)

var (
	// ErrDeviceNotFound is returned when no probed port carries the stream.
	ErrDeviceNotFound = errors.New("device not found on any port")
	// ErrProbeTimeout is returned when a port stays silent.
	ErrProbeTimeout = errors.New("no sample line before timeout")
)

// Prober identifies which serial port carries the sample stream.
type Prober struct {
	Baud    int
	Timeout time.Duration

	open func(name string, baud int) (Port, error)
	now  func() time.Time
}

// NewProber creates a prober with the given baud rate and per-port timeout.
func NewProber(baud int, timeout time.Duration) *Prober {
	if baud == 0 {
		baud = DefaultBaudRate
	}
	if timeout == 0 {
		timeout = DefaultProbeTimeout
	}
	return &Prober{
		Baud:    baud,
		Timeout: timeout,
		open:    openSerial,
		now:     time.Now,
	}
}

// Probe opens port and waits for one well-formed sample line.
func (p *Prober) Probe(port string) error {
	conn, err := p.open(port, p.Baud)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.SetReadTimeout(probeReadTimeout); err != nil {
		return fmt.Errorf("failed to set read timeout on %s: %w", port, err)
	}

	line, err := p.identify(conn)
	if err != nil {
		return fmt.Errorf("%s: %w", port, err)
	}
	log.Debug().Str("port", port).Str("line", line).Msg("probe matched")
	return nil
}

// Discover probes ports in order and returns the first one carrying the
// stream. With no ports given it probes every port on the system.
func (p *Prober) Discover(ports []string) (string, error) {
	if len(ports) == 0 {
		var err error
		ports, err = Ports()
		if err != nil {
			return "", err
		}
	}

	for _, port := range ports {
		if err := p.Probe(port); err != nil {
			log.Debug().Err(err).Str("port", port).Msg("probe failed")
			continue
		}
		log.Info().Str("port", port).Msg("found device")
		return port, nil
	}
	return "", ErrDeviceNotFound
}

// identify reads from r until a complete line parses as a sample or the
// timeout expires. Reads returning no data count as idle polls.
func (p *Prober) identify(r io.Reader) (string, error) {
	deadline := p.now().Add(p.Timeout)

	var buf [64]byte
	var line []byte
	for p.now().Before(deadline) {
		n, err := r.Read(buf[:])
		for _, c := range buf[:n] {
			if c != '\n' {
				if len(line) < maxProbeLine {
					line = append(line, c)
				}
				continue
			}
			candidate := string(bytes.TrimSpace(line))
			line = line[:0]
			if _, perr := ParseLine(candidate); perr == nil {
				return candidate, nil
			}
		}
		if err != nil {
			return "", err
		}
	}
	return "", ErrProbeTimeout
}
