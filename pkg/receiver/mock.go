package receiver

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/itohio/btadc/pkg/acquire"
	"github.com/itohio/btadc/pkg/ads"
	"github.com/itohio/btadc/pkg/config"
	"github.com/itohio/btadc/pkg/link"
	"github.com/rs/zerolog/log"
)

// Mock runs a bridge loop over a simulated converter in-process and reads
// its output through a pipe, for development without hardware.
type Mock struct {
	cfg *config.MockConfig

	samples   chan Record
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	pr        *io.PipeReader
	connected bool
}

// NewMock creates a new mocked device instance.
func NewMock(cfg *config.MockConfig) *Mock {
	if cfg == nil {
		def := config.Default().Mock
		cfg = &def
	}

	samples := make(chan Record, DefaultBufferSize)
	close(samples)

	return &Mock{
		cfg:     cfg,
		samples: samples,
	}
}

// Connect starts the simulated bridge on a fresh samples channel.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}

	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.samples = make(chan Record, DefaultBufferSize)

	pr, pw := io.Pipe()
	opts := acquire.DefaultOptions()
	opts.PollInterval = time.Millisecond
	loop := acquire.New(ads.NewMock(m.cfg), link.NewWriter(pw), nil, opts)

	go func() {
		if err := loop.Run(m.ctx); err != nil {
			log.Error().Err(err).Msg("mock bridge stopped")
		}
		pw.Close()
	}()
	go readRecords(m.ctx, pr, m.samples)

	m.pr = pr
	m.connected = true

	return nil
}

// Close stops the simulated bridge. The samples channel is closed once the
// reader drains.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil
	}

	m.cancel()
	// Unblocks a bridge write nobody is reading anymore.
	m.pr.Close()
	m.connected = false

	return nil
}

// Samples returns the channel for reading samples of the current connection.
func (m *Mock) Samples() <-chan Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.samples
}

// IsConnected returns whether the device is currently connected.
func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}
