// Package diag is the operator-facing text console: plain lines, not
// structured logs, meant to be read from a serial monitor.
package diag

import (
	"fmt"
	"io"
	"os"
	"sync"

	"go.bug.st/serial"
)

// DefaultBaudRate is the console line speed.
const DefaultBaudRate = 115200

// Console writes diagnostic lines to a serial port or any io.Writer.
type Console struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
}

// Open opens the console on port at baud. An empty port writes to stdout.
func Open(port string, baud int) (*Console, error) {
	if port == "" {
		return New(os.Stdout), nil
	}
	if baud == 0 {
		baud = DefaultBaudRate
	}

	conn, err := serial.Open(port, &serial.Mode{
		BaudRate: baud,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open console port %s: %w", port, err)
	}

	return &Console{w: conn, closer: conn}, nil
}

// New creates a console writing to w.
func New(w io.Writer) *Console {
	return &Console{w: w}
}

// Println writes the operands separated by spaces and followed by a newline.
// Console output is best effort.
func (c *Console) Println(a ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, a...)
}

// Close releases the underlying port, if any.
func (c *Console) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}
