// Package link provides the wireless serial endpoints samples are published on.
package link

import (
	"errors"
	"io"
	"sync"
)

// ErrNotConnected is returned by Println when no peer can receive the line.
var ErrNotConnected = errors.New("link: no peer connected")

// Endpoint is a line-oriented serial sink advertised under a device name.
// Both operations report failures, but callers may ignore them: a dropped
// line is superseded by the next one.
type Endpoint interface {
	Begin(name string) error
	Println(line string) error
}

// Ensure endpoints implement Endpoint.
var (
	_ Endpoint = (*Writer)(nil)
	_ Endpoint = (*RFCOMM)(nil)
	_ Endpoint = (*NUS)(nil)
)

// Writer publishes lines on an io.Writer.
type Writer struct {
	mu   sync.Mutex
	w    io.Writer
	name string
}

// NewWriter creates an endpoint writing to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Begin records the device name; there is nothing to advertise.
func (e *Writer) Begin(name string) error {
	e.mu.Lock()
	e.name = name
	e.mu.Unlock()
	return nil
}

// Name returns the name passed to Begin.
func (e *Writer) Name() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.name
}

// Println writes line followed by a newline.
func (e *Writer) Println(line string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := io.WriteString(e.w, line+"\n")
	return err
}
