package receiver

import (
	"io"
	"time"
)

// Device defines the interface for sample sources (real or mocked).
type Device interface {
	Connect() error
	Close() error
	Samples() <-chan Record
	IsConnected() bool
}

// Port is the part of a serial port the receiver uses.
type Port interface {
	io.ReadWriteCloser
	SetDTR(dtr bool) error
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// Ensure Serial implements Device.
var _ Device = (*Serial)(nil)

// Ensure Mock implements Device.
var _ Device = (*Mock)(nil)
