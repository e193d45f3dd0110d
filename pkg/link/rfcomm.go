package link

import (
	"fmt"
	"io"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
)

const (
	// DefaultRFCOMMPort is the tty BlueZ binds the first SPP channel to.
	DefaultRFCOMMPort = "/dev/rfcomm0"
	// DefaultBaudRate is ignored by RFCOMM but required by the tty layer.
	DefaultBaudRate = 115200
	// DefaultAdapter is the BlueZ adapter advertised on.
	DefaultAdapter = "hci0"
)

// RFCOMM publishes lines over a Bluetooth Serial Port Profile link bound to a
// tty (e.g. by `rfcomm watch`). The tty only exists while a peer is
// connected, so it is opened lazily and reopened after write failures.
type RFCOMM struct {
	port    string
	baud    int
	adapter string

	mu   sync.Mutex
	conn io.WriteCloser

	open  func() (io.WriteCloser, error)
	alias func(adapter, name string) error
}

// NewRFCOMM creates an SPP endpoint on the given tty and BlueZ adapter.
func NewRFCOMM(port string, baud int, adapter string) *RFCOMM {
	if port == "" {
		port = DefaultRFCOMMPort
	}
	if baud == 0 {
		baud = DefaultBaudRate
	}
	if adapter == "" {
		adapter = DefaultAdapter
	}

	r := &RFCOMM{
		port:    port,
		baud:    baud,
		adapter: adapter,
		alias:   SetAdapterAlias,
	}
	r.open = r.openSerial
	return r
}

// Begin makes the adapter discoverable under name and tries to open the tty.
// A missing tty is not an error: no peer has connected yet.
func (r *RFCOMM) Begin(name string) error {
	if err := r.alias(r.adapter, name); err != nil {
		return fmt.Errorf("failed to advertise %q on %s: %w", name, r.adapter, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.connect(); err != nil {
		log.Debug().Err(err).Str("port", r.port).Msg("rfcomm: waiting for peer")
	}
	return nil
}

// Println writes line followed by a newline. It returns ErrNotConnected when
// the tty cannot be opened and drops the connection on write failures.
func (r *RFCOMM) Println(line string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil {
		if err := r.connect(); err != nil {
			return ErrNotConnected
		}
	}

	if _, err := io.WriteString(r.conn, line+"\n"); err != nil {
		r.disconnect()
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	return nil
}

// Close closes the tty if open.
func (r *RFCOMM) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	return err
}

// connect opens the tty. Caller holds mu.
func (r *RFCOMM) connect() error {
	conn, err := r.open()
	if err != nil {
		return err
	}
	r.conn = conn
	log.Debug().Str("port", r.port).Msg("rfcomm: peer connected")
	return nil
}

// disconnect drops the tty. Caller holds mu.
func (r *RFCOMM) disconnect() {
	if err := r.conn.Close(); err != nil {
		log.Debug().Err(err).Str("port", r.port).Msg("rfcomm: error closing port")
	}
	r.conn = nil
	log.Debug().Str("port", r.port).Msg("rfcomm: peer disconnected")
}

func (r *RFCOMM) openSerial() (io.WriteCloser, error) {
	port, err := serial.Open(r.port, &serial.Mode{
		BaudRate: r.baud,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", r.port, err)
	}
	return port, nil
}

// SetAdapterAlias sets the BlueZ adapter alias to name and makes it
// discoverable and pairable without a timeout.
func SetAdapterAlias(adapter, name string) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return fmt.Errorf("failed to connect to system bus: %w", err)
	}

	obj := conn.Object("org.bluez", dbus.ObjectPath("/org/bluez/"+adapter))
	props := []struct {
		name  string
		value interface{}
	}{
		{"Alias", name},
		{"DiscoverableTimeout", uint32(0)},
		{"Discoverable", true},
		{"Pairable", true},
	}
	for _, p := range props {
		call := obj.Call("org.freedesktop.DBus.Properties.Set", 0,
			"org.bluez.Adapter1", p.name, dbus.MakeVariant(p.value))
		if call.Err != nil {
			return fmt.Errorf("failed to set %s: %w", p.name, call.Err)
		}
	}
	return nil
}
