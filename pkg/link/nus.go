package link

import (
	"fmt"
	"sync"

	"tinygo.org/x/bluetooth"
)

// nusChunk is the largest notification payload at the default ATT MTU.
const nusChunk = 20

// NUS publishes lines as Nordic UART Service TX notifications, for peers that
// only speak Bluetooth Low Energy.
type NUS struct {
	adapter *bluetooth.Adapter

	mu      sync.Mutex
	tx      bluetooth.Characteristic
	started bool
}

// NewNUS creates a NUS endpoint on adapter. A nil adapter uses the default one.
func NewNUS(adapter *bluetooth.Adapter) *NUS {
	if adapter == nil {
		adapter = bluetooth.DefaultAdapter
	}
	return &NUS{adapter: adapter}
}

// Begin enables the BLE stack, registers the UART service and advertises it
// under name.
func (n *NUS) Begin(name string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.adapter.Enable(); err != nil {
		return fmt.Errorf("failed to enable BLE stack: %w", err)
	}

	var rx bluetooth.Characteristic
	err := n.adapter.AddService(&bluetooth.Service{
		UUID: bluetooth.ServiceUUIDNordicUART,
		Characteristics: []bluetooth.CharacteristicConfig{
			{
				Handle: &rx,
				UUID:   bluetooth.CharacteristicUUIDUARTRX,
				Flags:  bluetooth.CharacteristicWritePermission | bluetooth.CharacteristicWriteWithoutResponsePermission,
			},
			{
				Handle: &n.tx,
				UUID:   bluetooth.CharacteristicUUIDUARTTX,
				Flags:  bluetooth.CharacteristicNotifyPermission | bluetooth.CharacteristicReadPermission,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to add UART service: %w", err)
	}

	adv := n.adapter.DefaultAdvertisement()
	err = adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    name,
		ServiceUUIDs: []bluetooth.UUID{bluetooth.ServiceUUIDNordicUART},
	})
	if err != nil {
		return fmt.Errorf("failed to configure advertisement: %w", err)
	}
	if err := adv.Start(); err != nil {
		return fmt.Errorf("failed to start advertisement: %w", err)
	}

	n.started = true
	return nil
}

// Println notifies line followed by a newline in MTU-sized pieces.
func (n *NUS) Println(line string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.started {
		return ErrNotConnected
	}
	return writeChunks(n.tx.Write, []byte(line+"\n"), nusChunk)
}

// writeChunks sends data through write in pieces of at most size bytes.
func writeChunks(write func([]byte) (int, error), data []byte, size int) error {
	for len(data) != 0 {
		part := data
		if len(part) > size {
			part = part[:size]
		}
		if _, err := write(part); err != nil {
			return fmt.Errorf("failed to send notification: %w", err)
		}
		data = data[len(part):]
	}
	return nil
}
