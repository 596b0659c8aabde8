// Package ble implements the BLE Transport Driver from spec.md §4.1 over
// github.com/paypal/gatt's central-mode API. Grounded on kryptco-kr's
// krd/bluetooth_linux.go / bluetooth_darwin.go for driver lifecycle shape
// (a small struct wrapping AddService/Write/ReadChan/Stop) and on
// original_source's btleplug_adapter_task.rs for scan/dedup/connect
// semantics, since kryptco-kr itself only exercises gatt in peripheral
// mode (advertising to a phone) while this protocol needs central mode
// (scanning for and connecting to peripherals).
//
// gatt's concrete types are wrapped behind the narrow Peripheral interface
// below so the driver and its CommManager can be exercised by tests without
// a real BLE adapter.
package ble

import (
	"context"
	"fmt"
	"time"

	"github.com/xmidt-org/idcp/transport"
)

// Characteristic identifies one GATT characteristic a Driver writes/reads.
// Real usage populates this from gatt.Characteristic values discovered
// against the device's GATT profile; it is opaque to this package.
type Characteristic interface{}

// Peripheral is the narrow slice of gatt.Peripheral's interface this driver
// needs: per-device identity, one write, one read, one subscribe, and
// disconnect. paypal/gatt's real Peripheral type satisfies this directly.
type Peripheral interface {
	ID() string
	Name() string
	WriteCharacteristic(c Characteristic, value []byte, noRsp bool) error
	ReadCharacteristic(c Characteristic) ([]byte, error)
	SetNotifyValue(c Characteristic, fn func(c Characteristic, b []byte, err error)) error
	Disconnect() error
}

// EndpointMap resolves spec.md §3's symbolic Endpoint names to a concrete
// GATT characteristic for one peripheral's service layout.
type EndpointMap map[transport.Endpoint]Characteristic

// Driver is a transport.Driver over a connected BLE peripheral. Per
// spec.md §4.2, BLE allows one write at a time per characteristic — gatt
// itself serializes per-peripheral command queue, so ConcurrentWritesSafe
// is accurate here, unlike HID/HTTP.
type Driver struct {
	peripheral Peripheral
	endpoints  EndpointMap

	events    chan transport.DeviceEvent
	connected bool
}

// New wraps an already-connected Peripheral as a transport.Driver.
func New(p Peripheral, endpoints EndpointMap) *Driver {
	return &Driver{
		peripheral: p,
		endpoints:  endpoints,
		events:     make(chan transport.DeviceEvent, 8),
		connected:  true,
	}
}

func (d *Driver) Name() string    { return d.peripheral.Name() }
func (d *Driver) Address() string { return d.peripheral.ID() }

func (d *Driver) Endpoints() []transport.Endpoint {
	out := make([]transport.Endpoint, 0, len(d.endpoints))
	for ep := range d.endpoints {
		out = append(out, ep)
	}
	return out
}

func (d *Driver) SerializationPolicy() transport.SerializationPolicy {
	return transport.ConcurrentWritesSafe
}

func (d *Driver) Write(_ context.Context, endpoint transport.Endpoint, data []byte, writeWithResponse bool) error {
	if !d.Connected() {
		return transport.ErrDisconnected
	}

	c, ok := d.endpoints[endpoint]
	if !ok {
		return transport.ErrUnsupportedEndpoint
	}

	if err := d.peripheral.WriteCharacteristic(c, data, !writeWithResponse); err != nil {
		d.markDisconnected()
		return fmt.Errorf("ble: write failed: %w", err)
	}
	return nil
}

func (d *Driver) Read(_ context.Context, endpoint transport.Endpoint, _ int, _ time.Duration) ([]byte, error) {
	if !d.Connected() {
		return nil, transport.ErrDisconnected
	}

	c, ok := d.endpoints[endpoint]
	if !ok {
		return nil, transport.ErrUnsupportedEndpoint
	}

	data, err := d.peripheral.ReadCharacteristic(c)
	if err != nil {
		d.markDisconnected()
		return nil, fmt.Errorf("ble: read failed: %w", err)
	}
	return data, nil
}

func (d *Driver) Subscribe(_ context.Context, endpoint transport.Endpoint) error {
	c, ok := d.endpoints[endpoint]
	if !ok {
		return transport.ErrUnsupportedEndpoint
	}

	return d.peripheral.SetNotifyValue(c, func(_ Characteristic, b []byte, err error) {
		if err != nil {
			return
		}
		select {
		case d.events <- transport.DeviceEvent{Kind: transport.EventNotification, Endpoint: endpoint, Bytes: b}:
		default:
		}
	})
}

func (d *Driver) Unsubscribe(_ context.Context, endpoint transport.Endpoint) error {
	c, ok := d.endpoints[endpoint]
	if !ok {
		return transport.ErrUnsupportedEndpoint
	}
	return d.peripheral.SetNotifyValue(c, nil)
}

func (d *Driver) Events() <-chan transport.DeviceEvent { return d.events }

func (d *Driver) Disconnect() error {
	d.markDisconnected()
	return d.peripheral.Disconnect()
}

func (d *Driver) Connected() bool { return d.connected }

func (d *Driver) markDisconnected() {
	if d.connected {
		d.connected = false
		select {
		case d.events <- transport.DeviceEvent{Kind: transport.EventDisconnected}:
		default:
		}
	}
}
