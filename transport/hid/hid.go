// Package hid implements the HID Transport Driver from spec.md §4.1/§4.2:
// a write-mostly channel (Read returns ErrUnimplemented for write-only
// devices, matching original_source's hid_device_impl.rs) over an opened
// device file. No HID library appears anywhere in the retrieved pack, so
// this driver opens the device path directly (e.g. a /dev/hidraw* node on
// Linux) rather than depending on an unretrieved hidapi binding — see
// DESIGN.md for the justification.
package hid

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/xmidt-org/idcp/transport"
)

// FileOpener abstracts os.OpenFile so tests can substitute an in-memory
// device, mirroring original_source's hid_comm_manager.rs separating
// "list available HID paths" from "open one for I/O".
type FileOpener func(path string) (io.WriteCloser, error)

func defaultOpener(path string) (io.WriteCloser, error) {
	return os.OpenFile(path, os.O_WRONLY, 0)
}

// Driver is a transport.Driver over a write-only HID device node. Per
// spec.md §4.2, HID requires caller-side serialization of writes.
type Driver struct {
	name, address string
	file          io.WriteCloser

	events    chan transport.DeviceEvent
	connected bool
}

// Open opens the HID device at path using opener (or the OS file system if
// opener is nil).
func Open(name, path string, opener FileOpener) (*Driver, error) {
	if opener == nil {
		opener = defaultOpener
	}

	f, err := opener(path)
	if err != nil {
		return nil, err
	}

	return &Driver{
		name:      name,
		address:   path,
		file:      f,
		events:    make(chan transport.DeviceEvent, 1),
		connected: true,
	}, nil
}

func (d *Driver) Name() string    { return d.name }
func (d *Driver) Address() string { return d.address }

func (d *Driver) Endpoints() []transport.Endpoint {
	return []transport.Endpoint{transport.EndpointTx}
}

func (d *Driver) SerializationPolicy() transport.SerializationPolicy {
	return transport.CallerMustSerialize
}

// Write sends an output report to the device. The first write-with-response
// retry policy belongs to the Protocol Handler (spec.md §4.1): this method
// always attempts the write once and reports the raw result.
func (d *Driver) Write(_ context.Context, endpoint transport.Endpoint, data []byte, _ bool) error {
	if !d.Connected() {
		return transport.ErrDisconnected
	}
	if endpoint != transport.EndpointTx {
		return transport.ErrUnsupportedEndpoint
	}

	if _, err := d.file.Write(data); err != nil {
		d.markDisconnected()
		return err
	}
	return nil
}

// Read is unimplemented: this driver models write-only HID devices.
func (d *Driver) Read(context.Context, transport.Endpoint, int, time.Duration) ([]byte, error) {
	return nil, transport.ErrUnimplemented
}

func (d *Driver) Subscribe(context.Context, transport.Endpoint) error {
	return transport.ErrUnimplemented
}

func (d *Driver) Unsubscribe(context.Context, transport.Endpoint) error {
	return transport.ErrUnimplemented
}

func (d *Driver) Events() <-chan transport.DeviceEvent { return d.events }

func (d *Driver) Disconnect() error {
	d.markDisconnected()
	return d.file.Close()
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
