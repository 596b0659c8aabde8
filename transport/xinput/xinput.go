// Package xinput implements the XInput Transport Driver from spec.md §6:
// two little-endian u16 motor speeds (left, right), a stable contract per
// spec.md §9's second resolved Open Question.
//
// Per spec.md §5, XInput is the one family that wraps a thread-affine
// native handle and must serialize its own calls — on Windows that's a
// native XInput device handle, which would need
// golang.org/x/sys/windows (or cgo) and a //go:build windows file. No
// gamepad/XInput library appears anywhere in the retrieved pack, so this
// portable build ships a syscall-free stub behind the same Driver
// interface: Write stores the motor speeds in memory and Motors reads them
// back for tests; the native-handle variant is documented but not built
// here (see the comment at the bottom of this file).
package xinput

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/xmidt-org/idcp/transport"
)

// Driver is a transport.Driver that models an XInput-connected gamepad's
// dual-motor rumble. Per spec.md §5, all calls on a Driver instance must be
// serialized by the caller (the Protocol Handlers do not hold a lock across
// their writes); Driver itself does not add internal locking beyond what's
// needed to keep Motors/Write consistent with each other.
type Driver struct {
	name, address string

	mu     sync.Mutex
	left   uint16
	right  uint16

	events    chan transport.DeviceEvent
	connected bool
}

// New constructs a Driver bound to one XInput controller slot.
func New(name, address string) *Driver {
	return &Driver{
		name:      name,
		address:   address,
		events:    make(chan transport.DeviceEvent, 1),
		connected: true,
	}
}

func (d *Driver) Name() string    { return d.name }
func (d *Driver) Address() string { return d.address }

func (d *Driver) Endpoints() []transport.Endpoint {
	return []transport.Endpoint{transport.EndpointCommand}
}

func (d *Driver) SerializationPolicy() transport.SerializationPolicy {
	return transport.CallerMustSerialize
}

// Write encodes [left, right] as little-endian u16s into a 4-byte XInput
// rumble frame and writes it through to the virtual motor state. data must
// be exactly 4 bytes.
func (d *Driver) Write(_ context.Context, endpoint transport.Endpoint, data []byte, _ bool) error {
	if !d.Connected() {
		return transport.ErrDisconnected
	}
	if endpoint != transport.EndpointCommand {
		return transport.ErrUnsupportedEndpoint
	}
	if len(data) != 4 {
		return transport.ErrUnimplemented
	}

	left := binary.LittleEndian.Uint16(data[0:2])
	right := binary.LittleEndian.Uint16(data[2:4])

	d.mu.Lock()
	d.left, d.right = left, right
	d.mu.Unlock()
	return nil
}

// EncodeMotors renders a [left, right] u16 pair into the 4-byte
// little-endian wire frame XInput expects (spec.md §6, §9).
func EncodeMotors(left, right uint16) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint16(buf[0:2], left)
	binary.LittleEndian.PutUint16(buf[2:4], right)
	return buf
}

// Motors returns the last-written [left, right] motor speeds, for tests.
func (d *Driver) Motors() (left, right uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.left, d.right
}

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
	d.mu.Lock()
	wasConnected := d.connected
	d.connected = false
	d.mu.Unlock()

	if wasConnected {
		select {
		case d.events <- transport.DeviceEvent{Kind: transport.EventDisconnected}:
		default:
		}
	}
	return nil
}

func (d *Driver) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

// A real Windows build would add:
//
//	//go:build windows
//
//	import "golang.org/x/sys/windows"
//
// and serialize every Write behind the same native XInputSetState handle,
// per spec.md §5's note that XInput is the only thread-affine driver.
