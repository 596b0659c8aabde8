// Package transport defines the Transport Driver contract (spec.md §4.1):
// one implementation per communication-manager family (BLE, HID, XInput,
// HTTP fan-out), exposing a uniform byte-level channel over an otherwise
// heterogeneous set of physical links.
package transport

import (
	"context"
	"errors"
	"time"
)

// Endpoint is the symbolic name of a transport channel, per spec.md §3.
type Endpoint string

const (
	EndpointTx        Endpoint = "tx"
	EndpointRx        Endpoint = "rx"
	EndpointCommand   Endpoint = "command"
	EndpointFirmware  Endpoint = "firmware"
	EndpointWhitelist Endpoint = "whitelist"
)

// ErrUnsupportedEndpoint is returned when a write/read/subscribe targets an
// Endpoint the Device Handle didn't declare (spec.md §3).
var ErrUnsupportedEndpoint = errors.New("transport: unsupported endpoint")

// ErrUnimplemented is returned by Read on drivers that are write-only
// (spec.md §4.1, e.g. HID write-only devices).
var ErrUnimplemented = errors.New("transport: unimplemented")

// ErrDisconnected is returned by any operation attempted after the driver
// has reported a Disconnected event.
var ErrDisconnected = errors.New("transport: disconnected")

// EventKind distinguishes the two DeviceEvent shapes from spec.md §4.1.
type EventKind int

const (
	EventNotification EventKind = iota
	EventDisconnected
)

// DeviceEvent is an item from a Driver's event stream.
type DeviceEvent struct {
	Kind     EventKind
	Endpoint Endpoint
	Bytes    []byte
}

// SerializationPolicy documents, per spec.md §4.2, whether callers must
// serialize their own writes to a Driver instance.
type SerializationPolicy int

const (
	// ConcurrentWritesSafe means the driver itself serializes concurrent
	// writers (e.g. one write at a time per BLE characteristic).
	ConcurrentWritesSafe SerializationPolicy = iota
	// CallerMustSerialize means concurrent writers will race. The Protocol
	// Handlers do not hold a lock across their writes (their command
	// managers lock only the last-issued state), so such writes are not
	// serialized.
	CallerMustSerialize
)

// Driver is the per-device Transport Driver contract (spec.md §4.1).
type Driver interface {
	// Name is the peripheral's advertised name.
	Name() string
	// Address is the transport-level address (MAC, HID path, URL, ...).
	Address() string
	// Endpoints lists the channels this driver supports.
	Endpoints() []Endpoint
	// SerializationPolicy reports whether Write calls race (spec.md §4.2).
	SerializationPolicy() SerializationPolicy

	// Write performs best-effort ordered delivery to endpoint. For
	// connectionless transports (HTTP fan-out) ordering across concurrent
	// calls is not guaranteed; callers must serialize if order matters.
	Write(ctx context.Context, endpoint Endpoint, data []byte, writeWithResponse bool) error

	// Read may return ErrUnimplemented for write-only drivers.
	Read(ctx context.Context, endpoint Endpoint, length int, timeout time.Duration) ([]byte, error)

	// Subscribe/Unsubscribe activate/deactivate notification delivery
	// through Events().
	Subscribe(ctx context.Context, endpoint Endpoint) error
	Unsubscribe(ctx context.Context, endpoint Endpoint) error

	// Events exposes the driver's notification/disconnect stream.
	Events() <-chan DeviceEvent

	// Disconnect tears down the underlying connection.
	Disconnect() error
	// Connected reports the current connection state.
	Connected() bool
}

// HasEndpoint reports whether endpoints contains target.
func HasEndpoint(endpoints []Endpoint, target Endpoint) bool {
	for _, e := range endpoints {
		if e == target {
			return true
		}
	}
	return false
}
