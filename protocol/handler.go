// Package protocol implements the Protocol Handler contract from
// spec.md §4.4: per-device translation from wire commands into Transport
// Driver writes, with two exemplar shapes (stateless per-motor write and
// keep-alive loop) reproduced exactly.
package protocol

import (
	"context"
	"time"

	"github.com/xmidt-org/idcp/transport"
	"github.com/xmidt-org/idcp/wire"
)

// Handler is one device's protocol translation. Every method besides
// Attributes and Initialize corresponds to one DeviceMessageType; a
// handler that doesn't support a given command returns
// wire.NewUnsupportedCommand, which Base does by default.
type Handler interface {
	// Attributes is the declared wire.MessageAttributesMap used both to
	// build the device's Generic Command Manager and to answer
	// RequestDeviceList/DeviceAdded.
	Attributes() wire.MessageAttributesMap

	// Initialize runs once after connect. A non-nil returned name
	// overrides the name advertised to clients.
	Initialize(ctx context.Context, driver transport.Driver) (*string, error)

	HandleVibrateCmd(ctx context.Context, driver transport.Driver, msg wire.VibrateCmdMessage) error
	HandleLinearCmd(ctx context.Context, driver transport.Driver, msg wire.LinearCmdMessage) error
	HandleRotateCmd(ctx context.Context, driver transport.Driver, msg wire.RotateCmdMessage) error
	HandleStopDeviceCmd(ctx context.Context, driver transport.Driver) error

	HandleRawWriteCmd(ctx context.Context, driver transport.Driver, endpoint transport.Endpoint, data []byte, writeWithResponse bool) error
	HandleRawReadCmd(ctx context.Context, driver transport.Driver, endpoint transport.Endpoint, length int, timeout time.Duration) ([]byte, error)
	HandleRawSubscribeCmd(ctx context.Context, driver transport.Driver, endpoint transport.Endpoint) error
	HandleRawUnsubscribeCmd(ctx context.Context, driver transport.Driver, endpoint transport.Endpoint) error
}

// Base gives every Handler method an UnsupportedCommand default so a
// concrete protocol only overrides what it actually implements, the way
// the source's trait default methods work.
type Base struct {
	attrs wire.MessageAttributesMap
}

// NewBase constructs a Base declaring attrs.
func NewBase(attrs wire.MessageAttributesMap) Base {
	return Base{attrs: attrs}
}

func (b Base) Attributes() wire.MessageAttributesMap { return b.attrs }

func (b Base) Initialize(context.Context, transport.Driver) (*string, error) { return nil, nil }

func (b Base) HandleVibrateCmd(context.Context, transport.Driver, wire.VibrateCmdMessage) error {
	return wire.NewUnsupportedCommand(wire.VibrateCmd)
}

func (b Base) HandleLinearCmd(context.Context, transport.Driver, wire.LinearCmdMessage) error {
	return wire.NewUnsupportedCommand(wire.LinearCmd)
}

func (b Base) HandleRotateCmd(context.Context, transport.Driver, wire.RotateCmdMessage) error {
	return wire.NewUnsupportedCommand(wire.RotateCmd)
}

func (b Base) HandleStopDeviceCmd(context.Context, transport.Driver) error {
	return wire.NewUnsupportedCommand(wire.StopDeviceCmd)
}

func (b Base) HandleRawWriteCmd(context.Context, transport.Driver, transport.Endpoint, []byte, bool) error {
	return wire.NewUnsupportedCommand(wire.RawWriteCmd)
}

func (b Base) HandleRawReadCmd(context.Context, transport.Driver, transport.Endpoint, int, time.Duration) ([]byte, error) {
	return nil, wire.NewUnsupportedCommand(wire.RawReadCmd)
}

func (b Base) HandleRawSubscribeCmd(context.Context, transport.Driver, transport.Endpoint) error {
	return wire.NewUnsupportedCommand(wire.RawSubscribeCmd)
}

func (b Base) HandleRawUnsubscribeCmd(context.Context, transport.Driver, transport.Endpoint) error {
	return wire.NewUnsupportedCommand(wire.RawUnsubscribeCmd)
}
