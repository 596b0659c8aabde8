package client

import (
	"context"
	"sync/atomic"

	"github.com/xmidt-org/idcp/wire"
)

// VibrateCommand is the convenience input to Device.Vibrate, mirroring
// original_source/buttplug/src/client/device.rs's VibrateCommand enum.
// Construct one with VibrateSpeed, VibrateSpeedVec, or VibrateSpeedMap.
type VibrateCommand struct {
	scalar   *float64
	vec      []float64
	sparse   map[uint32]float64
}

// VibrateSpeed sets every vibration feature of the device to the same
// speed.
func VibrateSpeed(speed float64) VibrateCommand { return VibrateCommand{scalar: &speed} }

// VibrateSpeedVec sets vibration feature i to speeds[i] for every i.
func VibrateSpeedVec(speeds []float64) VibrateCommand { return VibrateCommand{vec: speeds} }

// VibrateSpeedMap sets only the vibration features named by key in m.
func VibrateSpeedMap(m map[uint32]float64) VibrateCommand { return VibrateCommand{sparse: m} }

// RotatePair is one feature's speed/direction pair for RotateCommand.
type RotatePair struct {
	Speed     float64
	Clockwise bool
}

// RotateCommand is the convenience input to Device.Rotate.
type RotateCommand struct {
	scalar *RotatePair
	vec    []RotatePair
	sparse map[uint32]RotatePair
}

// Rotate sets every rotation feature to the same speed/direction.
func Rotate(speed float64, clockwise bool) RotateCommand {
	return RotateCommand{scalar: &RotatePair{Speed: speed, Clockwise: clockwise}}
}

// RotateVec sets rotation feature i to pairs[i] for every i.
func RotateVec(pairs []RotatePair) RotateCommand { return RotateCommand{vec: pairs} }

// RotateMap sets only the rotation features named by key in m.
func RotateMap(m map[uint32]RotatePair) RotateCommand { return RotateCommand{sparse: m} }

// LinearPair is one feature's duration/position pair for LinearCommand.
type LinearPair struct {
	Duration uint32
	Position float64
}

// LinearCommand is the convenience input to Device.Linear.
type LinearCommand struct {
	scalar *LinearPair
	vec    []LinearPair
	sparse map[uint32]LinearPair
}

// Linear moves every linear feature to the same position over duration.
func Linear(duration uint32, position float64) LinearCommand {
	return LinearCommand{scalar: &LinearPair{Duration: duration, Position: position}}
}

// LinearVec moves linear feature i per pairs[i] for every i.
func LinearVec(pairs []LinearPair) LinearCommand { return LinearCommand{vec: pairs} }

// LinearMap moves only the linear features named by key in m.
func LinearMap(m map[uint32]LinearPair) LinearCommand { return LinearCommand{sparse: m} }

// Device is the Client Device Façade from spec.md §4.7: a handle an
// application holds for one connected device, published by Client once
// DeviceAdded (or RequestDeviceList) names it.
type Device struct {
	client *Client

	Name           string
	index          uint32
	allowedMessage wire.MessageAttributesMap

	deviceConnected int32
	clientConnected int32
}

func newDevice(c *Client, name string, index uint32, allowed wire.MessageAttributesMap) *Device {
	return &Device{
		client:          c,
		Name:            name,
		index:           index,
		allowedMessage:  allowed,
		deviceConnected: 1,
		clientConnected: 1,
	}
}

// Index returns the device's server-assigned index.
func (d *Device) Index() uint32 { return d.index }

// DeviceConnected reports whether the device itself is still connected
// to the server (independent of whether this Client's own connection is
// still live).
func (d *Device) DeviceConnected() bool { return atomic.LoadInt32(&d.deviceConnected) != 0 }

// ClientConnected reports whether the Client that published this Device
// is still connected to the server.
func (d *Device) ClientConnected() bool { return atomic.LoadInt32(&d.clientConnected) != 0 }

// clientDisconnected marks both flags false, monotonically, per spec.md
// §4.7: "on ClientDisconnect both flags become false".
func (d *Device) clientDisconnected() {
	atomic.StoreInt32(&d.deviceConnected, 0)
	atomic.StoreInt32(&d.clientConnected, 0)
}

// deviceDisconnected marks only deviceConnected false, per spec.md §4.7:
// "on DeviceDisconnect only device_connected becomes false".
func (d *Device) deviceDisconnected() {
	atomic.StoreInt32(&d.deviceConnected, 0)
}

// checkConnection implements item 1 of spec.md §4.7's public-method
// contract: fail fast, without touching the network, if either
// connection flag is already false.
func (d *Device) checkConnection() error {
	if !d.ClientConnected() {
		return wire.NewConnectorError("client not connected")
	}
	if !d.DeviceConnected() {
		return wire.NewDeviceError(wire.DeviceNotConnected, "device %d is not connected", d.index)
	}
	return nil
}

func (d *Device) featureCount(t wire.DeviceMessageType) uint32 {
	a, ok := d.allowedMessage[t]
	if !ok || a.FeatureCount == nil {
		return 0
	}
	return *a.FeatureCount
}

// Vibrate commands the device to vibrate, per spec.md §4.7 items 1-5.
func (d *Device) Vibrate(ctx context.Context, cmd VibrateCommand) error {
	if err := d.checkConnection(); err != nil {
		return err
	}
	if _, ok := d.allowedMessage[wire.VibrateCmd]; !ok {
		return wire.NewUnsupportedCommand(wire.VibrateCmd)
	}

	fc := d.featureCount(wire.VibrateCmd)
	subs, err := normalizeVibrate(cmd, fc)
	if err != nil {
		return err
	}

	return d.client.sendExpectOk(ctx, "VibrateCmd", func(id wire.Id) interface{} {
		return wire.VibrateCmdMessage{Id: id, DeviceIndex: d.index, Speeds: subs}
	})
}

// Rotate commands the device to rotate, per spec.md §4.7 items 1-5.
func (d *Device) Rotate(ctx context.Context, cmd RotateCommand) error {
	if err := d.checkConnection(); err != nil {
		return err
	}
	if _, ok := d.allowedMessage[wire.RotateCmd]; !ok {
		return wire.NewUnsupportedCommand(wire.RotateCmd)
	}

	fc := d.featureCount(wire.RotateCmd)
	subs, err := normalizeRotate(cmd, fc)
	if err != nil {
		return err
	}

	return d.client.sendExpectOk(ctx, "RotateCmd", func(id wire.Id) interface{} {
		return wire.RotateCmdMessage{Id: id, DeviceIndex: d.index, Rotations: subs}
	})
}

// Linear commands the device to move linearly, per spec.md §4.7 items 1-5.
func (d *Device) Linear(ctx context.Context, cmd LinearCommand) error {
	if err := d.checkConnection(); err != nil {
		return err
	}
	if _, ok := d.allowedMessage[wire.LinearCmd]; !ok {
		return wire.NewUnsupportedCommand(wire.LinearCmd)
	}

	fc := d.featureCount(wire.LinearCmd)
	subs, err := normalizeLinear(cmd, fc)
	if err != nil {
		return err
	}

	return d.client.sendExpectOk(ctx, "LinearCmd", func(id wire.Id) interface{} {
		return wire.LinearCmdMessage{Id: id, DeviceIndex: d.index, Vectors: subs}
	})
}

// Stop commands the device to stop all movement. Unlike the other
// commands, Stop does not check allowed_messages; a device whose handler
// does not implement StopDeviceCmd replies with UnsupportedCommand.
func (d *Device) Stop(ctx context.Context) error {
	if err := d.checkConnection(); err != nil {
		return err
	}
	return d.client.sendExpectOk(ctx, "StopDeviceCmd", func(id wire.Id) interface{} {
		return wire.StopDeviceCmdMessage{Id: id, DeviceIndex: d.index}
	})
}

func normalizeVibrate(cmd VibrateCommand, featureCount uint32) ([]wire.VibrateSubcommand, error) {
	switch {
	case cmd.scalar != nil:
		speed := *cmd.scalar
		if speed < 0 || speed > 1 {
			return nil, wire.NewDeviceError(wire.InvalidCommand, "speed %v out of range [0,1]", speed)
		}
		subs := make([]wire.VibrateSubcommand, featureCount)
		for i := uint32(0); i < featureCount; i++ {
			subs[i] = wire.VibrateSubcommand{Index: i, Speed: speed}
		}
		return subs, nil

	case cmd.vec != nil:
		if uint32(len(cmd.vec)) > featureCount {
			return nil, wire.NewDeviceError(wire.InvalidCommand, "device only has %d vibrators, but %d commands were sent", featureCount, len(cmd.vec))
		}
		subs := make([]wire.VibrateSubcommand, len(cmd.vec))
		for i, speed := range cmd.vec {
			if speed < 0 || speed > 1 {
				return nil, wire.NewDeviceError(wire.InvalidCommand, "speed %v out of range [0,1]", speed)
			}
			subs[i] = wire.VibrateSubcommand{Index: uint32(i), Speed: speed}
		}
		return subs, nil

	default:
		subs := make([]wire.VibrateSubcommand, 0, len(cmd.sparse))
		for idx, speed := range cmd.sparse {
			if idx >= featureCount {
				return nil, wire.NewDeviceError(wire.InvalidCommand, "max vibrator index is %d, command referenced %d", featureCount-1, idx)
			}
			if speed < 0 || speed > 1 {
				return nil, wire.NewDeviceError(wire.InvalidCommand, "speed %v out of range [0,1]", speed)
			}
			subs = append(subs, wire.VibrateSubcommand{Index: idx, Speed: speed})
		}
		return subs, nil
	}
}

func normalizeRotate(cmd RotateCommand, featureCount uint32) ([]wire.RotationSubcommand, error) {
	switch {
	case cmd.scalar != nil:
		p := *cmd.scalar
		if p.Speed < 0 || p.Speed > 1 {
			return nil, wire.NewDeviceError(wire.InvalidCommand, "speed %v out of range [0,1]", p.Speed)
		}
		subs := make([]wire.RotationSubcommand, featureCount)
		for i := uint32(0); i < featureCount; i++ {
			subs[i] = wire.RotationSubcommand{Index: i, Speed: p.Speed, Clockwise: p.Clockwise}
		}
		return subs, nil

	case cmd.vec != nil:
		if uint32(len(cmd.vec)) > featureCount {
			return nil, wire.NewDeviceError(wire.InvalidCommand, "device only has %d rotators, but %d commands were sent", featureCount, len(cmd.vec))
		}
		subs := make([]wire.RotationSubcommand, len(cmd.vec))
		for i, p := range cmd.vec {
			if p.Speed < 0 || p.Speed > 1 {
				return nil, wire.NewDeviceError(wire.InvalidCommand, "speed %v out of range [0,1]", p.Speed)
			}
			subs[i] = wire.RotationSubcommand{Index: uint32(i), Speed: p.Speed, Clockwise: p.Clockwise}
		}
		return subs, nil

	default:
		subs := make([]wire.RotationSubcommand, 0, len(cmd.sparse))
		for idx, p := range cmd.sparse {
			if idx >= featureCount {
				return nil, wire.NewDeviceError(wire.InvalidCommand, "max rotator index is %d, command referenced %d", featureCount-1, idx)
			}
			if p.Speed < 0 || p.Speed > 1 {
				return nil, wire.NewDeviceError(wire.InvalidCommand, "speed %v out of range [0,1]", p.Speed)
			}
			subs = append(subs, wire.RotationSubcommand{Index: idx, Speed: p.Speed, Clockwise: p.Clockwise})
		}
		return subs, nil
	}
}

func normalizeLinear(cmd LinearCommand, featureCount uint32) ([]wire.VectorSubcommand, error) {
	switch {
	case cmd.scalar != nil:
		p := *cmd.scalar
		if p.Position < 0 || p.Position > 1 {
			return nil, wire.NewDeviceError(wire.InvalidCommand, "position %v out of range [0,1]", p.Position)
		}
		subs := make([]wire.VectorSubcommand, featureCount)
		for i := uint32(0); i < featureCount; i++ {
			subs[i] = wire.VectorSubcommand{Index: i, Duration: p.Duration, Position: p.Position}
		}
		return subs, nil

	case cmd.vec != nil:
		if uint32(len(cmd.vec)) > featureCount {
			return nil, wire.NewDeviceError(wire.InvalidCommand, "device only has %d linear actuators, but %d commands were sent", featureCount, len(cmd.vec))
		}
		subs := make([]wire.VectorSubcommand, len(cmd.vec))
		for i, p := range cmd.vec {
			if p.Position < 0 || p.Position > 1 {
				return nil, wire.NewDeviceError(wire.InvalidCommand, "position %v out of range [0,1]", p.Position)
			}
			subs[i] = wire.VectorSubcommand{Index: uint32(i), Duration: p.Duration, Position: p.Position}
		}
		return subs, nil

	default:
		subs := make([]wire.VectorSubcommand, 0, len(cmd.sparse))
		for idx, p := range cmd.sparse {
			if idx >= featureCount {
				return nil, wire.NewDeviceError(wire.InvalidCommand, "max linear index is %d, command referenced %d", featureCount-1, idx)
			}
			if p.Position < 0 || p.Position > 1 {
				return nil, wire.NewDeviceError(wire.InvalidCommand, "position %v out of range [0,1]", p.Position)
			}
			subs = append(subs, wire.VectorSubcommand{Index: idx, Duration: p.Duration, Position: p.Position})
		}
		return subs, nil
	}
}
