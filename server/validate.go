package server

import (
	"github.com/xmidt-org/idcp/wire"
)

// featureCount mirrors command.featureCount: the Generic Command Manager
// never validates domain invariants (spec.md §7), so the server event loop
// does it instead, before a command ever reaches a handler.
func featureCount(attrs wire.MessageAttributesMap, t wire.DeviceMessageType) uint32 {
	a, ok := attrs[t]
	if !ok || a.FeatureCount == nil {
		return 0
	}
	return *a.FeatureCount
}

func validateVibrate(attrs wire.MessageAttributesMap, subs []wire.VibrateSubcommand) error {
	fc := featureCount(attrs, wire.VibrateCmd)
	for _, s := range subs {
		if s.Index >= fc {
			return wire.NewDeviceError(wire.InvalidCommand, "Max vibrator index is %d, got %d", int(fc)-1, s.Index)
		}
		if s.Speed < 0 || s.Speed > 1 {
			return wire.NewDeviceError(wire.InvalidCommand, "speed %v out of range [0,1]", s.Speed)
		}
	}
	return nil
}

func validateRotate(attrs wire.MessageAttributesMap, subs []wire.RotationSubcommand) error {
	fc := featureCount(attrs, wire.RotateCmd)
	for _, s := range subs {
		if s.Index >= fc {
			return wire.NewDeviceError(wire.InvalidCommand, "Max rotator index is %d, got %d", int(fc)-1, s.Index)
		}
		if s.Speed < 0 || s.Speed > 1 {
			return wire.NewDeviceError(wire.InvalidCommand, "speed %v out of range [0,1]", s.Speed)
		}
	}
	return nil
}

func validateLinear(attrs wire.MessageAttributesMap, subs []wire.VectorSubcommand) error {
	fc := featureCount(attrs, wire.LinearCmd)
	for _, s := range subs {
		if s.Index >= fc {
			return wire.NewDeviceError(wire.InvalidCommand, "Max linear actuator index is %d, got %d", int(fc)-1, s.Index)
		}
		if s.Position < 0 || s.Position > 1 {
			return wire.NewDeviceError(wire.InvalidCommand, "position %v out of range [0,1]", s.Position)
		}
	}
	return nil
}
