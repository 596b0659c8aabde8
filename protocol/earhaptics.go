package protocol

import (
	"context"
	"fmt"
	"strings"

	"github.com/xmidt-org/idcp/command"
	"github.com/xmidt-org/idcp/transport"
	"github.com/xmidt-org/idcp/wire"
)

// EarHaptics is the stateless per-motor write shape from spec.md §4.4:
// pass the command through the Generic Command Manager and issue one
// single-byte write to Tx per changed feature. Grounded on
// original_source's ear_haptics.rs: handle_vibrate_cmd is the only
// overridden command, every other command falls through Base's
// UnsupportedCommand.
type EarHaptics struct {
	Base
	name    string
	manager *command.Manager
}

// NewEarHaptics builds an EarHaptics handler declaring attrs, the way
// ear_haptics.rs's new_protocol constructs a GenericCommandManager from
// the device's declared message_attributes.
func NewEarHaptics(name string, attrs wire.MessageAttributesMap) *EarHaptics {
	return &EarHaptics{
		Base:    NewBase(attrs),
		name:    name,
		manager: command.NewManager(attrs),
	}
}

// Initialize reproduces ear_haptics.rs's name disambiguation: a device
// whose reported name contains "1" is "Ear1", every other unit is "Ear2".
func (h *EarHaptics) Initialize(context.Context, transport.Driver) (*string, error) {
	name := "Ear2"
	if strings.Contains(h.name, "1") {
		name = "Ear1"
	}
	return &name, nil
}

func (h *EarHaptics) HandleVibrateCmd(ctx context.Context, driver transport.Driver, msg wire.VibrateCmdMessage) error {
	return h.writeChanged(ctx, driver, h.manager.UpdateVibration(msg.Speeds, false))
}

func (h *EarHaptics) HandleStopDeviceCmd(ctx context.Context, driver transport.Driver) error {
	stop := h.manager.GetStopCommands()
	return h.writeChanged(ctx, driver, h.manager.UpdateVibration(stop.Vibrate, true))
}

// writeChanged issues one single-byte Tx write per changed feature.
// Failures on individual writes are propagated as-is (wrapped, not
// reclassified): the Server Event Loop is the one place that knows
// whether a failing driver is disconnected or merely glitched, so it
// decides between DeviceNotConnected and DeviceCommunicationError.
// Successful sub-writes are not rolled back, per spec.md §4.4's
// best-effort rule for this handler shape.
func (h *EarHaptics) writeChanged(ctx context.Context, driver transport.Driver, changed []*wire.VibrateSubcommand) error {
	for _, sub := range changed {
		speed := uint8(sub.Speed * 255)
		if err := driver.Write(ctx, transport.EndpointTx, []byte{speed}, false); err != nil {
			return fmt.Errorf("ear haptics write failed: %w", err)
		}
	}
	return nil
}
