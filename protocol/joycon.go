package protocol

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/xmidt-org/idcp/command"
	"github.com/xmidt-org/idcp/transport"
	"github.com/xmidt-org/idcp/wire"
)

// joyconTickInterval is the keep-alive loop period from spec.md §4.4,
// matching original_source's switch_joycon.rs sleep(Duration::from_millis(250)).
const joyconTickInterval = 250 * time.Millisecond

// joyconZeroThreshold is the amplitude below which a vibrate command is
// treated as a stop, reproducing switch_joycon.rs's `<= 0.001` check.
const joyconZeroThreshold = 0.001

// joyconAmplitudeScale preserves switch_joycon.rs's atomic-cell encoding
// exactly, per spec.md §9: the shared amplitude is an atomic u16 scaled
// by 1000, so cross-task visibility reasoning stays local to a single
// integer load/store.
const joyconAmplitudeScale = 1000

// SwitchJoycon is the keep-alive loop shape from spec.md §4.4: a
// transport that forgets vibration state after a short window requires a
// persistent background task re-issuing the last amplitude. Grounded on
// original_source's switch_joycon.rs.
type SwitchJoycon struct {
	Base
	manager *command.Manager

	packetNumber uint32 // low 8 bits are the wrapping packet counter
	running      int32
	speedVal     uint32 // amplitude * joyconAmplitudeScale, stored atomically
}

// NewSwitchJoycon builds a SwitchJoycon handler declaring attrs.
func NewSwitchJoycon(attrs wire.MessageAttributesMap) *SwitchJoycon {
	return &SwitchJoycon{
		Base:    NewBase(attrs),
		manager: command.NewManager(attrs),
	}
}

// Initialize turns on vibration via a joycon sub-command, matching
// switch_joycon.rs's initialize: send_sub_command(0, 72, [0x01]).
func (h *SwitchJoycon) Initialize(ctx context.Context, driver transport.Driver) (*string, error) {
	if err := h.sendCommandRaw(ctx, driver, 1, 72, []byte{0x01}, nil, nil); err != nil {
		return nil, wire.NewConnectorError("cannot initialize joycon: %v", err)
	}
	return nil, nil
}

// HandleVibrateCmd reproduces switch_joycon.rs's three-way branch on the
// first speed value: stop, start the loop, or just update the shared
// amplitude cell for an already-running loop. The manager's last-issued
// state is kept in sync on every stop/start (force=true, since those
// always produce a frame) and consulted on the third branch to drop a
// repeated amplitude before it reaches the keep-alive loop's shared cell.
func (h *SwitchJoycon) HandleVibrateCmd(ctx context.Context, driver transport.Driver, msg wire.VibrateCmdMessage) error {
	if len(msg.Speeds) == 0 {
		return nil
	}
	speed := msg.Speeds[0].Speed

	if speed <= joyconZeroThreshold {
		h.manager.UpdateVibration(msg.Speeds, true)
		atomic.StoreInt32(&h.running, 0)
		return h.sendStopFrame(ctx, driver)
	}

	if atomic.CompareAndSwapInt32(&h.running, 0, 1) {
		h.manager.UpdateVibration(msg.Speeds, true)
		atomic.StoreUint32(&h.speedVal, uint32(speed*joyconAmplitudeScale))
		go h.keepAliveLoop(driver)
		return nil
	}

	if len(h.manager.UpdateVibration(msg.Speeds, false)) == 0 {
		return nil // identical amplitude already driving the keep-alive loop
	}
	atomic.StoreUint32(&h.speedVal, uint32(speed*joyconAmplitudeScale))
	return nil
}

func (h *SwitchJoycon) HandleStopDeviceCmd(ctx context.Context, driver transport.Driver) error {
	h.manager.UpdateVibration(h.manager.GetStopCommands().Vibrate, true)
	atomic.StoreInt32(&h.running, 0)
	return h.sendStopFrame(ctx, driver)
}

func (h *SwitchJoycon) sendStopFrame(ctx context.Context, driver transport.Driver) error {
	return h.sendCommandRaw(ctx, driver, 16, 0, nil, &rumbleStop, &rumbleStop)
}

// keepAliveLoop runs as a detached goroutine, re-issuing a rumble frame
// with the current shared amplitude every joyconTickInterval until
// running is cleared or a transport write fails.
func (h *SwitchJoycon) keepAliveLoop(driver transport.Driver) {
	ctx := context.Background()
	for {
		if atomic.LoadInt32(&h.running) == 0 {
			return
		}

		amp := float32(atomic.LoadUint32(&h.speedVal)) / joyconAmplitudeScale
		rumble := newRumble(200.0, amp)
		if err := h.sendCommandRaw(ctx, driver, 16, 0, nil, &rumble, &rumble); err != nil {
			return
		}

		time.Sleep(joyconTickInterval)
	}
}

// sendCommandRaw builds the 64-byte joycon output report from spec.md
// §6: byte 0 command, byte 1 wrapping packet number, bytes 2..6 left
// rumble, bytes 6..10 right rumble, byte 10 sub-command, bytes 11.. data.
func (h *SwitchJoycon) sendCommandRaw(ctx context.Context, driver transport.Driver, command, subCommand byte, data []byte, rumbleL, rumbleR *rumble) error {
	buf := make([]byte, 64)
	buf[0] = command
	buf[1] = byte(atomic.AddUint32(&h.packetNumber, 1) & 0xFF)

	if rumbleL != nil {
		copy(buf[2:6], rumbleL.encode())
	}
	if rumbleR != nil {
		copy(buf[6:10], rumbleR.encode())
	}

	buf[10] = subCommand
	copy(buf[11:], data)

	return driver.Write(ctx, transport.EndpointTx, buf, false)
}

// rumble is a simplified frequency/amplitude rumble frame. The real Joy-Con
// HD rumble encoding packs separate high/low frequency and amplitude
// pairs into non-linear byte tables; that table was never retrieved
// alongside switch_joycon.rs (its rumble.rs sibling is absent from the
// pack), so this encodes amplitude as a plain little-endian u16 pair
// instead of reproducing the exact proprietary byte layout.
type rumble struct {
	frequency float32
	amplitude float32
}

var rumbleStop = rumble{}

func newRumble(frequency, amplitude float32) rumble {
	return rumble{frequency: frequency, amplitude: amplitude}
}

func (r rumble) encode() []byte {
	level := uint16(r.amplitude * 1000)
	return []byte{byte(level), byte(level >> 8), byte(level), byte(level >> 8)}
}
