package protocol

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xmidt-org/idcp/wire"
)

func oneFeatureVibrateAttrs() wire.MessageAttributesMap {
	count := uint32(1)
	return wire.MessageAttributesMap{
		wire.VibrateCmd: wire.MessageAttributes{FeatureCount: &count},
	}
}

func TestJoyconInitializeSendsSubCommand(t *testing.T) {
	h := NewSwitchJoycon(oneFeatureVibrateAttrs())
	d := &recordingDriver{}

	_, err := h.Initialize(context.Background(), d)
	require.NoError(t, err)
	require.Len(t, d.writes, 1)
	assert.Len(t, d.writes[0], 64)
	assert.Equal(t, byte(1), d.writes[0][0])
	assert.Equal(t, byte(72), d.writes[0][10])
	assert.Equal(t, byte(0x01), d.writes[0][11])
}

func TestJoyconZeroSpeedSendsSingleStopFrame(t *testing.T) {
	h := NewSwitchJoycon(oneFeatureVibrateAttrs())
	d := &recordingDriver{}

	err := h.HandleVibrateCmd(context.Background(), d, wire.VibrateCmdMessage{
		Speeds: []wire.VibrateSubcommand{{Index: 0, Speed: 0}},
	})
	require.NoError(t, err)
	require.Len(t, d.writes, 1)
	assert.Equal(t, byte(16), d.writes[0][0])
}

func TestJoyconNonZeroSpeedStartsKeepAliveLoop(t *testing.T) {
	h := NewSwitchJoycon(oneFeatureVibrateAttrs())
	d := &recordingDriver{}

	err := h.HandleVibrateCmd(context.Background(), d, wire.VibrateCmdMessage{
		Speeds: []wire.VibrateSubcommand{{Index: 0, Speed: 0.3}},
	})
	require.NoError(t, err)

	time.Sleep(600 * time.Millisecond)

	err = h.HandleVibrateCmd(context.Background(), d, wire.VibrateCmdMessage{
		Speeds: []wire.VibrateSubcommand{{Index: 0, Speed: 0}},
	})
	require.NoError(t, err)

	time.Sleep(500 * time.Millisecond)
	writesAtStop := d.writeCount()

	assert.GreaterOrEqual(t, writesAtStop, 3, "expect >=2 keep-alive frames plus the stop frame")

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, writesAtStop, d.writeCount(), "no further writes once running is cleared")
}

// TestJoyconRepeatedAmplitudeSkipsRedundantUpdate exercises the Generic
// Command Manager filter: once the keep-alive loop is running, resending
// the identical amplitude must not disturb the shared speed cell the
// loop reads from.
func TestJoyconRepeatedAmplitudeSkipsRedundantUpdate(t *testing.T) {
	h := NewSwitchJoycon(oneFeatureVibrateAttrs())
	d := &recordingDriver{}

	require.NoError(t, h.HandleVibrateCmd(context.Background(), d, wire.VibrateCmdMessage{
		Speeds: []wire.VibrateSubcommand{{Index: 0, Speed: 0.4}},
	}))
	require.Equal(t, uint32(0.4*joyconAmplitudeScale), atomic.LoadUint32(&h.speedVal))

	require.NoError(t, h.HandleVibrateCmd(context.Background(), d, wire.VibrateCmdMessage{
		Speeds: []wire.VibrateSubcommand{{Index: 0, Speed: 0.4}},
	}))
	assert.Equal(t, uint32(0.4*joyconAmplitudeScale), atomic.LoadUint32(&h.speedVal))

	require.NoError(t, h.HandleVibrateCmd(context.Background(), d, wire.VibrateCmdMessage{
		Speeds: []wire.VibrateSubcommand{{Index: 0, Speed: 0.7}},
	}))
	assert.Equal(t, uint32(0.7*joyconAmplitudeScale), atomic.LoadUint32(&h.speedVal))

	atomic.StoreInt32(&h.running, 0)
}

func TestJoyconPacketNumberWraps(t *testing.T) {
	h := NewSwitchJoycon(oneFeatureVibrateAttrs())
	h.packetNumber = 0xFF
	d := &recordingDriver{}

	require.NoError(t, h.HandleStopDeviceCmd(context.Background(), d))
	assert.Equal(t, byte(0x00), d.writes[0][1])
}
