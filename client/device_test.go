package client

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xmidt-org/idcp/wire"
)

func attrsWithFeatureCount(t wire.DeviceMessageType, n uint32) wire.MessageAttributesMap {
	return wire.MessageAttributesMap{t: wire.MessageAttributes{FeatureCount: &n}}
}

func TestVibrateFailsFastWhenClientNotConnected(t *testing.T) {
	d := newDevice(nil, "dev0", 0, attrsWithFeatureCount(wire.VibrateCmd, 2))
	d.clientDisconnected()

	err := d.Vibrate(context.Background(), VibrateSpeed(0.5))
	require.Error(t, err)
	pe, ok := err.(*wire.ProtocolError)
	require.True(t, ok)
	assert.Equal(t, wire.ErrorCodeConnector, pe.Code)
}

func TestVibrateFailsFastWhenDeviceNotConnected(t *testing.T) {
	d := newDevice(nil, "dev0", 0, attrsWithFeatureCount(wire.VibrateCmd, 2))
	d.deviceDisconnected()

	err := d.Vibrate(context.Background(), VibrateSpeed(0.5))
	require.Error(t, err)
	pe, ok := err.(*wire.ProtocolError)
	require.True(t, ok)
	assert.Equal(t, wire.ErrorCodeDevice, pe.Code)
	assert.Equal(t, wire.DeviceNotConnected, pe.Reason)

	assert.True(t, d.ClientConnected())
}

func TestClientDisconnectIsMonotonicOverDeviceDisconnect(t *testing.T) {
	d := newDevice(nil, "dev0", 0, attrsWithFeatureCount(wire.VibrateCmd, 2))
	d.clientDisconnected()
	assert.False(t, d.ClientConnected())
	assert.False(t, d.DeviceConnected())

	// A later DeviceDisconnect must not resurrect clientConnected.
	d.deviceDisconnected()
	assert.False(t, d.ClientConnected())
}

func TestVibrateUnsupportedWhenNotInAllowedMessages(t *testing.T) {
	d := newDevice(nil, "dev0", 0, wire.MessageAttributesMap{})

	err := d.Vibrate(context.Background(), VibrateSpeed(0.5))
	require.Error(t, err)
	pe, ok := err.(*wire.ProtocolError)
	require.True(t, ok)
	assert.Equal(t, wire.UnsupportedCommand, pe.Reason)
}

func TestNormalizeVibrateScalarAppliesToEveryFeature(t *testing.T) {
	subs, err := normalizeVibrate(VibrateSpeed(0.75), 3)
	require.NoError(t, err)
	require.Len(t, subs, 3)
	for i, s := range subs {
		assert.Equal(t, uint32(i), s.Index)
		assert.Equal(t, 0.75, s.Speed)
	}
}

func TestNormalizeVibrateScalarOutOfRangeRejected(t *testing.T) {
	_, err := normalizeVibrate(VibrateSpeed(1.5), 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestNormalizeVibrateVecTooLongRejected(t *testing.T) {
	_, err := normalizeVibrate(VibrateSpeedVec([]float64{0.1, 0.2, 0.3}), 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only has 2 vibrators")
}

func TestNormalizeVibrateMapIndexOutOfRangeRejectsWholeCommand(t *testing.T) {
	_, err := normalizeVibrate(VibrateSpeedMap(map[uint32]float64{0: 0.5, 9: 0.5}), 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max vibrator index")
}

func TestNormalizeRotateScalar(t *testing.T) {
	subs, err := normalizeRotate(Rotate(0.5, true), 2)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.True(t, subs[0].Clockwise)
	assert.Equal(t, 0.5, subs[1].Speed)
}

func TestNormalizeLinearMapOutOfRangeRejected(t *testing.T) {
	_, err := normalizeLinear(LinearMap(map[uint32]LinearPair{5: {Duration: 500, Position: 0.5}}), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max linear index")
}
