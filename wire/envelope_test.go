package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelopeSingleKey(t *testing.T) {
	e, err := DecodeEnvelope([]byte(`{"VibrateCmd":{"Id":5,"DeviceIndex":0,"Speeds":[{"Index":0,"Speed":0.5}]}}`))
	require.NoError(t, err)
	assert.Equal(t, "VibrateCmd", e.Key)

	var msg VibrateCmdMessage
	require.NoError(t, e.Decode(&msg))
	assert.Equal(t, Id(5), msg.Id)
	assert.Equal(t, uint32(0), msg.DeviceIndex)
	require.Len(t, msg.Speeds, 1)
	assert.Equal(t, 0.5, msg.Speeds[0].Speed)
}

func TestDecodeEnvelopeRejectsMultipleKeys(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{"Ok":{"Id":1},"Error":{"Id":1}}`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeEnvelopeRejectsUnknownKey(t *testing.T) {
	e, err := DecodeEnvelope([]byte(`{"FooCmd":{"Id":1,"DeviceIndex":0}}`))
	require.NoError(t, err)

	var msg struct {
		Id Id `json:"Id"`
	}
	err = e.Decode(&msg)
	assert.ErrorIs(t, err, ErrUnknownMessage)
}

func TestDecodeEnvelopeRequiresDeviceIndex(t *testing.T) {
	e, err := DecodeEnvelope([]byte(`{"VibrateCmd":{"Id":1,"Speeds":[]}}`))
	require.NoError(t, err)

	var msg VibrateCmdMessage
	err = e.Decode(&msg)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeArrayRoundTrip(t *testing.T) {
	encoded, err := EncodeArray(
		Named("Ok", Ok{Id: 1}),
		Named("DeviceAdded", DeviceAdded{Id: NoReply, DeviceListEntry: DeviceListEntry{DeviceName: "d", DeviceIndex: 0}}),
	)
	require.NoError(t, err)

	envelopes, err := DecodeArray(encoded)
	require.NoError(t, err)
	require.Len(t, envelopes, 2)
	assert.Equal(t, "Ok", envelopes[0].Key)
	assert.Equal(t, "DeviceAdded", envelopes[1].Key)

	id, err := envelopes[0].Id()
	require.NoError(t, err)
	assert.Equal(t, Id(1), id)
}

func TestErrorToEnvelope(t *testing.T) {
	env := ToEnvelope(7, NewDeviceError(DeviceNotFound, "no device at index %d", 3))
	assert.Equal(t, Id(7), env.Id)
	assert.Equal(t, int(ErrorCodeDevice), env.ErrorCode)
	assert.Contains(t, env.ErrorMessage, "DeviceNotFound")

	wrapped := ToEnvelope(8, assertError{"boom"})
	assert.Equal(t, int(ErrorCodeDevice), wrapped.ErrorCode)
	assert.Contains(t, wrapped.ErrorMessage, "DeviceCommunicationError")
}

type assertError struct{ s string }

func (e assertError) Error() string { return e.s }

func TestBufferPoolReuse(t *testing.T) {
	pool := NewBufferPool(2, 32)
	buf := pool.Get()
	buf.WriteString("hello")
	pool.Put(buf)

	again := pool.Get()
	assert.Equal(t, 0, again.Len())
}
