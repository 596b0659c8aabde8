package devicemanager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xmidt-org/idcp/protocol"
	"github.com/xmidt-org/idcp/transport"
	"github.com/xmidt-org/idcp/wire"
)

type stubHandler struct {
	protocol.Base
	initName  *string
	initErr   error
	initDelay time.Duration
	stopErr   error
	stopCalls int
}

func (h *stubHandler) Initialize(ctx context.Context, _ transport.Driver) (*string, error) {
	if h.initDelay > 0 {
		select {
		case <-time.After(h.initDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return h.initName, h.initErr
}

func (h *stubHandler) HandleStopDeviceCmd(context.Context, transport.Driver) error {
	h.stopCalls++
	return h.stopErr
}

type stubDriver struct{ name, address string }

func (d *stubDriver) Name() string                                      { return d.name }
func (d *stubDriver) Address() string                                   { return d.address }
func (d *stubDriver) Endpoints() []transport.Endpoint                   { return nil }
func (d *stubDriver) SerializationPolicy() transport.SerializationPolicy { return transport.ConcurrentWritesSafe }
func (d *stubDriver) Write(context.Context, transport.Endpoint, []byte, bool) error { return nil }
func (d *stubDriver) Read(context.Context, transport.Endpoint, int, time.Duration) ([]byte, error) {
	return nil, transport.ErrUnimplemented
}
func (d *stubDriver) Subscribe(context.Context, transport.Endpoint) error   { return nil }
func (d *stubDriver) Unsubscribe(context.Context, transport.Endpoint) error { return nil }
func (d *stubDriver) Events() <-chan transport.DeviceEvent                 { return nil }
func (d *stubDriver) Disconnect() error                                    { return nil }
func (d *stubDriver) Connected() bool                                      { return true }

func TestCreateAllocatesMonotonicIndicesAndBroadcasts(t *testing.T) {
	m := New()
	var events []Event
	m.AddListener(func(e Event) { events = append(events, e) })

	handler := &stubHandler{}

	idx0, err := m.Create(context.Background(), "dev0", &stubDriver{name: "dev0"}, handler)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), idx0)

	idx1, err := m.Create(context.Background(), "dev1", &stubDriver{name: "dev1"}, handler)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), idx1)

	require.Len(t, events, 2)
	assert.Equal(t, DeviceAdded, events[0].Type)
}

func TestRemoveRecyclesIndexViaFreeList(t *testing.T) {
	m := New()
	handler := &stubHandler{}

	idx0, err := m.Create(context.Background(), "dev0", &stubDriver{}, handler)
	require.NoError(t, err)

	require.True(t, m.Remove(idx0))
	_, ok := m.Get(idx0)
	assert.False(t, ok)

	idx1, err := m.Create(context.Background(), "dev1", &stubDriver{}, handler)
	require.NoError(t, err)
	assert.Equal(t, idx0, idx1, "freed index is reused before allocating a new one")
}

func TestRemoveUnknownIndexReturnsFalse(t *testing.T) {
	m := New()
	assert.False(t, m.Remove(42))
}

func TestCreateUsesDisplayNameOverride(t *testing.T) {
	m := New()
	name := "Ear1"
	handler := &stubHandler{initName: &name}

	idx, err := m.Create(context.Background(), "raw-ble-name", &stubDriver{}, handler)
	require.NoError(t, err)

	record, ok := m.Get(idx)
	require.True(t, ok)
	assert.Equal(t, "Ear1", record.Name)
}

func TestCreateFailsWhenInitializeErrors(t *testing.T) {
	m := New()
	handler := &stubHandler{initErr: errors.New("handshake refused")}

	_, err := m.Create(context.Background(), "dev0", &stubDriver{}, handler)
	assert.Error(t, err)
	assert.Empty(t, m.List())
}

func TestCreateTimesOutOnSlowInitialize(t *testing.T) {
	m := New()
	handler := &stubHandler{initDelay: 50 * time.Millisecond}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := m.Create(ctx, "dev0", &stubDriver{}, handler)
	assert.Error(t, err)
}

func TestStopAllInvokesEveryRecordConcurrently(t *testing.T) {
	m := New()
	h1 := &stubHandler{}
	h2 := &stubHandler{}

	_, err := m.Create(context.Background(), "dev0", &stubDriver{}, h1)
	require.NoError(t, err)
	_, err = m.Create(context.Background(), "dev1", &stubDriver{}, h2)
	require.NoError(t, err)

	errs := m.StopAll(context.Background())
	assert.Empty(t, errs)
	assert.Equal(t, 1, h1.stopCalls)
	assert.Equal(t, 1, h2.stopCalls)
}

func TestListReflectsAttributes(t *testing.T) {
	m := New()
	count := uint32(2)
	handler := &stubHandler{}
	handler.Base = protocol.NewBase(wire.MessageAttributesMap{
		wire.VibrateCmd: wire.MessageAttributes{FeatureCount: &count},
	})

	_, err := m.Create(context.Background(), "dev0", &stubDriver{}, handler)
	require.NoError(t, err)

	list := m.List()
	require.Len(t, list, 1)
	assert.Equal(t, count, *list[0].Attributes[wire.VibrateCmd].FeatureCount)
}
