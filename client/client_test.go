package client

import (
	"context"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xmidt-org/idcp/devicemanager"
	"github.com/xmidt-org/idcp/protocol"
	"github.com/xmidt-org/idcp/server"
	"github.com/xmidt-org/idcp/transport"
	"github.com/xmidt-org/idcp/wire"
)

type fakeDriver struct {
	name, address string
	events        chan transport.DeviceEvent
	writes        []fakeWrite
}

type fakeWrite struct {
	Endpoint transport.Endpoint
	Data     []byte
}

func newFakeDriver(name string) *fakeDriver {
	return &fakeDriver{name: name, events: make(chan transport.DeviceEvent, 4)}
}

func (d *fakeDriver) Name() string                                      { return d.name }
func (d *fakeDriver) Address() string                                   { return d.address }
func (d *fakeDriver) Endpoints() []transport.Endpoint                   { return []transport.Endpoint{transport.EndpointTx} }
func (d *fakeDriver) SerializationPolicy() transport.SerializationPolicy { return transport.ConcurrentWritesSafe }
func (d *fakeDriver) Write(_ context.Context, ep transport.Endpoint, data []byte, _ bool) error {
	d.writes = append(d.writes, fakeWrite{Endpoint: ep, Data: append([]byte(nil), data...)})
	return nil
}
func (d *fakeDriver) Read(context.Context, transport.Endpoint, int, time.Duration) ([]byte, error) {
	return nil, transport.ErrUnimplemented
}
func (d *fakeDriver) Subscribe(context.Context, transport.Endpoint) error   { return nil }
func (d *fakeDriver) Unsubscribe(context.Context, transport.Endpoint) error { return nil }
func (d *fakeDriver) Events() <-chan transport.DeviceEvent                 { return d.events }
func (d *fakeDriver) Disconnect() error                                    { return nil }
func (d *fakeDriver) Connected() bool                                      { return true }

type fakeHandler struct {
	protocol.Base
}

func (h *fakeHandler) HandleVibrateCmd(ctx context.Context, driver transport.Driver, msg wire.VibrateCmdMessage) error {
	for _, s := range msg.Speeds {
		if err := driver.Write(ctx, transport.EndpointTx, []byte{byte(s.Speed * 255)}, false); err != nil {
			return wire.NewDeviceError(wire.DeviceCommunicationError, "%v", err)
		}
	}
	return nil
}

func newHandlerWithFeatureCount(n uint32) *fakeHandler {
	h := &fakeHandler{}
	h.Base = protocol.NewBase(wire.MessageAttributesMap{
		wire.VibrateCmd: wire.MessageAttributes{FeatureCount: &n},
	})
	return h
}

// newTestClient wires a Client directly to an in-process server.Loop via
// ChannelConnector, with one already-registered device.
func newTestClient(t *testing.T) (*Client, *devicemanager.Manager, *fakeDriver) {
	t.Helper()

	devices := devicemanager.New()
	loop := server.NewLoop(devices, protocol.NewRegistry(), nil, 0, log.NewNopLogger())

	toServer := make(chan []byte, 8)
	fromServer := make(chan []byte, 8)

	go func() { _ = loop.Run(context.Background(), toServer, fromServer) }()
	<-loop.Ready

	driver := newFakeDriver("dev0")
	handler := newHandlerWithFeatureCount(2)
	_, err := devices.Create(context.Background(), "dev0", driver, handler)
	require.NoError(t, err)

	connector := NewChannelConnector(toServer, fromServer)
	cl := New(connector, log.NewNopLogger())
	go func() { _ = cl.Run(context.Background()) }()

	return cl, devices, driver
}

func TestRequestDeviceListPublishesDevice(t *testing.T) {
	cl, _, _ := newTestClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	devs, err := cl.RequestDeviceList(ctx)
	require.NoError(t, err)
	require.Len(t, devs, 1)
	assert.Equal(t, "dev0", devs[0].Name)
	assert.True(t, devs[0].DeviceConnected())
	assert.True(t, devs[0].ClientConnected())
}

func TestVibrateHappyPathWritesToDriver(t *testing.T) {
	cl, _, driver := newTestClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	devs, err := cl.RequestDeviceList(ctx)
	require.NoError(t, err)
	require.Len(t, devs, 1)

	require.NoError(t, devs[0].Vibrate(ctx, VibrateSpeed(0.5)))
	assert.Len(t, driver.writes, 2)
}

func TestVibrateOutOfRangeRejectedWithoutNetworkRoundTrip(t *testing.T) {
	cl, _, driver := newTestClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	devs, err := cl.RequestDeviceList(ctx)
	require.NoError(t, err)
	require.Len(t, devs, 1)

	err = devs[0].Vibrate(ctx, VibrateSpeedMap(map[uint32]float64{9: 0.5}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max vibrator index")
	assert.Empty(t, driver.writes)
}

func TestServerDisconnectMarksDeviceAndClientDisconnected(t *testing.T) {
	devices := devicemanager.New()
	loop := server.NewLoop(devices, protocol.NewRegistry(), nil, 0, log.NewNopLogger())

	toServer := make(chan []byte, 8)
	fromServer := make(chan []byte, 8)
	loopDone := make(chan error, 1)
	go func() { loopDone <- loop.Run(context.Background(), toServer, fromServer) }()
	<-loop.Ready

	driver := newFakeDriver("dev0")
	handler := newHandlerWithFeatureCount(1)
	_, err := devices.Create(context.Background(), "dev0", driver, handler)
	require.NoError(t, err)

	connector := NewChannelConnector(toServer, fromServer)
	cl := New(connector, log.NewNopLogger())
	runDone := make(chan error, 1)
	go func() { runDone <- cl.Run(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	devs, err := cl.RequestDeviceList(ctx)
	require.NoError(t, err)
	require.Len(t, devs, 1)

	close(toServer) // server sees EOF and Loop.Run returns
	select {
	case <-loopDone:
	case <-time.After(2 * time.Second):
		t.Fatal("server loop did not exit after input channel closed")
	}
	close(fromServer) // simulates the transport tearing down both directions

	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("client Run did not exit after losing the connection")
	}

	assert.False(t, devs[0].ClientConnected())
	assert.False(t, devs[0].DeviceConnected())
	assert.False(t, cl.Connected())
}
