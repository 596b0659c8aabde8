package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xmidt-org/idcp/devicemanager"
	"github.com/xmidt-org/idcp/protocol"
	"github.com/xmidt-org/idcp/transport"
	"github.com/xmidt-org/idcp/wire"
)

type fakeDriver struct{ name string }

func (d *fakeDriver) Name() string                                      { return d.name }
func (d *fakeDriver) Address() string                                   { return "" }
func (d *fakeDriver) Endpoints() []transport.Endpoint                   { return nil }
func (d *fakeDriver) SerializationPolicy() transport.SerializationPolicy { return transport.ConcurrentWritesSafe }
func (d *fakeDriver) Write(context.Context, transport.Endpoint, []byte, bool) error { return nil }
func (d *fakeDriver) Read(context.Context, transport.Endpoint, int, time.Duration) ([]byte, error) {
	return nil, transport.ErrUnimplemented
}
func (d *fakeDriver) Subscribe(context.Context, transport.Endpoint) error   { return nil }
func (d *fakeDriver) Unsubscribe(context.Context, transport.Endpoint) error { return nil }
func (d *fakeDriver) Events() <-chan transport.DeviceEvent                 { return nil }
func (d *fakeDriver) Disconnect() error                                    { return nil }
func (d *fakeDriver) Connected() bool                                      { return true }

func newHandler(featureCount uint32) protocol.Handler {
	n := featureCount
	return protocol.NewBase(wire.MessageAttributesMap{
		wire.VibrateCmd: {FeatureCount: &n},
	})
}

func TestHandleDeviceListReturnsRegisteredDevices(t *testing.T) {
	devices := devicemanager.New()
	idx, err := devices.Create(context.Background(), "dev0", &fakeDriver{name: "dev0"}, newHandler(2))
	require.NoError(t, err)

	s := &Server{Devices: devices, Logger: log.NewNopLogger()}
	router := s.NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/devices", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var views []wire.DeviceListEntry
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&views))
	require.Len(t, views, 1)
	assert.Equal(t, idx, views[0].DeviceIndex)
	assert.Equal(t, "dev0", views[0].DeviceName)
}

func TestHandleDeviceUnknownIndexReturns404(t *testing.T) {
	devices := devicemanager.New()
	s := &Server{Devices: devices, Logger: log.NewNopLogger()}
	router := s.NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/devices/9", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleStatusReportsDeviceCount(t *testing.T) {
	devices := devicemanager.New()
	_, err := devices.Create(context.Background(), "dev0", &fakeDriver{name: "dev0"}, newHandler(1))
	require.NoError(t, err)

	s := &Server{Devices: devices, Logger: log.NewNopLogger()}
	router := s.NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "devices=1")
}
