package wsserver

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xmidt-org/idcp/devicemanager"
	"github.com/xmidt-org/idcp/protocol"
)

func TestServeHTTPRoundTripsRequestDeviceList(t *testing.T) {
	devices := devicemanager.New()
	s := New(devices, protocol.NewRegistry(), nil, 0, log.NewNopLogger())

	httpServer := httptest.NewServer(s)
	defer httpServer.Close()

	url := "ws" + strings.TrimPrefix(httpServer.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`[{"RequestDeviceList":{"Id":1}}]`)))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"DeviceList"`)
	assert.Contains(t, string(data), `"Id":1`)
}
