// Package httpfanout implements the HTTP fan-out Transport Driver from
// spec.md §6: a GET request per actuation, bit-exactly
// `GET http://<host>/?speed=<u8>&index=<u8>`. This resolves spec.md §9's
// first Open Question: the two hard-coded "ear" devices from the original
// implementation become a configurable list of endpoint URLs plus a
// discovery toggle (EndpointConfig / CommManager below).
package httpfanout

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/xmidt-org/idcp/transport"
	"github.com/xmidt-org/idcp/transport/xcontext"
)

// EndpointConfig names one HTTP fan-out device.
type EndpointConfig struct {
	Name string
	URL  string
}

// Driver is a transport.Driver over a single HTTP fan-out endpoint. Per
// spec.md §4.1, ordering across concurrent Write calls is not guaranteed —
// this is a connectionless transport — and the Protocol Handlers do not hold
// a lock across their writes, so concurrent commands to one endpoint may
// arrive in any order.
type Driver struct {
	name    string
	baseURL *url.URL
	client  *http.Client

	events    chan transport.DeviceEvent
	connected bool
}

// New constructs a Driver for one HTTP fan-out endpoint.
func New(cfg EndpointConfig, client *http.Client) (*Driver, error) {
	parsed, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("httpfanout: invalid URL %q: %w", cfg.URL, err)
	}

	if client == nil {
		client = http.DefaultClient
	}

	return &Driver{
		name:      cfg.Name,
		baseURL:   parsed,
		client:    client,
		events:    make(chan transport.DeviceEvent, 1),
		connected: true,
	}, nil
}

func (d *Driver) Name() string    { return d.name }
func (d *Driver) Address() string { return d.baseURL.String() }

func (d *Driver) Endpoints() []transport.Endpoint {
	return []transport.Endpoint{transport.EndpointCommand}
}

func (d *Driver) SerializationPolicy() transport.SerializationPolicy {
	return transport.CallerMustSerialize
}

// Write issues the bit-exact `GET /?speed=<u8>&index=<u8>` request. data
// must be exactly two bytes: [speed, index], each 0-255.
func (d *Driver) Write(ctx context.Context, endpoint transport.Endpoint, data []byte, _ bool) error {
	if !d.Connected() {
		return transport.ErrDisconnected
	}
	if endpoint != transport.EndpointCommand {
		return transport.ErrUnsupportedEndpoint
	}
	if len(data) != 2 {
		return fmt.Errorf("httpfanout: write requires [speed, index] bytes, got %d", len(data))
	}

	requestURL := *d.baseURL
	q := requestURL.Query()
	q.Set("speed", fmt.Sprintf("%d", data[0]))
	q.Set("index", fmt.Sprintf("%d", data[1]))
	requestURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL.String(), nil)
	if err != nil {
		return err
	}

	client := d.client
	if c := xcontext.GetClient(ctx); c != http.DefaultClient {
		client = c
	}

	resp, err := client.Do(req)
	if err != nil {
		d.markDisconnected()
		return fmt.Errorf("httpfanout: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("httpfanout: server error status %d", resp.StatusCode)
	}
	return nil
}

// Read is unimplemented: the HTTP fan-out shim is write-only.
func (d *Driver) Read(context.Context, transport.Endpoint, int, time.Duration) ([]byte, error) {
	return nil, transport.ErrUnimplemented
}

func (d *Driver) Subscribe(context.Context, transport.Endpoint) error {
	return transport.ErrUnimplemented
}

func (d *Driver) Unsubscribe(context.Context, transport.Endpoint) error {
	return transport.ErrUnimplemented
}

func (d *Driver) Events() <-chan transport.DeviceEvent { return d.events }

func (d *Driver) Disconnect() error {
	d.markDisconnected()
	return nil
}

func (d *Driver) Connected() bool { return d.connected }

func (d *Driver) markDisconnected() {
	if d.connected {
		d.connected = false
		select {
		case d.events <- transport.DeviceEvent{Kind: transport.EventDisconnected}:
		default:
		}
	}
}
