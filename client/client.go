package client

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/go-kit/log"
	"github.com/xmidt-org/idcp/internal/xlog"
	"github.com/xmidt-org/idcp/wire"
)

// EventType enumerates the Client-level broadcast: ClientDisconnect and
// DeviceDisconnect from spec.md §4.7's DeviceEvent, plus DeviceAdded. Raw
// messages are not broadcast.
type EventType int

const (
	EventClientDisconnect EventType = iota
	EventDeviceDisconnect
	EventDeviceAdded
)

// Event is one entry of the Client's broadcast stream.
type Event struct {
	Type   EventType
	Device *Device
}

// Client owns one connection to a server, correlating replies by message
// id and fanning out unsolicited notifications to every Device it has
// published and to any caller-registered listener.
//
// Grounded on original_source/buttplug/src/client/device.rs's
// ButtplugClient-facing half: a message sender plus a broadcast channel
// of ButtplugClientDeviceEvent, generalized here to own the send/receive
// loop directly rather than delegate to an external event loop task.
type Client struct {
	connector Connector
	logger    log.Logger

	nextID uint32

	pending *pending

	mu       sync.Mutex
	devices  map[uint32]*Device
	listener []func(Event)

	connected int32 // atomic bool: this Client's view of the connection
}

// New wraps connector in a Client ready to Run.
func New(connector Connector, logger log.Logger) *Client {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Client{
		connector: connector,
		logger:    logger,
		pending:   newPending(),
		devices:   make(map[uint32]*Device),
		connected: 1,
	}
}

// Connected reports whether this Client still believes it has a live
// connection to the server.
func (c *Client) Connected() bool {
	return atomic.LoadInt32(&c.connected) != 0
}

// AddListener registers fn to receive every Event this Client broadcasts,
// including ones already delivered to a specific Device. The returned
// func removes the listener.
func (c *Client) AddListener(fn func(Event)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := len(c.listener)
	c.listener = append(c.listener, fn)
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if idx < len(c.listener) {
			c.listener[idx] = nil
		}
	}
}

func (c *Client) broadcast(e Event) {
	c.mu.Lock()
	listeners := make([]func(Event), 0, len(c.listener))
	for _, l := range c.listener {
		if l != nil {
			listeners = append(listeners, l)
		}
	}
	c.mu.Unlock()
	for _, l := range listeners {
		l(e)
	}
}

// Run drives the receive loop until ctx is cancelled or the connector
// returns an error, at which point every Device this Client published is
// marked disconnected and every pending request fails with a
// ConnectorError, mirroring spec.md §4.7's "must neither deadlock nor
// leak if dropped while these events are in flight".
func (c *Client) Run(ctx context.Context) error {
	var runErr error
	for {
		data, err := c.connector.Receive(ctx)
		if err != nil {
			runErr = err
			break
		}

		envelopes, decodeErr := wire.DecodeArray(data)
		if decodeErr != nil {
			xlog.Error(c.logger).Log(xlog.MessageKey, "malformed frame from server", xlog.ErrorKey, decodeErr)
			continue
		}
		for _, env := range envelopes {
			c.dispatch(env)
		}
	}

	atomic.StoreInt32(&c.connected, 0)

	c.mu.Lock()
	devices := make([]*Device, 0, len(c.devices))
	for _, d := range c.devices {
		devices = append(devices, d)
	}
	c.mu.Unlock()

	for _, d := range devices {
		d.clientDisconnected()
		c.broadcast(Event{Type: EventClientDisconnect, Device: d})
	}

	c.pending.cancelAll(wire.NewConnectorError("client disconnected: %v", runErr))
	return runErr
}

func (c *Client) dispatch(env wire.Envelope) {
	id, err := env.Id()
	if err != nil {
		xlog.Error(c.logger).Log(xlog.MessageKey, "malformed envelope id", xlog.ErrorKey, err)
		return
	}

	if id != wire.NoReply {
		c.pending.complete(id, env)
		return
	}

	switch env.Key {
	case "DeviceRemoved":
		var msg wire.DeviceRemoved
		if err := env.Decode(&msg); err != nil {
			return
		}
		c.mu.Lock()
		d, ok := c.devices[msg.DeviceIndex]
		if ok {
			delete(c.devices, msg.DeviceIndex)
		}
		c.mu.Unlock()
		if ok {
			d.deviceDisconnected()
			c.broadcast(Event{Type: EventDeviceDisconnect, Device: d})
		}

	case "DeviceAdded":
		var msg wire.DeviceAdded
		if err := env.Decode(&msg); err != nil {
			return
		}
		d := c.publish(msg.DeviceListEntry)
		c.broadcast(Event{Type: EventDeviceAdded, Device: d})

	default:
		// Unsolicited raw readings, ScanningFinished, etc. are silently
		// dropped here: they are neither routed to a Device nor passed to
		// AddListener hooks.
	}
}

// publish wraps a DeviceListEntry into a Device bound to this Client,
// registers it, and returns it. Calling publish twice for the same index
// returns the existing Device.
func (c *Client) publish(entry wire.DeviceListEntry) *Device {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d, ok := c.devices[entry.DeviceIndex]; ok {
		return d
	}
	d := newDevice(c, entry.DeviceName, entry.DeviceIndex, entry.DeviceMessages)
	c.devices[entry.DeviceIndex] = d
	return d
}

// Devices returns every Device currently known to this Client, sorted by
// index.
func (c *Client) Devices() []*Device {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Device, 0, len(c.devices))
	for _, d := range c.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].index < out[j].index })
	return out
}

// RequestDeviceList asks the server for the current device table and
// publishes a Device façade for each entry, returning the full set.
func (c *Client) RequestDeviceList(ctx context.Context) ([]*Device, error) {
	var list wire.DeviceList
	if err := c.sendExpect(ctx, "RequestDeviceList", func(id wire.Id) interface{} {
		return wire.RequestDeviceList{Id: id}
	}, "DeviceList", &list); err != nil {
		return nil, err
	}

	out := make([]*Device, 0, len(list.Devices))
	for _, entry := range list.Devices {
		out = append(out, c.publish(entry))
	}
	return out, nil
}

// StartScanning asks every comm manager behind the server to begin
// discovery.
func (c *Client) StartScanning(ctx context.Context) error {
	return c.sendExpectOk(ctx, "StartScanning", func(id wire.Id) interface{} { return wire.StartScanning{Id: id} })
}

// StopScanning asks every comm manager behind the server to halt
// discovery.
func (c *Client) StopScanning(ctx context.Context) error {
	return c.sendExpectOk(ctx, "StopScanning", func(id wire.Id) interface{} { return wire.StopScanning{Id: id} })
}

// StopAllDevices sends the canonical device-quiescence command.
func (c *Client) StopAllDevices(ctx context.Context) error {
	return c.sendExpectOk(ctx, "StopAllDevices", func(id wire.Id) interface{} { return wire.StopAllDevices{Id: id} })
}

// Ping sends a keepalive per spec.md §5's negotiated ping-interval rule.
func (c *Client) Ping(ctx context.Context) error {
	return c.sendExpectOk(ctx, "Ping", func(id wire.Id) interface{} { return wire.Ping{Id: id} })
}

// Close releases the underlying connector.
func (c *Client) Close() error {
	return c.connector.Close()
}

func (c *Client) allocID() wire.Id {
	return wire.Id(atomic.AddUint32(&c.nextID, 1))
}

// send transmits name/msg under a freshly allocated id and returns the
// raw reply envelope.
func (c *Client) send(ctx context.Context, name string, build func(wire.Id) interface{}) (wire.Envelope, error) {
	if !c.Connected() {
		return wire.Envelope{}, wire.NewConnectorError("client not connected")
	}

	id := c.allocID()
	result, err := c.pending.register(id)
	if err != nil {
		return wire.Envelope{}, wire.NewConnectorError("%v", err)
	}

	data, err := wire.EncodeArray(wire.Named(name, build(id)))
	if err != nil {
		return wire.Envelope{}, wire.NewMessageError("%v", err)
	}

	if err := c.connector.Send(ctx, data); err != nil {
		c.pending.complete(id, wire.Envelope{})
		return wire.Envelope{}, wire.NewConnectorError("%v", err)
	}

	select {
	case env := <-result:
		return env, nil
	case <-ctx.Done():
		return wire.Envelope{}, wire.NewConnectorError("%v", ctx.Err())
	}
}

// sendExpectOk sends a request and treats anything but an Ok reply as an
// error, per spec.md §4.7 item 5.
func (c *Client) sendExpectOk(ctx context.Context, name string, build func(wire.Id) interface{}) error {
	env, err := c.send(ctx, name, build)
	if err != nil {
		return err
	}
	return expectOk(env)
}

// sendExpect sends a request and decodes a reply of the expected key into
// dest, translating Error replies and any other unexpected key.
func (c *Client) sendExpect(ctx context.Context, name string, build func(wire.Id) interface{}, wantKey string, dest interface{}) error {
	env, err := c.send(ctx, name, build)
	if err != nil {
		return err
	}
	if err := expectKeyOrError(env, wantKey); err != nil {
		return err
	}
	return env.Decode(dest)
}

func expectOk(env wire.Envelope) error {
	switch env.Key {
	case "Ok":
		return nil
	case "Error":
		var wireErr wire.Error
		if err := env.Decode(&wireErr); err != nil {
			return wire.NewMessageError("%v", err)
		}
		return &wire.ProtocolError{Code: wire.ErrorCode(wireErr.ErrorCode), Text: wireErr.ErrorMessage}
	default:
		return wire.NewMessageError("unexpected reply key %q", env.Key)
	}
}

func expectKeyOrError(env wire.Envelope, wantKey string) error {
	switch env.Key {
	case wantKey:
		return nil
	case "Error":
		var wireErr wire.Error
		if err := env.Decode(&wireErr); err != nil {
			return wire.NewMessageError("%v", err)
		}
		return &wire.ProtocolError{Code: wire.ErrorCode(wireErr.ErrorCode), Text: wireErr.ErrorMessage}
	default:
		return wire.NewMessageError("unexpected reply key %q, wanted %q", env.Key, wantKey)
	}
}
