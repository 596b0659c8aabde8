// Package server implements the Server Event Loop from spec.md §4.6: a
// single dispatcher per connection that owns no shared mutable state of
// its own (the Device Manager and comm managers are injected and shared
// across connections) but serializes that connection's view of replies,
// notifications, and ping bookkeeping.
//
// Grounded on katagun-webpa-common/device/manager.go's readPump/writePump/
// dispatch shape: a read side that decodes frames and routes them, a
// listener-dispatch side that forwards registry events, and a select loop
// tying the two together with a ping ticker.
package server

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-kit/log"
	"github.com/xmidt-org/idcp/devicemanager"
	"github.com/xmidt-org/idcp/internal/xlog"
	"github.com/xmidt-org/idcp/protocol"
	"github.com/xmidt-org/idcp/transport"
	"github.com/xmidt-org/idcp/wire"
)

// Scanner pairs a transport family's discovery half with the name the
// configuration database's fingerprints match against (protocol.Fingerprint
// .TransportFamily).
type Scanner struct {
	Family  string
	Manager transport.CommManager
}

// Loop is one client connection's Server Event Loop. Devices and Registry
// are shared across every connection; Scanners are shared or per-connection
// depending on whether discovery is connection-scoped, a deployment choice
// left to cmd/idcpd's wiring.
type Loop struct {
	Devices     *devicemanager.Manager
	Registry    *protocol.Registry
	Scanners    []Scanner
	PingTimeout time.Duration
	Logger      log.Logger

	// Ready is closed once Run has subscribed to Devices and started its
	// scanner pumps, so a caller that creates devices or starts scanning
	// from outside Run's goroutine can wait for the subscription to be in
	// place first and not race a registry event past an empty listener set.
	Ready chan struct{}

	pending *Pending
}

// NewLoop constructs a Loop. pingTimeout <= 0 disables the ping watchdog.
func NewLoop(devices *devicemanager.Manager, registry *protocol.Registry, scanners []Scanner, pingTimeout time.Duration, logger log.Logger) *Loop {
	return &Loop{
		Devices:     devices,
		Registry:    registry,
		Scanners:    scanners,
		PingTimeout: pingTimeout,
		Logger:      logger,
		Ready:       make(chan struct{}),
		pending:     NewPending(0),
	}
}

// Run drives the loop until in is closed, ctx is cancelled, or the ping
// watchdog fires. On return it has already run StopAllDevices and failed
// every still-pending request with ConnectorError, per spec.md §7's
// client-disconnect rule.
func (l *Loop) Run(ctx context.Context, in <-chan []byte, out chan<- []byte) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	removeListener := l.Devices.AddListener(func(e devicemanager.Event) {
		l.onDeviceEvent(ctx, e, out)
	})
	defer removeListener()

	for _, s := range l.Scanners {
		go l.pumpScanner(ctx, s, out)
	}

	close(l.Ready)

	var pingTimer *time.Timer
	var pingC <-chan time.Time
	if l.PingTimeout > 0 {
		pingTimer = time.NewTimer(l.PingTimeout)
		defer pingTimer.Stop()
		pingC = pingTimer.C
	}

	runErr := l.runLoop(ctx, in, out, pingTimer, pingC)

	xlog.Info(l.Logger).Log(xlog.MessageKey, "connection closing", xlog.ErrorKey, runErr)
	l.pending.CancelAll(wire.NewConnectorError("client disconnected"))
	l.Devices.StopAll(context.Background())

	return runErr
}

func (l *Loop) runLoop(ctx context.Context, in <-chan []byte, out chan<- []byte, pingTimer *time.Timer, pingC <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-pingC:
			return wire.NewPingError("no ping received within %s", l.PingTimeout)

		case frame, ok := <-in:
			if !ok {
				return nil
			}

			envelopes, err := wire.DecodeArray(frame)
			if err != nil {
				l.writeReply(ctx, out, wire.NoReply, "Error", wire.ToEnvelope(wire.NoReply, wire.NewMessageError("%v", err)))
				continue
			}

			for _, env := range envelopes {
				env := env
				if env.Key == "Ping" {
					l.resetPing(pingTimer)
				}
				go l.handleRequest(ctx, env, out)
			}
		}
	}
}

func (l *Loop) resetPing(timer *time.Timer) {
	if timer == nil {
		return
	}
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(l.PingTimeout)
}

// handleRequest runs one envelope's command to completion and writes its
// reply, honoring the Pending Request Table's dedup/cancellation contract.
func (l *Loop) handleRequest(ctx context.Context, env wire.Envelope, out chan<- []byte) {
	id, err := env.Id()
	if err != nil {
		l.writeReply(ctx, out, wire.NoReply, "Error", wire.ToEnvelope(wire.NoReply, wire.NewMessageError("%v", err)))
		return
	}

	if id != wire.NoReply {
		if _, regErr := l.pending.Register(id); regErr != nil {
			l.writeReply(ctx, out, id, "Error", wire.ToEnvelope(id, wire.NewMessageError("%v", regErr)))
			return
		}
	}

	name, msg, routeErr := l.route(ctx, env, id)

	if id == wire.NoReply {
		return
	}
	if !l.pending.Complete(id, routeErr) {
		// Already resolved by CancelAll (client disconnected mid-flight):
		// there is no one left to deliver this reply to.
		return
	}

	if routeErr != nil {
		l.writeReply(ctx, out, id, "Error", wire.ToEnvelope(id, routeErr))
		return
	}
	l.writeReply(ctx, out, id, name, msg)
}

// route executes one envelope's command and returns the wire key/value of
// its success reply. routeErr, when non-nil, is always a *wire.ProtocolError
// or wraps into one via wire.ToEnvelope.
func (l *Loop) route(ctx context.Context, env wire.Envelope, id wire.Id) (string, interface{}, error) {
	if wire.IsLifecycleKey(env.Key) {
		return l.routeLifecycle(ctx, env, id)
	}
	return l.routeDevice(ctx, env, id)
}

func (l *Loop) routeLifecycle(ctx context.Context, env wire.Envelope, id wire.Id) (string, interface{}, error) {
	switch env.Key {
	case "RequestDeviceList":
		var req wire.RequestDeviceList
		if err := env.Decode(&req); err != nil {
			return "", nil, err
		}
		records := l.Devices.List()
		sort.Slice(records, func(i, j int) bool { return records[i].Index < records[j].Index })

		entries := make([]wire.DeviceListEntry, len(records))
		for i, r := range records {
			entries[i] = wire.DeviceListEntry{DeviceName: r.Name, DeviceIndex: r.Index, DeviceMessages: r.Attributes}
		}
		return "DeviceList", wire.DeviceList{Id: id, Devices: entries}, nil

	case "StartScanning":
		var req wire.StartScanning
		if err := env.Decode(&req); err != nil {
			return "", nil, err
		}
		for _, s := range l.Scanners {
			if err := s.Manager.StartScanning(ctx); err != nil {
				return "", nil, wire.NewConnectorError("start scanning on %s: %v", s.Family, err)
			}
		}
		return "Ok", wire.Ok{Id: id}, nil

	case "StopScanning":
		var req wire.StopScanning
		if err := env.Decode(&req); err != nil {
			return "", nil, err
		}
		for _, s := range l.Scanners {
			if err := s.Manager.StopScanning(); err != nil {
				return "", nil, wire.NewConnectorError("stop scanning on %s: %v", s.Family, err)
			}
		}
		return "Ok", wire.Ok{Id: id}, nil

	case "StopAllDevices":
		var req wire.StopAllDevices
		if err := env.Decode(&req); err != nil {
			return "", nil, err
		}
		if errs := l.Devices.StopAll(ctx); len(errs) > 0 {
			xlog.Warn(l.Logger).Log(xlog.MessageKey, "StopAllDevices had per-device errors", "count", len(errs))
		}
		return "Ok", wire.Ok{Id: id}, nil

	case "Ping":
		return "Ok", wire.Ok{Id: id}, nil

	default:
		return "", nil, fmt.Errorf("%w: unhandled lifecycle key %q", wire.ErrUnknownMessage, env.Key)
	}
}

// deviceError classifies an error returned by a Protocol Handler call
// against record.Driver. A *wire.ProtocolError the handler already built
// (UnsupportedCommand, InvalidCommand, ...) passes through unchanged;
// anything else reaching here came from a transport write/read, so the
// driver's own disconnect signal decides whether it surfaces as
// DeviceNotConnected (spec.md §8 scenario 4) or the generic
// DeviceCommunicationError fallback.
func (l *Loop) deviceError(record *devicemanager.Record, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*wire.ProtocolError); ok {
		return err
	}
	if errors.Is(err, transport.ErrDisconnected) || !record.Driver.Connected() {
		return wire.NewDeviceError(wire.DeviceNotConnected, "device %d (%s) is disconnected: %v", record.Index, record.Name, err)
	}
	return wire.NewDeviceError(wire.DeviceCommunicationError, "%v", err)
}

func (l *Loop) routeDevice(ctx context.Context, env wire.Envelope, id wire.Id) (string, interface{}, error) {
	idx, hasIdx, err := env.DeviceIndex()
	if err != nil {
		return "", nil, err
	}
	if !hasIdx {
		return "", nil, wire.NewMessageError("%s requires DeviceIndex", env.Key)
	}

	record, ok := l.Devices.Get(idx)
	if !ok {
		return "", nil, wire.NewDeviceError(wire.DeviceNotFound, "no device at index %d", idx)
	}

	switch wire.DeviceMessageType(env.Key) {
	case wire.VibrateCmd:
		var msg wire.VibrateCmdMessage
		if err := env.Decode(&msg); err != nil {
			return "", nil, err
		}
		if err := validateVibrate(record.Attributes, msg.Speeds); err != nil {
			return "", nil, err
		}
		if err := record.Handler.HandleVibrateCmd(ctx, record.Driver, msg); err != nil {
			return "", nil, l.deviceError(record, err)
		}
		return "Ok", wire.Ok{Id: id}, nil

	case wire.LinearCmd:
		var msg wire.LinearCmdMessage
		if err := env.Decode(&msg); err != nil {
			return "", nil, err
		}
		if err := validateLinear(record.Attributes, msg.Vectors); err != nil {
			return "", nil, err
		}
		if err := record.Handler.HandleLinearCmd(ctx, record.Driver, msg); err != nil {
			return "", nil, l.deviceError(record, err)
		}
		return "Ok", wire.Ok{Id: id}, nil

	case wire.RotateCmd:
		var msg wire.RotateCmdMessage
		if err := env.Decode(&msg); err != nil {
			return "", nil, err
		}
		if err := validateRotate(record.Attributes, msg.Rotations); err != nil {
			return "", nil, err
		}
		if err := record.Handler.HandleRotateCmd(ctx, record.Driver, msg); err != nil {
			return "", nil, l.deviceError(record, err)
		}
		return "Ok", wire.Ok{Id: id}, nil

	case wire.StopDeviceCmd:
		var msg wire.StopDeviceCmdMessage
		if err := env.Decode(&msg); err != nil {
			return "", nil, err
		}
		if err := record.Handler.HandleStopDeviceCmd(ctx, record.Driver); err != nil {
			return "", nil, l.deviceError(record, err)
		}
		return "Ok", wire.Ok{Id: id}, nil

	case wire.RawWriteCmd:
		var msg wire.RawWriteCmdMessage
		if err := env.Decode(&msg); err != nil {
			return "", nil, err
		}
		if err := record.Handler.HandleRawWriteCmd(ctx, record.Driver, transport.Endpoint(msg.Endpoint), msg.Data, msg.WriteWithResponse); err != nil {
			return "", nil, l.deviceError(record, err)
		}
		return "Ok", wire.Ok{Id: id}, nil

	case wire.RawReadCmd:
		var msg wire.RawReadCmdMessage
		if err := env.Decode(&msg); err != nil {
			return "", nil, err
		}
		timeout := time.Duration(msg.TimeoutMs) * time.Millisecond
		data, err := record.Handler.HandleRawReadCmd(ctx, record.Driver, transport.Endpoint(msg.Endpoint), msg.Length, timeout)
		if err != nil {
			return "", nil, l.deviceError(record, err)
		}
		return "RawReading", wire.RawReading{Id: id, DeviceIndex: idx, Endpoint: msg.Endpoint, Data: data}, nil

	case wire.RawSubscribeCmd:
		var msg wire.RawSubscribeCmdMessage
		if err := env.Decode(&msg); err != nil {
			return "", nil, err
		}
		if err := record.Handler.HandleRawSubscribeCmd(ctx, record.Driver, transport.Endpoint(msg.Endpoint)); err != nil {
			return "", nil, l.deviceError(record, err)
		}
		return "Ok", wire.Ok{Id: id}, nil

	case wire.RawUnsubscribeCmd:
		var msg wire.RawUnsubscribeCmdMessage
		if err := env.Decode(&msg); err != nil {
			return "", nil, err
		}
		if err := record.Handler.HandleRawUnsubscribeCmd(ctx, record.Driver, transport.Endpoint(msg.Endpoint)); err != nil {
			return "", nil, l.deviceError(record, err)
		}
		return "Ok", wire.Ok{Id: id}, nil

	default:
		return "", nil, fmt.Errorf("%w: unknown message key %q", wire.ErrUnknownMessage, env.Key)
	}
}

// onDeviceEvent forwards a Device Manager registry change to the client as
// an unsolicited notification, and for DeviceAdded starts that device's
// event pump (disconnect/notification forwarding).
func (l *Loop) onDeviceEvent(ctx context.Context, e devicemanager.Event, out chan<- []byte) {
	switch e.Type {
	case devicemanager.DeviceAdded:
		entry := wire.DeviceListEntry{DeviceName: e.Name, DeviceIndex: e.Index, DeviceMessages: e.Attributes}
		l.writeReply(ctx, out, wire.NoReply, "DeviceAdded", wire.DeviceAdded{Id: wire.NoReply, DeviceListEntry: entry})

		if record, ok := l.Devices.Get(e.Index); ok {
			go l.pumpDeviceEvents(ctx, record, out)
		}

	case devicemanager.DeviceRemoved:
		l.writeReply(ctx, out, wire.NoReply, "DeviceRemoved", wire.DeviceRemoved{Id: wire.NoReply, DeviceIndex: e.Index})
	}
}

// pumpDeviceEvents forwards one device's notification/disconnect stream
// until the device disconnects or the connection closes.
func (l *Loop) pumpDeviceEvents(ctx context.Context, record *devicemanager.Record, out chan<- []byte) {
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-record.Driver.Events():
			if !ok {
				return
			}
			switch ev.Kind {
			case transport.EventDisconnected:
				l.Devices.Remove(record.Index)
				return
			case transport.EventNotification:
				l.writeReply(ctx, out, wire.NoReply, "RawReadingNotification", wire.RawReadingNotification{
					Id:          wire.NoReply,
					DeviceIndex: record.Index,
					Endpoint:    string(ev.Endpoint),
					Data:        ev.Bytes,
				})
			}
		}
	}
}

// pumpScanner forwards one comm manager's discovery stream: matching
// devices are created in the Device Manager, unmatched ones are skipped and
// logged, and ScanningFinished is relayed as a notification.
func (l *Loop) pumpScanner(ctx context.Context, s Scanner, out chan<- []byte) {
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-s.Manager.Events():
			if !ok {
				return
			}

			switch ev.Kind {
			case transport.ScanFinished:
				l.writeReply(ctx, out, wire.NoReply, "ScanningFinished", wire.ScanningFinished{Id: wire.NoReply})

			case transport.ScanDeviceFound:
				factory, matched := l.Registry.Match(s.Family, ev.Name, ev.Address)
				if !matched {
					xlog.Debug(l.Logger).Log(xlog.MessageKey, "no protocol handler matched", "name", ev.Name, "address", ev.Address)
					continue
				}

				driver, err := ev.Creator(ctx)
				if err != nil {
					xlog.Error(l.Logger).Log(xlog.MessageKey, "failed to connect discovered device", xlog.ErrorKey, err)
					continue
				}

				handler := factory(ev.Name)
				if _, err := l.Devices.Create(ctx, ev.Name, driver, handler); err != nil {
					xlog.Error(l.Logger).Log(xlog.MessageKey, "failed to initialize discovered device", xlog.ErrorKey, err)
					driver.Disconnect()
				}
			}
		}
	}
}

// writeReply encodes name/msg into a single-element wire array (the
// framing every envelope travels in) and delivers it to out, giving up if
// ctx is already done so a slow/closed connection can't leak this
// goroutine.
func (l *Loop) writeReply(ctx context.Context, out chan<- []byte, id wire.Id, name string, msg interface{}) {
	data, err := wire.EncodeArray(wire.Named(name, msg))
	if err != nil {
		xlog.Error(l.Logger).Log(xlog.MessageKey, "failed to encode reply", xlog.ErrorKey, err, "id", id)
		return
	}

	select {
	case out <- data:
	case <-ctx.Done():
	}
}
