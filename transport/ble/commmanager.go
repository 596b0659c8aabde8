package ble

import (
	"context"

	"github.com/xmidt-org/idcp/transport"
)

// Candidate is one peripheral observed during a scan window, grounded on
// original_source's btleplug_adapter_task.rs device_event loop: a BLE scan
// yields advertisements over time rather than a single poll, so each
// Candidate carries its own Connect closure rather than an address a
// separate dial step looks up later.
type Candidate struct {
	Name    string
	Address string
	Connect func(ctx context.Context) (Peripheral, error)
}

// Scanner runs one scan window, invoking onFound for every advertisement
// seen, and returns once the window closes (on timeout or ctx
// cancellation). A real Scanner wraps gatt.Device.Scan plus its
// PeripheralDiscovered handler; tests supply a fake that calls onFound
// synchronously.
type Scanner func(ctx context.Context, onFound func(Candidate)) error

// EndpointResolver maps a discovered peripheral's name/address to the
// characteristic layout its protocol needs, since that mapping depends on
// which device model answered the advertisement.
type EndpointResolver func(name, address string) EndpointMap

// CommManager is the BLE family's discovery half (spec.md §4.1): scan,
// dedup by address via transport.DedupSet, and hand back a Driver
// Creator that connects only when the protocol layer actually claims the
// device.
type CommManager struct {
	scan     Scanner
	resolve  EndpointResolver
	events   chan transport.ScanEvent
	dedup    *transport.DedupSet
	cancelFn context.CancelFunc
}

// NewCommManager constructs a CommManager over scan, resolving each
// discovered peripheral's endpoints with resolve.
func NewCommManager(scan Scanner, resolve EndpointResolver) *CommManager {
	return &CommManager{
		scan:    scan,
		resolve: resolve,
		events:  make(chan transport.ScanEvent, 8),
		dedup:   transport.NewDedupSet(),
	}
}

func (m *CommManager) Events() <-chan transport.ScanEvent { return m.events }

func (m *CommManager) StartScanning(ctx context.Context) error {
	m.dedup.Reset()

	scanCtx, cancel := context.WithCancel(ctx)
	m.cancelFn = cancel

	err := m.scan(scanCtx, func(c Candidate) {
		if !m.dedup.ShouldReport(c.Address) {
			return
		}
		c := c
		m.events <- transport.ScanEvent{
			Kind:    transport.ScanDeviceFound,
			Name:    c.Name,
			Address: c.Address,
			Creator: func(ctx context.Context) (transport.Driver, error) {
				p, err := c.Connect(ctx)
				if err != nil {
					return nil, err
				}
				return New(p, m.resolve(c.Name, c.Address)), nil
			},
		}
	})
	if err != nil {
		m.events <- transport.ScanEvent{Kind: transport.ScanFinished}
		return err
	}

	m.events <- transport.ScanEvent{Kind: transport.ScanFinished}
	return nil
}

func (m *CommManager) StopScanning() error {
	if m.cancelFn != nil {
		m.cancelFn()
	}
	return nil
}
