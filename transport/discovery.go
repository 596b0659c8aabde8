package transport

import (
	"context"
	"sync"
)

// ScanEventKind distinguishes DeviceFound from ScanningFinished, per
// spec.md §4.1's discovery contract.
type ScanEventKind int

const (
	ScanDeviceFound ScanEventKind = iota
	ScanFinished
)

// ScanEvent is emitted by a CommManager while scanning is active.
type ScanEvent struct {
	Kind ScanEventKind

	// Name/Address identify the discovered peripheral. Only set when
	// Kind == ScanDeviceFound.
	Name    string
	Address string

	// Creator instantiates a Driver bound to this specific peripheral.
	// Only set when Kind == ScanDeviceFound.
	Creator func(ctx context.Context) (Driver, error)
}

// CommManager is the discovery half of a transport family: it finds
// peripherals and hands back a Driver factory for each one, per spec.md
// §4.1.
type CommManager interface {
	// StartScanning begins emitting ScanEvents on Events(). Dedup: an
	// address already reported since the last StartScanning is suppressed.
	StartScanning(ctx context.Context) error
	// StopScanning halts any scan still in progress. Every StartScanning
	// call ends with one ScanFinished event, whether its scan ran to the end
	// or was stopped; StopScanning itself emits no event.
	StopScanning() error
	// Events is the discovery event stream.
	Events() <-chan ScanEvent
}

// DedupSet tracks addresses already reported since the last scan start, so
// every CommManager implementation shares the exact suppression semantics
// spec.md §4.1 describes instead of reimplementing it per transport.
type DedupSet struct {
	mu   sync.Mutex
	seen map[string]bool
}

// NewDedupSet constructs an empty DedupSet.
func NewDedupSet() *DedupSet {
	return &DedupSet{seen: make(map[string]bool)}
}

// ShouldReport returns true the first time address is seen since the last
// Reset, and false on every subsequent call.
func (d *DedupSet) ShouldReport(address string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.seen[address] {
		return false
	}
	d.seen[address] = true
	return true
}

// Reset clears the dedup set; called on every StartScanning.
func (d *DedupSet) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = make(map[string]bool)
}
