// Package devicemanager implements the Device Manager from spec.md §4.5:
// a registry mapping an allocated device_index to its (Transport Driver,
// Protocol Handler) pair, with index allocation from a free list and
// DeviceAdded/DeviceRemoved broadcast to the Server Event Loop.
//
// Grounded on katagun-webpa-common's device/manager.go: a mutex-guarded
// registry struct, a listener-dispatch pattern (manager.listeners /
// manager.dispatch) for connect/disconnect events, and VisitIf/VisitAll
// style enumeration — adapted here from WRP devices keyed by ID to
// haptic devices keyed by an allocated uint32 index.
package devicemanager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xmidt-org/idcp/protocol"
	"github.com/xmidt-org/idcp/transport"
	"github.com/xmidt-org/idcp/wire"
)

// DefaultInitializeTimeout is the handler-declared timeout's default
// value from spec.md §5.
const DefaultInitializeTimeout = 5 * time.Second

// ErrInitializationTimeout is returned when a Protocol Handler's
// Initialize call does not complete within the configured timeout.
var ErrInitializationTimeout = fmt.Errorf("devicemanager: initialization timed out")

// EventType distinguishes the two broadcast shapes from spec.md §4.5.
type EventType int

const (
	DeviceAdded EventType = iota
	DeviceRemoved
)

// Event is dispatched to every registered listener on registry change.
type Event struct {
	Type       EventType
	Index      uint32
	Name       string
	Attributes wire.MessageAttributesMap
}

// Record is one entry in the registry: a connected device's transport,
// protocol handler, and declared capabilities.
type Record struct {
	Index      uint32
	Name       string
	Driver     transport.Driver
	Handler    protocol.Handler
	Attributes wire.MessageAttributesMap
}

// Manager is the Device Manager registry.
type Manager struct {
	mu         sync.RWMutex
	records    map[uint32]*Record
	freeList   []uint32
	next       uint32
	listeners  map[uint64]func(Event)
	listenerID uint64
}

// New constructs an empty Manager.
func New() *Manager {
	return &Manager{records: make(map[uint32]*Record), listeners: make(map[uint64]func(Event))}
}

// AddListener registers fn to be invoked, synchronously and within the
// same call that mutates the registry, on every DeviceAdded/DeviceRemoved
// event — this is what spec.md §5 means by "the server enforces [event
// ordering] by publishing registry changes within the same loop tick
// that inserts them." The returned function unsubscribes fn; every
// per-connection server.Loop calls it on disconnect so the registry
// doesn't accumulate listeners for clients long gone.
func (m *Manager) AddListener(fn func(Event)) (remove func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.listenerID
	m.listenerID++
	m.listeners[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

func (m *Manager) dispatch(e Event) {
	m.mu.RLock()
	listeners := make([]func(Event), 0, len(m.listeners))
	for _, listener := range m.listeners {
		listeners = append(listeners, listener)
	}
	m.mu.RUnlock()

	for _, listener := range listeners {
		listener(e)
	}
}

// Create allocates an index for a newly discovered device, runs the
// handler's one-shot Initialize handshake under DefaultInitializeTimeout,
// inserts the record, and broadcasts DeviceAdded. If Initialize fails or
// times out, no record is inserted and the transport is left for the
// caller to disconnect.
func (m *Manager) Create(ctx context.Context, name string, driver transport.Driver, handler protocol.Handler) (uint32, error) {
	initCtx, cancel := context.WithTimeout(ctx, DefaultInitializeTimeout)
	defer cancel()

	type initResult struct {
		name *string
		err  error
	}
	resultCh := make(chan initResult, 1)
	go func() {
		displayName, err := handler.Initialize(initCtx, driver)
		resultCh <- initResult{name: displayName, err: err}
	}()

	var result initResult
	select {
	case <-initCtx.Done():
		return 0, ErrInitializationTimeout
	case result = <-resultCh:
	}
	if result.err != nil {
		return 0, result.err
	}

	displayName := name
	if result.name != nil {
		displayName = *result.name
	}

	m.mu.Lock()
	index := m.allocateLocked()
	record := &Record{
		Index:      index,
		Name:       displayName,
		Driver:     driver,
		Handler:    handler,
		Attributes: handler.Attributes(),
	}
	m.records[index] = record
	m.mu.Unlock()

	m.dispatch(Event{Type: DeviceAdded, Index: index, Name: displayName, Attributes: record.Attributes})
	return index, nil
}

// allocateLocked must be called with m.mu held for writing.
func (m *Manager) allocateLocked() uint32 {
	if n := len(m.freeList); n > 0 {
		index := m.freeList[n-1]
		m.freeList = m.freeList[:n-1]
		return index
	}
	index := m.next
	m.next++
	return index
}

// Remove deletes the record for index, releases the index back to the
// free list, and broadcasts DeviceRemoved. Returns false if index was not
// present.
func (m *Manager) Remove(index uint32) bool {
	m.mu.Lock()
	record, ok := m.records[index]
	if ok {
		delete(m.records, index)
		m.freeList = append(m.freeList, index)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}

	m.dispatch(Event{Type: DeviceRemoved, Index: index, Name: record.Name})
	return true
}

// Get returns the record for index.
func (m *Manager) Get(index uint32) (*Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[index]
	return record, ok
}

// List returns a snapshot of every currently connected device, for
// RequestDeviceList replies. The snapshot is in no particular order;
// callers that need index order sort it themselves.
func (m *Manager) List() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Record, 0, len(m.records))
	for _, record := range m.records {
		out = append(out, *record)
	}
	return out
}

// StopAll invokes every record's stop handler concurrently and waits for
// all to complete, per spec.md §4.5's StopAllDevices contract. Individual
// handler errors are collected but do not stop the sweep.
func (m *Manager) StopAll(ctx context.Context) []error {
	records := m.List()

	var wg sync.WaitGroup
	errs := make([]error, len(records))
	for i, record := range records {
		wg.Add(1)
		go func(i int, record Record) {
			defer wg.Done()
			errs[i] = record.Handler.HandleStopDeviceCmd(ctx, record.Driver)
		}(i, record)
	}
	wg.Wait()

	filtered := errs[:0]
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	return filtered
}
