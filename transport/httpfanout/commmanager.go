package httpfanout

import (
	"context"
	"net/http"
	"sync"

	"github.com/xmidt-org/idcp/transport"
)

// CommManager is the HTTP fan-out family's discovery half. Unlike BLE/HID,
// there's no physical scan: the device list is the configured set of
// endpoint URLs (spec.md §9's resolved Open Question), and
// Config.DiscoveryEnabled simply toggles whether StartScanning reports them
// at all — it lets an operator configure HTTP devices without them
// appearing until explicitly enabled.
type CommManager struct {
	endpoints []EndpointConfig
	enabled   bool
	client    *http.Client

	mu       sync.Mutex
	events   chan transport.ScanEvent
	scanning bool
}

// Config configures the HTTP fan-out family.
type Config struct {
	Endpoints        []EndpointConfig
	DiscoveryEnabled bool
	Client           *http.Client
}

// NewCommManager constructs a CommManager from Config.
func NewCommManager(cfg Config) *CommManager {
	return &CommManager{
		endpoints: cfg.Endpoints,
		enabled:   cfg.DiscoveryEnabled,
		client:    cfg.Client,
		events:    make(chan transport.ScanEvent, len(cfg.Endpoints)+1),
	}
}

func (m *CommManager) Events() <-chan transport.ScanEvent { return m.events }

// StartScanning reports every configured endpoint as a ScanDeviceFound
// event, then a ScanFinished event, since this family's "discovery" is
// instantaneous and exhaustive. If DiscoveryEnabled is false, only the
// ScanFinished event fires.
func (m *CommManager) StartScanning(ctx context.Context) error {
	m.mu.Lock()
	m.scanning = true
	m.mu.Unlock()

	if m.enabled {
		for _, ep := range m.endpoints {
			ep := ep
			m.events <- transport.ScanEvent{
				Kind:    transport.ScanDeviceFound,
				Name:    ep.Name,
				Address: ep.URL,
				Creator: func(context.Context) (transport.Driver, error) {
					return New(ep, m.client)
				},
			}
		}
	}

	m.events <- transport.ScanEvent{Kind: transport.ScanFinished}
	return nil
}

func (m *CommManager) StopScanning() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scanning = false
	return nil
}
