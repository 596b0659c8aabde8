package hid

import (
	"context"

	"github.com/xmidt-org/idcp/transport"
)

// Lister enumerates currently-present HID device paths, mirroring
// original_source's hid_comm_manager.rs list() call.
type Lister func() ([]Candidate, error)

// Candidate is one discoverable HID device.
type Candidate struct {
	Name string
	Path string
}

// CommManager is the HID family's discovery half (spec.md §4.1): polling a
// Lister once per StartScanning, deduped by path via transport.DedupSet.
type CommManager struct {
	list   Lister
	opener FileOpener

	events chan transport.ScanEvent
	dedup  *transport.DedupSet
}

// NewCommManager constructs a CommManager. opener may be nil to use the OS
// file system.
func NewCommManager(list Lister, opener FileOpener) *CommManager {
	return &CommManager{
		list:   list,
		opener: opener,
		events: make(chan transport.ScanEvent, 8),
		dedup:  transport.NewDedupSet(),
	}
}

func (m *CommManager) Events() <-chan transport.ScanEvent { return m.events }

func (m *CommManager) StartScanning(ctx context.Context) error {
	m.dedup.Reset()

	candidates, err := m.list()
	if err != nil {
		return err
	}

	for _, c := range candidates {
		if !m.dedup.ShouldReport(c.Path) {
			continue
		}
		c := c
		m.events <- transport.ScanEvent{
			Kind:    transport.ScanDeviceFound,
			Name:    c.Name,
			Address: c.Path,
			Creator: func(context.Context) (transport.Driver, error) {
				return Open(c.Name, c.Path, m.opener)
			},
		}
	}

	m.events <- transport.ScanEvent{Kind: transport.ScanFinished}
	return nil
}

func (m *CommManager) StopScanning() error {
	return nil
}
