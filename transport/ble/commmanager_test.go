package ble

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xmidt-org/idcp/transport"
)

func scannerWith(candidates ...Candidate) Scanner {
	return func(_ context.Context, onFound func(Candidate)) error {
		for _, c := range candidates {
			onFound(c)
		}
		return nil
	}
}

func connectStub(p Peripheral) func(context.Context) (Peripheral, error) {
	return func(context.Context) (Peripheral, error) { return p, nil }
}

func TestStartScanningEmitsFoundThenFinished(t *testing.T) {
	p := &fakePeripheral{id: "aa:bb", name: "ear1"}
	scan := scannerWith(Candidate{Name: "ear1", Address: "aa:bb", Connect: connectStub(p)})
	m := NewCommManager(scan, func(string, string) EndpointMap { return endpoints() })

	require.NoError(t, m.StartScanning(context.Background()))

	found := <-m.Events()
	assert.Equal(t, transport.ScanDeviceFound, found.Kind)
	assert.Equal(t, "aa:bb", found.Address)

	finished := <-m.Events()
	assert.Equal(t, transport.ScanFinished, finished.Kind)
}

func TestStartScanningDedupsByAddressWithinOneScan(t *testing.T) {
	p := &fakePeripheral{id: "aa:bb", name: "ear1"}
	scan := scannerWith(
		Candidate{Name: "ear1", Address: "aa:bb", Connect: connectStub(p)},
		Candidate{Name: "ear1", Address: "aa:bb", Connect: connectStub(p)},
	)
	m := NewCommManager(scan, func(string, string) EndpointMap { return endpoints() })

	require.NoError(t, m.StartScanning(context.Background()))

	found := <-m.Events()
	assert.Equal(t, transport.ScanDeviceFound, found.Kind)
	finished := <-m.Events()
	assert.Equal(t, transport.ScanFinished, finished.Kind)
}

func TestCreatorConnectsResolvedDriver(t *testing.T) {
	p := &fakePeripheral{id: "aa:bb", name: "ear1"}
	scan := scannerWith(Candidate{Name: "ear1", Address: "aa:bb", Connect: connectStub(p)})
	m := NewCommManager(scan, func(string, string) EndpointMap { return endpoints() })

	require.NoError(t, m.StartScanning(context.Background()))
	found := <-m.Events()
	<-m.Events()

	drv, err := found.Creator(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "aa:bb", drv.Address())
}
