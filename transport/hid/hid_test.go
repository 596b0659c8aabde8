package hid

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xmidt-org/idcp/transport"
)

type memoryFile struct {
	written [][]byte
	closed  bool
}

func (f *memoryFile) Write(p []byte) (int, error) {
	cp := make([]byte, len(p))
	copy(cp, p)
	f.written = append(f.written, cp)
	return len(p), nil
}

func (f *memoryFile) Close() error {
	f.closed = true
	return nil
}

func memoryOpener(backing map[string]*memoryFile) FileOpener {
	return func(path string) (io.WriteCloser, error) {
		f := &memoryFile{}
		backing[path] = f
		return f, nil
	}
}

func TestWriteToTxEndpoint(t *testing.T) {
	backing := map[string]*memoryFile{}
	d, err := Open("ear1", "/dev/hidraw0", memoryOpener(backing))
	require.NoError(t, err)

	require.NoError(t, d.Write(context.Background(), transport.EndpointTx, []byte{0x01}, false))
	assert.Equal(t, [][]byte{{0x01}}, backing["/dev/hidraw0"].written)
}

func TestWriteRejectsUnsupportedEndpoint(t *testing.T) {
	backing := map[string]*memoryFile{}
	d, err := Open("ear1", "/dev/hidraw0", memoryOpener(backing))
	require.NoError(t, err)

	err = d.Write(context.Background(), transport.EndpointRx, []byte{0x01}, false)
	assert.ErrorIs(t, err, transport.ErrUnsupportedEndpoint)
}

func TestCommManagerReportsAgainAfterRescan(t *testing.T) {
	backing := map[string]*memoryFile{}
	calls := 0
	list := func() ([]Candidate, error) {
		calls++
		return []Candidate{{Name: "ear1", Path: "/dev/hidraw0"}}, nil
	}

	m := NewCommManager(list, memoryOpener(backing))
	require.NoError(t, m.StartScanning(context.Background()))

	found := <-m.Events()
	assert.Equal(t, transport.ScanDeviceFound, found.Kind)
	finished := <-m.Events()
	assert.Equal(t, transport.ScanFinished, finished.Kind)

	// second scan without Reset in between would suppress re-reporting if
	// dedup weren't cleared by StartScanning; but StartScanning does reset
	// the dedup set each time, so the same address is reported again.
	require.NoError(t, m.StartScanning(context.Background()))
	found2 := <-m.Events()
	assert.Equal(t, transport.ScanDeviceFound, found2.Kind)
}
