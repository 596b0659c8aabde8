package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xmidt-org/idcp/wire"
)

func TestRegisterRejectsNoReplyId(t *testing.T) {
	p := NewPending(0)
	_, err := p.Register(wire.NoReply)
	assert.Error(t, err)
}

func TestCompleteDeliversResultOnce(t *testing.T) {
	p := NewPending(0)
	ch, err := p.Register(wire.Id(1))
	require.NoError(t, err)

	assert.True(t, p.Complete(wire.Id(1), nil))
	assert.NoError(t, <-ch)

	assert.False(t, p.Complete(wire.Id(1), nil), "already completed")
}

func TestRegisterRejectsDuplicateId(t *testing.T) {
	p := NewPending(0)
	_, err := p.Register(wire.Id(5))
	require.NoError(t, err)

	_, err = p.Register(wire.Id(5))
	assert.Error(t, err)
}

func TestCancelAllDeliversToEveryPendingRequest(t *testing.T) {
	p := NewPending(0)
	ch1, err := p.Register(wire.Id(1))
	require.NoError(t, err)
	ch2, err := p.Register(wire.Id(2))
	require.NoError(t, err)

	sentinel := wire.NewConnectorError("client disconnected")
	p.CancelAll(sentinel)

	assert.Equal(t, sentinel, <-ch1)
	assert.Equal(t, sentinel, <-ch2)
	assert.Equal(t, 0, p.Len())
}

func TestEvictionFailsOldestPendingRequest(t *testing.T) {
	p := NewPending(1)
	ch1, err := p.Register(wire.Id(1))
	require.NoError(t, err)

	_, err = p.Register(wire.Id(2))
	require.NoError(t, err)

	assert.Error(t, <-ch1)
	assert.Equal(t, 1, p.Len())
}
