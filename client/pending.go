package client

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/golang/groupcache/lru"
	"github.com/xmidt-org/idcp/wire"
)

// pendingCapacity bounds the client-side half of the Pending Request
// Table the same way server/pending.go bounds the server-side half:
// grounded on kryptco-kr/krd/enclave_client.go's requestCallbacksByRequestID
// lru.Cache.
const pendingCapacity = 4096

type pendingResult chan wire.Envelope

// pending correlates outgoing requests with their eventual reply
// envelope by message id.
type pending struct {
	mu    sync.Mutex
	cache *lru.Cache
}

func newPending() *pending {
	return &pending{cache: lru.New(pendingCapacity)}
}

func (p *pending) register(id wire.Id) (pendingResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.cache.Get(lru.Key(id)); exists {
		return nil, fmt.Errorf("client: duplicate pending request id %d", id)
	}
	ch := make(pendingResult, 1)
	p.cache.Add(lru.Key(id), ch)
	return ch, nil
}

// complete delivers env to id's waiter and removes it from the table.
// Returns false if id was not pending.
func (p *pending) complete(id wire.Id, env wire.Envelope) bool {
	p.mu.Lock()
	v, ok := p.cache.Get(lru.Key(id))
	if ok {
		p.cache.Remove(lru.Key(id))
	}
	p.mu.Unlock()

	if !ok {
		return false
	}
	v.(pendingResult) <- env
	return true
}

// cancelAll fails every still-registered request with a synthesized
// Error envelope wrapping err, used when the connection to the server is
// lost (spec.md §7's client-disconnect rule, seen from the client side).
func (p *pending) cancelAll(err *wire.ProtocolError) {
	p.mu.Lock()
	var waiters []pendingResult
	p.cache.OnEvicted = func(_ lru.Key, v interface{}) {
		waiters = append(waiters, v.(pendingResult))
	}
	for p.cache.Len() > 0 {
		p.cache.RemoveOldest()
	}
	p.cache.OnEvicted = nil
	p.mu.Unlock()

	raw, _ := json.Marshal(wire.ToEnvelope(wire.NoReply, err))
	env := wire.Envelope{Key: "Error", Raw: raw}
	for _, ch := range waiters {
		ch <- env
	}
}
