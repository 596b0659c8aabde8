package server

import (
	"fmt"
	"sync"

	"github.com/golang/groupcache/lru"
	"github.com/xmidt-org/idcp/wire"
)

// defaultPendingCapacity bounds the Pending Request Table so a client
// that floods requests without reading replies cannot grow it without
// bound; the oldest in-flight request is evicted and failed with a
// ConnectorError, mirroring kryptco-kr's enclave_client.go request-id
// cache eviction.
const defaultPendingCapacity = 4096

type completer chan error

// Pending is the Pending Request Table from spec.md §3/§4.6: a mapping
// from message_id to a one-shot completer, bounded via an LRU so a
// runaway client cannot exhaust memory. Grounded on
// kryptco-kr/krd/enclave_client.go's `requestCallbacksByRequestID`
// (a `golang/groupcache/lru.Cache` keyed by request ID, entries added
// under a lock before the request is sent and removed when a matching
// response arrives or the request is given up on).
type Pending struct {
	mu    sync.Mutex
	cache *lru.Cache
	ids   map[wire.Id]struct{}
}

// NewPending constructs a Pending Request Table bounded to capacity
// entries (defaultPendingCapacity if capacity <= 0).
func NewPending(capacity int) *Pending {
	if capacity <= 0 {
		capacity = defaultPendingCapacity
	}

	p := &Pending{ids: make(map[wire.Id]struct{})}
	cache := lru.New(capacity)
	cache.OnEvicted = func(key lru.Key, value interface{}) {
		id := key.(wire.Id)
		delete(p.ids, id)
		value.(completer) <- wire.NewConnectorError("request %d evicted from pending table", id)
	}
	p.cache = cache
	return p
}

// Register reserves id for an in-flight request and returns the channel
// its eventual result will arrive on. id must not be wire.NoReply.
func (p *Pending) Register(id wire.Id) (<-chan error, error) {
	if id == wire.NoReply {
		return nil, fmt.Errorf("server: message id 0 may not be registered as a pending request")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.cache.Get(lru.Key(id)); exists {
		return nil, fmt.Errorf("server: duplicate pending request id %d", id)
	}

	ch := make(completer, 1)
	p.cache.Add(lru.Key(id), ch)
	p.ids[id] = struct{}{}
	return ch, nil
}

// Complete delivers result to id's completer and removes it from the
// table. Returns false if id was not pending (already completed, evicted,
// or never registered).
func (p *Pending) Complete(id wire.Id, result error) bool {
	p.mu.Lock()
	v, ok := p.cache.Get(lru.Key(id))
	if ok {
		p.cache.Remove(lru.Key(id))
		delete(p.ids, id)
	}
	p.mu.Unlock()

	if !ok {
		return false
	}
	v.(completer) <- result
	return true
}

// CancelAll completes every currently pending request with err, per
// spec.md §7's client-disconnect rule: "discards pending completers with
// ConnectorError{ClientDisconnected}."
func (p *Pending) CancelAll(err error) {
	p.mu.Lock()
	ids := make([]wire.Id, 0, len(p.ids))
	for id := range p.ids {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	for _, id := range ids {
		p.Complete(id, err)
	}
}

// Len reports the number of currently pending requests.
func (p *Pending) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ids)
}
