package wire

import "bytes"

const (
	// DefaultPoolSize mirrors wrp.DefaultPoolSize: the teacher's channel-
	// backed pool holds on to its buffers across garbage collections,
	// unlike a sync.Pool, so that the server event loop's hot encode path
	// never pays allocation cost once warmed up.
	DefaultPoolSize = 100

	// DefaultInitialBufferSize mirrors wrp.DefaultInitialBufferSize.
	DefaultInitialBufferSize = 256
)

// BufferPool is a pool of *bytes.Buffer used to encode outgoing envelopes.
// It is the JSON-envelope analog of wrp.EncoderPool: Msgpack's Encoder type
// doesn't exist for encoding/json, so this pools the buffer instead of a
// stateful encoder, but the shape — channel-backed, Get/Put, never closed —
// is the same.
type BufferPool struct {
	pool chan *bytes.Buffer
	size int
}

// NewBufferPool returns a BufferPool. If poolSize is nonpositive,
// DefaultPoolSize is used; if initialBufferSize is nonpositive,
// DefaultInitialBufferSize is used.
func NewBufferPool(poolSize, initialBufferSize int) *BufferPool {
	if poolSize < 1 {
		poolSize = DefaultPoolSize
	}
	if initialBufferSize < 1 {
		initialBufferSize = DefaultInitialBufferSize
	}

	bp := &BufferPool{
		pool: make(chan *bytes.Buffer, poolSize),
		size: initialBufferSize,
	}

	for i := 0; i < poolSize; i++ {
		buf := new(bytes.Buffer)
		buf.Grow(initialBufferSize)
		bp.pool <- buf
	}

	return bp
}

// Get returns a buffer from the pool, allocating a new one if the pool is
// empty. The returned buffer is always reset and ready to use.
func (bp *BufferPool) Get() *bytes.Buffer {
	select {
	case buf := <-bp.pool:
		buf.Reset()
		return buf
	default:
		buf := new(bytes.Buffer)
		buf.Grow(bp.size)
		return buf
	}
}

// Put returns buf to the pool. If the pool is full or buf is nil, this is a
// no-op, matching wrp.EncoderPool.Put.
func (bp *BufferPool) Put(buf *bytes.Buffer) {
	if buf == nil {
		return
	}
	select {
	case bp.pool <- buf:
	default:
	}
}

// EncodeBytes encodes name/message into a pooled buffer and returns a copy
// of its bytes, mirroring wrp.EncoderPool.EncodeBytes.
func (bp *BufferPool) EncodeBytes(name string, message interface{}) ([]byte, error) {
	encoded, err := Encode(name, message)
	if err != nil {
		return nil, err
	}

	buf := bp.Get()
	defer bp.Put(buf)
	buf.Write(encoded)

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

// defaultPool backs EncodeArray, the Server Event Loop's and the client's
// shared hot path for every outgoing reply and notification.
var defaultPool = NewBufferPool(DefaultPoolSize, DefaultInitialBufferSize)

// encodeArray builds the wire array framing for items directly into a
// pooled buffer, returning a copy of the finished bytes so the buffer can
// go back to the pool immediately.
func (bp *BufferPool) encodeArray(items []namedMessage) ([]byte, error) {
	buf := bp.Get()
	defer bp.Put(buf)

	buf.WriteByte('[')
	for i, item := range items {
		if i > 0 {
			buf.WriteByte(',')
		}
		encoded, err := Encode(item.Name, item.Message)
		if err != nil {
			return nil, err
		}
		buf.Write(encoded)
	}
	buf.WriteByte(']')

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}
