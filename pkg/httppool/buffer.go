package httppool

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/cuemby/burrow/pkg/metrics"
)

// MaxResponseBytes caps any single response body read through the pool.
const MaxResponseBytes = 32 << 20

// BufferPool recycles response buffers so tens of thousands of short
// poll calls do not each allocate and abandon their own.
type BufferPool struct {
	pool sync.Pool
}

func NewBufferPool() *BufferPool {
	return &BufferPool{
		pool: sync.Pool{
			New: func() any { return new(bytes.Buffer) },
		},
	}
}

// Buffer is a pooled response body. Callers extract what they need and
// call Release; the bytes are invalid afterwards.
type Buffer struct {
	buf  *bytes.Buffer
	pool *BufferPool
}

// Bytes returns the buffered body. Valid until Release.
func (b *Buffer) Bytes() []byte {
	if b.buf == nil {
		return nil
	}
	return b.buf.Bytes()
}

// Len returns the buffered body size.
func (b *Buffer) Len() int {
	if b.buf == nil {
		return 0
	}
	return b.buf.Len()
}

// Release returns the buffer to the pool. Safe to call twice.
func (b *Buffer) Release() {
	if b.buf == nil {
		return
	}
	b.buf.Reset()
	b.pool.pool.Put(b.buf)
	b.buf = nil
	metrics.BufferPoolPuts.Inc()
}

// ReadResponse drains resp.Body into a pooled buffer, closing the body
// in all cases so the connection returns to the transport. Bodies over
// MaxResponseBytes fail rather than ballooning memory.
func (p *BufferPool) ReadResponse(resp *http.Response) (*Buffer, error) {
	defer func() {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		resp.Body.Close()
	}()

	buf := p.pool.Get().(*bytes.Buffer)
	buf.Reset()
	metrics.BufferPoolGets.Inc()

	n, err := buf.ReadFrom(io.LimitReader(resp.Body, MaxResponseBytes+1))
	if err != nil {
		buf.Reset()
		p.pool.Put(buf)
		metrics.BufferPoolPuts.Inc()
		return nil, fmt.Errorf("read response: %w", err)
	}
	if n > MaxResponseBytes {
		buf.Reset()
		p.pool.Put(buf)
		metrics.BufferPoolPuts.Inc()
		return nil, fmt.Errorf("response exceeds %d bytes", MaxResponseBytes)
	}

	return &Buffer{buf: buf, pool: p}, nil
}
