package storage

import (
	"context"
	"sync"
)

// MemoryPort is an in-memory Port used in tests and as a degraded mode
// when no database path is configured.
type MemoryPort struct {
	mu     sync.RWMutex
	blobs  map[string][]byte
	closed bool
}

// NewMemoryPort creates an empty in-memory port.
func NewMemoryPort() *MemoryPort {
	return &MemoryPort{blobs: make(map[string][]byte)}
}

// Get returns the blob stored under key.
func (p *MemoryPort) Get(ctx context.Context, key string) ([]byte, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, false, ErrClosed
	}
	blob, ok := p.blobs[key]
	if !ok {
		return nil, false, nil
	}
	// Copy so callers cannot mutate the stored value.
	out := make([]byte, len(blob))
	copy(out, blob)
	return out, true, nil
}

// Set stores blob under key.
func (p *MemoryPort) Set(ctx context.Context, key string, blob []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	stored := make([]byte, len(blob))
	copy(stored, blob)
	p.blobs[key] = stored
	return nil
}

// Delete removes key.
func (p *MemoryPort) Delete(ctx context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	delete(p.blobs, key)
	return nil
}

// Close marks the port closed.
func (p *MemoryPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
