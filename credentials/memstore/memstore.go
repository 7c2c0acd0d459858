// Package memstore keeps the credential store in process memory. The session ends
// with the process.
package memstore

import (
	"sync"

	"github.com/jrsteele09/campus-auth-client/credentials"
)

var _ credentials.BatchBackend = (*Backend)(nil)

type Backend struct {
	values map[string]string
	lock   sync.RWMutex
}

func New() *Backend {
	return &Backend{values: make(map[string]string)}
}

func (b *Backend) Get(key string) (string, bool) {
	b.lock.RLock()
	defer b.lock.RUnlock()
	v, ok := b.values[key]
	return v, ok
}

func (b *Backend) Set(key, value string) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.values[key] = value
}

func (b *Backend) Delete(key string) {
	b.lock.Lock()
	defer b.lock.Unlock()
	delete(b.values, key)
}

// Apply runs ops under one lock.
func (b *Backend) Apply(ops []credentials.Op) {
	b.lock.Lock()
	defer b.lock.Unlock()
	for _, op := range ops {
		if op.Delete {
			delete(b.values, op.Key)
			continue
		}
		b.values[op.Key] = op.Value
	}
}
