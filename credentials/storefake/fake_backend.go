package storefake

import (
	"sync"

	"github.com/jrsteele09/campus-auth-client/credentials"
)

var _ credentials.Backend = (*FakeBackend)(nil)

// FakeBackend is an in-memory credentials.Backend. It counts mutations so tests can
// assert that an operation did or did not touch the store.
type FakeBackend struct {
	values  map[string]string
	sets    int
	deletes int
	lock    sync.RWMutex
}

func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		values: make(map[string]string),
	}
}

func (b *FakeBackend) Get(key string) (string, bool) {
	b.lock.RLock()
	defer b.lock.RUnlock()
	v, ok := b.values[key]
	return v, ok
}

func (b *FakeBackend) Set(key, value string) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.values[key] = value
	b.sets++
}

func (b *FakeBackend) Delete(key string) {
	b.lock.Lock()
	defer b.lock.Unlock()
	delete(b.values, key)
	b.deletes++
}

// Sets returns the number of Set calls.
func (b *FakeBackend) Sets() int {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.sets
}

// Deletes returns the number of Delete calls.
func (b *FakeBackend) Deletes() int {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.deletes
}

// Len returns the number of stored keys.
func (b *FakeBackend) Len() int {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return len(b.values)
}
