package storage

import (
	"hash/fnv"
	"sync"
)

const keyLockStripes = 64

// KeyLock serializes mutation per logical key (secret id, oracle key,
// correlation id) while letting unrelated keys proceed. Striped so we don't
// hold one lock object per key forever.
type KeyLock struct {
	stripes [keyLockStripes]sync.Mutex
}

func NewKeyLock() *KeyLock {
	return &KeyLock{}
}

func (kl *KeyLock) stripe(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &kl.stripes[h.Sum32()%keyLockStripes]
}

func (kl *KeyLock) Lock(key string) {
	kl.stripe(key).Lock()
}

func (kl *KeyLock) Unlock(key string) {
	kl.stripe(key).Unlock()
}

// WithLock runs fn while holding the stripe for key. Callers must not perform
// network sends inside fn; commit first, send after.
func (kl *KeyLock) WithLock(key string, fn func() error) error {
	m := kl.stripe(key)
	m.Lock()
	defer m.Unlock()
	return fn()
}
