package dispatch

import (
	"sync"

	"github.com/twmb/murmur3"
)

const lockShards = 64

// keyedMutex serializes state transitions per recipient-channel pair
// without a global lock: keys hash onto a fixed set of shards, so unrelated
// recipients stay parallel.
type keyedMutex struct {
	shards [lockShards]sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	m := &k.shards[murmur3.Sum32([]byte(key))%lockShards]
	m.Lock()
	return m.Unlock
}
