package cooldown

import (
	"hash/fnv"
	"sync"

	"code.cloudfoundry.org/cpuwatcher/models"
)

// StripedLock maps identities onto a fixed set of mutexes. Two identities
// may share a stripe; the same identity always gets the same one.
type StripedLock struct {
	locks []*sync.Mutex
}

func NewStripedLock(capacity int) *StripedLock {
	if capacity <= 0 {
		panic("invalid striped lock capacity")
	}

	locks := make([]*sync.Mutex, capacity)
	for i := range locks {
		locks[i] = &sync.Mutex{}
	}

	return &StripedLock{
		locks: locks,
	}
}

func (sl *StripedLock) GetLock(id models.ProcessIdentity) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id.Key()))
	return sl.locks[h.Sum32()%uint32(len(sl.locks))]
}
