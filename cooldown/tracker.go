package cooldown

import (
	"math"
	"sync"
	"time"

	"code.cloudfoundry.org/cpuwatcher/models"
	"code.cloudfoundry.org/lager/v3"
	"github.com/patrickmn/go-cache"
)

const (
	// Entries older than RetentionFactor * cooldown can no longer suppress
	// anything and are dropped by the cache janitor.
	RetentionFactor = 5
	MinRetention    = time.Minute
	LockStripes     = 32
)

// Tracker remembers when each process identity was last notified about.
// Eligibility is always computed against the caller's now; cache expiry only
// bounds memory.
type Tracker struct {
	logger   lager.Logger
	cooldown time.Duration
	entries  *cache.Cache
	locks    *StripedLock
}

func NewTracker(logger lager.Logger, cooldown time.Duration) *Tracker {
	retention := Retention(cooldown)
	logger = logger.Session("cooldown-tracker")
	logger.Debug("created", lager.Data{"cooldown": cooldown.String(), "retention": retention.String()})
	return &Tracker{
		logger:   logger,
		cooldown: cooldown,
		entries:  cache.New(retention, retention),
		locks:    NewStripedLock(LockStripes),
	}
}

// Retention is how long an entry is kept after it was recorded. Cooldowns too
// long to multiply by RetentionFactor are never expired; the exit hook still
// removes them.
func Retention(cooldown time.Duration) time.Duration {
	if cooldown > math.MaxInt64/RetentionFactor {
		return cache.NoExpiration
	}
	retention := cooldown * RetentionFactor
	if retention < MinRetention {
		retention = MinRetention
	}
	return retention
}

func (t *Tracker) IsEligible(id models.ProcessIdentity, now time.Time) bool {
	entry, ok := t.Entry(id)
	if !ok {
		return true
	}
	return now.Sub(entry.LastNotifiedAt) >= t.cooldown
}

func (t *Tracker) RecordNotified(id models.ProcessIdentity, now time.Time) {
	t.entries.SetDefault(id.Key(), models.CooldownEntry{Identity: id, LastNotifiedAt: now})
	t.logger.Debug("recorded", lager.Data{"process": id.String(), "at": now})
}

func (t *Tracker) Forget(id models.ProcessIdentity) {
	t.entries.Delete(id.Key())
}

func (t *Tracker) Entry(id models.ProcessIdentity) (models.CooldownEntry, bool) {
	v, ok := t.entries.Get(id.Key())
	if !ok {
		return models.CooldownEntry{}, false
	}
	entry, ok := v.(models.CooldownEntry)
	return entry, ok
}

// Lock serializes notify-and-record for one identity.
func (t *Tracker) Lock(id models.ProcessIdentity) *sync.Mutex {
	return t.locks.GetLock(id)
}

func (t *Tracker) Len() int {
	return t.entries.ItemCount()
}
