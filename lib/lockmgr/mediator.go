package lockmgr

import (
	"time"

	"github.com/ValentinKolb/dLock/lib/timestamp"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Local Lock Mediator
// --------------------------------------------------------------------------

type mediatorEntry[T comparable] struct {
	holder  T
	expires time.Time
}

// LocalLockMediator arbitrates locks between the holders of one process
// before any claim is written to the store. Only one holder per process can
// own a key at a time, so concurrent holders never race on the same claim row.
//
// Entries carry an expiry. An expired entry is treated as absent, which keeps
// a holder that never released from blocking the key forever.
//
// Thread-safety: All methods are safe for concurrent use. Each key is
// updated atomically, there is no global lock.
type LocalLockMediator[T comparable] struct {
	name  string
	times timestamp.Provider
	locks *xsync.MapOf[LockKey, mediatorEntry[T]]
	log   logger.ILogger
}

// NewLocalLockMediator creates an empty mediator. The name only appears in logs.
// Every locker of a process that shares a store must share one mediator.
func NewLocalLockMediator[T comparable](name string, times timestamp.Provider) *LocalLockMediator[T] {
	return &LocalLockMediator[T]{
		name:  name,
		times: times,
		locks: xsync.NewMapOf[LockKey, mediatorEntry[T]](),
		log:   logger.GetLogger("lockmgr"),
	}
}

// Lock installs holder for key until expires. It succeeds if the key is free,
// the current entry has expired, or holder already owns the key (in which case
// the expiry is refreshed). It fails if another holder owns an unexpired entry.
func (m *LocalLockMediator[T]) Lock(key LockKey, holder T, expires time.Time) bool {
	now := m.times.Now()
	ok := false

	m.locks.Compute(key, func(old mediatorEntry[T], loaded bool) (mediatorEntry[T], bool) {
		if loaded && old.holder != holder && now.Before(old.expires) {
			return old, false
		}
		ok = true
		return mediatorEntry[T]{holder: holder, expires: expires}, false
	})

	if !ok {
		m.log.Debugf("mediator %s: local lock on %s refused for %v", m.name, key, holder)
	}
	return ok
}

// Unlock removes the entry of key if it is owned by holder. It reports
// whether holder was the owner. Calls by other holders leave the entry intact.
func (m *LocalLockMediator[T]) Unlock(key LockKey, holder T) bool {
	ok, foreign := false, false

	m.locks.Compute(key, func(old mediatorEntry[T], loaded bool) (mediatorEntry[T], bool) {
		if !loaded {
			return old, true
		}
		if old.holder != holder {
			foreign = true
			return old, false
		}
		ok = true
		return old, true
	})

	if foreign {
		m.log.Warningf("mediator %s: unlock of %s by non-holder %v ignored", m.name, key, holder)
	}
	return ok
}

// Holder returns the current unexpired owner of key.
func (m *LocalLockMediator[T]) Holder(key LockKey) (T, time.Time, bool) {
	var zero T
	e, ok := m.locks.Load(key)
	if !ok || !m.times.Now().Before(e.expires) {
		return zero, time.Time{}, false
	}
	return e.holder, e.expires, true
}

// Len returns the number of entries, expired ones included.
func (m *LocalLockMediator[T]) Len() int {
	return m.locks.Size()
}
