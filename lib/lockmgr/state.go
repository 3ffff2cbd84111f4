package lockmgr

import (
	"github.com/puzpuzpuz/xsync/v3"
)

type stateKey struct {
	holder Holder
	key    LockKey
}

// lockState remembers the claims written on behalf of each holder.
//
// Thread-safety: All methods are safe for concurrent use.
type lockState struct {
	locks *xsync.MapOf[stateKey, LockStatus]
}

func newLockState() *lockState {
	return &lockState{locks: xsync.NewMapOf[stateKey, LockStatus]()}
}

func (s *lockState) get(holder Holder, key LockKey) (LockStatus, bool) {
	return s.locks.Load(stateKey{holder, key})
}

func (s *lockState) put(holder Holder, key LockKey, status LockStatus) {
	s.locks.Store(stateKey{holder, key}, status)
}

// markChecked sets Checked on a status, provided it still belongs to the
// claim written at the same timestamp.
func (s *lockState) markChecked(holder Holder, key LockKey, status LockStatus) {
	s.locks.Compute(stateKey{holder, key}, func(old LockStatus, loaded bool) (LockStatus, bool) {
		if !loaded {
			return old, true
		}
		if old.WriteTimestamp.Equal(status.WriteTimestamp) {
			old.Checked = true
		}
		return old, false
	})
}

func (s *lockState) remove(holder Holder, key LockKey) (LockStatus, bool) {
	return s.locks.LoadAndDelete(stateKey{holder, key})
}

// keys returns the keys held by holder.
func (s *lockState) keys(holder Holder) []LockKey {
	var keys []LockKey
	s.locks.Range(func(k stateKey, _ LockStatus) bool {
		if k.holder == holder {
			keys = append(keys, k.key)
		}
		return true
	})
	return keys
}

func (s *lockState) size() int {
	return s.locks.Size()
}
