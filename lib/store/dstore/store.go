package dstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/dLock/lib/db"
	"github.com/ValentinKolb/dLock/lib/store"
	"github.com/ValentinKolb/dLock/lib/store/dstore/internal"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	retries = 5
	log     = logger.GetLogger("store")
)

// storeImpl is the raft backed implementation of store.IStore.
// It encapsulates a Dragonboat NodeHost which is used to communicate with the state machine.
type storeImpl struct {
	nh      *dragonboat.NodeHost
	shardID uint64
	cs      *client.Session
	timeout time.Duration
}

var _ store.IInfoStore = (*storeImpl)(nil)

// NewDistributedStore creates a new distributed store instance which uses raft consensus to ensure strict linearizability
// across multiple nodes. The store does not own the NodeHost: Close leaves it running.
func NewDistributedStore(nh *dragonboat.NodeHost, shardID uint64, timeout time.Duration) store.IStore {
	cs := nh.GetNoOPSession(shardID)
	return &storeImpl{
		nh:      nh,
		shardID: shardID,
		cs:      cs,
		timeout: timeout,
	}
}

// --------------------------------------------------------------------------
// Internal write and read operations (used by interface methods)
// --------------------------------------------------------------------------

// temporary reports whether a dragonboat error may succeed when retried later.
func temporary(err error) bool {
	return errors.Is(err, dragonboat.ErrTimeout) ||
		errors.Is(err, dragonboat.ErrShardNotReady) ||
		errors.Is(err, dragonboat.ErrAborted) ||
		errors.Is(err, context.DeadlineExceeded)
}

// toStoreError maps a dragonboat error to a *store.Error.
func toStoreError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	var se *store.Error
	if errors.As(err, &se) {
		return se
	}
	if temporary(err) {
		return store.Errorf(store.RetCTemporary, "%s: %v", op, err)
	}
	return store.Errorf(store.RetCInternalError, "%s: %v", op, err)
}

// backoff sleeps between two attempts and returns false if ctx is done first.
func (s *storeImpl) backoff(ctx context.Context) bool {
	t := time.NewTimer(s.timeout / 10)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// write serializes a Command and sends it via SyncPropose.
// It returns a *store.Error if an error occurs, or nil on success.
func (s *storeImpl) write(ctx context.Context, cmd internal.Command) error {
	for i := 0; i < retries; i++ {
		pctx, cancel := context.WithTimeout(ctx, s.timeout)
		res, err := s.nh.SyncPropose(pctx, s.cs, cmd.Serialize())
		cancel()

		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncPropose: System busy, retrying (%d/%d)...", i+1, retries)
			if !s.backoff(ctx) {
				return toStoreError(ctx, "propose", err)
			}
			continue
		}

		if err != nil {
			return toStoreError(ctx, "propose", err)
		}
		if res.Value != uint64(store.RetCSuccess) {
			return store.NewError(store.RetCode(res.Value), string(res.Data))
		}
		return nil
	}
	return store.NewError(store.RetCTemporary, "propose: system busy")
}

// read is a generic helper function that queries the state machine
// and attempts to convert the response into the expected type R.
//
// Linearizable reads use SyncRead. If the caller accepts stale data,
// the faster StaleRead function is used on the local replica instead.
//
// If the read operation fails due to a system busy error, the function retries up to 5 times.
func read[R any](ctx context.Context, r *storeImpl, q internal.Query, stale bool) (R, error) {
	var zero R
	for i := 0; i < retries; i++ {

		var res interface{}
		var err error

		if stale {
			res, err = r.nh.StaleRead(r.shardID, q)
		} else {
			rctx, cancel := context.WithTimeout(ctx, r.timeout)
			res, err = r.nh.SyncRead(rctx, r.shardID, q)
			cancel()
		}

		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncRead: System busy, retrying (%d/%d)...", i+1, retries)
			if !r.backoff(ctx) {
				return zero, toStoreError(ctx, "read", err)
			}
			continue
		}

		if err != nil {
			return zero, toStoreError(ctx, "read", err)
		}

		// The state machine is expected to return the response in the expected type R.
		casted, ok := res.(R)
		if !ok {
			return zero, store.NewError(store.RetCInternalError,
				fmt.Sprintf("unexpected type: received %T, expected %T", res, zero))
		}
		return casted, nil
	}
	return zero, store.NewError(store.RetCTemporary, "read: system busy")
}

// --------------------------------------------------------------------------
// Interface Methods (docs see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Mutate(ctx context.Context, row string, additions []db.Entry, deletions [][]byte, _ store.Consistency) error {
	if len(additions) == 0 && len(deletions) == 0 {
		return nil
	}
	// every proposal is committed by a quorum, so all levels are served alike
	return s.write(ctx, internal.Command{
		Type:      internal.CommandTMutate,
		Row:       row,
		Additions: additions,
		Deletions: deletions,
	})
}

func (s *storeImpl) GetSlice(ctx context.Context, row string, q db.SliceQuery, level store.Consistency) ([]db.Entry, error) {
	return read[[]db.Entry](ctx, s, internal.Query{
		Type:  internal.QueryTGetSlice,
		Row:   row,
		Slice: q,
	}, level == store.ConsistencyDefault)
}

func (s *storeImpl) Features() store.Features {
	return store.Features{
		Distributed:        true,
		KeyConsistent:      true,
		LocalKeyConsistent: true,
	}
}

func (s *storeImpl) Close() error {
	return nil
}

// GetDBInfo returns metadata about the engine of the local replica.
// The information may be slightly outdated since a stale read is used.
func (s *storeImpl) GetDBInfo(ctx context.Context) (db.DatabaseInfo, error) {
	return read[db.DatabaseInfo](ctx, s, internal.Query{Type: internal.QueryTGetDBInfo}, true)
}
