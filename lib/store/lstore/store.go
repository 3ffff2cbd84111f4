package lstore

import (
	"context"
	"sync/atomic"

	"github.com/ValentinKolb/dLock/lib/db"
	"github.com/ValentinKolb/dLock/lib/store"
)

type storeImpl struct {
	db    db.KCVDB
	index *atomic.Uint64
}

var _ store.IInfoStore = (*storeImpl)(nil)

// NewLocalStore creates a new local store instance.
// This store implementation is not distributed and only works on a single node.
// Every consistency level is served from the same engine, so all of them are key consistent.
func NewLocalStore(factory store.DBFactory) store.IStore {
	return &storeImpl{
		db:    factory(),
		index: &atomic.Uint64{},
	}
}

// incAndGetIndex increments the index and returns the new value.
// It is used to ensure that each write operation has a unique index.
//
// Thread-safety: This method is thread-safe since it uses atomic operations.
func (s *storeImpl) incAndGetIndex() uint64 {
	return s.index.Add(1)
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Mutate(ctx context.Context, row string, additions []db.Entry, deletions [][]byte, _ store.Consistency) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.db.SupportsFeature(db.FeatureMutate) {
		return store.NewError(store.RetCUnsupportedOperation, "Mutate operation is not supported")
	}
	s.db.Mutate(row, additions, deletions, s.incAndGetIndex())
	return nil
}

func (s *storeImpl) GetSlice(ctx context.Context, row string, q db.SliceQuery, _ store.Consistency) ([]db.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.db.SupportsFeature(db.FeatureGetSlice) {
		return nil, store.NewError(store.RetCUnsupportedOperation, "GetSlice operation is not supported")
	}
	return s.db.GetSlice(row, q), nil
}

func (s *storeImpl) Features() store.Features {
	return store.Features{
		Distributed:        false,
		KeyConsistent:      true,
		LocalKeyConsistent: true,
	}
}

func (s *storeImpl) Close() error {
	return s.db.Close()
}

// GetDBInfo returns metadata about the engine underlying the store.
func (s *storeImpl) GetDBInfo(ctx context.Context) (db.DatabaseInfo, error) {
	if err := ctx.Err(); err != nil {
		return db.DatabaseInfo{}, err
	}
	return s.db.GetInfo(), nil
}
