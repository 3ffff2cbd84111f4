package backend

import (
	"context"
	"testing"

	"github.com/ValentinKolb/dLock/lib/config"
	"github.com/ValentinKolb/dLock/lib/db"
	"github.com/ValentinKolb/dLock/lib/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestOpenMemory(t *testing.T) {
	s, err := Open(context.Background(), &config.CoordConfig{Backend: config.BackendMemory})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, store.Write(context.Background(), s, "row", []byte("c"), []byte("v"), store.ConsistencyKey))
	require.True(t, s.Features().KeyConsistent)

	info, err := store.GetDBInfo(context.Background(), s)
	require.NoError(t, err)
	require.Equal(t, db.ImplMaple, info.DbType)
	require.Positive(t, info.SizeBytes)
}

func TestOpenRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	s, err := Open(context.Background(), &config.CoordConfig{
		Backend:       config.BackendRedis,
		RedisAddr:     mr.Addr(),
		RedisPrefix:   "test:",
		TimeoutSecond: 1,
	})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, store.Write(context.Background(), s, "row", []byte("c"), []byte("v"), store.ConsistencyKey))
	require.True(t, mr.Exists("test:d:row"))

	_, err = store.GetDBInfo(context.Background(), s)
	require.True(t, store.IsUnsupported(err), "redis exposes no engine info, got %v", err)
}

func TestOpenRedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := Open(context.Background(), &config.CoordConfig{Backend: config.BackendRedis, RedisAddr: addr})
	require.Error(t, err)
}

func TestOpenInvalid(t *testing.T) {
	_, err := Open(context.Background(), &config.CoordConfig{Backend: "etcd"})
	require.Error(t, err)

	_, err = Open(context.Background(), &config.CoordConfig{Backend: config.BackendMySQL})
	require.Error(t, err)
}

func TestOpenSQLInvalidTable(t *testing.T) {
	_, err := Open(context.Background(), &config.CoordConfig{
		Backend:  config.BackendPostgres,
		SQLDSN:   "postgres://localhost/none",
		SQLTable: "bad name",
	})
	require.Error(t, err)
}
