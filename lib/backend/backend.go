// Package backend opens the store.IStore selected by a config.CoordConfig.
package backend

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ValentinKolb/dLock/lib/config"
	"github.com/ValentinKolb/dLock/lib/db"
	"github.com/ValentinKolb/dLock/lib/db/engines/maple"
	"github.com/ValentinKolb/dLock/lib/store"
	"github.com/ValentinKolb/dLock/lib/store/dstore"
	"github.com/ValentinKolb/dLock/lib/store/lstore"
	"github.com/ValentinKolb/dLock/lib/store/redistore"
	"github.com/ValentinKolb/dLock/lib/store/sqlstore"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/redis/go-redis/v9"

	// sql drivers
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
)

var log = logger.GetLogger("backend")

// sqlDrivers maps the sql backends to their database/sql driver names.
var sqlDrivers = map[config.Backend]string{
	config.BackendMySQL:    "mysql",
	config.BackendPostgres: "pgx",
}

// dbFactory creates the engine of the memory and raft backends.
func dbFactory() db.KCVDB {
	return maple.NewMapleDB(nil)
}

// Open creates the store selected by conf. The returned store owns every
// connection it opened and releases them on Close.
func Open(ctx context.Context, conf *config.CoordConfig) (store.IStore, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	switch conf.Backend {
	case config.BackendMemory:
		log.Infof("using in-memory store")
		return lstore.NewLocalStore(dbFactory), nil
	case config.BackendRaft:
		return openRaft(ctx, conf)
	case config.BackendRedis:
		return openRedis(ctx, conf)
	case config.BackendMySQL, config.BackendPostgres:
		return openSQL(ctx, conf)
	default:
		return nil, fmt.Errorf("invalid backend %q", conf.Backend)
	}
}

// --------------------------------------------------------------------------
// Raft
// --------------------------------------------------------------------------

// raftStore closes the NodeHost together with the store.
type raftStore struct {
	store.IStore
	nh *dragonboat.NodeHost
}

func (s *raftStore) GetDBInfo(ctx context.Context) (db.DatabaseInfo, error) {
	return store.GetDBInfo(ctx, s.IStore)
}

func (s *raftStore) Close() error {
	err := s.IStore.Close()
	s.nh.Close()
	return err
}

func openRaft(ctx context.Context, conf *config.CoordConfig) (store.IStore, error) {
	nh, err := dragonboat.NewNodeHost(conf.ToNodeHostConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create node host: %w", err)
	}

	if err := nh.StartConcurrentReplica(conf.ClusterMembers, false, dstore.CreateStateMachineFactory(dbFactory), conf.ToDragonboatConfig()); err != nil {
		nh.Close()
		return nil, fmt.Errorf("failed to start shard %d: %w", conf.ShardID, err)
	}

	if err := waitForLeader(ctx, nh, conf.ShardID, conf.Timeout()); err != nil {
		nh.Close()
		return nil, err
	}

	log.Infof("joined raft shard %d as replica %d", conf.ShardID, conf.ReplicaID)
	return &raftStore{
		IStore: dstore.NewDistributedStore(nh, conf.ShardID, conf.Timeout()),
		nh:     nh,
	}, nil
}

// waitForLeader blocks until the shard has elected a leader.
func waitForLeader(ctx context.Context, nh *dragonboat.NodeHost, shardID uint64, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, 6*timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if _, _, ok, err := nh.GetLeaderID(shardID); err == nil && ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("shard %d has no leader: %w", shardID, ctx.Err())
		case <-ticker.C:
		}
	}
}

// --------------------------------------------------------------------------
// Redis
// --------------------------------------------------------------------------

func openRedis(ctx context.Context, conf *config.CoordConfig) (store.IStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.RedisAddr,
		Password: conf.RedisPassword,
		DB:       conf.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", conf.RedisAddr, err)
	}

	log.Infof("using redis store at %s", conf.RedisAddr)
	return redistore.NewRedisStore(client, redistore.Options{
		Prefix:         conf.RedisPrefix,
		MinReplicas:    conf.RedisMinReplicas,
		ReplicaTimeout: conf.Timeout(),
	}), nil
}

// --------------------------------------------------------------------------
// SQL
// --------------------------------------------------------------------------

func openSQL(ctx context.Context, conf *config.CoordConfig) (store.IStore, error) {
	database, err := sql.Open(sqlDrivers[conf.Backend], conf.SQLDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", conf.Backend, err)
	}

	s, err := sqlstore.NewSQLStore(database, sqlstore.Options{
		Dialect: sqlstore.Dialect(conf.Backend),
		Table:   conf.SQLTable,
	})
	if err != nil {
		_ = database.Close()
		return nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}

	log.Infof("using %s store (table %s)", conf.Backend, conf.SQLTable)
	return s, nil
}
