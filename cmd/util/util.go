package util

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ValentinKolb/dLock/lib/backend"
	"github.com/ValentinKolb/dLock/lib/config"
	dbutil "github.com/ValentinKolb/dLock/lib/db/util"
	"github.com/ValentinKolb/dLock/lib/idauthority"
	"github.com/ValentinKolb/dLock/lib/logging"
	"github.com/ValentinKolb/dLock/lib/store"
	"github.com/ValentinKolb/dLock/lib/timestamp"
	"github.com/joho/godotenv"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupGlobalFlags adds the backend, lock and id flags shared by all commands
func SetupGlobalFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()

	flags.String("backend", "memory", WrapString("The store to coordinate through (memory, raft, redis, mysql, postgres)"))
	flags.String("log-level", "warn", WrapString("The level at which logs will be output (debug, info, warn, error)"))

	// raft
	flags.Uint64("shard", 100, WrapString("(raft) ID of the shard holding the lock data"))
	flags.String("replica-id", "", WrapString("(raft) Unique identifier of this node (e.g. 'node-1')"))
	flags.String("cluster-members", "", WrapString("(raft) Comma-separated list of cluster members in the format 'node-1=localhost:63001,node-2=localhost:63002,...'"))
	flags.String("data-dir", "data", WrapString("(raft) Directory used for the raft log and snapshots"))
	flags.Uint64("rtt-millisecond", 100, WrapString("(raft) Average round trip time in milliseconds between two nodes. Election and heartbeat timings are derived from this value"))
	flags.Uint64("snapshot-entries", 10, WrapString("(raft) Number of applied log entries between two automatic snapshots (0 disables snapshots)"))
	flags.Uint64("compaction-overhead", 5, WrapString("(raft) Number of log entries kept after a snapshot"))
	flags.Int64("timeout", 5, WrapString("Timeout of a single store operation in seconds"))

	// redis
	flags.String("redis-addr", "localhost:6379", WrapString("(redis) Address of the redis server"))
	flags.String("redis-password", "", WrapString("(redis) Password of the redis server"))
	flags.Int("redis-db", 0, WrapString("(redis) Database number"))
	flags.String("redis-prefix", "dlock:", WrapString("(redis) Prefix of all keys"))
	flags.Int("redis-min-replicas", 0, WrapString("(redis) Number of replicas that must acknowledge a key consistent write (0 disables WAIT)"))

	// sql
	flags.String("sql-dsn", "", WrapString("(mysql, postgres) Data source name of the database"))
	flags.String("sql-table", "dlock_kcv", WrapString("(mysql, postgres) Table holding the lock data"))

	// locks
	flags.String("rid", "", WrapString("Unique identifier of this process in claim records (default: random)"))
	flags.String("timestamp-unit", "micro", WrapString("Resolution of claim timestamps (nano, micro, milli)"))
	flags.Duration("lock-expire", 300*time.Second, WrapString("Lifetime of a lock claim"))
	flags.Duration("lock-wait", 100*time.Millisecond, WrapString("Time between writing a claim and reading it back. Must exceed the replication delay of the store"))
	flags.Duration("lock-clock-skew", 0, WrapString("Assumed maximum clock difference between processes"))
	flags.Int("lock-retries", 3, WrapString("Retries of a single store operation"))
	flags.Int("lock-attempts", 3, WrapString("Write and verify rounds of an acquisition"))

	// ids
	flags.String("conflict-mode", "global-auto", WrapString("Conflict avoidance mode of the id authority (none, local-manual, global-manual, global-auto)"))
	flags.Int("tag", 0, WrapString("Tag of this process in the manual conflict avoidance modes"))
	flags.Int("tag-bits", 4, WrapString("Number of low bits of every id reserved for the tag"))
	flags.Duration("id-timeout", time.Minute, WrapString("Timeout of a single id block allocation"))
}

// InitConfig initializes configuration from environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("dlock")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// GetCoordConfig reads the process configuration from viper
func GetCoordConfig() (*config.CoordConfig, error) {
	b, err := config.ParseBackend(viper.GetString("backend"))
	if err != nil {
		return nil, err
	}
	unit, err := timestamp.ParseUnit(viper.GetString("timestamp-unit"))
	if err != nil {
		return nil, err
	}
	mode, err := idauthority.ParseConflictAvoidanceMode(viper.GetString("conflict-mode"))
	if err != nil {
		return nil, err
	}

	conf := &config.CoordConfig{
		Backend:            b,
		ShardID:            viper.GetUint64("shard"),
		RTTMillisecond:     viper.GetUint64("rtt-millisecond"),
		SnapshotEntries:    viper.GetUint64("snapshot-entries"),
		CompactionOverhead: viper.GetUint64("compaction-overhead"),
		DataDir:            viper.GetString("data-dir"),
		TimeoutSecond:      viper.GetInt64("timeout"),
		RedisAddr:          viper.GetString("redis-addr"),
		RedisPassword:      viper.GetString("redis-password"),
		RedisDB:            viper.GetInt("redis-db"),
		RedisPrefix:        viper.GetString("redis-prefix"),
		RedisMinReplicas:   viper.GetInt("redis-min-replicas"),
		SQLDSN:             viper.GetString("sql-dsn"),
		SQLTable:           viper.GetString("sql-table"),
		Rid:                viper.GetString("rid"),
		TimestampUnit:      unit,
		LockExpire:         viper.GetDuration("lock-expire"),
		LockWait:           viper.GetDuration("lock-wait"),
		LockClockSkew:      viper.GetDuration("lock-clock-skew"),
		LockRetries:        viper.GetInt("lock-retries"),
		LockAttempts:       viper.GetInt("lock-attempts"),
		ConflictMode:       mode,
		Tag:                viper.GetInt("tag"),
		TagBits:            viper.GetInt("tag-bits"),
		IDTimeout:          viper.GetDuration("id-timeout"),
		LogLevel:           viper.GetString("log-level"),
	}

	if b != config.BackendRaft {
		return conf, nil
	}

	// parse replica id
	id := viper.GetString("replica-id")
	if id == "" {
		return nil, fmt.Errorf("replica-id is required for the raft backend")
	}
	conf.ReplicaID = dbutil.NodeID(id)

	// parse cluster members
	members := viper.GetString("cluster-members")
	if members == "" {
		return nil, fmt.Errorf("cluster-members is required for the raft backend")
	}
	conf.ClusterMembers = make(map[uint64]string)
	for _, member := range strings.Split(members, ",") {
		parts := strings.Split(member, "=")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid cluster member format: %s (expected ID=address)", member)
		}
		conf.ClusterMembers[dbutil.NodeID(strings.TrimSpace(parts[0]))] = strings.TrimSpace(parts[1])
	}
	return conf, nil
}

// Setup binds the flags of cmd, initializes the loggers and opens the
// configured store
func Setup(ctx context.Context, cmd *cobra.Command) (*config.CoordConfig, store.IStore, error) {
	if err := BindCommandFlags(cmd); err != nil {
		return nil, nil, err
	}
	conf, err := GetCoordConfig()
	if err != nil {
		return nil, nil, err
	}
	if err := logging.InitLoggers(conf.LogLevel); err != nil {
		return nil, nil, err
	}
	log := logger.GetLogger("cli")
	log.Debugf("configuration:\n%s", conf)

	s, err := backend.Open(ctx, conf)
	if err != nil {
		log.Errorf("failed to open %s backend: %v", conf.Backend, err)
		return nil, nil, err
	}
	log.Infof("opened %s backend", conf.Backend)
	return conf, s, nil
}
