// Package config holds the process configuration of the dlock tool and
// converts it into the configurations of dragonboat, the lock manager and the
// ID authority.
package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/dLock/lib/idauthority"
	"github.com/ValentinKolb/dLock/lib/lockmgr"
	"github.com/ValentinKolb/dLock/lib/timestamp"
	dbconfig "github.com/lni/dragonboat/v4/config"
)

// Dragonboat uses RTT (Round Trip Time) to determine the timing of elections and heartbeats.
// These default values are selected according to the RAFT Paper
const (
	electionRTTFactor  = 10
	heartbeatRTTFactor = 1
)

// Backend names the store implementation.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendRaft     Backend = "raft"
	BackendRedis    Backend = "redis"
	BackendMySQL    Backend = "mysql"
	BackendPostgres Backend = "postgres"
)

// ParseBackend validates a backend name.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case BackendMemory, BackendRaft, BackendRedis, BackendMySQL, BackendPostgres:
		return b, nil
	default:
		return "", fmt.Errorf("invalid backend %q (expected one of: memory, raft, redis, mysql, postgres)", s)
	}
}

// --------------------------------------------------------------------------
// Configuration struct
// --------------------------------------------------------------------------

// CoordConfig holds all configuration parameters of a dlock process.
type CoordConfig struct {
	Backend Backend

	// Dragonboat parameters
	ShardID            uint64
	RTTMillisecond     uint64
	SnapshotEntries    uint64
	CompactionOverhead uint64
	DataDir            string
	ReplicaID          uint64
	ClusterMembers     map[uint64]string
	TimeoutSecond      int64

	// Redis parameters
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	RedisPrefix      string
	RedisMinReplicas int

	// SQL parameters
	SQLDSN   string
	SQLTable string

	// Lock parameters
	Rid           string
	TimestampUnit time.Duration
	LockExpire    time.Duration
	LockWait      time.Duration
	LockClockSkew time.Duration
	LockRetries   int
	LockAttempts  int

	// ID authority parameters
	ConflictMode idauthority.ConflictAvoidanceMode
	Tag          int
	TagBits      int
	IDTimeout    time.Duration

	// Logging configuration
	LogLevel string
}

// ToDragonboatConfig converts the CoordConfig to the Dragonboat shard config.
func (c *CoordConfig) ToDragonboatConfig() dbconfig.Config {
	return dbconfig.Config{
		ReplicaID:          c.ReplicaID,
		ShardID:            c.ShardID,
		ElectionRTT:        electionRTTFactor,
		HeartbeatRTT:       heartbeatRTTFactor,
		CheckQuorum:        true,
		SnapshotEntries:    c.SnapshotEntries,
		CompactionOverhead: c.CompactionOverhead,
		MaxInMemLogSize:    0,
	}
}

// ToNodeHostConfig creates a NodeHostConfig for Dragonboat.
func (c *CoordConfig) ToNodeHostConfig() dbconfig.NodeHostConfig {
	return dbconfig.NodeHostConfig{
		WALDir:         c.DataDir,
		NodeHostDir:    c.DataDir,
		RTTMillisecond: c.RTTMillisecond,
		RaftAddress:    c.ClusterMembers[c.ReplicaID],
	}
}

// Timeout returns the store timeout.
func (c *CoordConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecond) * time.Second
}

// LockerConfig returns the lock manager configuration. Zero values select the
// lockmgr defaults.
func (c *CoordConfig) LockerConfig() lockmgr.Config {
	conf := lockmgr.Config{
		Expire:       c.LockExpire,
		Wait:         c.LockWait,
		MaxClockSkew: c.LockClockSkew,
		RetryCount:   c.LockRetries,
		MaxAttempts:  c.LockAttempts,
		CleanExpired: true,
		Times:        timestamp.NewProvider(c.unit()),
	}
	if c.Rid != "" {
		conf.Rid = []byte(c.Rid)
	}
	return conf
}

// AuthorityConfig returns the ID authority configuration including its locker.
func (c *CoordConfig) AuthorityConfig() idauthority.Config {
	return idauthority.Config{
		Mode:    c.ConflictMode,
		Tag:     c.Tag,
		TagBits: c.TagBits,
		Timeout: c.IDTimeout,
		Locker:  c.LockerConfig(),
	}
}

func (c *CoordConfig) unit() time.Duration {
	if c.TimestampUnit == 0 {
		return timestamp.Micro
	}
	return c.TimestampUnit
}

// Validate checks the parameters the selected backend needs.
func (c *CoordConfig) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendRaft:
		if len(c.ClusterMembers) == 0 {
			return fmt.Errorf("cluster members are required for the raft backend")
		}
		if _, ok := c.ClusterMembers[c.ReplicaID]; !ok {
			return fmt.Errorf("no address found for replica ID %d in cluster members", c.ReplicaID)
		}
		if c.TimeoutSecond <= 0 {
			return fmt.Errorf("timeout must be positive")
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("redis address is required for the redis backend")
		}
	case BackendMySQL, BackendPostgres:
		if c.SQLDSN == "" {
			return fmt.Errorf("sql dsn is required for the %s backend", c.Backend)
		}
	default:
		return fmt.Errorf("invalid backend %q", c.Backend)
	}
	return nil
}

// String returns a formatted string representation of the configuration
func (c *CoordConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Backend")
	addField("Type", string(c.Backend))

	switch c.Backend {
	case BackendRaft:
		addField("Shard", strconv.FormatUint(c.ShardID, 10))
		addField("RAFT Address", c.ClusterMembers[c.ReplicaID])
		addField("Node ID", strconv.FormatUint(c.ReplicaID, 10))
		addField("Round Trip Time (ms)", fmt.Sprintf("%d ms", c.RTTMillisecond))
		addField("Election RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*electionRTTFactor))
		addField("Heartbeat RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*heartbeatRTTFactor))
		addField("Snapshot Entries", fmt.Sprintf("%d", c.SnapshotEntries))
		addField("Compaction Overhead", fmt.Sprintf("%d", c.CompactionOverhead))
		addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
		addField("Data Directory", c.DataDir)

		var keys []uint64
		for k := range c.ClusterMembers {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
		for _, k := range keys {
			addField(fmt.Sprintf("Member %d", k), c.ClusterMembers[k])
		}
	case BackendRedis:
		addField("Address", c.RedisAddr)
		addField("Database", strconv.Itoa(c.RedisDB))
		addField("Prefix", c.RedisPrefix)
		addField("Min Replicas", strconv.Itoa(c.RedisMinReplicas))
	case BackendMySQL, BackendPostgres:
		addField("Table", c.SQLTable)
	}

	addSection("Locks")
	addField("Rid", c.Rid)
	addField("Timestamp Unit", timestamp.UnitName(c.unit()))
	addField("Expire", c.LockExpire.String())
	addField("Wait", c.LockWait.String())
	addField("Max Clock Skew", c.LockClockSkew.String())
	addField("Retries", strconv.Itoa(c.LockRetries))
	addField("Attempts", strconv.Itoa(c.LockAttempts))

	addSection("ID Authority")
	addField("Conflict Mode", c.ConflictMode.String())
	addField("Tag", strconv.Itoa(c.Tag))
	addField("Tag Bits", strconv.Itoa(c.TagBits))
	addField("Timeout", c.IDTimeout.String())

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}
