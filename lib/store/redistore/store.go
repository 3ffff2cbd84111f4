package redistore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ValentinKolb/dLock/lib/db"
	"github.com/ValentinKolb/dLock/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/redis/go-redis/v9"
)

var log = logger.GetLogger("redistore")

// DefaultPrefix is used when Options.Prefix is empty.
const DefaultPrefix = "dlock:"

// sliceScript returns the columns and values of a lexicographic column range
// as a flat list. ARGV: min, max, limit (0 means unlimited).
var sliceScript = redis.NewScript(`
local cols
if ARGV[3] == '0' then
	cols = redis.call('ZRANGEBYLEX', KEYS[1], ARGV[1], ARGV[2])
else
	cols = redis.call('ZRANGEBYLEX', KEYS[1], ARGV[1], ARGV[2], 'LIMIT', '0', ARGV[3])
end
if #cols == 0 then
	return {}
end
local vals = redis.call('HMGET', KEYS[2], unpack(cols))
local out = {}
for i, col in ipairs(cols) do
	if vals[i] then
		out[#out + 1] = col
		out[#out + 1] = vals[i]
	end
end
return out
`)

// Options configures a Redis store.
type Options struct {
	// Prefix is prepended to every key (default DefaultPrefix).
	Prefix string
	// MinReplicas is the number of replicas that must acknowledge a
	// ConsistencyKey write. Zero disables WAIT.
	MinReplicas int
	// ReplicaTimeout bounds a single WAIT (default 1s).
	ReplicaTimeout time.Duration
}

// redisStore implements store.IStore with a hash and a sorted set per row.
//
// Thread-safety: All methods are safe for concurrent use.
type redisStore struct {
	client redis.UniversalClient
	opts   Options
}

// NewRedisStore creates a store on client. The store owns the client and
// closes it on Close.
func NewRedisStore(client redis.UniversalClient, opts Options) store.IStore {
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.ReplicaTimeout <= 0 {
		opts.ReplicaTimeout = time.Second
	}
	return &redisStore{client: client, opts: opts}
}

func (s *redisStore) dataKey(row string) string {
	return s.opts.Prefix + "d:" + row
}

func (s *redisStore) indexKey(row string) string {
	return s.opts.Prefix + "i:" + row
}

// toStoreError maps a go-redis error to a *store.Error.
func toStoreError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	var rerr redis.Error
	if errors.As(err, &rerr) {
		return store.Errorf(store.RetCInternalError, "%s: %v", op, err)
	}
	return store.Errorf(store.RetCTemporary, "%s: %v", op, err)
}

// --------------------------------------------------------------------------
// Interface Methods (docs see store/interface.go)
// --------------------------------------------------------------------------

func (s *redisStore) Mutate(ctx context.Context, row string, additions []db.Entry, deletions [][]byte, level store.Consistency) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mutate: %w", err)
	}
	if len(additions) == 0 && len(deletions) == 0 {
		return nil
	}

	dk, ik := s.dataKey(row), s.indexKey(row)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(deletions) > 0 {
			cols := make([]string, len(deletions))
			members := make([]interface{}, len(deletions))
			for i, c := range deletions {
				cols[i] = string(c)
				members[i] = cols[i]
			}
			pipe.HDel(ctx, dk, cols...)
			pipe.ZRem(ctx, ik, members...)
		}
		if len(additions) > 0 {
			fields := make([]interface{}, 0, 2*len(additions))
			members := make([]redis.Z, len(additions))
			for i, e := range additions {
				fields = append(fields, string(e.Column), e.Value)
				members[i] = redis.Z{Member: string(e.Column)}
			}
			pipe.HSet(ctx, dk, fields...)
			pipe.ZAdd(ctx, ik, members...)
		}
		return nil
	})
	if err != nil {
		return toStoreError(ctx, "mutate", err)
	}

	if level != store.ConsistencyKey || s.opts.MinReplicas <= 0 {
		return nil
	}
	acked, err := s.client.Wait(ctx, s.opts.MinReplicas, s.opts.ReplicaTimeout).Result()
	if err != nil {
		return toStoreError(ctx, "wait", err)
	}
	if acked < int64(s.opts.MinReplicas) {
		log.Warningf("write to %q acknowledged by %d/%d replicas", row, acked, s.opts.MinReplicas)
		return store.Errorf(store.RetCTemporary, "wait: %d of %d replicas acknowledged", acked, s.opts.MinReplicas)
	}
	return nil
}

func (s *redisStore) GetSlice(ctx context.Context, row string, q db.SliceQuery, _ store.Consistency) ([]db.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("get slice: %w", err)
	}

	lo := "-"
	if len(q.Start) > 0 {
		lo = "[" + string(q.Start)
	}
	hi := "+"
	if q.End != nil {
		hi = "(" + string(q.End)
	}
	limit := 0
	if q.Limit > 0 {
		limit = q.Limit
	}

	res, err := sliceScript.Run(ctx, s.client, []string{s.indexKey(row), s.dataKey(row)}, lo, hi, strconv.Itoa(limit)).Slice()
	if err != nil {
		return nil, toStoreError(ctx, "get slice", err)
	}
	if len(res)%2 != 0 {
		return nil, store.Errorf(store.RetCInternalError, "get slice: odd result length %d", len(res))
	}

	var entries []db.Entry
	for i := 0; i < len(res); i += 2 {
		col, ok1 := res[i].(string)
		val, ok2 := res[i+1].(string)
		if !ok1 || !ok2 {
			return nil, store.Errorf(store.RetCInternalError, "get slice: unexpected result types %T, %T", res[i], res[i+1])
		}
		entries = append(entries, db.Entry{Column: []byte(col), Value: []byte(val)})
	}
	return entries, nil
}

func (s *redisStore) Features() store.Features {
	return store.Features{
		Distributed:        true,
		KeyConsistent:      true,
		LocalKeyConsistent: true,
	}
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
