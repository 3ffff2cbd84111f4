package sqlstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/ValentinKolb/dLock/lib/db"
	"github.com/ValentinKolb/dLock/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("sqlstore")

// Dialect selects the SQL flavour.
type Dialect string

const (
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
)

// DefaultTable is used when Options.Table is empty.
const DefaultTable = "dlock_kcv"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Options configures an SQL store.
type Options struct {
	Dialect Dialect
	Table   string
}

// SQLStore implements store.IStore on a single table.
//
// Thread-safety: All methods are safe for concurrent use.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	table   string

	// statements
	schema, del, upsert string
}

var _ store.IStore = (*SQLStore)(nil)

// NewSQLStore creates a store on database. The store owns database and closes
// it on Close. Call EnsureSchema before the first operation on a new database.
func NewSQLStore(database *sql.DB, opts Options) (*SQLStore, error) {
	if opts.Table == "" {
		opts.Table = DefaultTable
	}
	if !tableName.MatchString(opts.Table) {
		return nil, fmt.Errorf("invalid table name %q", opts.Table)
	}

	s := &SQLStore{db: database, dialect: opts.Dialect, table: opts.Table}
	switch opts.Dialect {
	case DialectMySQL:
		s.schema = fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (row_key VARBINARY(512) NOT NULL, col VARBINARY(512) NOT NULL, val LONGBLOB NOT NULL, PRIMARY KEY (row_key, col))", s.table)
		s.upsert = fmt.Sprintf("INSERT INTO %s (row_key, col, val) VALUES (?, ?, ?) ON DUPLICATE KEY UPDATE val = VALUES(val)", s.table)
	case DialectPostgres:
		s.schema = fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (row_key BYTEA NOT NULL, col BYTEA NOT NULL, val BYTEA NOT NULL, PRIMARY KEY (row_key, col))", s.table)
		s.upsert = fmt.Sprintf("INSERT INTO %s (row_key, col, val) VALUES ($1, $2, $3) ON CONFLICT (row_key, col) DO UPDATE SET val = EXCLUDED.val", s.table)
	default:
		return nil, fmt.Errorf("unsupported sql dialect %q", opts.Dialect)
	}
	s.del = fmt.Sprintf("DELETE FROM %s WHERE row_key = %s AND col = %s", s.table, s.arg(1), s.arg(2))
	return s, nil
}

// EnsureSchema creates the table if it does not exist.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.schema); err != nil {
		return toStoreError(ctx, "ensure schema", err)
	}
	log.Debugf("ensured table %s (%s)", s.table, s.dialect)
	return nil
}

// arg returns the n-th (1-based) placeholder of the dialect.
func (s *SQLStore) arg(n int) string {
	if s.dialect == DialectPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// sliceQuery builds the range select of q and its arguments.
func (s *SQLStore) sliceQuery(row string, q db.SliceQuery) (string, []interface{}) {
	var b strings.Builder
	args := []interface{}{[]byte(row), nonNil(q.Start)}
	fmt.Fprintf(&b, "SELECT col, val FROM %s WHERE row_key = %s AND col >= %s", s.table, s.arg(1), s.arg(2))
	if q.End != nil {
		args = append(args, q.End)
		fmt.Fprintf(&b, " AND col < %s", s.arg(len(args)))
	}
	b.WriteString(" ORDER BY col")
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	}
	return b.String(), args
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

// toStoreError maps a database/sql error to a *store.Error.
func toStoreError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.As(err, &netErr) {
		return store.Errorf(store.RetCTemporary, "%s: %v", op, err)
	}
	return store.Errorf(store.RetCInternalError, "%s: %v", op, err)
}

// --------------------------------------------------------------------------
// Interface Methods (docs see store/interface.go)
// --------------------------------------------------------------------------

func (s *SQLStore) Mutate(ctx context.Context, row string, additions []db.Entry, deletions [][]byte, _ store.Consistency) (err error) {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mutate: %w", err)
	}
	if len(additions) == 0 && len(deletions) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return toStoreError(ctx, "begin", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				log.Warningf("rollback of mutation on %q failed: %v", row, rbErr)
			}
		}
	}()

	key := []byte(row)
	for _, col := range deletions {
		if _, err = tx.ExecContext(ctx, s.del, key, nonNil(col)); err != nil {
			return toStoreError(ctx, "delete", err)
		}
	}
	for _, e := range additions {
		if _, err = tx.ExecContext(ctx, s.upsert, key, nonNil(e.Column), nonNil(e.Value)); err != nil {
			return toStoreError(ctx, "upsert", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return toStoreError(ctx, "commit", err)
	}
	return nil
}

func (s *SQLStore) GetSlice(ctx context.Context, row string, q db.SliceQuery, _ store.Consistency) ([]db.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("get slice: %w", err)
	}

	query, args := s.sliceQuery(row, q)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, toStoreError(ctx, "get slice", err)
	}
	defer rows.Close()

	var entries []db.Entry
	for rows.Next() {
		var e db.Entry
		if err := rows.Scan(&e.Column, &e.Value); err != nil {
			return nil, toStoreError(ctx, "scan", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, toStoreError(ctx, "get slice", err)
	}
	return entries, nil
}

func (s *SQLStore) Features() store.Features {
	return store.Features{
		Distributed:        true,
		KeyConsistent:      true,
		LocalKeyConsistent: true,
	}
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
