// Package dolt implements block storage on Dolt, a versioned
// MySQL-compatible database.
//
// Dolt gives the memory bank git-shaped semantics over SQL data: every
// mutation lands in a working set that can be staged, committed,
// branched, merged, and pushed to remotes. The coordinator layers its
// write-then-commit policy on top of these primitives.
//
// Connection modes:
//   - Embedded: github.com/dolthub/driver against a local directory,
//     no server required (CGO builds only)
//   - Server: go-sql-driver/mysql against a running dolt sql-server
package dolt

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	// MySQL driver for server mode connections.
	_ "github.com/go-sql-driver/mysql"

	"github.com/cognidao/membank/internal/storage"
)

// DoltStore implements storage.RemoteStore on Dolt.
type DoltStore struct {
	db         *sql.DB
	dbPath     string // embedded database directory, empty in server mode
	connStr    string
	closed     atomic.Bool
	mu         sync.RWMutex // guards branch and lifecycle transitions
	readOnly   bool
	serverMode bool
	accessLock *AccessLock

	// embeddedConn is non-nil only in embedded mode. It must be closed
	// to release filesystem locks held by the in-process engine.
	embeddedConn io.Closer

	committerName  string
	committerEmail string
	remote         string
	branch         string // last known active branch
	remoteUser     string
	remotePassword string

	cycleDepth int
}

var _ storage.RemoteStore = (*DoltStore)(nil)

// Config holds Dolt database configuration.
type Config struct {
	Path           string        // embedded mode: path to the Dolt database directory
	Database       string        // database name within Dolt (default: "membank")
	CommitterName  string        // git-style committer name
	CommitterEmail string        // git-style committer email
	Remote         string        // default remote name (default: "origin")
	ReadOnly       bool          // open read-only, skipping schema init
	OpenTimeout    time.Duration // advisory lock timeout, embedded mode (0 = no advisory lock)

	// Server mode options.
	ServerMode     bool
	ServerHost     string // default: 127.0.0.1
	ServerPort     int    // default: 3306
	ServerUser     string // default: root
	ServerPassword string // default: empty; MEMBANK_DOLT_PASSWORD env overrides
	ServerTLS      bool   // enable TLS for server connections

	// Remote auth for hosted remotes (optional). When set, Push/Pull
	// pass --user and export DOLT_REMOTE_PASSWORD for the call.
	RemoteUser     string
	RemotePassword string

	// CycleCheckDepth bounds the link cycle walk (default: 100).
	CycleCheckDepth int
}

const (
	// DefaultDatabase is the Dolt database name used when Config.Database is empty.
	DefaultDatabase = "membank"

	// DefaultServerPort is the default dolt sql-server port.
	DefaultServerPort = 3306

	defaultCycleDepth = 100
)

var errStoreClosed = errors.New("dolt: store is closed")

func applyDefaults(cfg *Config) {
	if cfg.Database == "" {
		cfg.Database = DefaultDatabase
	}
	if cfg.CommitterName == "" {
		cfg.CommitterName = firstNonEmpty(os.Getenv("MEMBANK_COMMITTER_NAME"), os.Getenv("GIT_AUTHOR_NAME"), "membank")
	}
	if cfg.CommitterEmail == "" {
		cfg.CommitterEmail = firstNonEmpty(os.Getenv("MEMBANK_COMMITTER_EMAIL"), os.Getenv("GIT_AUTHOR_EMAIL"), "membank@localhost")
	}
	if cfg.Remote == "" {
		cfg.Remote = "origin"
	}
	if cfg.CycleCheckDepth <= 0 {
		cfg.CycleCheckDepth = defaultCycleDepth
	}
	if cfg.ServerMode {
		if cfg.ServerHost == "" {
			cfg.ServerHost = "127.0.0.1"
		}
		if cfg.ServerPort == 0 {
			cfg.ServerPort = DefaultServerPort
		}
		if cfg.ServerUser == "" {
			cfg.ServerUser = "root"
		}
		if cfg.ServerPassword == "" {
			cfg.ServerPassword = os.Getenv("MEMBANK_DOLT_PASSWORD")
		}
	}
	if cfg.RemoteUser == "" {
		cfg.RemoteUser = os.Getenv("DOLT_REMOTE_USER")
	}
	if cfg.RemotePassword == "" {
		cfg.RemotePassword = os.Getenv("DOLT_REMOTE_PASSWORD")
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// New opens a Dolt-backed store, creating the database and schema on
// first use. The returned store is safe for concurrent use.
func New(ctx context.Context, cfg *Config) (*DoltStore, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	applyDefaults(cfg)

	if cfg.ServerMode {
		return newServerMode(ctx, cfg)
	}
	if cfg.Path == "" {
		return nil, errors.New("dolt: Path is required in embedded mode")
	}
	return newEmbeddedMode(ctx, cfg)
}

// newServerMode connects to a running dolt sql-server over the MySQL
// protocol. The database is created if it does not exist yet.
func newServerMode(ctx context.Context, cfg *Config) (*DoltStore, error) {
	// Fail fast with a clear error when the server is not running,
	// instead of waiting out MySQL driver timeouts.
	addr := net.JoinHostPort(cfg.ServerHost, strconv.Itoa(cfg.ServerPort))
	conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("dolt server unreachable at %s: %w", addr, err)
	}
	_ = conn.Close()

	// Database creation needs a connection without a selected database.
	if !cfg.ReadOnly {
		initDB, err := sql.Open("mysql", buildServerDSN(cfg, ""))
		if err != nil {
			return nil, fmt.Errorf("failed to open init connection: %w", err)
		}
		_, execErr := initDB.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", cfg.Database))
		closeErr := initDB.Close()
		if execErr != nil {
			return nil, fmt.Errorf("failed to create database %s: %w", cfg.Database, execErr)
		}
		if closeErr != nil {
			return nil, fmt.Errorf("failed to close init connection: %w", closeErr)
		}
	}

	connStr := buildServerDSN(cfg, cfg.Database)
	db, err := sql.Open("mysql", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open server connection: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping dolt server: %w", err)
	}

	store := &DoltStore{
		db:             db,
		connStr:        connStr,
		serverMode:     true,
		readOnly:       cfg.ReadOnly,
		committerName:  cfg.CommitterName,
		committerEmail: cfg.CommitterEmail,
		remote:         cfg.Remote,
		branch:         "main",
		remoteUser:     cfg.RemoteUser,
		remotePassword: cfg.RemotePassword,
		cycleDepth:     cfg.CycleCheckDepth,
	}

	if !cfg.ReadOnly {
		if err := initSchemaOnDB(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return store, nil
}

// buildServerDSN constructs a MySQL DSN for connecting to a dolt
// sql-server. An empty database connects without selecting one.
func buildServerDSN(cfg *Config, database string) string {
	userPart := cfg.ServerUser
	if cfg.ServerPassword != "" {
		userPart = cfg.ServerUser + ":" + cfg.ServerPassword
	}
	dsn := fmt.Sprintf("%s@tcp(%s:%d)/%s?parseTime=true", userPart, cfg.ServerHost, cfg.ServerPort, database)
	if cfg.ServerTLS {
		dsn += "&tls=true"
	}
	return dsn
}

// Transient connection errors worth retrying in server mode. The
// embedded driver handles its own open retries via Config.BackOff.
var retryablePatterns = []string{
	"driver: bad connection",
	"invalid connection",
	"broken pipe",
	"connection reset",
	"connection refused",
	"database is read only",
	"lost connection",
	"gone away",
	"i/o timeout",
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range retryablePatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

const serverRetryMaxElapsed = 30 * time.Second

func newServerRetryBackoff() backoff.BackOff {
	// BackOff implementations are stateful; always return a fresh instance.
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = serverRetryMaxElapsed
	return bo
}

// withRetry retries op on transient connection errors. Retries apply in
// server mode only; embedded engine failures are in-process and do not
// heal by waiting.
func (s *DoltStore) withRetry(ctx context.Context, op func() error) error {
	if s.closed.Load() {
		return errStoreClosed
	}
	if !s.serverMode {
		return op()
	}
	return backoff.Retry(func() error {
		if err := op(); err != nil {
			if isRetryableError(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(newServerRetryBackoff(), ctx))
}

func (s *DoltStore) execContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := s.withRetry(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	})
	return res, err
}

func (s *DoltStore) queryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	var rows *sql.Rows
	err := s.withRetry(ctx, func() error {
		var queryErr error
		rows, queryErr = s.db.QueryContext(ctx, query, args...)
		return queryErr
	})
	return rows, err
}

// queryRowContext retries the whole query+scan pair so a stale pooled
// connection cannot surface as a scan failure.
func (s *DoltStore) queryRowContext(ctx context.Context, scan func(*sql.Row) error, query string, args ...any) error {
	return s.withRetry(ctx, func() error {
		return scan(s.db.QueryRowContext(ctx, query, args...))
	})
}

// Ping verifies the database connection is alive.
func (s *DoltStore) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return errStoreClosed
	}
	return s.db.PingContext(ctx)
}

// Close closes the database connection and, in embedded mode, the
// underlying engine so filesystem locks are released. Safe to call more
// than once.
func (s *DoltStore) Close() error {
	s.closed.Store(true)
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.db != nil {
		if cerr := s.db.Close(); cerr != nil && !errors.Is(cerr, context.Canceled) {
			err = errors.Join(err, cerr)
		}
		s.db = nil
	}
	if s.embeddedConn != nil {
		// Dolt shutdown plumbing can surface context.Canceled from
		// background goroutines; treat it as cleanup noise.
		if cerr := s.embeddedConn.Close(); cerr != nil && !errors.Is(cerr, context.Canceled) {
			err = errors.Join(err, cerr)
		}
		s.embeddedConn = nil
	}
	if s.accessLock != nil {
		s.accessLock.Release()
		s.accessLock = nil
	}
	return err
}

// Path returns the embedded database directory; empty in server mode.
func (s *DoltStore) Path() string {
	return s.dbPath
}

// ServerMode reports whether the store talks to a dolt sql-server.
func (s *DoltStore) ServerMode() bool {
	return s.serverMode
}

var (
	refPattern       = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_./^~-]*$`)
	tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
)

// validateRef guards revision arguments that are interpolated into
// dolt_diff_stat and friends, which cannot take placeholders.
func validateRef(ref string) error {
	if ref == "" {
		return errors.New("ref is empty")
	}
	if len(ref) > 128 {
		return fmt.Errorf("ref too long (%d chars)", len(ref))
	}
	if !refPattern.MatchString(ref) {
		return fmt.Errorf("invalid ref %q", ref)
	}
	return nil
}

func validateTableName(name string) error {
	if name == "" {
		return errors.New("table name is empty")
	}
	if len(name) > 64 {
		return fmt.Errorf("table name too long (%d chars)", len(name))
	}
	if !tableNamePattern.MatchString(name) {
		return fmt.Errorf("invalid table name %q", name)
	}
	return nil
}

// stageableTables is the closed set of tables that staging operations
// may name. Anything else is rejected before reaching SQL.
var stageableTables = map[string]bool{
	"namespaces":       true,
	"memory_blocks":    true,
	"block_properties": true,
	"block_links":      true,
	"block_proofs":     true,
	"config":           true,
}

func validateStageTable(name string) error {
	if err := validateTableName(name); err != nil {
		return err
	}
	if !stageableTables[name] {
		return fmt.Errorf("table %q is not a stageable table", name)
	}
	return nil
}

// checkText rejects control bytes that cannot round-trip through every
// client (NUL, backspace, SUB). Everything else, including SQL
// punctuation, is stored verbatim through parameterized queries.
func checkText(field, s string) error {
	for _, r := range s {
		switch r {
		case 0x00, 0x08, 0x1a:
			return fmt.Errorf("%s contains forbidden control character 0x%02x", field, r)
		}
	}
	return nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "duplicate")
}
