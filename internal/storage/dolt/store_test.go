package dolt

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestValidateRef(t *testing.T) {
	tests := []struct {
		name    string
		ref     string
		wantErr bool
	}{
		{"commit hash", "abc123def456", false},
		{"branch main", "main", false},
		{"underscore branch", "feature_branch", false},
		{"dash branch", "feature-branch", false},
		{"slash branch", "feature/cursor-links", false},
		{"head relative", "HEAD~1", false},
		{"working set ref", "WORKING", false},
		{"empty", "", true},
		{"too long", strings.Repeat("a", 200), true},
		{"sql injection", "main'; DROP TABLE memory_blocks; --", true},
		{"single quote", "it's", true},
		{"double quote", `main"`, true},
		{"semicolon", "main;other", true},
		{"space", "two words", true},
		{"leading dash", "-main", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateRef(tt.ref)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateRef(%q) error = %v, wantErr %v", tt.ref, err, tt.wantErr)
			}
		})
	}
}

func TestValidateTableName(t *testing.T) {
	tests := []struct {
		name    string
		table   string
		wantErr bool
	}{
		{"plain", "memory_blocks", false},
		{"numbered", "table123", false},
		{"leading underscore", "_staging", false},
		{"empty", "", true},
		{"too long", strings.Repeat("a", 100), true},
		{"leading digit", "123table", true},
		{"sql injection", "blocks; DROP TABLE namespaces", true},
		{"space", "memory blocks", true},
		{"dash", "memory-blocks", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateTableName(tt.table)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateTableName(%q) error = %v, wantErr %v", tt.table, err, tt.wantErr)
			}
		})
	}
}

func TestValidateStageTable(t *testing.T) {
	tests := []struct {
		name    string
		table   string
		wantErr bool
	}{
		{"memory_blocks", "memory_blocks", false},
		{"block_properties", "block_properties", false},
		{"block_links", "block_links", false},
		{"block_proofs", "block_proofs", false},
		{"namespaces", "namespaces", false},
		{"config", "config", false},
		{"system table", "dolt_log", true},
		{"unknown table", "scratch", true},
		{"invalid name", "bad-name", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateStageTable(tt.table)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateStageTable(%q) error = %v, wantErr %v", tt.table, err, tt.wantErr)
			}
		})
	}
}

func TestCheckText(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{"plain", "hello world", false},
		{"quotes", `it's "quoted"`, false},
		{"sql punctuation", "a; DROP TABLE x; --", false},
		{"newline", "line one\nline two", false},
		{"tab", "a\tb", false},
		{"unicode", "héllo wörld ✓", false},
		{"nul byte", "a\x00b", true},
		{"backspace", "a\x08b", true},
		{"substitute", "a\x1ab", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkText("field", tt.text)
			if (err != nil) != tt.wantErr {
				t.Errorf("checkText(%q) error = %v, wantErr %v", tt.text, err, tt.wantErr)
			}
		})
	}
}

func TestPlaceholders(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, ""},
		{1, "?"},
		{2, "?, ?"},
		{4, "?, ?, ?, ?"},
	}
	for _, tt := range tests {
		if got := placeholders(tt.n); got != tt.want {
			t.Errorf("placeholders(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"bad connection", errors.New("driver: bad connection"), true},
		{"invalid connection", errors.New("invalid connection"), true},
		{"broken pipe", errors.New("write tcp: broken pipe"), true},
		{"connection reset", errors.New("read: connection reset by peer"), true},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"read only", errors.New("database is read only"), true},
		{"case folded", errors.New("Lost Connection to MySQL server"), true},
		{"io timeout", errors.New("read tcp: i/o timeout"), true},
		{"syntax error", errors.New("syntax error at position 12"), false},
		{"constraint violation", errors.New("duplicate entry for key PRIMARY"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryableError(tt.err); got != tt.want {
				t.Errorf("isRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsNothingToCommit(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"exact", errors.New("nothing to commit"), true},
		{"mixed case", errors.New("Nothing To Commit, working tree clean"), true},
		{"other", errors.New("merge conflict in memory_blocks"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isNothingToCommit(tt.err); got != tt.want {
				t.Errorf("isNothingToCommit(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsDuplicateKeyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"mysql 1062", errors.New("Error 1062 (23000): Duplicate entry 'b-1' for key 'PRIMARY'"), true},
		{"lowercase", errors.New("duplicate primary key given"), true},
		{"other", errors.New("table not found"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isDuplicateKeyError(tt.err); got != tt.want {
				t.Errorf("isDuplicateKeyError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestBuildServerDSN(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		database string
		want     string
	}{
		{
			name:     "no password",
			cfg:      Config{ServerUser: "root", ServerHost: "127.0.0.1", ServerPort: 3306},
			database: "membank",
			want:     "root@tcp(127.0.0.1:3306)/membank?parseTime=true",
		},
		{
			name:     "with password",
			cfg:      Config{ServerUser: "root", ServerPassword: "secret", ServerHost: "127.0.0.1", ServerPort: 3306},
			database: "membank",
			want:     "root:secret@tcp(127.0.0.1:3306)/membank?parseTime=true",
		},
		{
			name:     "no database",
			cfg:      Config{ServerUser: "root", ServerHost: "127.0.0.1", ServerPort: 3306},
			database: "",
			want:     "root@tcp(127.0.0.1:3306)/?parseTime=true",
		},
		{
			name:     "tls",
			cfg:      Config{ServerUser: "root", ServerHost: "db.internal", ServerPort: 3307, ServerTLS: true},
			database: "membank",
			want:     "root@tcp(db.internal:3307)/membank?parseTime=true&tls=true",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildServerDSN(&tt.cfg, tt.database); got != tt.want {
				t.Errorf("buildServerDSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   []string
	}{
		{
			name:   "two statements",
			script: "CREATE TABLE a (x INT);\nCREATE TABLE b (y INT);",
			want:   []string{"CREATE TABLE a (x INT)", "CREATE TABLE b (y INT)"},
		},
		{
			name:   "semicolon inside string literal",
			script: "INSERT INTO t VALUES ('a;b'); SELECT 1",
			want:   []string{"INSERT INTO t VALUES ('a;b')", "SELECT 1"},
		},
		{
			name:   "semicolon inside backticks",
			script: "CREATE TABLE t (`k;ey` INT)",
			want:   []string{"CREATE TABLE t (`k;ey` INT)"},
		},
		{
			name:   "trailing statement without semicolon",
			script: "SELECT 1",
			want:   []string{"SELECT 1"},
		},
		{
			name:   "empty script",
			script: "",
			want:   nil,
		},
		{
			name:   "blank statements dropped",
			script: ";;\nSELECT 1;;",
			want:   []string{"SELECT 1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitStatements(tt.script)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("splitStatements() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestIsOnlyComments(t *testing.T) {
	tests := []struct {
		name string
		stmt string
		want bool
	}{
		{"single comment", "-- a comment", true},
		{"comment with blanks", "\n-- first\n\n-- second\n", true},
		{"empty", "", true},
		{"statement", "SELECT 1", false},
		{"comment then statement", "-- header\nSELECT 1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isOnlyComments(tt.stmt); got != tt.want {
				t.Errorf("isOnlyComments(%q) = %v, want %v", tt.stmt, got, tt.want)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	t.Setenv("MEMBANK_COMMITTER_NAME", "")
	t.Setenv("GIT_AUTHOR_NAME", "")
	t.Setenv("MEMBANK_COMMITTER_EMAIL", "")
	t.Setenv("GIT_AUTHOR_EMAIL", "")
	t.Setenv("MEMBANK_DOLT_PASSWORD", "")
	t.Setenv("DOLT_REMOTE_USER", "")
	t.Setenv("DOLT_REMOTE_PASSWORD", "")

	cfg := &Config{ServerMode: true}
	applyDefaults(cfg)

	if cfg.Database != DefaultDatabase {
		t.Errorf("Database = %q, want %q", cfg.Database, DefaultDatabase)
	}
	if cfg.CommitterName != "membank" {
		t.Errorf("CommitterName = %q, want membank", cfg.CommitterName)
	}
	if cfg.CommitterEmail != "membank@localhost" {
		t.Errorf("CommitterEmail = %q, want membank@localhost", cfg.CommitterEmail)
	}
	if cfg.Remote != "origin" {
		t.Errorf("Remote = %q, want origin", cfg.Remote)
	}
	if cfg.CycleCheckDepth != defaultCycleDepth {
		t.Errorf("CycleCheckDepth = %d, want %d", cfg.CycleCheckDepth, defaultCycleDepth)
	}
	if cfg.ServerHost != "127.0.0.1" {
		t.Errorf("ServerHost = %q, want 127.0.0.1", cfg.ServerHost)
	}
	if cfg.ServerPort != DefaultServerPort {
		t.Errorf("ServerPort = %d, want %d", cfg.ServerPort, DefaultServerPort)
	}
	if cfg.ServerUser != "root" {
		t.Errorf("ServerUser = %q, want root", cfg.ServerUser)
	}
}

func TestApplyDefaultsEnvOverrides(t *testing.T) {
	t.Setenv("MEMBANK_COMMITTER_NAME", "agent-7")
	t.Setenv("MEMBANK_COMMITTER_EMAIL", "agent-7@example.com")

	cfg := &Config{}
	applyDefaults(cfg)

	if cfg.CommitterName != "agent-7" {
		t.Errorf("CommitterName = %q, want agent-7", cfg.CommitterName)
	}
	if cfg.CommitterEmail != "agent-7@example.com" {
		t.Errorf("CommitterEmail = %q, want agent-7@example.com", cfg.CommitterEmail)
	}
}

func TestCommitAuthorString(t *testing.T) {
	s := &DoltStore{committerName: "membank", committerEmail: "membank@localhost"}
	if got, want := s.commitAuthorString(), "membank <membank@localhost>"; got != want {
		t.Errorf("commitAuthorString() = %q, want %q", got, want)
	}
}
