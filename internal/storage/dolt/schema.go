package dolt

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// currentSchemaVersion marks the schema revision recorded in the config
// table. Bump when the DDL below changes shape.
const currentSchemaVersion = 1

// configSchema is created first so the schema_version fast path has a
// table to read. The key column is quoted because KEY is reserved.
const configSchema = "CREATE TABLE IF NOT EXISTS config (\n" +
	"    `key` VARCHAR(255) NOT NULL PRIMARY KEY,\n" +
	"    value TEXT NOT NULL\n" +
	")"

// schema is executed statement by statement at open time. Dolt does not
// support multi-statement Exec, so initSchemaOnDB splits on semicolons.
const schema = `
CREATE TABLE IF NOT EXISTS namespaces (
    id VARCHAR(255) NOT NULL PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    slug VARCHAR(255) NOT NULL,
    owner_id VARCHAR(255) NOT NULL DEFAULT '',
    description TEXT,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at DATETIME(6) NOT NULL,
    UNIQUE KEY uq_namespaces_name (name),
    UNIQUE KEY uq_namespaces_slug (slug)
);

CREATE TABLE IF NOT EXISTS memory_blocks (
    id VARCHAR(255) NOT NULL PRIMARY KEY,
    namespace_id VARCHAR(255) NOT NULL DEFAULT 'legacy',
    type VARCHAR(32) NOT NULL,
    schema_version INT,
    text LONGTEXT NOT NULL,
    state VARCHAR(16) NOT NULL DEFAULT 'draft',
    visibility VARCHAR(16) NOT NULL DEFAULT 'internal',
    block_version INT NOT NULL DEFAULT 1,
    tags JSON,
    source_file VARCHAR(1024),
    source_uri VARCHAR(1024),
    confidence JSON,
    created_by VARCHAR(255),
    created_at DATETIME(6) NOT NULL,
    updated_at DATETIME(6) NOT NULL,
    embedding JSON,
    KEY idx_blocks_namespace (namespace_id),
    KEY idx_blocks_type (type),
    KEY idx_blocks_state (state),
    KEY idx_blocks_created (created_at),
    CONSTRAINT fk_blocks_namespace FOREIGN KEY (namespace_id) REFERENCES namespaces (id)
);

-- Typed metadata rows. Exactly one value column is non-NULL per row,
-- selected by value_type.
CREATE TABLE IF NOT EXISTS block_properties (
    block_id VARCHAR(255) NOT NULL,
    name VARCHAR(255) NOT NULL,
    value_type VARCHAR(16) NOT NULL,
    text_value LONGTEXT,
    number_value DOUBLE,
    bool_value BOOLEAN,
    json_value JSON,
    PRIMARY KEY (block_id, name),
    CONSTRAINT fk_properties_block FOREIGN KEY (block_id) REFERENCES memory_blocks (id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS block_links (
    from_id VARCHAR(255) NOT NULL,
    to_id VARCHAR(255) NOT NULL,
    relation VARCHAR(64) NOT NULL,
    priority INT NOT NULL DEFAULT 0,
    link_metadata JSON,
    created_by VARCHAR(255),
    created_at DATETIME(6) NOT NULL,
    PRIMARY KEY (from_id, to_id, relation),
    KEY idx_links_to (to_id, relation),
    CONSTRAINT fk_links_from FOREIGN KEY (from_id) REFERENCES memory_blocks (id),
    CONSTRAINT fk_links_to FOREIGN KEY (to_id) REFERENCES memory_blocks (id)
);

-- Append-only operation records. Rows are never updated or deleted so
-- the id sequence doubles as insertion order.
CREATE TABLE IF NOT EXISTS block_proofs (
    id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
    block_id VARCHAR(255) NOT NULL,
    operation VARCHAR(16) NOT NULL,
    commit_hash VARCHAR(255) NOT NULL,
    timestamp DATETIME(6) NOT NULL,
    KEY idx_proofs_block (block_id, id)
);
`

// defaultData seeds rows every database must contain. The legacy
// namespace is reserved and must always exist.
const defaultData = `
INSERT INTO namespaces (id, name, slug, owner_id, description, is_active, created_at)
VALUES ('legacy', 'Legacy', 'legacy', '', 'Default namespace for blocks without an explicit home', TRUE, UTC_TIMESTAMP(6))
ON DUPLICATE KEY UPDATE id = id;
`

func initSchemaOnDB(ctx context.Context, db *sql.DB) error {
	// Fast path: schema already current. Avoids replaying DDL on every open.
	var version int
	err := db.QueryRowContext(ctx, "SELECT `value` FROM config WHERE `key` = 'schema_version'").Scan(&version)
	if err == nil && version >= currentSchemaVersion {
		return nil
	}

	if _, err := db.ExecContext(ctx, configSchema); err != nil {
		return fmt.Errorf("failed to create config table: %w", err)
	}

	for _, stmt := range splitStatements(schema) {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" || isOnlyComments(stmt) {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w\nstatement: %s", err, truncateForError(stmt))
		}
	}

	for _, stmt := range splitStatements(defaultData) {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" || isOnlyComments(stmt) {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to seed default data: %w", err)
		}
	}

	_, err = db.ExecContext(ctx,
		"INSERT INTO config (`key`, `value`) VALUES ('schema_version', ?) "+
			"ON DUPLICATE KEY UPDATE `value` = ?",
		currentSchemaVersion, currentSchemaVersion)
	if err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	// Commit the baseline so later working-set resets cannot drop the
	// schema itself. A clean working set means another opener got here
	// first, which is fine.
	if _, err := db.ExecContext(ctx, "CALL DOLT_COMMIT('-Am', 'initialize membank schema')"); err != nil &&
		!strings.Contains(strings.ToLower(err.Error()), "nothing to commit") {
		return fmt.Errorf("failed to commit schema baseline: %w", err)
	}
	return nil
}

// splitStatements splits a SQL script into individual statements,
// respecting string literals so quoted semicolons survive.
func splitStatements(script string) []string {
	var statements []string
	var current strings.Builder
	inString := false
	stringChar := byte(0)

	for i := 0; i < len(script); i++ {
		c := script[i]

		if inString {
			current.WriteByte(c)
			if c == stringChar && (i == 0 || script[i-1] != '\\') {
				inString = false
			}
			continue
		}

		if c == '\'' || c == '"' || c == '`' {
			inString = true
			stringChar = c
			current.WriteByte(c)
			continue
		}

		if c == ';' {
			stmt := strings.TrimSpace(current.String())
			if stmt != "" {
				statements = append(statements, stmt)
			}
			current.Reset()
			continue
		}

		current.WriteByte(c)
	}

	// Last statement may lack a trailing semicolon.
	stmt := strings.TrimSpace(current.String())
	if stmt != "" {
		statements = append(statements, stmt)
	}

	return statements
}

// truncateForError trims a statement for inclusion in error messages.
func truncateForError(s string) string {
	if len(s) > 100 {
		return s[:100] + "..."
	}
	return s
}

// isOnlyComments reports whether the statement contains only SQL comments.
func isOnlyComments(stmt string) bool {
	for _, line := range strings.Split(stmt, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		return false
	}
	return true
}
