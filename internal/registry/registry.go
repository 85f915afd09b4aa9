// Package registry implements ServerRegistry: a durable two-table cache of
// verified and candidate mail server configs, backed by SQLite. Schema is
// created idempotently on first use.
package registry

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Security is the transport security a ServerConfig uses.
type Security int

const (
	SecurityNone Security = iota
	SecuritySSL
	SecurityStartTLS
)

func (s Security) String() string {
	switch s {
	case SecuritySSL:
		return "SSL"
	case SecurityStartTLS:
		return "STARTTLS"
	default:
		return "None"
	}
}

// UsernameFormat describes how a login username is derived from an email address.
type UsernameFormat int

const (
	UsernameEmail UsernameFormat = iota
	UsernameLocalPart
)

// Discovery source priorities, lower tried first.
const (
	SourceISPDB     = 1
	SourceAutoconfig = 2
	SourceMX        = 3
	SourceGuess     = 4
)

// ServerConfig is one candidate (or verified) mail server configuration for
// a domain.
type ServerConfig struct {
	Hostname       string
	Port           int
	Security       Security
	UsernameFormat UsernameFormat
	Source         string
	Priority       int
}

// Registry is a durable key/value cache over verified_configs and
// server_candidates, opened once and held for the process lifetime.
type Registry struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path, enables
// WAL mode and foreign keys, and ensures the schema exists.
func Open(path string) (*Registry, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening registry db: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", pragma, err)
		}
	}

	r := &Registry{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Registry) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS verified_configs (
			domain TEXT PRIMARY KEY,
			hostname TEXT NOT NULL,
			port INTEGER NOT NULL,
			security INTEGER NOT NULL,
			username_format INTEGER NOT NULL,
			source TEXT NOT NULL,
			priority INTEGER NOT NULL,
			expires_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_verified_expires_at ON verified_configs (expires_at)`,
		`CREATE TABLE IF NOT EXISTS server_candidates (
			domain TEXT NOT NULL,
			hostname TEXT NOT NULL,
			port INTEGER NOT NULL,
			security INTEGER NOT NULL,
			username_format INTEGER NOT NULL,
			source TEXT NOT NULL,
			priority INTEGER NOT NULL,
			expires_at TEXT NOT NULL,
			UNIQUE(domain, hostname, port)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_candidates_domain ON server_candidates (domain)`,
		`CREATE INDEX IF NOT EXISTS idx_candidates_expires_at ON server_candidates (expires_at)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.Exec(stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database connection.
func (r *Registry) Close() error {
	return r.db.Close()
}

const timeLayout = time.RFC3339Nano

// GetVerified returns the unexpired verified config for domain, if any.
func (r *Registry) GetVerified(domain string) (ServerConfig, bool, error) {
	domain = strings.ToLower(domain)
	row := r.db.QueryRow(`SELECT hostname, port, security, username_format, source, priority, expires_at
		FROM verified_configs WHERE domain = ?`, domain)

	var cfg ServerConfig
	var expiresAt string
	var security, usernameFormat int
	err := row.Scan(&cfg.Hostname, &cfg.Port, &security, &usernameFormat, &cfg.Source, &cfg.Priority, &expiresAt)
	if err == sql.ErrNoRows {
		return ServerConfig{}, false, nil
	}
	if err != nil {
		return ServerConfig{}, false, fmt.Errorf("get verified: %w", err)
	}
	exp, err := time.Parse(timeLayout, expiresAt)
	if err != nil {
		return ServerConfig{}, false, fmt.Errorf("parsing expires_at: %w", err)
	}
	if !exp.After(time.Now()) {
		return ServerConfig{}, false, nil
	}
	cfg.Security = Security(security)
	cfg.UsernameFormat = UsernameFormat(usernameFormat)
	return cfg, true, nil
}

// SetVerified upserts the verified config for domain with the given TTL.
func (r *Registry) SetVerified(domain string, cfg ServerConfig, ttl time.Duration) error {
	domain = strings.ToLower(domain)
	expiresAt := time.Now().Add(ttl).Format(timeLayout)
	_, err := r.db.Exec(`INSERT INTO verified_configs (domain, hostname, port, security, username_format, source, priority, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(domain) DO UPDATE SET
			hostname = excluded.hostname,
			port = excluded.port,
			security = excluded.security,
			username_format = excluded.username_format,
			source = excluded.source,
			priority = excluded.priority,
			expires_at = excluded.expires_at`,
		domain, cfg.Hostname, cfg.Port, int(cfg.Security), int(cfg.UsernameFormat), cfg.Source, cfg.Priority, expiresAt)
	if err != nil {
		return fmt.Errorf("set verified: %w", err)
	}
	return nil
}

// GetCandidates returns all unexpired candidates for domain, sorted by
// priority ascending.
func (r *Registry) GetCandidates(domain string) ([]ServerConfig, error) {
	domain = strings.ToLower(domain)
	now := time.Now().Format(timeLayout)
	rows, err := r.db.Query(`SELECT hostname, port, security, username_format, source, priority
		FROM server_candidates WHERE domain = ? AND expires_at > ? ORDER BY priority ASC`, domain, now)
	if err != nil {
		return nil, fmt.Errorf("get candidates: %w", err)
	}
	defer rows.Close()

	var out []ServerConfig
	for rows.Next() {
		var cfg ServerConfig
		var security, usernameFormat int
		if err := rows.Scan(&cfg.Hostname, &cfg.Port, &security, &usernameFormat, &cfg.Source, &cfg.Priority); err != nil {
			return nil, fmt.Errorf("scanning candidate: %w", err)
		}
		cfg.Security = Security(security)
		cfg.UsernameFormat = UsernameFormat(usernameFormat)
		out = append(out, cfg)
	}
	return out, rows.Err()
}

// SetCandidates replaces domain's candidates within a single transaction:
// delete existing rows, then insert configs, tolerant of duplicate
// (domain, hostname, port) within the batch.
func (r *Registry) SetCandidates(domain string, configs []ServerConfig, ttl time.Duration) error {
	domain = strings.ToLower(domain)
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM server_candidates WHERE domain = ?`, domain); err != nil {
		return fmt.Errorf("clearing candidates: %w", err)
	}

	expiresAt := time.Now().Add(ttl).Format(timeLayout)
	stmt, err := tx.Prepare(`INSERT INTO server_candidates (domain, hostname, port, security, username_format, source, priority, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(domain, hostname, port) DO UPDATE SET
			security = excluded.security,
			username_format = excluded.username_format,
			source = excluded.source,
			priority = excluded.priority,
			expires_at = excluded.expires_at`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, cfg := range configs {
		if _, err := stmt.Exec(domain, cfg.Hostname, cfg.Port, int(cfg.Security), int(cfg.UsernameFormat), cfg.Source, cfg.Priority, expiresAt); err != nil {
			return fmt.Errorf("inserting candidate %s:%d: %w", cfg.Hostname, cfg.Port, err)
		}
	}

	return tx.Commit()
}

// CleanExpired deletes rows past expiry from both tables.
func (r *Registry) CleanExpired() error {
	now := time.Now().Format(timeLayout)
	if _, err := r.db.Exec(`DELETE FROM verified_configs WHERE expires_at <= ?`, now); err != nil {
		return fmt.Errorf("cleaning verified_configs: %w", err)
	}
	if _, err := r.db.Exec(`DELETE FROM server_candidates WHERE expires_at <= ?`, now); err != nil {
		return fmt.Errorf("cleaning server_candidates: %w", err)
	}
	return nil
}

// SortByPriority sorts configs in place by ascending priority, lowest first.
func SortByPriority(configs []ServerConfig) {
	sort.SliceStable(configs, func(i, j int) bool { return configs[i].Priority < configs[j].Priority })
}
