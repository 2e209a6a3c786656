// Package ledger is the structured log behind profile history lists and
// completed consolidations. The prose sections of a profile note are a
// projection of it; when both exist, the ledger wins.
package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/fernwehlabs/mnema/internal/note"
)

// History list kinds.
const (
	KindContext = "context"
	KindOpinion = "opinion"
)

type Ledger struct {
	db *sql.DB
	mu sync.Mutex
}

// Consolidation is one completed run over a conversation summary.
type Consolidation struct {
	Ref         string
	RunID       string
	Topics      []string
	CompletedAt string
}

type Stats struct {
	Topics         int
	HistoryEntries int
	Consolidations int
}

func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	l := &Ledger{db: db}
	if err := l.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := l.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := l.db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func (l *Ledger) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			topic TEXT NOT NULL,
			kind TEXT NOT NULL,
			ref TEXT NOT NULL,
			entry TEXT NOT NULL,
			seq INTEGER NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (datetime('now')),
			UNIQUE(topic, kind, ref)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_topic ON history(topic, kind, seq)`,
		`CREATE TABLE IF NOT EXISTS consolidations (
			ref TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			topics TEXT NOT NULL DEFAULT '[]',
			completed_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
	}

	for _, stmt := range stmts {
		if _, err := l.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (l *Ledger) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

// History returns one of a topic's history lists, newest first.
func (l *Ledger) History(topic, kind string) ([]note.HistoryEntry, error) {
	rows, err := l.db.Query(`
		SELECT ref, entry FROM history
		WHERE topic = ? AND kind = ?
		ORDER BY seq DESC, id DESC
	`, topic, kind)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []note.HistoryEntry
	for rows.Next() {
		var e note.HistoryEntry
		if err := rows.Scan(&e.Ref, &e.Text); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}

// HasHistory reports whether any rows exist for the topic. Topics that
// predate the ledger have none and get recovered from the rendered note.
func (l *Ledger) HasHistory(topic string) (bool, error) {
	row := l.db.QueryRow(`SELECT COUNT(*) FROM history WHERE topic = ?`, topic)
	var n int
	if err := row.Scan(&n); err != nil {
		return false, fmt.Errorf("count history: %w", err)
	}
	return n > 0, nil
}

// ReplaceHistory overwrites a topic's list of one kind with entries,
// head first: entries[0] receives the highest sequence number. Refs are
// normalized; a duplicate ref keeps its head-most entry.
func (l *Ledger) ReplaceHistory(topic, kind string, entries []note.HistoryEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("begin replace history: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM history WHERE topic = ? AND kind = ?`, topic, kind); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}

	seq := len(entries)
	for _, e := range entries {
		ref := note.NormalizeRef(e.Ref)
		if ref == "" {
			seq--
			continue
		}
		if _, err := tx.Exec(`
			INSERT INTO history (topic, kind, ref, entry, seq)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(topic, kind, ref) DO NOTHING
		`, topic, kind, ref, strings.TrimSpace(e.Text), seq); err != nil {
			return fmt.Errorf("insert history entry: %w", err)
		}
		seq--
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace history: %w", err)
	}
	return nil
}

// RecordConsolidation marks a conversation ref as consolidated.
// Re-running a conversation overwrites the previous record.
func (l *Ledger) RecordConsolidation(ref, runID string, topics []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	topicsJSON, err := json.Marshal(topics)
	if err != nil {
		return fmt.Errorf("marshal topics: %w", err)
	}
	_, err = l.db.Exec(`
		INSERT INTO consolidations (ref, run_id, topics)
		VALUES (?, ?, ?)
		ON CONFLICT(ref) DO UPDATE SET
			run_id = excluded.run_id,
			topics = excluded.topics,
			completed_at = datetime('now')
	`, note.NormalizeRef(ref), runID, string(topicsJSON))
	if err != nil {
		return fmt.Errorf("record consolidation: %w", err)
	}
	return nil
}

func (l *Ledger) IsConsolidated(ref string) (bool, error) {
	row := l.db.QueryRow(`SELECT COUNT(*) FROM consolidations WHERE ref = ?`, note.NormalizeRef(ref))
	var n int
	if err := row.Scan(&n); err != nil {
		return false, fmt.Errorf("check consolidation: %w", err)
	}
	return n > 0, nil
}

// ConsolidatedRefs returns every conversation ref with a completed run.
func (l *Ledger) ConsolidatedRefs() (map[string]bool, error) {
	rows, err := l.db.Query(`SELECT ref FROM consolidations`)
	if err != nil {
		return nil, fmt.Errorf("query consolidations: %w", err)
	}
	defer rows.Close()

	refs := make(map[string]bool)
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, fmt.Errorf("scan consolidation ref: %w", err)
		}
		refs[ref] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consolidations: %w", err)
	}
	return refs, nil
}

// Consolidations returns completed runs, most recent first.
func (l *Ledger) Consolidations() ([]Consolidation, error) {
	rows, err := l.db.Query(`
		SELECT ref, run_id, topics, completed_at
		FROM consolidations
		ORDER BY completed_at DESC, ref DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query consolidations: %w", err)
	}
	defer rows.Close()

	var out []Consolidation
	for rows.Next() {
		var c Consolidation
		var topicsJSON string
		if err := rows.Scan(&c.Ref, &c.RunID, &topicsJSON, &c.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan consolidation: %w", err)
		}
		if err := json.Unmarshal([]byte(topicsJSON), &c.Topics); err != nil {
			c.Topics = nil
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consolidations: %w", err)
	}
	return out, nil
}

func (l *Ledger) Stats() (Stats, error) {
	var s Stats
	if err := l.db.QueryRow(`SELECT COUNT(DISTINCT topic) FROM history`).Scan(&s.Topics); err != nil {
		return s, fmt.Errorf("count topics: %w", err)
	}
	if err := l.db.QueryRow(`SELECT COUNT(*) FROM history`).Scan(&s.HistoryEntries); err != nil {
		return s, fmt.Errorf("count history entries: %w", err)
	}
	if err := l.db.QueryRow(`SELECT COUNT(*) FROM consolidations`).Scan(&s.Consolidations); err != nil {
		return s, fmt.Errorf("count consolidations: %w", err)
	}
	return s, nil
}
