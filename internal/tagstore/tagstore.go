// Package tagstore persists the topic → importance/frequency mapping
// that drives retrieval ranking.
package tagstore

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Score is the persisted record of one topic.
type Score struct {
	BaseImportance   int    `json:"base_importance"`
	LastMentionedIn  string `json:"last_mentioned_in"`
	MentionFrequency int    `json:"mention_frequency"`
}

// Store keeps the whole mapping in a single JSON file. Mutations run
// through Update, which holds the lock across the full
// read-modify-write, so concurrent consolidation workers cannot lose
// each other's updates.
type Store struct {
	path string
	mu   sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load returns the current mapping. A missing or unreadable file loads
// as empty; the failure is logged, never returned.
func (s *Store) Load() map[string]Score {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() map[string]Score {
	scores := make(map[string]Score)
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[tagstore] warning: read %s: %v", s.path, err)
		}
		return scores
	}
	if err := json.Unmarshal(data, &scores); err != nil {
		log.Printf("[tagstore] warning: parse %s: %v", s.path, err)
		return make(map[string]Score)
	}
	return scores
}

// Save overwrites the whole mapping atomically (temp file + rename).
func (s *Store) Save(scores map[string]Score) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(scores)
}

func (s *Store) saveLocked(scores map[string]Score) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	data, err := json.MarshalIndent(scores, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tag scores: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write tag scores: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace tag scores: %w", err)
	}
	return nil
}

// Update runs fn on the current mapping and persists the result inside
// the same critical section.
func (s *Store) Update(fn func(map[string]Score)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	scores := s.loadLocked()
	fn(scores)
	return s.saveLocked(scores)
}

// Compact drops unusable entries and re-clamps stored values.
func (s *Store) Compact() error {
	return s.Update(func(scores map[string]Score) {
		for topic, sc := range scores {
			if strings.TrimSpace(topic) == "" {
				delete(scores, topic)
				continue
			}
			sc.BaseImportance = ClampImportance(sc.BaseImportance)
			if sc.MentionFrequency < 1 {
				sc.MentionFrequency = 1
			}
			scores[topic] = sc
		}
	})
}

// ClampImportance bounds an importance value to [0,100].
func ClampImportance(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
