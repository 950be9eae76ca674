package storage

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"mercator-hq/sentinel/pkg/evidence"
)

// MemoryStorage implements evidence.Storage using an in-memory map.
// Records do not survive a restart; use it for tests and ephemeral runs.
type MemoryStorage struct {
	records map[string]*evidence.Record
	mu      sync.RWMutex
}

// NewMemoryStorage creates a new in-memory storage backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		records: make(map[string]*evidence.Record),
	}
}

// Store persists a record to memory.
func (s *MemoryStorage) Store(ctx context.Context, record *evidence.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.ID]; exists {
		return evidence.NewStorageError("memory", "store", fmt.Errorf("duplicate record id %q", record.ID))
	}

	// Copy so later caller mutation does not leak in
	recordCopy := *record
	s.records[record.ID] = &recordCopy

	return nil
}

// Get returns the record with the given ID.
func (s *MemoryStorage) Get(ctx context.Context, id string) (*evidence.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok {
		return nil, evidence.ErrNotFound
	}
	recordCopy := *record
	return &recordCopy, nil
}

// Query retrieves records matching the query filters.
func (s *MemoryStorage) Query(ctx context.Context, query *evidence.Query) ([]*evidence.Record, error) {
	s.mu.RLock()
	results := []*evidence.Record{}
	for _, record := range s.records {
		if matchesQuery(record, query) {
			recordCopy := *record
			results = append(results, &recordCopy)
		}
	}
	s.mu.RUnlock()

	sortRecords(results, query.SortBy, strings.EqualFold(query.SortOrder, "asc"))

	start := query.Offset
	if start > len(results) {
		return []*evidence.Record{}, nil
	}
	limit := 100
	if query.Limit > 0 {
		limit = query.Limit
	}
	end := min(start+limit, len(results))

	return results[start:end], nil
}

// Count returns the number of records matching the query filters.
func (s *MemoryStorage) Count(ctx context.Context, query *evidence.Query) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, record := range s.records {
		if matchesQuery(record, query) {
			count++
		}
	}
	return count, nil
}

// Delete removes records matching the query filters.
func (s *MemoryStorage) Delete(ctx context.Context, query *evidence.Query) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, record := range s.records {
		if matchesQuery(record, query) {
			delete(s.records, id)
			deleted++
		}
	}
	return deleted, nil
}

// Close releases resources held by the storage backend.
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[string]*evidence.Record)
	return nil
}

// Size returns the number of records in storage.
func (s *MemoryStorage) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.records)
}

// matchesQuery checks if a record matches the query filters.
func matchesQuery(record *evidence.Record, query *evidence.Query) bool {
	if query.StartTime != nil && record.EvaluatedAt.Before(*query.StartTime) {
		return false
	}
	if query.EndTime != nil && record.EvaluatedAt.After(*query.EndTime) {
		return false
	}

	equals := []struct {
		want, got string
	}{
		{query.EvaluationID, record.EvaluationID},
		{query.RequestID, record.RequestID},
		{query.SessionID, record.SessionID},
		{query.TenantID, record.TenantID},
		{query.FinalAction, record.FinalAction},
		{query.PrimaryDomain, record.PrimaryDomain},
		{query.InputHash, record.InputHash},
	}
	for _, eq := range equals {
		if eq.want != "" && eq.want != eq.got {
			return false
		}
	}

	if query.Domain != "" && !slices.Contains(record.DetectedDomains, query.Domain) {
		return false
	}
	if query.RuleID != "" && !slices.Contains(record.TriggeredRules, query.RuleID) {
		return false
	}
	if query.RuleVersion != nil && record.RuleVersion != *query.RuleVersion {
		return false
	}
	if query.AutonomyDenied != nil && record.AutonomyDenied != *query.AutonomyDenied {
		return false
	}

	return true
}

// sortRecords orders records the way the SQLite backend does: by the sort
// field, then by ID.
func sortRecords(records []*evidence.Record, sortBy string, asc bool) {
	less := func(a, b *evidence.Record) int {
		switch sortBy {
		case "recorded_at":
			return a.RecordedAt.Compare(b.RecordedAt)
		case "rule_version":
			return cmpOrdered(a.RuleVersion, b.RuleVersion)
		case "duration":
			return cmpOrdered(a.Duration, b.Duration)
		default:
			return a.EvaluatedAt.Compare(b.EvaluatedAt)
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		c := less(records[i], records[j])
		if c == 0 {
			c = strings.Compare(records[i].ID, records[j].ID)
		}
		if asc {
			return c < 0
		}
		return c > 0
	})
}

func cmpOrdered[T ~int64 | ~uint64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
