package media

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// AssetRecordStore persists media records.
type AssetRecordStore interface {
	Create(ctx context.Context, rec *Record) error
	// Get returns ErrRecordNotFound when no record has the key.
	Get(ctx context.Context, collection, row string) (*Record, error)
	Update(ctx context.Context, rec *Record) error
	Delete(ctx context.Context, collection, row string) (bool, error)
	// ListInProgress returns records whose status is not finished, newest first.
	ListInProgress(ctx context.Context, limit int) ([]*Record, error)
	// List returns a page of records matching params, newest first, and the
	// number of records matching the search.
	List(ctx context.Context, params ListParams) ([]*Record, int, error)
}

// ListParams filters and pages List results.
type ListParams struct {
	// Search matches title, encoding, protection and status, case insensitive.
	Search string
	Offset int
	// Limit of 0 or less returns every match.
	Limit int
}

// Matches reports whether rec satisfies the search term.
func (p ListParams) Matches(rec *Record) bool {
	term := strings.ToLower(strings.TrimSpace(p.Search))
	if term == "" {
		return true
	}
	for _, field := range []string{rec.Collection, rec.Encoding, rec.Protection, rec.Status} {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

// MemoryStore is an AssetRecordStore held in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[RecordKey]*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[RecordKey]*Record)}
}

func (s *MemoryStore) Create(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rec.Key()
	if _, ok := s.records[key]; ok {
		return fmt.Errorf("media record %s already exists", key)
	}
	s.records[key] = rec.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, collection, row string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[RecordKey{Collection: collection, Row: row}]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rec.Key()
	if _, ok := s.records[key]; !ok {
		return ErrRecordNotFound
	}
	s.records[key] = rec.Clone()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, collection, row string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := RecordKey{Collection: collection, Row: row}
	if _, ok := s.records[key]; !ok {
		return false, nil
	}
	delete(s.records, key)
	return true, nil
}

func (s *MemoryStore) ListInProgress(_ context.Context, limit int) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Record, 0)
	for _, rec := range s.sortedLocked() {
		if !rec.InProgress() {
			continue
		}
		out = append(out, rec.Clone())
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) List(_ context.Context, params ListParams) ([]*Record, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*Record, 0)
	for _, rec := range s.sortedLocked() {
		if params.Matches(rec) {
			matched = append(matched, rec)
		}
	}

	total := len(matched)
	start := min(max(params.Offset, 0), total)
	end := total
	if params.Limit > 0 {
		end = min(start+params.Limit, total)
	}

	page := make([]*Record, 0, end-start)
	for _, rec := range matched[start:end] {
		page = append(page, rec.Clone())
	}
	return page, total, nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *MemoryStore) sortedLocked() []*Record {
	all := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		all = append(all, rec)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].Row < all[j].Row
	})
	return all
}
