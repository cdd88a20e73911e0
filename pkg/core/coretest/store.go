// Package coretest provides in-memory doubles of the host for integration
// tests.
package coretest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gaetancollaud/integrations-mqtt/pkg/core"
)

// MemoryStore is an in-memory core.EntryStore.
type MemoryStore struct {
	mu      sync.Mutex
	order   []string
	entries map[string]*core.ConfigEntry
}

func NewMemoryStore(entries ...*core.ConfigEntry) *MemoryStore {
	s := &MemoryStore{entries: map[string]*core.ConfigEntry{}}
	for _, entry := range entries {
		_ = s.Add(context.Background(), entry)
	}
	return s
}

func (s *MemoryStore) List(_ context.Context) ([]*core.ConfigEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]*core.ConfigEntry, 0, len(s.order))
	for _, id := range s.order {
		entries = append(entries, s.entries[id].Clone())
	}
	return entries, nil
}

func (s *MemoryStore) ListByDomain(ctx context.Context, domain string) ([]*core.ConfigEntry, error) {
	all, _ := s.List(ctx)
	entries := []*core.ConfigEntry{}
	for _, entry := range all {
		if entry.Domain == domain {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (s *MemoryStore) Get(_ context.Context, entryId string) (*core.ConfigEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[entryId]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownEntry, entryId)
	}
	return entry.Clone(), nil
}

func (s *MemoryStore) Add(_ context.Context, entry *core.ConfigEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[entry.EntryId]; ok {
		return fmt.Errorf("entry %s already exists", entry.EntryId)
	}
	s.order = append(s.order, entry.EntryId)
	s.entries[entry.EntryId] = entry.Clone()
	return nil
}

func (s *MemoryStore) Update(_ context.Context, entry *core.ConfigEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[entry.EntryId]; !ok {
		return fmt.Errorf("%w: %s", core.ErrUnknownEntry, entry.EntryId)
	}
	updated := entry.Clone()
	updated.UpdatedAt = time.Now().UTC()
	s.entries[entry.EntryId] = updated
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, entryId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[entryId]; !ok {
		return fmt.Errorf("%w: %s", core.ErrUnknownEntry, entryId)
	}
	delete(s.entries, entryId)
	for i, id := range s.order {
		if id == entryId {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

var _ core.EntryStore = (*MemoryStore)(nil)
