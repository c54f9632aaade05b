// Package memory реализует docstore.Store в памяти процесса. Используется
// как тестовый двойник удалённых хранилищ.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/magabrotheeeer/subscription-core/internal/docstore"
)

// Store коллекции документов в виде map коллекций -> map документов.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]docstore.Fields
}

var _ docstore.Store = (*Store)(nil)

// New создаёт пустое хранилище.
func New() *Store {
	return &Store{collections: make(map[string]map[string]docstore.Fields)}
}

// Get возвращает копию документа.
func (s *Store) Get(_ context.Context, collection, id string) (docstore.Fields, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, false, nil
	}
	return doc.Clone(), true, nil
}

// Set записывает документ целиком или сливает поля при merge.
func (s *Store) Set(_ context.Context, collection, id string, fields docstore.Fields, merge bool) error {
	const op = "memory.Set"
	norm, err := docstore.Normalize(fields)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	coll := s.collection(collection)
	if existing, ok := coll[id]; ok && merge {
		existing.Merge(norm)
		return nil
	}
	coll[id] = norm
	return nil
}

// Update сливает поля с существующим документом.
func (s *Store) Update(_ context.Context, collection, id string, fields docstore.Fields) error {
	const op = "memory.Update"
	norm, err := docstore.Normalize(fields)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.collections[collection][id]
	if !ok {
		return fmt.Errorf("%s: %s/%s: %w", op, collection, id, docstore.ErrNotFound)
	}
	existing.Merge(norm)
	return nil
}

// Delete удаляет документ, если он есть.
func (s *Store) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.collections[collection], id)
	return nil
}

// Query перебирает все документы коллекции без индексов.
func (s *Store) Query(_ context.Context, collection, field string, op docstore.Operator, value any, limit int) ([]docstore.Document, error) {
	const opName = "memory.Query"
	if _, err := docstore.ParseOperator(string(op)); err != nil {
		return nil, fmt.Errorf("%s: %w", opName, err)
	}
	norm, err := docstore.NormalizeValue(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opName, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	coll := s.collections[collection]
	ids := make([]string, 0, len(coll))
	for id := range coll {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var result []docstore.Document
	for _, id := range ids {
		if !docstore.Match(coll[id], field, op, norm) {
			continue
		}
		result = append(result, docstore.Document{ID: id, Fields: coll[id].Clone()})
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

// Clear удаляет все коллекции.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections = make(map[string]map[string]docstore.Fields)
}

func (s *Store) collection(name string) map[string]docstore.Fields {
	coll, ok := s.collections[name]
	if !ok {
		coll = make(map[string]docstore.Fields)
		s.collections[name] = coll
	}
	return coll
}
