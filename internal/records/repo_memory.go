package records

import (
	"context"
	"sync"
	"time"

	"loan-intake/internal/documents"
	"loan-intake/internal/extraction"
)

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID map[documents.Family]int64
	rows   map[documents.Family][]Row
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID: make(map[documents.Family]int64),
		rows:   make(map[documents.Family][]Row),
	}
}

// Insert implements Store.
func (m *MemoryStore) Insert(ctx context.Context, family documents.Family, fields []extraction.Entry) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := checkFamily(family); err != nil {
		return 0, err
	}
	cols, err := extraction.FamilyFields(family)
	if err != nil {
		return 0, err
	}
	known := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		known[c.Name] = struct{}{}
	}
	for _, f := range fields {
		if _, ok := known[f.Name]; !ok {
			return 0, &PersistenceError{Table: string(family), Column: f.Name, Err: ErrMissingColumn}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID[family]++
	id := m.nextID[family]
	m.rows[family] = append(m.rows[family], Row{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		Fields:    append([]extraction.Entry(nil), fields...),
	})
	return id, nil
}

// List implements Store.
func (m *MemoryStore) List(ctx context.Context, family documents.Family, limit, offset int) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkFamily(family); err != nil {
		return nil, err
	}
	limit, offset, ok := page(limit, offset)
	if !ok {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := m.rows[family]
	var out []Row
	for i := len(rows) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, rows[i])
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
