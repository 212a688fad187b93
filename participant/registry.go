package participant

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/absmach/cohort/pkg/errors"
)

// Record identifies a participant and the dataset partition it owns.
type Record struct {
	ID        string            `json:"id"`
	Partition int               `json:"partition"`
	Labels    map[string]string `json:"labels,omitempty"`
}

// Registry lists the participants known to the coordinator. The coordinator
// reads it once per round and never modifies it.
type Registry interface {
	List(ctx context.Context) ([]Record, error)
}

// MemoryRegistry is a mutable in-memory Registry.
type MemoryRegistry struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryRegistry returns a registry seeded with records.
func NewMemoryRegistry(records ...Record) (*MemoryRegistry, error) {
	r := &MemoryRegistry{records: make(map[string]Record, len(records))}
	for _, rec := range records {
		if err := r.Register(rec); err != nil {
			return nil, err
		}
	}

	return r, nil
}

func (r *MemoryRegistry) Register(rec Record) error {
	if rec.ID == "" {
		return errors.ErrEmptyKey
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[rec.ID]; ok {
		return errors.ErrEntityExists
	}
	r.records[rec.ID] = rec

	return nil
}

func (r *MemoryRegistry) Deregister(id string) error {
	if id == "" {
		return errors.ErrEmptyKey
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[id]; !ok {
		return errors.ErrNotFound
	}
	delete(r.records, id)

	return nil
}

// List returns the records ordered by ID.
func (r *MemoryRegistry) List(_ context.Context) ([]Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b Record) int {
		return strings.Compare(a.ID, b.ID)
	})

	return out, nil
}

func IDs(records []Record) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}

	return ids
}
