package scheduler

import (
	"slices"
	"sync"
)

type roundRobin struct {
	mu     sync.Mutex
	offset int
}

// NewRoundRobin returns a selector that walks the sorted registry in a
// rotating window, so every participant is used before any is reused.
func NewRoundRobin() Selector {
	return &roundRobin{}
}

func (r *roundRobin) Select(available []string, req Request) ([]string, error) {
	if err := Check(len(available), req); err != nil {
		return nil, err
	}

	k := Target(len(available), req.Fraction, req.MinRequired)
	if k == 0 {
		return []string{}, nil
	}

	ordered := slices.Clone(available)
	slices.Sort(ordered)

	r.mu.Lock()
	start := r.offset % len(ordered)
	r.offset = (start + k) % len(ordered)
	r.mu.Unlock()

	selected := make([]string, 0, k)
	for i := range k {
		selected = append(selected, ordered[(start+i)%len(ordered)])
	}
	slices.Sort(selected)

	return selected, nil
}
