package scheduler

import (
	"math/rand/v2"
	"slices"
	"sync"
)

type random struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandom returns a selector drawing uniformly without replacement from a
// PCG source seeded with seed, so runs with equal seeds select identically.
func NewRandom(seed uint64) Selector {
	return &random{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// NewUnseeded returns a random selector seeded from the runtime source.
func NewUnseeded() Selector {
	return &random{rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

func (r *random) Select(available []string, req Request) ([]string, error) {
	if err := Check(len(available), req); err != nil {
		return nil, err
	}

	k := Target(len(available), req.Fraction, req.MinRequired)
	if k == 0 {
		return []string{}, nil
	}

	pool := slices.Clone(available)
	slices.Sort(pool)

	r.mu.Lock()
	for i := range k {
		j := i + r.rng.IntN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	r.mu.Unlock()

	selected := pool[:k]
	slices.Sort(selected)

	return selected, nil
}
