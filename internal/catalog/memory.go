package catalog

import (
	"context"
	"sort"
	"sync"
)

// MemoryProvider holds test definitions in memory. Used by tests and by
// ephemeral single-process deployments.
type MemoryProvider struct {
	mu    sync.RWMutex
	tests map[int64]*Test
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{tests: make(map[int64]*Test)}
}

func (p *MemoryProvider) Put(t *Test) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tests[t.ID] = t.Clone()
}

func (p *MemoryProvider) GetTest(ctx context.Context, testID int64) (*Test, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.tests[testID]
	if !ok {
		return nil, ErrTestNotFound
	}
	return t.Clone(), nil
}

func (p *MemoryProvider) ListPublished(ctx context.Context) ([]Test, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Test, 0, len(p.tests))
	for _, t := range p.tests {
		if t.Published && t.Active {
			cp := t.Clone()
			cp.Questions = nil
			out = append(out, *cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
