package catalog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for product storage
type Repository interface {
	ListAvailable(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	Upsert(ctx context.Context, p *Product) error
}

// InMemoryRepository keeps products in a map; used in development and tests.
type InMemoryRepository struct {
	mu       sync.RWMutex
	products map[string]Product
}

// NewInMemoryRepository creates a repository seeded with products.
func NewInMemoryRepository(products ...Product) *InMemoryRepository {
	r := &InMemoryRepository{products: make(map[string]Product, len(products))}
	for _, p := range products {
		r.products[p.ID] = p
	}
	return r
}

// ListAvailable returns in-stock products ordered by id.
func (r *InMemoryRepository) ListAvailable(ctx context.Context) ([]Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Product, 0, len(r.products))
	for _, p := range r.products {
		if p.InStock {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetByID retrieves a product by id
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	return &p, nil
}

// Upsert validates and stores p, assigning an id when missing.
func (r *InMemoryRepository) Upsert(ctx context.Context, p *Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	r.products[p.ID] = *p
	r.mu.Unlock()
	return nil
}
