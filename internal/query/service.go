// Package query wraps the catalog store's operations as cacheable read
// units and uncached write units, the contract the dashboard handlers
// consume. Read results stay fresh for a configurable window and duplicate
// in-flight reads share one execution; every successful write invalidates
// the whole products family plus the categories unit so the next read
// recomputes from the mutated store.
package query

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"CatalogDash/internal/catalog"
)

const (
	defaultProductsTTL = 5 * time.Minute

	productsKeyPrefix = "products|"
	categoriesKey     = "categories"
)

// Catalog is the store contract the service orchestrates.
type Catalog interface {
	Ensure(ctx context.Context) error
	Query(f catalog.Filter) catalog.Page
	Categories() []string
	Create(ctx context.Context, d catalog.Draft) catalog.Product
	Update(ctx context.Context, id int, d catalog.Draft) (catalog.Product, error)
	Delete(ctx context.Context, id int) error
	Reset()
}

type DeleteResult struct {
	ID      int  `json:"id"`
	Deleted bool `json:"deleted"`
}

type Config struct {
	// ProductsTTL bounds how long a cached product page stays fresh.
	// Zero means the 5 minute default. Categories never go stale.
	ProductsTTL time.Duration

	// Registry receives the cache counters when non-nil.
	Registry *prometheus.Registry
}

type Service struct {
	catalog Catalog
	log     *zap.Logger
	metrics *cacheMetrics

	productsTTL time.Duration
	now         func() time.Time

	flights singleflight.Group

	mu      sync.Mutex
	entries map[string]entry
	gen     uint64 // bumped by invalidate; flights spanning a bump cache nothing
}

type entry struct {
	val     any
	expires time.Time // zero = never stale
}

func NewService(c Catalog, log *zap.Logger, cfg Config) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	ttl := cfg.ProductsTTL
	if ttl <= 0 {
		ttl = defaultProductsTTL
	}
	return &Service{
		catalog:     c,
		log:         log,
		metrics:     newCacheMetrics(cfg.Registry),
		productsTTL: ttl,
		now:         time.Now,
		entries:     make(map[string]entry),
	}
}

// ListProducts is a cached read unit keyed by the exact filter tuple.
func (s *Service) ListProducts(ctx context.Context, f catalog.Filter) (catalog.Page, error) {
	key := productsKey(f)

	v, err := s.read(ctx, key, s.productsTTL, func(ctx context.Context) (any, error) {
		if err := s.catalog.Ensure(ctx); err != nil {
			return nil, err
		}
		return s.catalog.Query(f), nil
	})
	if err != nil {
		return catalog.Page{}, err
	}
	return v.(catalog.Page), nil
}

// ListCategories is a cached read unit that never goes stale on its own;
// only write invalidation refreshes it.
func (s *Service) ListCategories(ctx context.Context) ([]string, error) {
	v, err := s.read(ctx, categoriesKey, 0, func(ctx context.Context) (any, error) {
		if err := s.catalog.Ensure(ctx); err != nil {
			return nil, err
		}
		return s.catalog.Categories(), nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

func (s *Service) CreateProduct(ctx context.Context, d catalog.Draft) (catalog.Product, error) {
	op := uuid.NewString()
	p := s.catalog.Create(ctx, d)
	s.invalidate()
	s.log.Info("product created",
		zap.String("op_id", op),
		zap.Int("id", p.ID),
		zap.String("category", p.Category),
	)
	return p, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id int, d catalog.Draft) (catalog.Product, error) {
	op := uuid.NewString()
	p, err := s.catalog.Update(ctx, id, d)
	if err != nil {
		return catalog.Product{}, err
	}
	s.invalidate()
	s.log.Info("product updated", zap.String("op_id", op), zap.Int("id", id))
	return p, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id int) (DeleteResult, error) {
	op := uuid.NewString()
	if err := s.catalog.Delete(ctx, id); err != nil {
		return DeleteResult{}, err
	}
	s.invalidate()
	s.log.Info("product deleted", zap.String("op_id", op), zap.Int("id", id))
	return DeleteResult{ID: id, Deleted: true}, nil
}

// Reset clears the store and every cached read. Test and demo harness use.
func (s *Service) Reset(ctx context.Context) {
	s.catalog.Reset()
	s.invalidate()
	s.log.Info("store reset")
}

// read returns a fresh cached value for key or executes fetch, sharing one
// execution among concurrent callers of the same key. Failed fetches cache
// nothing.
func (s *Service) read(ctx context.Context, key string, ttl time.Duration, fetch func(context.Context) (any, error)) (any, error) {
	if v, ok := s.cached(key); ok {
		s.metrics.hit(key)
		return v, nil
	}

	v, err, _ := s.flights.Do(key, func() (any, error) {
		if v, ok := s.cached(key); ok {
			s.metrics.hit(key)
			return v, nil
		}
		s.metrics.miss(key)

		s.mu.Lock()
		startGen := s.gen
		s.mu.Unlock()

		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}

		e := entry{val: v}
		if ttl > 0 {
			e.expires = s.now().Add(ttl)
		}

		// A write that completed mid-flight has already invalidated this
		// key; caching the flight's pre-write snapshot would resurrect it.
		// The caller still gets the snapshot, the cache does not.
		s.mu.Lock()
		if s.gen == startGen {
			s.entries[key] = e
		}
		s.mu.Unlock()
		return v, nil
	})
	return v, err
}

func (s *Service) cached(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if !e.expires.IsZero() && s.now().After(e.expires) {
		delete(s.entries, key)
		return nil, false
	}
	return e.val, true
}

func (s *Service) invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.entries {
		if strings.HasPrefix(key, productsKeyPrefix) || key == categoriesKey {
			delete(s.entries, key)
		}
	}
	s.gen++
	s.metrics.invalidation()
}

func productsKey(f catalog.Filter) string {
	return fmt.Sprintf("%ssearch=%s|category=%s|skip=%d|limit=%d",
		productsKeyPrefix, strings.ToLower(f.Search), strings.ToLower(f.Category), f.Skip, f.Limit)
}
