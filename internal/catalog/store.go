package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"CatalogDash/internal/remote"
)

const (
	seedLimit    = 100
	defaultLimit = 10
)

var ErrNotFound = errors.New("product not found")

// Remote is the subset of the remote client the store calls. Create, Update
// and Delete attempts through it are best-effort: their failures are logged
// and swallowed, never propagated.
type Remote interface {
	List(ctx context.Context, q remote.ListQuery) (remote.ListResult, error)
	Create(ctx context.Context, body remote.CreateBody) (remote.Product, error)
	Update(ctx context.Context, id int, body remote.UpdateBody) (remote.Product, error)
	Delete(ctx context.Context, id int) (remote.Product, error)
}

type Filter struct {
	Search   string
	Category string
	Skip     int
	Limit    int
}

type Page struct {
	Products []Product `json:"products"`
	Total    int       `json:"total"`
	Skip     int       `json:"skip"`
	Limit    int       `json:"limit"`
}

// Store holds the product collection, the derived category set and the id
// counter for one process. The local collection is the source of truth the
// dashboard renders from; the remote service only seeds it and receives
// best-effort write-throughs.
type Store struct {
	remote Remote
	log    *zap.Logger

	seed singleflight.Group

	mu         sync.RWMutex
	products   []Product
	categories []string
	nextID     int
}

func NewStore(r Remote, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		remote: r,
		log:    log,
		nextID: customIDStart,
	}
}

// Ensure lazily seeds the store from the remote listing. Concurrent callers
// share one in-flight fetch; a failed fetch leaves the store empty and is
// retried by the next caller. The fetch runs with the context of whichever
// caller started the flight.
func (s *Store) Ensure(ctx context.Context) error {
	if s.populated() {
		return nil
	}

	_, err, _ := s.seed.Do("seed", func() (any, error) {
		if s.populated() {
			return nil, nil
		}

		res, err := s.remote.List(ctx, remote.ListQuery{Limit: seedLimit})
		if err != nil {
			return nil, fmt.Errorf("seed fetch: %w", err)
		}

		adopted := make([]Product, 0, len(res.Products))
		for _, rp := range res.Products {
			adopted = append(adopted, fromRemote(rp))
		}

		s.mu.Lock()
		s.products = adopted
		s.categories = distinctCategories(adopted)
		s.mu.Unlock()

		s.log.Info("store seeded", zap.Int("products", len(adopted)))
		return nil, nil
	})
	return err
}

func (s *Store) populated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.products) > 0
}

// Query filters the collection by search term (case-insensitive substring on
// title or category) and category (equality, "all" or empty meaning no
// filter), preserving collection order, then applies the skip/limit window.
// Total is the size of the filtered set, not of the page.
func (s *Store) Query(f Filter) Page {
	if f.Limit <= 0 {
		f.Limit = defaultLimit
	}
	if f.Skip < 0 {
		f.Skip = 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	filtered := make([]Product, 0, len(s.products))
	for _, p := range s.products {
		if matches(p, f) {
			filtered = append(filtered, p)
		}
	}

	start := f.Skip
	if start > len(filtered) {
		start = len(filtered)
	}
	// Computed this way round so a huge limit cannot overflow start+limit.
	end := len(filtered)
	if f.Limit < end-start {
		end = start + f.Limit
	}

	page := make([]Product, end-start)
	copy(page, filtered[start:end])

	return Page{Products: page, Total: len(filtered), Skip: f.Skip, Limit: f.Limit}
}

func matches(p Product, f Filter) bool {
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(p.Title), q) &&
			!strings.Contains(strings.ToLower(p.Category), q) {
			return false
		}
	}
	if f.Category != "" && f.Category != "all" {
		if !strings.EqualFold(p.Category, f.Category) {
			return false
		}
	}
	return true
}

// Categories returns the derived category set, sorted ascending. The set
// only grows: deleting the last product of a category does not remove it,
// so an active dashboard filter never loses its option mid-session.
func (s *Store) Categories() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.categories))
	copy(out, s.categories)
	return out
}

// Create fabricates a local product from the draft: fresh id, defaulted
// secondary fields, isNew/isCustom flags, prepended so it sorts first in
// unfiltered views. The remote create is attempted first but its outcome
// never affects the local result.
func (s *Store) Create(ctx context.Context, d Draft) Product {
	if _, err := s.remote.Create(ctx, remote.CreateBody{
		Title:       d.Title,
		Price:       d.Price,
		Category:    d.Category,
		Stock:       d.Stock,
		Description: withDefault(d.Description, defaultDescription),
		Brand:       withDefault(d.Brand, defaultBrand),
		Thumbnail:   withDefault(d.Thumbnail, defaultThumbnail),
	}); err != nil {
		s.log.Warn("remote create failed, keeping local", zap.Error(err), zap.String("title", d.Title))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := Product{
		ID:          s.nextID,
		Title:       d.Title,
		Price:       d.Price,
		Category:    d.Category,
		Stock:       d.Stock,
		Description: withDefault(d.Description, defaultDescription),
		Brand:       withDefault(d.Brand, defaultBrand),
		Thumbnail:   withDefault(d.Thumbnail, defaultThumbnail),
		Rating:      defaultRating,
		IsNew:       true,
		IsCustom:    true,
		Origin:      OriginLocal,
	}
	s.nextID++

	s.products = append([]Product{p}, s.products...)
	s.extendCategoriesLocked(p.Category)
	return p
}

// Update merges the draft's mutable fields into the stored record and marks
// it updated. Seeded records get a best-effort remote write-through first;
// local records were never confirmed remotely, so none is attempted.
func (s *Store) Update(ctx context.Context, id int, d Draft) (Product, error) {
	origin, ok := s.originOf(id)
	if !ok {
		return Product{}, fmt.Errorf("update id=%d: %w", id, ErrNotFound)
	}

	if origin == OriginSeeded {
		if _, err := s.remote.Update(ctx, id, remote.UpdateBody{
			Title:    d.Title,
			Price:    d.Price,
			Category: d.Category,
			Stock:    d.Stock,
		}); err != nil {
			s.log.Warn("remote update failed, keeping local", zap.Error(err), zap.Int("id", id))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return Product{}, fmt.Errorf("update id=%d: %w", id, ErrNotFound)
	}

	p := &s.products[idx]
	p.Title = d.Title
	p.Price = d.Price
	p.Category = d.Category
	p.Stock = d.Stock
	p.IsUpdated = true

	s.extendCategoriesLocked(p.Category)
	return *p, nil
}

// Delete removes the record. The category set is left untouched even when
// the last product of a category goes away.
func (s *Store) Delete(ctx context.Context, id int) error {
	origin, ok := s.originOf(id)
	if !ok {
		return fmt.Errorf("delete id=%d: %w", id, ErrNotFound)
	}

	if origin == OriginSeeded {
		if _, err := s.remote.Delete(ctx, id); err != nil {
			s.log.Warn("remote delete failed, keeping local", zap.Error(err), zap.Int("id", id))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return fmt.Errorf("delete id=%d: %w", id, ErrNotFound)
	}
	s.products = append(s.products[:idx], s.products[idx+1:]...)
	return nil
}

// Reset clears the collection, the category set and the id counter back to
// their initial state. Test and demo harness use only.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.products = nil
	s.categories = nil
	s.nextID = customIDStart
}

func (s *Store) originOf(id int) (Origin, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return "", false
	}
	return s.products[idx].Origin, true
}

func (s *Store) indexLocked(id int) int {
	for i, p := range s.products {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) extendCategoriesLocked(category string) {
	for _, c := range s.categories {
		if c == category {
			return
		}
	}
	s.categories = append(s.categories, category)
	sort.Strings(s.categories)
}

func distinctCategories(products []Product) []string {
	seen := make(map[string]struct{}, len(products))
	out := make([]string, 0, len(products))
	for _, p := range products {
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		out = append(out, p.Category)
	}
	sort.Strings(out)
	return out
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
