package query

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"CatalogDash/internal/catalog"
)

type fakeCatalog struct {
	ensureErr  error
	ensureWait time.Duration

	updateErr error
	deleteErr error

	// queryStarted gets a signal once a Query has snapshotted its result;
	// queryGate then blocks the return until closed. Lets tests hold a
	// read in flight across a write.
	queryStarted chan struct{}
	queryGate    chan struct{}

	ensureCalls     atomic.Int64
	queryCalls      atomic.Int64
	categoriesCalls atomic.Int64
	createCalls     atomic.Int64
	resetCalls      atomic.Int64
}

func (f *fakeCatalog) Ensure(ctx context.Context) error {
	f.ensureCalls.Add(1)
	if f.ensureWait > 0 {
		time.Sleep(f.ensureWait)
	}
	return f.ensureErr
}

func (f *fakeCatalog) Query(q catalog.Filter) catalog.Page {
	f.queryCalls.Add(1)
	total := 1 + int(f.createCalls.Load())
	if f.queryStarted != nil {
		select {
		case f.queryStarted <- struct{}{}:
		default:
		}
	}
	if f.queryGate != nil {
		<-f.queryGate
	}
	return catalog.Page{
		Products: []catalog.Product{{ID: 1, Title: "Alpha", Category: "A"}},
		Total:    total, Skip: q.Skip, Limit: q.Limit,
	}
}

func (f *fakeCatalog) Categories() []string {
	f.categoriesCalls.Add(1)
	return []string{"A"}
}

func (f *fakeCatalog) Create(ctx context.Context, d catalog.Draft) catalog.Product {
	f.createCalls.Add(1)
	return catalog.Product{ID: 1000, Title: d.Title, Category: d.Category, IsNew: true, IsCustom: true}
}

func (f *fakeCatalog) Update(ctx context.Context, id int, d catalog.Draft) (catalog.Product, error) {
	if f.updateErr != nil {
		return catalog.Product{}, f.updateErr
	}
	return catalog.Product{ID: id, Title: d.Title, IsUpdated: true}, nil
}

func (f *fakeCatalog) Delete(ctx context.Context, id int) error { return f.deleteErr }

func (f *fakeCatalog) Reset() { f.resetCalls.Add(1) }

func newTestService(f *fakeCatalog) *Service {
	return NewService(f, nil, Config{})
}

func TestListProductsCachesPerFilter(t *testing.T) {
	f := &fakeCatalog{}
	s := newTestService(f)

	for i := 0; i < 3; i++ {
		if _, err := s.ListProducts(context.Background(), catalog.Filter{Limit: 10}); err != nil {
			t.Fatalf("ListProducts: %v", err)
		}
	}
	if got := f.queryCalls.Load(); got != 1 {
		t.Fatalf("query calls = %d, want 1", got)
	}

	// A different parameter tuple is a different read unit.
	if _, err := s.ListProducts(context.Background(), catalog.Filter{Search: "x", Limit: 10}); err != nil {
		t.Fatalf("ListProducts: %v", err)
	}
	if got := f.queryCalls.Load(); got != 2 {
		t.Fatalf("query calls = %d, want 2", got)
	}
}

func TestWriteInvalidatesProductsAndCategories(t *testing.T) {
	f := &fakeCatalog{}
	s := newTestService(f)
	ctx := context.Background()

	if _, err := s.ListProducts(ctx, catalog.Filter{Limit: 10}); err != nil {
		t.Fatalf("ListProducts: %v", err)
	}
	if _, err := s.ListCategories(ctx); err != nil {
		t.Fatalf("ListCategories: %v", err)
	}

	if _, err := s.CreateProduct(ctx, catalog.Draft{Title: "X", Category: "C"}); err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	if _, err := s.ListProducts(ctx, catalog.Filter{Limit: 10}); err != nil {
		t.Fatalf("ListProducts: %v", err)
	}
	if _, err := s.ListCategories(ctx); err != nil {
		t.Fatalf("ListCategories: %v", err)
	}

	if got := f.queryCalls.Load(); got != 2 {
		t.Fatalf("query calls = %d, want 2 (recompute after write)", got)
	}
	if got := f.categoriesCalls.Load(); got != 2 {
		t.Fatalf("categories calls = %d, want 2 (recompute after write)", got)
	}
}

func TestFailedWriteKeepsCache(t *testing.T) {
	f := &fakeCatalog{updateErr: catalog.ErrNotFound, deleteErr: catalog.ErrNotFound}
	s := newTestService(f)
	ctx := context.Background()

	if _, err := s.ListProducts(ctx, catalog.Filter{Limit: 10}); err != nil {
		t.Fatalf("ListProducts: %v", err)
	}

	if _, err := s.UpdateProduct(ctx, 9999, catalog.Draft{}); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := s.DeleteProduct(ctx, 9999); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	if _, err := s.ListProducts(ctx, catalog.Filter{Limit: 10}); err != nil {
		t.Fatalf("ListProducts: %v", err)
	}
	if got := f.queryCalls.Load(); got != 1 {
		t.Fatalf("query calls = %d, want 1 (failed writes must not invalidate)", got)
	}
}

func TestProductsGoStaleAfterTTL(t *testing.T) {
	f := &fakeCatalog{}
	s := newTestService(f)

	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	ctx := context.Background()
	if _, err := s.ListProducts(ctx, catalog.Filter{Limit: 10}); err != nil {
		t.Fatalf("ListProducts: %v", err)
	}

	clock = clock.Add(4 * time.Minute)
	if _, err := s.ListProducts(ctx, catalog.Filter{Limit: 10}); err != nil {
		t.Fatalf("ListProducts: %v", err)
	}
	if got := f.queryCalls.Load(); got != 1 {
		t.Fatalf("query calls = %d, want 1 while fresh", got)
	}

	clock = clock.Add(2 * time.Minute)
	if _, err := s.ListProducts(ctx, catalog.Filter{Limit: 10}); err != nil {
		t.Fatalf("ListProducts: %v", err)
	}
	if got := f.queryCalls.Load(); got != 2 {
		t.Fatalf("query calls = %d, want 2 after expiry", got)
	}
}

func TestCategoriesNeverGoStale(t *testing.T) {
	f := &fakeCatalog{}
	s := newTestService(f)

	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	ctx := context.Background()
	if _, err := s.ListCategories(ctx); err != nil {
		t.Fatalf("ListCategories: %v", err)
	}

	clock = clock.Add(24 * time.Hour)
	if _, err := s.ListCategories(ctx); err != nil {
		t.Fatalf("ListCategories: %v", err)
	}
	if got := f.categoriesCalls.Load(); got != 1 {
		t.Fatalf("categories calls = %d, want 1", got)
	}
}

func TestSeedFailurePropagatesAndCachesNothing(t *testing.T) {
	f := &fakeCatalog{ensureErr: errors.New("remote down")}
	s := newTestService(f)
	ctx := context.Background()

	if _, err := s.ListProducts(ctx, catalog.Filter{Limit: 10}); err == nil {
		t.Fatal("want error from failed seed")
	}

	f.ensureErr = nil
	page, err := s.ListProducts(ctx, catalog.Filter{Limit: 10})
	if err != nil {
		t.Fatalf("ListProducts after recovery: %v", err)
	}
	if page.Total != 1 {
		t.Fatalf("total = %d, want 1", page.Total)
	}
}

func TestConcurrentReadsOfOneKeyShareExecution(t *testing.T) {
	f := &fakeCatalog{ensureWait: 20 * time.Millisecond}
	s := newTestService(f)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.ListProducts(context.Background(), catalog.Filter{Limit: 10})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}
	if got := f.queryCalls.Load(); got != 1 {
		t.Fatalf("query calls = %d, want 1 (in-flight dedup)", got)
	}
	if got := f.ensureCalls.Load(); got != 1 {
		t.Fatalf("ensure calls = %d, want 1 (in-flight dedup)", got)
	}
}

func TestInFlightReadDoesNotOutliveInvalidation(t *testing.T) {
	f := &fakeCatalog{
		queryStarted: make(chan struct{}, 1),
		queryGate:    make(chan struct{}),
	}
	s := newTestService(f)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := s.ListProducts(ctx, catalog.Filter{Limit: 10})
		done <- err
	}()

	// Let the read snapshot the pre-write state, then complete a write
	// while it is still in flight.
	<-f.queryStarted
	if _, err := s.CreateProduct(ctx, catalog.Draft{Title: "X", Category: "C"}); err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	close(f.queryGate)
	if err := <-done; err != nil {
		t.Fatalf("in-flight ListProducts: %v", err)
	}

	// The stale flight must not have repopulated the cache: the next read
	// recomputes and sees the write.
	page, err := s.ListProducts(ctx, catalog.Filter{Limit: 10})
	if err != nil {
		t.Fatalf("ListProducts: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("total = %d, want 2 (read after write must see the mutation)", page.Total)
	}
	if got := f.queryCalls.Load(); got != 2 {
		t.Fatalf("query calls = %d, want 2 (stale flight must not be cached)", got)
	}
}

func TestDeleteProductResult(t *testing.T) {
	f := &fakeCatalog{}
	s := newTestService(f)

	res, err := s.DeleteProduct(context.Background(), 7)
	if err != nil {
		t.Fatalf("DeleteProduct: %v", err)
	}
	if res.ID != 7 || !res.Deleted {
		t.Fatalf("result = %+v", res)
	}
}

func TestResetClearsStoreAndCache(t *testing.T) {
	f := &fakeCatalog{}
	s := newTestService(f)
	ctx := context.Background()

	if _, err := s.ListProducts(ctx, catalog.Filter{Limit: 10}); err != nil {
		t.Fatalf("ListProducts: %v", err)
	}

	s.Reset(ctx)

	if got := f.resetCalls.Load(); got != 1 {
		t.Fatalf("reset calls = %d, want 1", got)
	}
	if _, err := s.ListProducts(ctx, catalog.Filter{Limit: 10}); err != nil {
		t.Fatalf("ListProducts: %v", err)
	}
	if got := f.queryCalls.Load(); got != 2 {
		t.Fatalf("query calls = %d, want 2 after reset", got)
	}
}
