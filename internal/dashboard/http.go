package dashboard

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"CatalogDash/internal/catalog"
	"CatalogDash/internal/query"
	"CatalogDash/pkg/kit"
)

const maxDraftBody = 1 << 20

// Server exposes the query service to the dashboard UI. This boundary owns
// input validation: the store below fabricates records from whatever it is
// given, so malformed drafts must be rejected here.
type Server struct {
	Query *query.Service
	Log   *zap.Logger
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	r.Get("/products", s.listProducts)
	r.Post("/products", s.createProduct)
	r.Put("/products/{id}", s.updateProduct)
	r.Delete("/products/{id}", s.deleteProduct)
	r.Get("/categories", s.listCategories)
	r.Post("/reset", s.reset)

	return r
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := catalog.Filter{
		Search:   q.Get("search"),
		Category: q.Get("category"),
		Skip:     intParam(q.Get("skip"), 0),
		Limit:    intParam(q.Get("limit"), 10),
	}

	page, err := s.Query.ListProducts(r.Context(), f)
	if err != nil {
		s.Log.Error("list products failed", zap.Error(err))
		kit.WriteError(w, r, http.StatusBadGateway, "catalog unavailable, retry", nil)
		return
	}
	kit.WriteJSON(w, http.StatusOK, page)
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.Query.ListCategories(r.Context())
	if err != nil {
		s.Log.Error("list categories failed", zap.Error(err))
		kit.WriteError(w, r, http.StatusBadGateway, "catalog unavailable, retry", nil)
		return
	}
	kit.WriteJSON(w, http.StatusOK, cats)
}

func (s *Server) createProduct(w http.ResponseWriter, r *http.Request) {
	d, err := decodeDraft(w, r)
	if err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", nil)
		return
	}
	if details := validateDraft(d); details != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "invalid product", details)
		return
	}

	p, err := s.Query.CreateProduct(r.Context(), d)
	if err != nil {
		s.Log.Error("create product failed", zap.Error(err))
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
		return
	}
	kit.WriteJSON(w, http.StatusCreated, p)
}

func (s *Server) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad id", nil)
		return
	}

	d, err := decodeDraft(w, r)
	if err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", nil)
		return
	}
	if details := validateDraft(d); details != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "invalid product", details)
		return
	}

	p, err := s.Query.UpdateProduct(r.Context(), id, d)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			kit.WriteError(w, r, http.StatusNotFound, "not found", map[string]any{"id": id})
			return
		}
		s.Log.Error("update product failed", zap.Error(err), zap.Int("id", id))
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
		return
	}
	kit.WriteJSON(w, http.StatusOK, p)
}

func (s *Server) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad id", nil)
		return
	}

	res, err := s.Query.DeleteProduct(r.Context(), id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			kit.WriteError(w, r, http.StatusNotFound, "not found", map[string]any{"id": id})
			return
		}
		s.Log.Error("delete product failed", zap.Error(err), zap.Int("id", id))
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
		return
	}
	kit.WriteJSON(w, http.StatusOK, res)
}

func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	s.Query.Reset(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func decodeDraft(w http.ResponseWriter, r *http.Request) (catalog.Draft, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxDraftBody)
	defer func() { _, _ = io.Copy(io.Discard, r.Body) }()

	var d catalog.Draft
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&d); err != nil {
		return catalog.Draft{}, err
	}
	return d, nil
}

func validateDraft(d catalog.Draft) map[string]any {
	problems := map[string]any{}
	if d.Title == "" {
		problems["title"] = "required"
	}
	if d.Price <= 0 {
		problems["price"] = "must be positive"
	}
	if d.Category == "" {
		problems["category"] = "required"
	}
	if d.Stock < 0 {
		problems["stock"] = "must not be negative"
	}
	if len(problems) == 0 {
		return nil
	}
	return problems
}

func intParam(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
