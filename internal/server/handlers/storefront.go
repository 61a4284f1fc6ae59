package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/retrostock/retrostock/internal/core/catalog"
	"github.com/retrostock/retrostock/internal/core/contact"
	"github.com/retrostock/retrostock/internal/core/ratelimit"
)

// Storefront serves the public catalog API.
type Storefront struct {
	catalog *catalog.Service
	contact *contact.Service
}

// NewStorefront builds the public handlers.
func NewStorefront(catalogSvc *catalog.Service, contactSvc *contact.Service) *Storefront {
	return &Storefront{catalog: catalogSvc, contact: contactSvc}
}

// Home handles GET /api/home.
func (s *Storefront) Home(w http.ResponseWriter, r *http.Request) {
	page, err := s.catalog.Home(r.Context())
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Categories handles GET /api/categories.
func (s *Storefront) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.catalog.ListCategories(r.Context())
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": nonNil(categories)})
}

// Category handles GET /api/categories/{slug}.
func (s *Storefront) Category(w http.ResponseWriter, r *http.Request) {
	page, err := s.catalog.Category(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Console handles GET /api/consoles/{slug}?sort=&page=&page_size=.
func (s *Storefront) Console(w http.ResponseWriter, r *http.Request) {
	q := newQueryParams(r)
	sortBy := q.String("sort")
	page := q.Int("page")
	size := q.Int("page_size")
	if err := q.Err(); err != nil {
		respondWithError(w, r, err)
		return
	}

	result, err := s.catalog.Console(r.Context(), chi.URLParam(r, "slug"), sortBy, page, size)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Item handles GET /api/items/{id}.
func (s *Storefront) Item(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	item, err := s.catalog.GetItem(r.Context(), id)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// Search handles GET /api/search.
func (s *Storefront) Search(w http.ResponseWriter, r *http.Request) {
	q := newQueryParams(r)
	params := catalog.SearchParams{
		Query:       q.String("q"),
		ConsoleSlug: q.String("console"),
		Kind:        q.String("kind"),
		MinPrice:    q.Float("min_price"),
		MaxPrice:    q.Float("max_price"),
		Sort:        q.String("sort"),
		Page:        q.Int("page"),
		PageSize:    q.Int("page_size"),
	}
	if err := q.Err(); err != nil {
		respondWithError(w, r, err)
		return
	}

	result, err := s.catalog.Search(r.Context(), params)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ContactResponse acknowledges a submission. Honeypot hits get the same
// response as stored messages.
type ContactResponse struct {
	Status string `json:"status"`
}

// Contact handles POST /api/contact.
func (s *Storefront) Contact(w http.ResponseWriter, r *http.Request) {
	var form contact.Form
	if err := decodeJSON(w, r, &form); err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	if _, err := s.contact.Submit(r.Context(), form, ratelimit.ClientID(r)); err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ContactResponse{Status: "received"})
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
