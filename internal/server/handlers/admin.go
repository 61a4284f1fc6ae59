package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/retrostock/retrostock/internal/core"
	"github.com/retrostock/retrostock/internal/core/catalog"
	"github.com/retrostock/retrostock/internal/core/images"
	"github.com/retrostock/retrostock/internal/core/importer"
	"github.com/retrostock/retrostock/internal/core/ratelimit"
	"github.com/retrostock/retrostock/internal/core/store"
	apperrors "github.com/retrostock/retrostock/internal/errors"
	"github.com/retrostock/retrostock/internal/observability"
	"github.com/retrostock/retrostock/internal/output"
)

// DefaultMaxUploadBytes bounds import uploads when no limit is configured.
const DefaultMaxUploadBytes = 10 << 20

// AdminStore is the persistence the admin API uses directly.
type AdminStore interface {
	importer.Store
	SetItemImage(ctx context.Context, id int64, imagePath string) error
	ListContactMessages(ctx context.Context, unreadOnly bool, limit int) ([]core.ContactMessage, error)
	MarkContactMessageRead(ctx context.Context, id int64) error
}

// AdminConfig wires the admin handlers.
type AdminConfig struct {
	Catalog        *catalog.Service
	Store          AdminStore
	Images         *images.Fetcher
	Limiter        *ratelimit.Limiter
	Import         importer.Options
	MaxUploadBytes int64
}

// Admin serves the token-protected management API.
type Admin struct {
	cfg AdminConfig
}

// NewAdmin builds the admin handlers.
func NewAdmin(cfg AdminConfig) *Admin {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return &Admin{cfg: cfg}
}

// ListCategories handles GET /admin/categories.
func (a *Admin) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := a.cfg.Catalog.ListCategories(r.Context())
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": nonNil(categories)})
}

// CreateCategory handles POST /admin/categories.
func (a *Admin) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var in catalog.CategoryInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	category, err := a.cfg.Catalog.CreateCategory(r.Context(), in)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, category)
}

// UpdateCategory handles PUT /admin/categories/{id}.
func (a *Admin) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	var in catalog.CategoryInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	category, err := a.cfg.Catalog.UpdateCategory(r.Context(), id, in)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, category)
}

// DeleteCategory handles DELETE /admin/categories/{id}.
func (a *Admin) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	a.byID(w, r, a.cfg.Catalog.DeleteCategory)
}

// ListConsoles handles GET /admin/consoles?category_id=.
func (a *Admin) ListConsoles(w http.ResponseWriter, r *http.Request) {
	q := newQueryParams(r)
	categoryID := q.Int64("category_id")
	if err := q.Err(); err != nil {
		respondWithError(w, r, err)
		return
	}
	consoles, err := a.cfg.Catalog.ListConsoles(r.Context(), categoryID)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"consoles": nonNil(consoles)})
}

// CreateConsole handles POST /admin/consoles.
func (a *Admin) CreateConsole(w http.ResponseWriter, r *http.Request) {
	var in catalog.ConsoleInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	console, err := a.cfg.Catalog.CreateConsole(r.Context(), in)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, console)
}

// UpdateConsole handles PUT /admin/consoles/{id}.
func (a *Admin) UpdateConsole(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	var in catalog.ConsoleInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	console, err := a.cfg.Catalog.UpdateConsole(r.Context(), id, in)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, console)
}

// DeleteConsole handles DELETE /admin/consoles/{id}.
func (a *Admin) DeleteConsole(w http.ResponseWriter, r *http.Request) {
	a.byID(w, r, a.cfg.Catalog.DeleteConsole)
}

// ItemList is the admin item listing.
type ItemList struct {
	Items []core.Item `json:"items"`
	Total int         `json:"total"`
}

// ListItems handles GET /admin/items?console_id=&kind=&q=&limit=&offset=.
func (a *Admin) ListItems(w http.ResponseWriter, r *http.Request) {
	q := newQueryParams(r)
	query := store.ItemQuery{
		ConsoleID: q.Int64("console_id"),
		Search:    q.String("q"),
		Sort:      q.String("sort"),
		Limit:     q.Int("limit"),
		Offset:    q.Int("offset"),
	}
	if kind := q.String("kind"); kind != "" {
		parsed, err := core.ParseItemKind(kind)
		if err != nil {
			q.fields["kind"] = err.Error()
		}
		query.Kind = parsed
	}
	if err := q.Err(); err != nil {
		respondWithError(w, r, err)
		return
	}

	items, total, err := a.cfg.Catalog.ListItems(r.Context(), query)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ItemList{Items: nonNil(items), Total: total})
}

// CreateItem handles POST /admin/items.
func (a *Admin) CreateItem(w http.ResponseWriter, r *http.Request) {
	var in catalog.ItemInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	item, err := a.cfg.Catalog.CreateItem(r.Context(), in)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// GetItem handles GET /admin/items/{id}.
func (a *Admin) GetItem(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	item, err := a.cfg.Catalog.GetItem(r.Context(), id)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// UpdateItem handles PUT /admin/items/{id}.
func (a *Admin) UpdateItem(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	var in catalog.ItemInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	item, err := a.cfg.Catalog.UpdateItem(r.Context(), id, in)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// DeleteItem handles DELETE /admin/items/{id}.
func (a *Admin) DeleteItem(w http.ResponseWriter, r *http.Request) {
	a.byID(w, r, a.cfg.Catalog.DeleteItem)
}

// FetchItemImage handles POST /admin/items/{id}/image: the item's remote
// image is downloaded, thumbnailed and stored under the media dir.
func (a *Admin) FetchItemImage(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	if a.cfg.Images == nil {
		respondWithError(w, r, apperrors.NewUnavailableError("image fetching is not configured"))
		return
	}

	item, err := a.cfg.Catalog.GetItem(r.Context(), id)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	if strings.TrimSpace(item.ImageURL) == "" {
		respondWithError(w, r, apperrors.NewValidationError("item has no image URL",
			map[string]string{"image_url": "is required"}))
		return
	}

	rel, err := a.cfg.Images.Save(r.Context(), item.ImageURL, images.ItemImageName(*item))
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	if err := a.cfg.Store.SetItemImage(r.Context(), id, rel); err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	item.ImagePath = rel

	observability.Info("Item image saved", zap.Int64("item_id", id), zap.String("path", rel))
	writeJSON(w, http.StatusOK, item)
}

// Import handles POST /admin/import: a multipart "file" (CSV or XLSX) plus
// optional "mode", "dry_run" and "create_consoles" fields.
func (a *Admin) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.cfg.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			respondWithDomainError(w, r, err)
			return
		}
		respondWithError(w, r, apperrors.NewValidationError("import file is required",
			map[string]string{"file": "must be a multipart file upload"}))
		return
	}
	defer file.Close() // nolint:errcheck // multipart temp file

	fields := map[string]string{}
	format, err := importer.FormatFromFilename(header.Filename)
	if explicit := strings.TrimSpace(r.FormValue("format")); explicit != "" {
		format, err = importer.ParseFormat(explicit)
	}
	if err != nil {
		fields["format"] = err.Error()
	}

	opts := a.cfg.Import
	if raw := r.FormValue("mode"); raw != "" {
		mode, err := importer.ParseMode(raw)
		if err != nil {
			fields["mode"] = err.Error()
		}
		opts.Mode = mode
	}
	opts.DryRun = formBool(r, "dry_run", fields, false)
	opts.CreateConsoles = formBool(r, "create_consoles", fields, opts.CreateConsoles)
	if len(fields) > 0 {
		respondWithError(w, r, apperrors.NewValidationError("invalid import request", fields))
		return
	}

	rows, err := importer.Parse(file, format)
	if err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "import file could not be read"))
		return
	}

	summary, err := importer.Run(r.Context(), a.cfg.Store, rows, opts)
	if errors.Is(err, importer.ErrAborted) {
		envelope := apperrors.NewValidationError(err.Error(), nil)
		envelope = envelope.WithDetails(map[string]interface{}{"summary": summary})
		respondWithError(w, r, envelope)
		return
	}
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func formBool(r *http.Request, key string, fields map[string]string, fallback bool) bool {
	raw := strings.ToLower(strings.TrimSpace(r.FormValue(key)))
	switch raw {
	case "":
		return fallback
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		fields[key] = "must be true or false"
		return fallback
	}
}

// Duplicates handles GET /admin/duplicates?format=json|table|markdown.
func (a *Admin) Duplicates(w http.ResponseWriter, r *http.Request) {
	format := output.FormatJSON
	if raw := r.URL.Query().Get("format"); raw != "" {
		parsed, err := output.ParseFormat(raw)
		if err != nil {
			respondWithError(w, r, apperrors.NewValidationError("invalid query parameters",
				map[string]string{"format": err.Error()}))
			return
		}
		format = parsed
	}

	groups, err := a.cfg.Catalog.DuplicateReport(r.Context())
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}

	if format == output.FormatJSON {
		writeJSON(w, http.StatusOK, map[string]any{"count": len(groups), "groups": nonNil(groups)})
		return
	}
	rendered, err := output.NewFormatter(format).FormatDuplicates(groups)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	contentType := "text/plain; charset=utf-8"
	if format == output.FormatMarkdown {
		contentType = "text/markdown; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(rendered + "\n"))
}

// ListContact handles GET /admin/contact?unread=&limit=.
func (a *Admin) ListContact(w http.ResponseWriter, r *http.Request) {
	q := newQueryParams(r)
	unread := q.Bool("unread")
	limit := q.Int("limit")
	if err := q.Err(); err != nil {
		respondWithError(w, r, err)
		return
	}
	messages, err := a.cfg.Store.ListContactMessages(r.Context(), unread, limit)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": nonNil(messages)})
}

// MarkContactRead handles POST /admin/contact/{id}/read.
func (a *Admin) MarkContactRead(w http.ResponseWriter, r *http.Request) {
	a.byID(w, r, a.cfg.Store.MarkContactMessageRead)
}

// RateLimitState is the live limiter snapshot.
type RateLimitState struct {
	Rules map[string]ratelimit.Rule `json:"rules"`
	Keys  []ratelimit.KeyState      `json:"keys"`
}

// RateLimits handles GET /admin/rate-limits.
func (a *Admin) RateLimits(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, RateLimitState{
		Rules: a.cfg.Limiter.Rules(),
		Keys:  nonNil(a.cfg.Limiter.Keys()),
	})
}

// ResetRateLimit handles DELETE /admin/rate-limits/{client}.
func (a *Admin) ResetRateLimit(w http.ResponseWriter, r *http.Request) {
	client := strings.TrimSpace(chi.URLParam(r, "client"))
	removed := a.cfg.Limiter.Reset(client)
	observability.Info("Rate limit windows reset", zap.String("client_id", client), zap.Int("removed", removed))
	writeJSON(w, http.StatusOK, map[string]any{"client": client, "removed": removed})
}

// byID runs op for the {id} path parameter and answers 204.
func (a *Admin) byID(w http.ResponseWriter, r *http.Request, op func(context.Context, int64) error) {
	id, err := idParam(r, "id")
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	if err := op(r.Context(), id); err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
