package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retrostock/retrostock/internal/config"
	"github.com/retrostock/retrostock/internal/core"
	"github.com/retrostock/retrostock/internal/core/catalog"
	"github.com/retrostock/retrostock/internal/core/contact"
	"github.com/retrostock/retrostock/internal/core/importer"
	"github.com/retrostock/retrostock/internal/core/ratelimit"
	"github.com/retrostock/retrostock/internal/core/store"
	apperrors "github.com/retrostock/retrostock/internal/errors"
)

const testToken = "test-admin-token"

type fixture struct {
	handler http.Handler
	catalog *catalog.Service
	store   *store.Store
	limiter *ratelimit.Limiter
	media   string
	nes     *core.Console
}

func newFixture(t *testing.T, token string, rules map[string]ratelimit.Rule) *fixture {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(ctx, config.StoreConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(ctx))

	if rules == nil {
		rules = ratelimit.DefaultRules()
	}
	limiter := ratelimit.New(rules)
	catalogSvc := catalog.NewService(st, catalog.Options{})
	media := t.TempDir()

	srv := New(config.ServerConfig{Host: "127.0.0.1", MaxUploadBytes: 4096}, Deps{
		Catalog:    catalogSvc,
		Contact:    contact.NewService(st, contact.DefaultLimits),
		Store:      st,
		Limiter:    limiter,
		AdminToken: token,
		MediaDir:   media,
		Import:     importer.Options{DefaultCategory: importer.DefaultCategory},
	})

	category, err := catalogSvc.CreateCategory(ctx, catalog.CategoryInput{Name: "Nintendo"})
	require.NoError(t, err)
	nes, err := catalogSvc.CreateConsole(ctx, catalog.ConsoleInput{CategoryID: category.ID, Name: "NES"})
	require.NoError(t, err)
	for _, in := range []catalog.ItemInput{
		{ConsoleID: nes.ID, Name: "Metroid", Price: 30, Quantity: 1, Featured: true},
		{ConsoleID: nes.ID, Name: "Zelda", Price: 45, Quantity: 2},
		{ConsoleID: nes.ID, Name: "Zapper", Kind: "accessory", Price: 12, Quantity: 1},
	} {
		_, err := catalogSvc.CreateItem(ctx, in)
		require.NoError(t, err)
	}

	return &fixture{handler: srv.Handler(), catalog: catalogSvc, store: st, limiter: limiter, media: media, nes: nes}
}

func (f *fixture) do(t *testing.T, method, path string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("X-Forwarded-For", "203.0.113.5")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) admin(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	return f.do(t, method, path, reader, map[string]string{
		"Authorization": "Bearer " + testToken,
		"Content-Type":  "application/json",
	})
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out), rec.Body.String())
	return out
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) apperrors.HTTPErrorDetail {
	t.Helper()
	return decode[apperrors.HTTPErrorResponse](t, rec).Error
}

func TestServerUsesStandardErrorHandlers(t *testing.T) {
	srv := New(config.ServerConfig{Host: "127.0.0.1"}, Deps{})

	req := httptest.NewRequest(http.MethodGet, "/does-not-exist", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", errorBody(t, rec).Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodDelete, "/version", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "METHOD_NOT_ALLOWED", errorBody(t, rec).Code)
}

func TestPublicCatalogRoutes(t *testing.T) {
	f := newFixture(t, testToken, nil)

	rec := f.do(t, http.MethodGet, "/api/categories", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	categories := decode[map[string][]core.Category](t, rec)
	require.Len(t, categories["categories"], 1)
	assert.Equal(t, "nintendo", categories["categories"][0].Slug)

	rec = f.do(t, http.MethodGet, "/api/categories/nintendo", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[catalog.CategoryPage](t, rec).Consoles, 1)

	rec = f.do(t, http.MethodGet, "/api/consoles/nes?sort=price_desc&page_size=2", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[catalog.ConsolePage](t, rec)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "Zelda", page.Items[0].Name)
	assert.Equal(t, 3, page.Page.Total)
	assert.Equal(t, 2, page.Page.Pages)

	rec = f.do(t, http.MethodGet, "/api/home", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	home := decode[catalog.HomePage](t, rec)
	require.Len(t, home.Featured, 1)
	assert.Equal(t, "Metroid", home.Featured[0].Name)

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/items/%d", home.Featured[0].ID), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "NES", decode[core.Item](t, rec).ConsoleName)

	rec = f.do(t, http.MethodGet, "/api/items/999", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", errorBody(t, rec).Code)

	rec = f.do(t, http.MethodGet, "/api/items/abc", nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/consoles/snes", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSearchRoute(t *testing.T) {
	f := newFixture(t, testToken, nil)

	rec := f.do(t, http.MethodGet, "/api/search?q=z&sort=name", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	result := decode[catalog.SearchResult](t, rec)
	require.Len(t, result.Items, 2)
	assert.Equal(t, "Zapper", result.Items[0].Name)
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Remaining"))

	rec = f.do(t, http.MethodGet, "/api/search?kind=Accessory", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[catalog.SearchResult](t, rec).Items, 1)

	rec = f.do(t, http.MethodGet, "/api/search?min_price=abc&page=x", nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := errorBody(t, rec)
	assert.Equal(t, "VALIDATION_FAILED", body.Code)
	fields, ok := body.Details["fields"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "must be a number", fields["min_price"])
	assert.Equal(t, "must be an integer", fields["page"])

	rec = f.do(t, http.MethodGet, "/api/search?min_price=50&max_price=10", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchIsRateLimited(t *testing.T) {
	f := newFixture(t, testToken, map[string]ratelimit.Rule{
		ratelimit.EndpointSearch: {Window: time.Minute, MaxRequests: 2},
	})

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/search?q=metroid", nil, nil).Code)
	}
	rec := f.do(t, http.MethodGet, "/api/search?q=metroid", nil, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Non-limited routes stay reachable.
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/home", nil, nil).Code)
}

func TestContactRoute(t *testing.T) {
	f := newFixture(t, testToken, map[string]ratelimit.Rule{
		ratelimit.EndpointContact: {Window: time.Minute, MaxRequests: 3},
	})
	post := func(body string) *httptest.ResponseRecorder {
		return f.do(t, http.MethodPost, "/api/contact", strings.NewReader(body),
			map[string]string{"Content-Type": "application/json"})
	}

	rec := post(`{"name":"Samus","email":"samus@example.com","message":"Is Metroid complete in box?"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "received", decode[map[string]string](t, rec)["status"])

	rec = post(`{"name":"Bot","email":"bot@example.com","message":"cheap watches here","website":"http://spam.example"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = post(`{"name":"","email":"nope","message":"short"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	fields := errorBody(t, rec).Details["fields"].(map[string]interface{})
	assert.Equal(t, "is required", fields["name"])
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "message")

	rec = post(`{"name":"x"`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	messages, err := f.store.ListContactMessages(context.Background(), false, 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "203.0.113.5", messages[0].ClientID)
}

func TestContactRejectsMalformedJSON(t *testing.T) {
	f := newFixture(t, testToken, nil)
	rec := f.do(t, http.MethodPost, "/api/contact", strings.NewReader(`{"name":`), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", errorBody(t, rec).Code)

	rec = f.do(t, http.MethodPost, "/api/contact", strings.NewReader(`{"nickname":"x"}`), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminRequiresToken(t *testing.T) {
	f := newFixture(t, testToken, nil)

	rec := f.do(t, http.MethodGet, "/admin/items", nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/admin/items", nil, map[string]string{"Authorization": "Bearer nope"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.admin(t, http.MethodGet, "/admin/items", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Items []core.Item `json:"items"`
		Total int         `json:"total"`
	}](t, rec)
	assert.Equal(t, 3, list.Total)
}

func TestAdminDisabledWithoutToken(t *testing.T) {
	f := newFixture(t, "", nil)
	rec := f.do(t, http.MethodGet, "/admin/items", nil, map[string]string{"Authorization": "Bearer "})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminCatalogCRUD(t *testing.T) {
	f := newFixture(t, testToken, nil)

	rec := f.admin(t, http.MethodPost, "/admin/categories", map[string]any{"name": "Sega"})
	require.Equal(t, http.StatusCreated, rec.Code)
	sega := decode[core.Category](t, rec)
	assert.Equal(t, "sega", sega.Slug)

	rec = f.admin(t, http.MethodPost, "/admin/categories", map[string]any{"name": "SEGA"})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CONFLICT", errorBody(t, rec).Code)

	rec = f.admin(t, http.MethodPost, "/admin/consoles", map[string]any{"category_id": sega.ID, "name": "Genesis", "release_year": 1989})
	require.Equal(t, http.StatusCreated, rec.Code)
	genesis := decode[core.Console](t, rec)

	rec = f.admin(t, http.MethodDelete, fmt.Sprintf("/admin/categories/%d", sega.ID), nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = f.admin(t, http.MethodPost, "/admin/items", map[string]any{"console_id": genesis.ID, "name": "Sonic", "price": -1})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	fields := errorBody(t, rec).Details["fields"].(map[string]interface{})
	assert.Equal(t, "must not be negative", fields["price"])

	rec = f.admin(t, http.MethodPost, "/admin/items", map[string]any{"console_id": genesis.ID, "name": "Sonic", "price": 15, "quantity": 1})
	require.Equal(t, http.StatusCreated, rec.Code)
	sonic := decode[core.Item](t, rec)
	assert.Equal(t, "Genesis", sonic.ConsoleName)

	rec = f.admin(t, http.MethodPut, fmt.Sprintf("/admin/items/%d", sonic.ID), map[string]any{"console_id": genesis.ID, "name": "Sonic 2", "price": 18})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sonic-2", decode[core.Item](t, rec).Slug)

	rec = f.admin(t, http.MethodDelete, fmt.Sprintf("/admin/items/%d", sonic.ID), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.admin(t, http.MethodGet, fmt.Sprintf("/admin/items/%d", sonic.ID), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.admin(t, http.MethodDelete, fmt.Sprintf("/admin/consoles/%d", genesis.ID), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.admin(t, http.MethodDelete, fmt.Sprintf("/admin/categories/%d", sega.ID), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.admin(t, http.MethodGet, "/admin/consoles", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[map[string][]core.Console](t, rec)["consoles"], 1)
}

func multipartImport(t *testing.T, filename, content string, fields map[string]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func (f *fixture) upload(t *testing.T, filename, content string, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartImport(t, filename, content, fields)
	return f.do(t, http.MethodPost, "/admin/import", body, map[string]string{
		"Authorization": "Bearer " + testToken,
		"Content-Type":  contentType,
	})
}

func TestAdminImport(t *testing.T) {
	f := newFixture(t, testToken, nil)

	csv := "Name,Console,Price,Qty\nDuck Hunt,NES,5,3\nSonic,Genesis,12,1\nBad,NES,abc,1\n"
	rec := f.upload(t, "stock.csv", csv, map[string]string{"create_consoles": "true"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	summary := decode[importer.Summary](t, rec)
	assert.Equal(t, 3, summary.Rows)
	assert.Equal(t, 2, summary.Imported)
	assert.Equal(t, []string{"Genesis"}, summary.ConsolesCreated)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, 4, summary.Errors[0].Row)

	rec = f.upload(t, "stock.csv", csv, map[string]string{"mode": "replace"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := errorBody(t, rec)
	assert.Equal(t, "VALIDATION_FAILED", body.Code)
	assert.Contains(t, body.Details, "summary")

	rec = f.upload(t, "stock.csv", "Name,Console,Price\nMetroid,NES,32\n", map[string]string{"mode": "replace", "dry_run": "1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[importer.Summary](t, rec).DryRun)

	rec = f.upload(t, "stock.txt", "whatever", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorBody(t, rec).Details["fields"], "format")

	rec = f.upload(t, "stock.csv", "Title,Price\nMetroid,3\n", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", errorBody(t, rec).Code)

	rec = f.upload(t, "stock.csv", "Name,Console,Price\n"+strings.Repeat("Metroid,NES,1\n", 500), nil)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "PAYLOAD_TOO_LARGE", errorBody(t, rec).Code)

	rec = f.do(t, http.MethodPost, "/admin/import", strings.NewReader("{}"), map[string]string{
		"Authorization": "Bearer " + testToken,
		"Content-Type":  "application/json",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminDuplicates(t *testing.T) {
	f := newFixture(t, testToken, nil)
	_, err := f.catalog.CreateItem(context.Background(), catalog.ItemInput{ConsoleID: f.nes.ID, Name: "metroid", Price: 28})
	require.NoError(t, err)

	rec := f.admin(t, http.MethodGet, "/admin/duplicates", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[struct {
		Count  int `json:"count"`
		Groups []struct {
			Key string `json:"key"`
		} `json:"groups"`
	}](t, rec)
	require.Equal(t, 1, report.Count)
	assert.Equal(t, fmt.Sprintf("metroid|id:%d", f.nes.ID), report.Groups[0].Key)

	rec = f.admin(t, http.MethodGet, "/admin/duplicates?format=markdown", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "## Duplicate items"))
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/markdown")

	rec = f.admin(t, http.MethodGet, "/admin/duplicates?format=xml", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminContactInbox(t *testing.T) {
	f := newFixture(t, testToken, nil)
	ctx := context.Background()
	require.NoError(t, f.store.CreateContactMessage(ctx, &core.ContactMessage{Name: "A", Email: "a@example.com", Message: "first message"}))
	require.NoError(t, f.store.CreateContactMessage(ctx, &core.ContactMessage{Name: "B", Email: "b@example.com", Message: "second message"}))

	rec := f.admin(t, http.MethodGet, "/admin/contact", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	messages := decode[map[string][]core.ContactMessage](t, rec)["messages"]
	require.Len(t, messages, 2)

	rec = f.admin(t, http.MethodPost, fmt.Sprintf("/admin/contact/%d/read", messages[0].ID), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.admin(t, http.MethodGet, "/admin/contact?unread=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[map[string][]core.ContactMessage](t, rec)["messages"], 1)

	rec = f.admin(t, http.MethodPost, "/admin/contact/999/read", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminRateLimits(t *testing.T) {
	f := newFixture(t, testToken, nil)
	f.limiter.Check("198.51.100.1", ratelimit.EndpointSearch)

	rec := f.admin(t, http.MethodGet, "/admin/rate-limits", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	state := decode[struct {
		Rules map[string]ratelimit.Rule `json:"rules"`
		Keys  []ratelimit.KeyState      `json:"keys"`
	}](t, rec)
	assert.Contains(t, state.Rules, ratelimit.EndpointContact)
	require.Len(t, state.Keys, 1)
	assert.Equal(t, "198.51.100.1:search", state.Keys[0].Key)

	rec = f.admin(t, http.MethodDelete, "/admin/rate-limits/198.51.100.1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.limiter.Keys())
}

func TestAdminItemImageRequiresFetcher(t *testing.T) {
	f := newFixture(t, testToken, nil)
	items, _, err := f.catalog.ListItems(context.Background(), store.ItemQuery{})
	require.NoError(t, err)

	rec := f.admin(t, http.MethodPost, fmt.Sprintf("/admin/items/%d/image", items[0].ID), nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMediaRoute(t *testing.T) {
	f := newFixture(t, testToken, nil)
	require.NoError(t, os.MkdirAll(filepath.Join(f.media, "items"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.media, "items", "1-metroid.jpg"), []byte("jpeg"), 0o644))

	rec := f.do(t, http.MethodGet, "/media/items/1-metroid.jpg", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "jpeg", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("Cache-Control"))

	rec = f.do(t, http.MethodGet, "/media/items/", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/media/items/missing.jpg", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
