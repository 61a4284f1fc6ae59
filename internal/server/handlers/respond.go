package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	fulmenerrors "github.com/fulmenhq/gofulmen/errors"
	"github.com/go-chi/chi/v5"

	"github.com/retrostock/retrostock/internal/core/catalog"
	"github.com/retrostock/retrostock/internal/core/contact"
	"github.com/retrostock/retrostock/internal/core/images"
	"github.com/retrostock/retrostock/internal/core/store"
	apperrors "github.com/retrostock/retrostock/internal/errors"
)

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 1 << 20

// httpErrorResponder writes error envelopes. The server package installs its
// own so handlers and router fallbacks share one code path.
var httpErrorResponder = apperrors.RespondWithError

func SetHTTPErrorResponder(responder func(http.ResponseWriter, *http.Request, error)) {
	if responder == nil {
		responder = apperrors.RespondWithError
	}
	httpErrorResponder = responder
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	httpErrorResponder(w, r, err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return apperrors.NewInvalidInputError("request body is required")
		}
		return apperrors.WrapInvalidInput(r.Context(), err, "request body is not valid JSON")
	}
	return nil
}

// idParam reads a positive integer path parameter.
func idParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("invalid path parameter", map[string]string{
			name: "must be a positive integer",
		})
	}
	return id, nil
}

// queryParams collects typed query values and the fields that failed to parse.
type queryParams struct {
	values url.Values
	fields map[string]string
}

func newQueryParams(r *http.Request) *queryParams {
	return &queryParams{values: r.URL.Query(), fields: map[string]string{}}
}

func (q *queryParams) String(key string) string {
	return strings.TrimSpace(q.values.Get(key))
}

func (q *queryParams) Int(key string) int {
	raw := q.String(key)
	if raw == "" {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		q.fields[key] = "must be an integer"
		return 0
	}
	return v
}

func (q *queryParams) Int64(key string) int64 {
	raw := q.String(key)
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		q.fields[key] = "must be an integer"
		return 0
	}
	return v
}

func (q *queryParams) Float(key string) *float64 {
	raw := q.String(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		q.fields[key] = "must be a number"
		return nil
	}
	return &v
}

func (q *queryParams) Bool(key string) bool {
	raw := q.String(key)
	if raw == "" {
		return false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		q.fields[key] = "must be true or false"
		return false
	}
	return v
}

func (q *queryParams) Err() error {
	if len(q.fields) == 0 {
		return nil
	}
	return apperrors.NewValidationError("invalid query parameters", q.fields)
}

// respondWithDomainError maps catalog, store and fetch errors onto envelopes
// before handing them to the shared responder.
func respondWithDomainError(w http.ResponseWriter, r *http.Request, err error) {
	respondWithError(w, r, domainEnvelope(r.Context(), err))
}

func domainEnvelope(ctx context.Context, err error) error {
	var (
		envelope    *fulmenerrors.ErrorEnvelope
		catalogErr  *catalog.ValidationError
		contactErr  *contact.ValidationError
		maxBytesErr *http.MaxBytesError
		upstreamErr *images.StatusError
	)
	switch {
	case errors.As(err, &envelope):
		return envelope
	case errors.As(err, &catalogErr):
		return apperrors.NewValidationError("invalid input", catalogErr.Fields)
	case errors.As(err, &contactErr):
		return apperrors.NewValidationError("invalid contact form", contactErr.Fields)
	case errors.As(err, &maxBytesErr):
		return apperrors.NewPayloadTooLargeError(fmt.Sprintf("request body exceeds %d bytes", maxBytesErr.Limit))
	case errors.Is(err, store.ErrNotFound):
		return apperrors.NewNotFoundError(err.Error())
	case errors.Is(err, store.ErrConflict):
		return apperrors.NewConflictError(err.Error())
	case errors.Is(err, images.ErrUnsupportedScheme):
		return apperrors.NewValidationError("invalid image URL", map[string]string{"image_url": "must be an http or https URL"})
	case errors.As(err, &upstreamErr),
		errors.Is(err, images.ErrNotImage),
		errors.Is(err, images.ErrTooLarge):
		return apperrors.WrapExternalService(ctx, err, "image download failed")
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Wrap(ctx, apperrors.CodeTimeout, err, "operation timed out")
	default:
		return apperrors.WrapInternal(ctx, err, "internal server error")
	}
}
