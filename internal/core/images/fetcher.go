// Package images downloads product photos, scales them into thumbnails and
// stores them under the media directory.
package images

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp" // register decoder
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/retrostock/retrostock/internal/config"
	"github.com/retrostock/retrostock/internal/metrics"
	"github.com/retrostock/retrostock/internal/observability"
)

// Fetch failures callers may want to tell apart.
var (
	ErrUnsupportedScheme = errors.New("image url must be http or https")
	ErrNotImage          = errors.New("response is not an image")
	ErrTooLarge          = errors.New("image exceeds size limit")
)

// DefaultMaxPixels bounds decoded width*height. A small compressed file can
// declare dimensions whose pixel buffer would not fit in memory.
const DefaultMaxPixels = 25_000_000

// StatusError reports a non-200 upstream response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

// Options configure a Fetcher.
type Options struct {
	MediaDir          string
	MaxBytes          int64
	MaxPixels         int64
	ThumbSize         int
	JPEGQuality       int
	Timeout           time.Duration
	RequestsPerSecond float64
	Concurrency       int
	UserAgent         string
}

// OptionsFromConfig maps the images config section.
func OptionsFromConfig(cfg config.ImagesConfig) Options {
	return Options{
		MediaDir:          cfg.MediaDir,
		MaxBytes:          cfg.MaxBytes,
		MaxPixels:         cfg.MaxPixels,
		ThumbSize:         cfg.ThumbSize,
		JPEGQuality:       cfg.JPEGQuality,
		Timeout:           cfg.Timeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Concurrency:       cfg.Concurrency,
		UserAgent:         cfg.UserAgent,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxBytes <= 0 {
		o.MaxBytes = 5 << 20
	}
	if o.MaxPixels <= 0 {
		o.MaxPixels = DefaultMaxPixels
	}
	if o.ThumbSize <= 0 {
		o.ThumbSize = 512
	}
	if o.JPEGQuality <= 0 {
		o.JPEGQuality = 85
	}
	if o.Timeout <= 0 {
		o.Timeout = 15 * time.Second
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if strings.TrimSpace(o.UserAgent) == "" {
		o.UserAgent = "retrostock-image-fetcher/1.0"
	}
	return o
}

// Fetcher downloads images politely: every request waits on a shared token
// bucket, bodies are capped at MaxBytes and dimensions at MaxPixels.
type Fetcher struct {
	client  *resty.Client
	limiter *rate.Limiter
	opts    Options
}

// NewFetcher builds a fetcher. A non-positive RequestsPerSecond disables
// pacing.
func NewFetcher(opts Options) *Fetcher {
	opts = opts.withDefaults()

	client := resty.New()
	client.SetTimeout(opts.Timeout)
	client.SetHeader("User-Agent", opts.UserAgent)
	client.SetHeader("Accept", "image/*")
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	return &Fetcher{
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
		opts:    opts,
	}
}

// MediaDir is where Save writes files.
func (f *Fetcher) MediaDir() string {
	return f.opts.MediaDir
}

// Fetch downloads and decodes one image. It returns the decoded image and
// its format name (png, jpeg, gif, webp).
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (image.Image, string, error) {
	img, format, err := f.fetch(ctx, rawURL)
	metrics.RecordImageFetch(err == nil)
	if err != nil {
		observability.Debug("Image fetch failed", zap.String("url", rawURL), zap.Error(err))
	}
	return img, format, err
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string) (image.Image, string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, rawURL)
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, "", err
	}

	resp, err := f.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(u.String())
	if err != nil {
		return nil, "", fmt.Errorf("fetch %s: %w", u, err)
	}
	body := resp.RawBody()
	defer body.Close() // nolint:errcheck // response body

	if resp.StatusCode() != http.StatusOK {
		return nil, "", &StatusError{URL: u.String(), StatusCode: resp.StatusCode()}
	}

	mediaType, _, err := mime.ParseMediaType(resp.Header().Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		return nil, "", fmt.Errorf("%w: content type %q", ErrNotImage, resp.Header().Get("Content-Type"))
	}
	if resp.RawResponse != nil && resp.RawResponse.ContentLength > f.opts.MaxBytes {
		return nil, "", ErrTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(body, f.opts.MaxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", u, err)
	}
	if int64(len(data)) > f.opts.MaxBytes {
		return nil, "", ErrTooLarge
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrNotImage, err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > f.opts.MaxPixels {
		return nil, "", fmt.Errorf("%w: %dx%d pixels", ErrTooLarge, cfg.Width, cfg.Height)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrNotImage, err)
	}
	return img, format, nil
}

// Save fetches rawURL, scales it to the configured thumbnail size and writes
// a JPEG under the media dir. The returned path is relative to the media
// dir and uses forward slashes.
func (f *Fetcher) Save(ctx context.Context, rawURL, name string) (string, error) {
	if strings.TrimSpace(f.opts.MediaDir) == "" {
		return "", errors.New("media directory is not configured")
	}
	rel, err := relativeName(name)
	if err != nil {
		return "", err
	}

	img, _, err := f.Fetch(ctx, rawURL)
	if err != nil {
		return "", err
	}
	thumb, err := Thumbnail(img, f.opts.ThumbSize)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := Encode(&buf, thumb, "jpeg", f.opts.JPEGQuality); err != nil {
		return "", fmt.Errorf("encode %s: %w", rel, err)
	}

	dest := filepath.Join(f.opts.MediaDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}
	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", rel, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("write %s: %w", rel, err)
	}
	return rel, nil
}

// relativeName cleans name into a slash path with a .jpg extension that
// cannot escape the media dir.
func relativeName(name string) (string, error) {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	cleaned := path.Clean("/" + name)
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." {
		return "", fmt.Errorf("invalid image name %q", name)
	}
	return strings.TrimSuffix(cleaned, path.Ext(cleaned)) + ".jpg", nil
}

// Job is one image to fetch and save.
type Job struct {
	ItemID int64
	URL    string
	Name   string
}

// Result is the outcome of a Job.
type Result struct {
	Job  Job
	Path string
	Err  error
}

// FetchAll saves every job with at most Concurrency requests in flight.
// Results keep job order; per-job failures do not stop the others.
func (f *Fetcher) FetchAll(ctx context.Context, jobs []Job) []Result {
	results := make([]Result, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.opts.Concurrency)
	for i, job := range jobs {
		results[i].Job = job
		g.Go(func() error {
			p, err := f.Save(gctx, job.URL, job.Name)
			results[i].Path = p
			results[i].Err = err
			return nil
		})
	}
	_ = g.Wait()
	return results
}
