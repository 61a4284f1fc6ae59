package images

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/retrostock/retrostock/internal/core"
	"github.com/retrostock/retrostock/internal/observability"
)

// ItemStore is what Backfill needs from persistence.
type ItemStore interface {
	ItemsMissingImages(ctx context.Context, limit int) ([]core.Item, error)
	SetItemImage(ctx context.Context, id int64, imagePath string) error
}

// BackfillReport summarizes a Backfill run.
type BackfillReport struct {
	Attempted int      `json:"attempted"`
	Saved     int      `json:"saved"`
	Failed    int      `json:"failed"`
	Failures  []string `json:"failures"`
}

// ItemImageName is the media-relative name used for an item's image.
func ItemImageName(item core.Item) string {
	slug := item.Slug
	if slug == "" {
		slug = core.Slugify(item.Name)
	}
	return fmt.Sprintf("items/%d-%s.jpg", item.ID, slug)
}

// Backfill downloads images for items that have a remote URL but no local
// file, up to limit items (zero means all).
func (f *Fetcher) Backfill(ctx context.Context, st ItemStore, limit int) (*BackfillReport, error) {
	items, err := st.ItemsMissingImages(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list items missing images: %w", err)
	}

	jobs := make([]Job, 0, len(items))
	for _, item := range items {
		jobs = append(jobs, Job{ItemID: item.ID, URL: item.ImageURL, Name: ItemImageName(item)})
	}

	report := &BackfillReport{Attempted: len(jobs), Failures: []string{}}
	for _, res := range f.FetchAll(ctx, jobs) {
		if res.Err == nil {
			res.Err = st.SetItemImage(ctx, res.Job.ItemID, res.Path)
		}
		if res.Err != nil {
			report.Failed++
			report.Failures = append(report.Failures, fmt.Sprintf("item %d: %v", res.Job.ItemID, res.Err))
			continue
		}
		report.Saved++
	}

	observability.Info("Image backfill finished",
		zap.Int("attempted", report.Attempted),
		zap.Int("saved", report.Saved),
		zap.Int("failed", report.Failed))
	return report, nil
}
