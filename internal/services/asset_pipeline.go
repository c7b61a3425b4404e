// internal/services/asset_pipeline.go
package services

import (
	"context"
	"fmt"
	"image"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ratedarts/fulfillment/internal/models"
)

const (
	stagePreview = "preview"
	stageUpscale = "upscale"
	stageResize  = "resize"
)

// AssetPipeline produces framed previews and print-ready derivatives and
// uploads them to object storage.
type AssetPipeline struct {
	storage        ObjectStorage
	images         ImageProcessor
	frameKeyPrefix string
	workers        int
	log            logrus.FieldLogger
}

func NewAssetPipeline(storage ObjectStorage, images ImageProcessor, frameKeyPrefix string, workers int, log logrus.FieldLogger) *AssetPipeline {
	if workers < 1 {
		workers = 1
	}
	return &AssetPipeline{
		storage:        storage,
		images:         images,
		frameKeyPrefix: frameKeyPrefix,
		workers:        workers,
		log:            log.WithField("component", "asset_pipeline"),
	}
}

// Preview is an uploaded framed composite for one (edition, framing).
type Preview struct {
	Key     string
	Edition string
	Framing models.Framing
	URL     string
}

// GeneratePreviews composites the photo into every (edition, framing)
// frame. Items that fail are reported in the returned AssetFailures; the
// error is only set when ctx ends.
func (p *AssetPipeline) GeneratePreviews(ctx context.Context, photo image.Image, artist, product string, editions []models.Edition) ([]Preview, *AssetFailures, error) {
	var (
		mu       sync.Mutex
		previews []Preview
		failures = &AssetFailures{}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for _, edition := range editions {
		for _, framing := range models.Framings {
			edition, framing := edition.Display, framing
			key := VariantGroupKey(edition, framing)

			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				url, err := p.preview(gctx, photo, artist, product, edition, framing)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					failures.Add(stagePreview, key, err)
					p.log.WithError(err).WithField("preview", key).Error("Failed to generate preview")
					return nil
				}
				previews = append(previews, Preview{Key: key, Edition: edition, Framing: framing, URL: url})
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	sort.Slice(previews, func(i, j int) bool { return previews[i].Key < previews[j].Key })
	return previews, failures, nil
}

func (p *AssetPipeline) preview(ctx context.Context, photo image.Image, artist, product, edition string, framing models.Framing) (string, error) {
	layout, ok := FrameLayoutFor(edition, framing)
	if !ok {
		return "", fmt.Errorf("no frame layout for %s %s", edition, framing)
	}

	frameData, err := p.storage.Get(ctx, FrameAssetKey(p.frameKeyPrefix, edition, framing))
	if err != nil {
		return "", fmt.Errorf("failed to download frame: %w", err)
	}
	frame, err := DecodeImage(frameData)
	if err != nil {
		return "", err
	}

	composite := CompositeFramed(frame, photo, layout)
	encoded, err := EncodeJPEG(composite)
	if err != nil {
		return "", err
	}

	key := ObjectKey(artist, product, "previews", edition+framing.String()+".jpg")
	return p.storage.Put(ctx, key, encoded, "image/jpeg")
}

// PrintPlan describes how print-ready assets are derived: at most one
// upscale to the largest target, then one resize per size.
type PrintPlan struct {
	NativeWidth   int
	UpscaleFactor float64
	Sizes         []models.Size
}

func (p PrintPlan) NeedsUpscale() bool {
	return p.UpscaleFactor > 0
}

// PlanPrintAssets sorts sizes by target pixel width, largest first, and
// decides whether a single upscale is needed.
func PlanPrintAssets(nativeWidth int, sizes []models.Size) PrintPlan {
	sorted := make([]models.Size, len(sizes))
	copy(sorted, sizes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PicsartWidth > sorted[j].PicsartWidth
	})

	plan := PrintPlan{NativeWidth: nativeWidth, Sizes: sorted}
	if len(sorted) > 0 && nativeWidth > 0 && nativeWidth < sorted[0].PicsartWidth {
		plan.UpscaleFactor = float64(sorted[0].PicsartWidth) / float64(nativeWidth)
	}
	return plan
}

// PrintAsset is the uploaded print-ready image for one size.
type PrintAsset struct {
	SizeID  uint
	Display string
	URL     string
}

// GeneratePrintAssets executes the plan against the image service and
// uploads every derivative to artist/product/size.jpg.
func (p *AssetPipeline) GeneratePrintAssets(ctx context.Context, sourceURL string, nativeWidth int, artist, product string, sizes []models.Size) ([]PrintAsset, *AssetFailures, error) {
	plan := PlanPrintAssets(nativeWidth, sizes)
	failures := &AssetFailures{}
	log := p.log.WithFields(logrus.Fields{"artist": artist, "product": product})

	master := sourceURL
	if plan.NeedsUpscale() {
		log.WithField("factor", plan.UpscaleFactor).Info("Upscaling source image")
		upscaled, err := p.images.Upscale(ctx, sourceURL, plan.UpscaleFactor)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			for _, size := range plan.Sizes {
				failures.Add(stageUpscale, size.Display, err)
			}
			return nil, failures, nil
		}
		master = upscaled
	}

	var (
		mu     sync.Mutex
		assets []PrintAsset
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for _, size := range plan.Sizes {
		size := size
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			url, err := p.derive(gctx, master, artist, product, size)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failures.Add(stageResize, size.Display, err)
				log.WithError(err).WithField("size", size.Display).Error("Failed to derive print asset")
				return nil
			}
			assets = append(assets, PrintAsset{SizeID: size.ID, Display: size.Display, URL: url})
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	sort.Slice(assets, func(i, j int) bool { return assets[i].SizeID < assets[j].SizeID })
	return assets, failures, nil
}

func (p *AssetPipeline) derive(ctx context.Context, master, artist, product string, size models.Size) (string, error) {
	resized, err := p.images.Resize(ctx, master, size.PicsartWidth)
	if err != nil {
		return "", err
	}
	data, err := p.images.Download(ctx, resized)
	if err != nil {
		return "", err
	}
	return p.storage.Put(ctx, PrintAssetKey(artist, product, size.Display), data, "image/jpeg")
}

// PrintAssetKey is artist/product/size-display.jpg with spaces stripped.
func PrintAssetKey(artist, product, sizeDisplay string) string {
	return ObjectKey(artist, product, sizeDisplay+".jpg")
}
