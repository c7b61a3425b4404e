// internal/services/fulfillment_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ratedarts/fulfillment/internal/config"
	"github.com/ratedarts/fulfillment/internal/models"
)

const (
	StepValidate        = "validate"
	StepUploadSource    = "upload_source"
	StepGenerateVariant = "generate_variants"
	StepCreateRemote    = "create_remote_product"
	StepPersist         = "persist_product"
	StepPreviews        = "previews"
	StepPrintAssets     = "print_assets"
)

const stageAttach = "attach"

// compensationTimeout bounds the remote delete issued after a failed
// local persist.
const compensationTimeout = 30 * time.Second

// FulfillmentService runs the product creation workflow.
type FulfillmentService struct {
	cfg        config.FulfillmentConfig
	references *ReferenceService
	products   *ProductService
	catalog    CatalogClient
	storage    ObjectStorage
	images     ImageProcessor
	pipeline   *AssetPipeline
	locker     ArtistLocker
	tasks      *TaskService
	log        logrus.FieldLogger
}

type FulfillmentDeps struct {
	References *ReferenceService
	Products   *ProductService
	Catalog    CatalogClient
	Storage    ObjectStorage
	Images     ImageProcessor
	Pipeline   *AssetPipeline
	Locker     ArtistLocker
	Tasks      *TaskService
}

type CreateProductRequest struct {
	Title         string          `json:"title" validate:"required,min=1,max=255"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	ArtistID      uint            `json:"artist" validate:"required"`
	EditionIDs    []uint          `json:"editions" validate:"required,min=1"`
	SizeIDs       []uint          `json:"sizes" validate:"required,min=1"`
	Image         []byte          `json:"-"`
	ImageFilename string          `json:"-"`
}

// AttachedPreview is a preview image linked to its variant group.
type AttachedPreview struct {
	Key        string  `json:"key"`
	URL        string  `json:"url"`
	ImageID    int64   `json:"image_id"`
	VariantIDs []int64 `json:"variant_ids"`
}

type CreateProductResult struct {
	Product     *models.Product       `json:"product"`
	Previews    []AttachedPreview     `json:"previews"`
	PrintTask   *models.AssetTask     `json:"print_task,omitempty"`
	PrintAssets []models.ProductImage `json:"print_assets,omitempty"`
	Failures    []AssetFailure        `json:"failures,omitempty"`
}

// Partial reports whether some assets could not be produced.
func (r *CreateProductResult) Partial() bool {
	if len(r.Failures) > 0 {
		return true
	}
	return r.PrintTask != nil && r.PrintTask.Status == models.AssetTaskStatusFailed
}

func NewFulfillmentService(cfg config.FulfillmentConfig, deps FulfillmentDeps, log logrus.FieldLogger) *FulfillmentService {
	return &FulfillmentService{
		cfg:        cfg,
		references: deps.References,
		products:   deps.Products,
		catalog:    deps.Catalog,
		storage:    deps.Storage,
		images:     deps.Images,
		pipeline:   deps.Pipeline,
		locker:     deps.Locker,
		tasks:      deps.Tasks,
		log:        log.WithField("component", "fulfillment"),
	}
}

type validatedRequest struct {
	artist      *models.Artist
	editions    []models.Edition
	sizes       []models.Size
	photo       image.Image
	nativeWidth int
	contentType string
}

// CreateProduct validates the request, creates the product remotely and
// locally, then produces previews and print assets.
func (s *FulfillmentService) CreateProduct(ctx context.Context, req *CreateProductRequest) (*CreateProductResult, error) {
	parent := ctx
	if deadline := s.cfg.RequestDeadline(); deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}

	// 1. Validate
	in, err := s.validate(ctx, req)
	if err != nil {
		return nil, stepFailure(ctx, StepValidate, err)
	}
	log := s.log.WithFields(logrus.Fields{"artist_id": in.artist.ID, "title": req.Title})

	unlock, err := s.locker.Lock(ctx, in.artist.ID)
	if err != nil {
		return nil, &StepError{Step: StepValidate, Err: fmt.Errorf("failed to lock artist: %w", err)}
	}
	lockHeld := true
	defer func() {
		if lockHeld {
			unlock()
		}
	}()

	// 2. Upload source image
	sourceKey := ObjectKey(in.artist.FullName, req.Title, "original"+sourceExtension(req.ImageFilename, in.contentType))
	sourceURL, err := s.storage.Put(ctx, sourceKey, req.Image, in.contentType)
	if err != nil {
		return nil, stepFailure(ctx, StepUploadSource, err)
	}
	log.WithField("step", StepUploadSource).Info("Source image uploaded")

	// 3. Generate variants
	count, err := s.products.CountByArtist(ctx, in.artist.ID)
	if err != nil {
		return nil, stepFailure(ctx, StepGenerateVariant, err)
	}
	variants, err := GenerateVariants(count, in.editions, in.sizes, in.artist.FullName, req.Price)
	if err != nil {
		return nil, stepFailure(ctx, StepGenerateVariant, err)
	}

	// 4. Create remote product
	remote, err := s.catalog.CreateProduct(ctx, &NewRemoteProduct{
		Title:       req.Title,
		Description: req.Description,
		Vendor:      in.artist.FullName,
		Variants:    variants,
		Options:     productOptions(in.editions, in.sizes),
		ImageURL:    sourceURL,
	})
	if err != nil {
		return nil, stepFailure(ctx, StepCreateRemote, err)
	}
	log = log.WithField("product_id", remote.ID)
	log.WithField("step", StepCreateRemote).WithField("variants", len(remote.Variants)).Info("Remote product created")

	// 5. Persist locally, compensating remotely on failure
	product, err := s.products.SaveRemoteProduct(ctx, remote, in.artist.ID, sourceURL, req.Price)
	if err != nil {
		return nil, s.compensate(ctx, log, remote.ID, err)
	}
	unlock()
	lockHeld = false

	// 6 and 7
	result, err := s.generateAssets(ctx, parent, product, remote.Variants, in, sourceURL)
	if err != nil {
		return nil, err
	}
	result.Product = product
	return result, nil
}

// RegenerateAssets reruns previews and print assets for an existing
// product from its stored source image.
func (s *FulfillmentService) RegenerateAssets(ctx context.Context, productID int64) (*CreateProductResult, error) {
	parent := ctx
	if deadline := s.cfg.RequestDeadline(); deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}

	product, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product.Artist == nil {
		return nil, &NotFoundError{Resource: "artist", ID: product.ArtistID}
	}

	editionIDs, sizeIDs := variantReferenceIDs(product.Variants)
	editions, err := s.references.EditionsByIDs(ctx, editionIDs)
	if err != nil {
		return nil, err
	}
	sizes, err := s.references.SizesByIDs(ctx, sizeIDs)
	if err != nil {
		return nil, err
	}

	data, err := s.images.Download(ctx, product.ImageURL)
	if err != nil {
		return nil, stepFailure(ctx, StepUploadSource, err)
	}
	in, err := decodeSource(data)
	if err != nil {
		return nil, err
	}
	in.artist = product.Artist
	in.editions = editions
	in.sizes = sizes

	remoteVariants := make([]RemoteVariant, 0, len(product.Variants))
	for _, v := range product.Variants {
		remoteVariants = append(remoteVariants, RemoteVariant{
			ID:        v.ID,
			ProductID: v.ProductID,
			Title:     v.Title,
			VariantDescriptor: VariantDescriptor{
				Option1: v.Option1,
				Option2: v.Option2,
				Option3: v.Option3,
				Price:   v.Price,
				SKU:     v.SKU,
			},
		})
	}

	result, err := s.generateAssets(ctx, parent, product, remoteVariants, in, product.ImageURL)
	if err != nil {
		return nil, err
	}
	result.Product = product
	return result, nil
}

// generateAssets runs preview generation and print asset generation side
// by side. Print assets run as a tracked task.
func (s *FulfillmentService) generateAssets(ctx, parent context.Context, product *models.Product, variants []RemoteVariant, in *validatedRequest, sourceURL string) (*CreateProductResult, error) {
	result := &CreateProductResult{}
	failures := &AssetFailures{}
	log := s.log.WithField("product_id", product.ID)

	// Awaited jobs follow the caller; detached ones outlive the request.
	taskParent := parent
	if !s.cfg.AwaitPrintAssets {
		taskParent = context.WithoutCancel(parent)
	}
	// Written by the job before the task finishes; read only after Wait.
	var saved []models.ProductImage
	task, err := s.tasks.Start(taskParent, product.ID, models.AssetTaskKindPrint,
		s.printAssetsJob(product.ID, sourceURL, in.nativeWidth, in.artist.FullName, product.Title, in.sizes, &saved))
	if err != nil {
		return nil, stepFailure(ctx, StepPrintAssets, err)
	}
	result.PrintTask = task

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		attached, previewFailures, err := s.attachPreviews(gctx, product, variants, in)
		if err != nil {
			return err
		}
		mu.Lock()
		result.Previews = attached
		failures.Merge(previewFailures)
		mu.Unlock()
		return nil
	})

	if s.cfg.AwaitPrintAssets {
		g.Go(func() error {
			finished, err := s.tasks.Wait(gctx, task.ID)
			if err != nil {
				return err
			}
			mu.Lock()
			result.PrintTask = finished
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.tasks.Cancel(task.ID)
		return nil, stepFailure(ctx, StepPreviews, err)
	}

	if s.cfg.AwaitPrintAssets && result.PrintTask.Status == models.AssetTaskStatusSucceeded {
		result.PrintAssets = saved
	}

	result.Failures = failures.Failures
	if result.Partial() {
		log.WithField("failures", len(failures.Failures)).Warn("Product created with missing assets")
	}
	return result, nil
}

func (s *FulfillmentService) attachPreviews(ctx context.Context, product *models.Product, variants []RemoteVariant, in *validatedRequest) ([]AttachedPreview, *AssetFailures, error) {
	previews, failures, err := s.pipeline.GeneratePreviews(ctx, in.photo, in.artist.FullName, product.Title, in.editions)
	if err != nil {
		return nil, nil, err
	}

	byKey := make(map[string]Preview, len(previews))
	for _, p := range previews {
		byKey[p.Key] = p
	}

	var attached []AttachedPreview
	for _, group := range GroupVariants(variants) {
		preview, ok := byKey[group.Key]
		if !ok {
			// already reported by the pipeline
			continue
		}

		remoteImage, err := s.catalog.AttachImage(ctx, product.ID, preview.URL, group.IDs())
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			failures.Add(stageAttach, group.Key, err)
			continue
		}
		attached = append(attached, AttachedPreview{
			Key:        group.Key,
			URL:        preview.URL,
			ImageID:    remoteImage.ID,
			VariantIDs: group.IDs(),
		})
	}

	return attached, failures, nil
}

func (s *FulfillmentService) printAssetsJob(productID int64, sourceURL string, nativeWidth int, artist, title string, sizes []models.Size, saved *[]models.ProductImage) TaskFunc {
	return func(ctx context.Context) error {
		assets, failures, err := s.pipeline.GeneratePrintAssets(ctx, sourceURL, nativeWidth, artist, title, sizes)
		if err != nil {
			return err
		}
		images, err := s.products.SavePrintAssets(ctx, productID, assets)
		if err != nil {
			return err
		}
		*saved = images
		return failures.ErrOrNil()
	}
}

// compensate deletes the remote product after local persistence failed.
func (s *FulfillmentService) compensate(ctx context.Context, log logrus.FieldLogger, remoteID int64, cause error) error {
	stepErr := &StepError{Step: StepPersist, Err: cause, RemoteProductID: remoteID}

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	if err := s.catalog.DeleteProduct(cctx, remoteID); err != nil {
		stepErr.Orphaned = true
		log.WithError(err).WithField("cause", cause.Error()).Error("Failed to delete remote product after local persist failure")
		return stepErr
	}

	log.WithError(cause).Warn("Local persist failed, remote product deleted")
	return stepErr
}

func (s *FulfillmentService) validate(ctx context.Context, req *CreateProductRequest) (*validatedRequest, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, &ValidationError{Field: "title", Message: "title is required"}
	}
	if req.Price.IsNegative() {
		return nil, &ValidationError{Field: "price", Message: "price must not be negative"}
	}
	if len(req.EditionIDs) == 0 {
		return nil, &ValidationError{Field: "editions", Message: "at least one edition is required"}
	}
	if len(req.SizeIDs) == 0 {
		return nil, &ValidationError{Field: "sizes", Message: "at least one size is required"}
	}
	if len(req.Image) == 0 {
		return nil, &ValidationError{Field: "image", Message: "image is required"}
	}

	artist, err := s.references.GetArtist(ctx, req.ArtistID)
	if err != nil {
		return nil, err
	}
	editions, err := s.references.EditionsByIDs(ctx, uniqueIDs(req.EditionIDs))
	if err != nil {
		return nil, err
	}
	sizes, err := s.references.SizesByIDs(ctx, uniqueIDs(req.SizeIDs))
	if err != nil {
		return nil, err
	}

	for _, edition := range editions {
		for _, framing := range models.Framings {
			if _, ok := FrameLayoutFor(edition.Display, framing); !ok {
				return nil, &ValidationError{
					Field:   "editions",
					Message: fmt.Sprintf("edition %q has no frame layout for %s", edition.Display, framing),
				}
			}
		}
	}
	if err := ValidateSKUInputs(artist.FullName, sizes); err != nil {
		return nil, err
	}

	in, err := decodeSource(req.Image)
	if err != nil {
		return nil, err
	}
	in.artist = artist
	in.editions = editions
	in.sizes = sizes
	return in, nil
}

func decodeSource(data []byte) (*validatedRequest, error) {
	contentType, ok := DetectImageType(data)
	if !ok {
		return nil, &ValidationError{Field: "image", Message: "image must be a JPEG or PNG file"}
	}
	photo, err := DecodeImage(data)
	if err != nil {
		return nil, &ValidationError{Field: "image", Message: err.Error()}
	}
	return &validatedRequest{
		photo:       photo,
		nativeWidth: photo.Bounds().Dx(),
		contentType: contentType,
	}, nil
}

// stepFailure keeps terminal input errors as they are and wraps the rest
// with the step reached.
func stepFailure(ctx context.Context, step string, err error) error {
	var validationErr *ValidationError
	var notFoundErr *NotFoundError
	if errors.As(err, &validationErr) || errors.As(err, &notFoundErr) {
		return err
	}
	if ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
		err = errors.Join(err, ctx.Err())
	}
	return &StepError{Step: step, Err: err}
}

func productOptions(editions []models.Edition, sizes []models.Size) []RemoteOption {
	editionValues := make([]string, 0, len(editions))
	for _, e := range editions {
		editionValues = append(editionValues, e.Display)
	}
	sizeValues := make([]string, 0, len(sizes))
	for _, sz := range sizes {
		sizeValues = append(sizeValues, sz.Display)
	}
	framingValues := make([]string, 0, len(models.Framings))
	for _, f := range models.Framings {
		framingValues = append(framingValues, f.String())
	}

	return []RemoteOption{
		{Name: "Edition", Values: editionValues},
		{Name: "Print Size", Values: sizeValues},
		{Name: "Framing", Values: framingValues},
	}
}

func variantReferenceIDs(variants []models.Variant) ([]uint, []uint) {
	var editionIDs, sizeIDs []uint
	seenEdition := make(map[uint]bool)
	seenSize := make(map[uint]bool)
	for _, v := range variants {
		if !seenEdition[v.EditionID] {
			seenEdition[v.EditionID] = true
			editionIDs = append(editionIDs, v.EditionID)
		}
		if !seenSize[v.SizeID] {
			seenSize[v.SizeID] = true
			sizeIDs = append(sizeIDs, v.SizeID)
		}
	}
	return editionIDs, sizeIDs
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func sourceExtension(filename, contentType string) string {
	if ext := strings.ToLower(filepath.Ext(filename)); ext == ".jpg" || ext == ".jpeg" || ext == ".png" {
		return ext
	}
	if contentType == "image/png" {
		return ".png"
	}
	return ".jpg"
}
