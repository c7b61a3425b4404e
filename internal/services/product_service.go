// internal/services/product_service.go
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ratedarts/fulfillment/internal/database"
	"github.com/ratedarts/fulfillment/internal/models"
	"github.com/ratedarts/fulfillment/internal/utils"
)

// ProductService owns the local product/variant/image graph.
type ProductService struct {
	db *gorm.DB
}

type ProductSearchParams struct {
	utils.PaginationParams
	ArtistID *uint `json:"artist_id,omitempty"`
}

func NewProductService(db *gorm.DB) *ProductService {
	return &ProductService{db: db}
}

// CountByArtist seeds the SKU suffix.
func (s *ProductService) CountByArtist(ctx context.Context, artistID uint) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Product{}).Where("artist_id = ?", artistID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count artist products: %w", err)
	}
	return count, nil
}

// SaveRemoteProduct persists a product created on the commerce platform
// together with its variants. Local ids equal the remote ids.
func (s *ProductService) SaveRemoteProduct(ctx context.Context, remote *RemoteProduct, artistID uint, imageURL string, price decimal.Decimal) (*models.Product, error) {
	var product *models.Product
	err := database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		var err error
		product, err = saveRemoteProduct(tx, remote, artistID, imageURL, price, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}

// ImportRemoteProduct backfills a product that exists remotely but not
// locally. The artist is resolved from the vendor name and created when
// missing. A product row already inserted by a concurrent import is kept
// as is and returned.
func (s *ProductService) ImportRemoteProduct(ctx context.Context, remote *RemoteProduct) (*models.Product, error) {
	if remote.Vendor == "" {
		return nil, &ValidationError{Field: "vendor", Message: fmt.Sprintf("remote product %d has no vendor", remote.ID)}
	}

	price := decimal.Zero
	if len(remote.Variants) > 0 {
		price = remote.Variants[0].Price
	}

	var product *models.Product
	err := database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		artist := models.Artist{FullName: remote.Vendor}
		if err := tx.Where(models.Artist{FullName: remote.Vendor}).FirstOrCreate(&artist).Error; err != nil {
			return fmt.Errorf("failed to resolve artist %q: %w", remote.Vendor, err)
		}

		var err error
		product, err = saveRemoteProduct(tx, remote, artist.ID, remote.MarketingImageURL(), price, true)
		return err
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}

func saveRemoteProduct(tx *gorm.DB, remote *RemoteProduct, artistID uint, imageURL string, price decimal.Decimal, skipExisting bool) (*models.Product, error) {
	var editions []models.Edition
	if err := tx.Find(&editions).Error; err != nil {
		return nil, fmt.Errorf("failed to load editions: %w", err)
	}
	var sizes []models.Size
	if err := tx.Find(&sizes).Error; err != nil {
		return nil, fmt.Errorf("failed to load sizes: %w", err)
	}

	variants, err := resolveVariants(remote.ID, remote.Variants, editions, sizes)
	if err != nil {
		return nil, err
	}

	product := &models.Product{
		RemoteModel: models.RemoteModel{ID: remote.ID},
		Title:       remote.Title,
		Description: remote.BodyHTML,
		ImageURL:    imageURL,
		Price:       price,
		Quantity:    defaultInventoryQuantity,
		ArtistID:    artistID,
	}
	insert := tx.Omit(clause.Associations)
	if skipExisting {
		insert = insert.Clauses(clause.OnConflict{DoNothing: true})
	}
	result := insert.Create(product)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to create product: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		var existing models.Product
		if err := tx.Preload("Variants").First(&existing, remote.ID).Error; err != nil {
			return nil, fmt.Errorf("failed to load product %d: %w", remote.ID, err)
		}
		return &existing, nil
	}
	if len(variants) > 0 {
		if err := tx.Omit(clause.Associations).Create(&variants).Error; err != nil {
			return nil, fmt.Errorf("failed to create variants: %w", err)
		}
	}

	product.Variants = variants
	return product, nil
}

// resolveVariants joins option text to local reference rows by display
// string.
func resolveVariants(productID int64, remote []RemoteVariant, editions []models.Edition, sizes []models.Size) ([]models.Variant, error) {
	editionIDs := make(map[string]uint, len(editions))
	for _, e := range editions {
		editionIDs[e.Display] = e.ID
	}
	sizeIDs := make(map[string]uint, len(sizes))
	for _, sz := range sizes {
		sizeIDs[sz.Display] = sz.ID
	}

	variants := make([]models.Variant, 0, len(remote))
	for _, rv := range remote {
		editionID, ok := editionIDs[rv.Option1]
		if !ok {
			return nil, &ReferenceResolutionError{VariantID: rv.ID, Field: "edition", Value: rv.Option1}
		}
		sizeID, ok := sizeIDs[rv.Option2]
		if !ok {
			return nil, &ReferenceResolutionError{VariantID: rv.ID, Field: "size", Value: rv.Option2}
		}

		title := rv.Title
		if title == "" {
			title = fmt.Sprintf("%s / %s / %s", rv.Option1, rv.Option2, rv.Option3)
		}

		variants = append(variants, models.Variant{
			RemoteModel:       models.RemoteModel{ID: rv.ID},
			Title:             title,
			ProductID:         productID,
			Option1:           rv.Option1,
			Option2:           rv.Option2,
			Option3:           rv.Option3,
			Price:             rv.Price,
			SKU:               rv.SKU,
			InventoryQuantity: rv.InventoryQuantity,
			EditionID:         editionID,
			SizeID:            sizeID,
		})
	}
	return variants, nil
}

// SavePrintAssets upserts one ProductImage per size.
func (s *ProductService) SavePrintAssets(ctx context.Context, productID int64, assets []PrintAsset) ([]models.ProductImage, error) {
	if len(assets) == 0 {
		return nil, nil
	}

	images := make([]models.ProductImage, 0, len(assets))
	for _, a := range assets {
		images = append(images, models.ProductImage{ProductID: productID, SizeID: a.SizeID, ImageURL: a.URL})
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_id"}, {Name: "size_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"image_url", "updated_at"}),
	}).Create(&images).Error
	if err != nil {
		return nil, fmt.Errorf("failed to save product images: %w", err)
	}
	return images, nil
}

func (s *ProductService) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.WithContext(ctx).
		Preload("Artist").
		Preload("Variants", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Images.Size").
		First(&product, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "product", ID: id}
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &product, nil
}

func (s *ProductService) SearchProducts(ctx context.Context, params ProductSearchParams) ([]models.Product, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Product{})
	if params.ArtistID != nil {
		query = query.Where("artist_id = ?", *params.ArtistID)
	}
	if params.Search != "" {
		query = query.Where("LOWER(title) LIKE LOWER(?)", "%"+params.Search+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	var products []models.Product
	query = utils.ApplySort(query, params.PaginationParams, []string{"created_at", "title", "price"})
	query = utils.ApplyPagination(query, params.PaginationParams)
	if err := query.Preload("Artist").Find(&products).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	return products, total, nil
}

// GetImageForPrint returns the print-ready asset URL for a product size.
func (s *ProductService) GetImageForPrint(ctx context.Context, productID int64, sizeID uint) (string, error) {
	var image models.ProductImage
	err := s.db.WithContext(ctx).
		Where("product_id = ? AND size_id = ?", productID, sizeID).
		First(&image).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", &NotFoundError{Resource: "product_image", ID: fmt.Sprintf("%d/%d", productID, sizeID)}
		}
		return "", fmt.Errorf("database error: %w", err)
	}
	return image.ImageURL, nil
}

// ExistingProductIDs reports which of ids are already stored locally.
func (s *ProductService) ExistingProductIDs(ctx context.Context, ids []int64) (map[int64]bool, error) {
	existing := make(map[int64]bool, len(ids))
	if len(ids) == 0 {
		return existing, nil
	}

	var found []int64
	if err := s.db.WithContext(ctx).Model(&models.Product{}).Where("id IN ?", ids).Pluck("id", &found).Error; err != nil {
		return nil, fmt.Errorf("failed to check products: %w", err)
	}
	for _, id := range found {
		existing[id] = true
	}
	return existing, nil
}
