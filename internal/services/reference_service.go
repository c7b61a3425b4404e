// internal/services/reference_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gorm.io/gorm"

	"github.com/ratedarts/fulfillment/internal/models"
)

// aspectRatioTolerance is the largest ratio difference still treated as
// proportional.
const aspectRatioTolerance = 0.05

// ReferenceService reads artists, editions and sizes.
type ReferenceService struct {
	db *gorm.DB
}

func NewReferenceService(db *gorm.DB) *ReferenceService {
	return &ReferenceService{db: db}
}

func (s *ReferenceService) ListArtists(ctx context.Context) ([]models.Artist, error) {
	var artists []models.Artist
	if err := s.db.WithContext(ctx).Order("full_name").Find(&artists).Error; err != nil {
		return nil, fmt.Errorf("failed to list artists: %w", err)
	}
	return artists, nil
}

func (s *ReferenceService) ListEditions(ctx context.Context) ([]models.Edition, error) {
	var editions []models.Edition
	if err := s.db.WithContext(ctx).Order("id").Find(&editions).Error; err != nil {
		return nil, fmt.Errorf("failed to list editions: %w", err)
	}
	return editions, nil
}

func (s *ReferenceService) ListSizes(ctx context.Context) ([]models.Size, error) {
	var sizes []models.Size
	if err := s.db.WithContext(ctx).Order("id").Find(&sizes).Error; err != nil {
		return nil, fmt.Errorf("failed to list sizes: %w", err)
	}
	return sizes, nil
}

// ProportionalSizes returns the sizes whose aspect ratio matches
// width/height within tolerance.
func (s *ReferenceService) ProportionalSizes(ctx context.Context, width, height int) ([]models.Size, error) {
	if width <= 0 || height <= 0 {
		return nil, &ValidationError{Field: "width", Message: "width and height must be positive"}
	}

	sizes, err := s.ListSizes(ctx)
	if err != nil {
		return nil, err
	}

	matching := make([]models.Size, 0, len(sizes))
	for _, size := range sizes {
		if IsProportional(size, width, height) {
			matching = append(matching, size)
		}
	}
	return matching, nil
}

func IsProportional(size models.Size, width, height int) bool {
	if size.Height == 0 || height == 0 {
		return false
	}
	sizeRatio := float64(size.Width) / float64(size.Height)
	ratio := float64(width) / float64(height)
	return math.Abs(sizeRatio-ratio) < aspectRatioTolerance
}

func (s *ReferenceService) GetArtist(ctx context.Context, id uint) (*models.Artist, error) {
	var artist models.Artist
	if err := s.db.WithContext(ctx).First(&artist, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "artist", ID: id}
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &artist, nil
}

// EditionsByIDs loads editions in the order of ids. Unknown ids fail with
// NotFoundError.
func (s *ReferenceService) EditionsByIDs(ctx context.Context, ids []uint) ([]models.Edition, error) {
	var rows []models.Edition
	if len(ids) > 0 {
		if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("database error: %w", err)
		}
	}

	byID := make(map[uint]models.Edition, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}
	out := make([]models.Edition, 0, len(ids))
	for _, id := range ids {
		e, ok := byID[id]
		if !ok {
			return nil, &NotFoundError{Resource: "edition", ID: id}
		}
		out = append(out, e)
	}
	return out, nil
}

// SizesByIDs loads sizes in the order of ids. Unknown ids fail with
// NotFoundError.
func (s *ReferenceService) SizesByIDs(ctx context.Context, ids []uint) ([]models.Size, error) {
	var rows []models.Size
	if len(ids) > 0 {
		if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("database error: %w", err)
		}
	}

	byID := make(map[uint]models.Size, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}
	out := make([]models.Size, 0, len(ids))
	for _, id := range ids {
		size, ok := byID[id]
		if !ok {
			return nil, &NotFoundError{Resource: "size", ID: id}
		}
		out = append(out, size)
	}
	return out, nil
}
