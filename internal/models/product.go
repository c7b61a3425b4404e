// internal/models/product.go
package models

import (
	"github.com/shopspring/decimal"
)

type Product struct {
	RemoteModel
	Title       string          `json:"title" gorm:"size:255;not null"`
	Description string          `json:"description" gorm:"type:text"`
	ImageURL    string          `json:"image_url" gorm:"size:1024"`
	Price       decimal.Decimal `json:"price" gorm:"type:decimal(10,2);not null"`
	Quantity    int             `json:"quantity" gorm:"default:0"`
	ArtistID    uint            `json:"artist_id" gorm:"not null;index"`

	// Relationships
	Artist   *Artist        `json:"artist,omitempty" gorm:"foreignKey:ArtistID"`
	Variants []Variant      `json:"variants,omitempty" gorm:"foreignKey:ProductID"`
	Images   []ProductImage `json:"images,omitempty" gorm:"foreignKey:ProductID"`
}

// Variant is one (edition, size, framing) combination of a product.
// Option1 holds the edition display, Option2 the size display and
// Option3 the framing.
type Variant struct {
	RemoteModel
	Title             string          `json:"title" gorm:"size:255"`
	ProductID         int64           `json:"product_id" gorm:"not null;index"`
	Option1           string          `json:"option1" gorm:"size:100"`
	Option2           string          `json:"option2" gorm:"size:50"`
	Option3           string          `json:"option3" gorm:"size:50"`
	Price             decimal.Decimal `json:"price" gorm:"type:decimal(10,2);not null"`
	SKU               string          `json:"sku" gorm:"column:sku;size:64;index"`
	InventoryQuantity int             `json:"inventory_quantity"`
	EditionID         uint            `json:"edition_id" gorm:"not null;index"`
	SizeID            uint            `json:"size_id" gorm:"not null;index"`

	// Relationships
	Edition *Edition `json:"edition,omitempty" gorm:"foreignKey:EditionID"`
	Size    *Size    `json:"size,omitempty" gorm:"foreignKey:SizeID"`
}

// ProductImage points at the print-ready derivative for one size.
type ProductImage struct {
	BaseModel
	ProductID int64  `json:"product_id" gorm:"not null;uniqueIndex:idx_product_images_product_size"`
	SizeID    uint   `json:"size_id" gorm:"not null;uniqueIndex:idx_product_images_product_size"`
	ImageURL  string `json:"image_url" gorm:"size:1024;not null"`

	// Relationships
	Size *Size `json:"size,omitempty" gorm:"foreignKey:SizeID"`
}
