// internal/models/order.go
package models

import (
	"github.com/shopspring/decimal"
)

type Customer struct {
	RemoteModel
	FirstName string `json:"first_name" gorm:"size:100"`
	LastName  string `json:"last_name" gorm:"size:100"`
	Name      string `json:"name" gorm:"size:255"`
	Email     string `json:"email" gorm:"size:255;index"`
	Phone     string `json:"phone" gorm:"size:50"`
	Address   string `json:"address" gorm:"size:255"`
	City      string `json:"city" gorm:"size:100"`
	Province  string `json:"province" gorm:"size:100"`
	Zip       string `json:"zip" gorm:"size:20"`
	Country   string `json:"country" gorm:"size:100"`
}

type Order struct {
	RemoteModel
	OrderNumber int             `json:"order_number" gorm:"index"`
	Total       decimal.Decimal `json:"total" gorm:"type:decimal(10,2)"`
	Currency    string          `json:"currency" gorm:"size:3"`
	ArtistName  string          `json:"artist_name" gorm:"size:255"`
	CustomerID  *int64          `json:"customer_id" gorm:"index"`

	// Relationships
	Customer  *Customer  `json:"customer,omitempty" gorm:"foreignKey:CustomerID"`
	LineItems []LineItem `json:"line_items,omitempty" gorm:"foreignKey:OrderID"`
}

// LineItem mirrors a remote line item. Type, Size and Frames are parsed
// from the variant title.
type LineItem struct {
	RemoteModel
	Name            string          `json:"name" gorm:"size:255"`
	OrderID         int64           `json:"order_id" gorm:"not null;index"`
	ProductID       int64           `json:"product_id" gorm:"not null;index"`
	VariantID       int64           `json:"variant_id" gorm:"index"`
	Quantity        int             `json:"quantity"`
	Price           decimal.Decimal `json:"price" gorm:"type:decimal(10,2)"`
	Size            string          `json:"size" gorm:"size:50"`
	Type            string          `json:"type" gorm:"size:100"`
	Frames          string          `json:"frames" gorm:"size:50"`
	ImageURL        string          `json:"image_url" gorm:"size:1024"`
	ResizedImageURL string          `json:"resized_image_url" gorm:"size:1024"`
	SKU             string          `json:"sku" gorm:"column:sku;size:64"`
}
