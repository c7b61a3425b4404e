// internal/models/catalog.go
package models

// Artist owns products. Rows are created lazily from a remote vendor name.
type Artist struct {
	BaseModel
	FullName string `json:"full_name" gorm:"size:255;not null;uniqueIndex"`

	// Relationships
	Products []Product `json:"products,omitempty" gorm:"foreignKey:ArtistID"`
}

// Edition is a print series such as Canvas, Paper or Crystal.
type Edition struct {
	BaseModel
	Display string `json:"display" gorm:"size:100;not null;uniqueIndex"`
}

// Size is a physical print dimension plus the pixel width the upscaler
// has to reach for it.
type Size struct {
	BaseModel
	Display      string `json:"display" gorm:"size:50;not null;uniqueIndex"`
	Width        int    `json:"width" gorm:"not null"`
	Height       int    `json:"height" gorm:"not null"`
	PicsartWidth int    `json:"picsart_width" gorm:"not null"`
}
