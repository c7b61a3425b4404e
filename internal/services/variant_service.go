// internal/services/variant_service.go
package services

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/ratedarts/fulfillment/internal/models"
)

const (
	inventoryManagementRemote = "shopify"
	defaultInventoryQuantity  = 1000
)

// VariantDescriptor is a variant as sent to the commerce platform, before
// it has been assigned an id.
type VariantDescriptor struct {
	Option1             string          `json:"option1"`
	Option2             string          `json:"option2"`
	Option3             string          `json:"option3"`
	Price               decimal.Decimal `json:"price"`
	SKU                 string          `json:"sku"`
	InventoryManagement string          `json:"inventory_management,omitempty"`
	InventoryQuantity   int             `json:"inventory_quantity"`
	Taxable             bool            `json:"taxable"`
}

// GenerateVariants returns one descriptor per (edition, size, framing),
// iterating edition, then size, then framing. Every variant of the call
// shares the SKU suffix existingProducts+1.
func GenerateVariants(existingProducts int64, editions []models.Edition, sizes []models.Size, artistFullName string, price decimal.Decimal) ([]VariantDescriptor, error) {
	initials, err := artistInitials(artistFullName)
	if err != nil {
		return nil, err
	}

	variants := make([]VariantDescriptor, 0, len(editions)*len(sizes)*len(models.Framings))
	for _, edition := range editions {
		for _, size := range sizes {
			for _, framing := range models.Framings {
				mid, err := skuMiddle(edition.Display, size.Display, framing)
				if err != nil {
					return nil, err
				}

				variants = append(variants, VariantDescriptor{
					Option1:             edition.Display,
					Option2:             size.Display,
					Option3:             framing.String(),
					Price:               price,
					SKU:                 fmt.Sprintf("%s-%s-%d", initials, mid, existingProducts+1),
					InventoryManagement: inventoryManagementRemote,
					InventoryQuantity:   defaultInventoryQuantity,
					Taxable:             true,
				})
			}
		}
	}

	return variants, nil
}

// BuildSKU derives the SKU for a single combination.
func BuildSKU(artistFullName, edition, size string, framing models.Framing, existingProducts int64) (string, error) {
	initials, err := artistInitials(artistFullName)
	if err != nil {
		return "", err
	}
	mid, err := skuMiddle(edition, size, framing)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%d", initials, mid, existingProducts+1), nil
}

// ValidateSKUInputs checks up front that every size can be encoded in a SKU.
func ValidateSKUInputs(artistFullName string, sizes []models.Size) error {
	if _, err := artistInitials(artistFullName); err != nil {
		return err
	}
	for _, size := range sizes {
		if sizeDigits(size.Display) == "" {
			return &ValidationError{
				Field:   "sizes",
				Message: fmt.Sprintf("size %q has no digits to encode in a SKU", size.Display),
			}
		}
	}
	return nil
}

func artistInitials(fullName string) (string, error) {
	tokens := strings.Fields(fullName)
	if len(tokens) == 0 {
		return "", &ValidationError{Field: "artist", Message: "artist name is empty"}
	}
	if len(tokens) > 2 {
		tokens = tokens[:2]
	}

	var b strings.Builder
	for _, token := range tokens {
		r := []rune(token)[0]
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String(), nil
}

func skuMiddle(edition, size string, framing models.Framing) (string, error) {
	digits := sizeDigits(size)
	if digits == "" {
		return "", &ValidationError{
			Field:   "sizes",
			Message: fmt.Sprintf("size %q has no digits to encode in a SKU", size),
		}
	}
	return prefix2Upper(edition) + digits + prefix2Upper(framing.String()), nil
}

func sizeDigits(display string) string {
	var b strings.Builder
	for _, r := range display {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func prefix2Upper(s string) string {
	r := []rune(s)
	if len(r) > 2 {
		r = r[:2]
	}
	return strings.ToUpper(string(r))
}

// VariantGroupKey identifies the preview image shared by a set of variants.
func VariantGroupKey(edition string, framing models.Framing) string {
	return edition + "-" + framing.String()
}

// VariantGroup holds the remote variants that share one framed preview.
type VariantGroup struct {
	Key      string
	Edition  string
	Framing  models.Framing
	Variants []RemoteVariant
}

func (g VariantGroup) IDs() []int64 {
	ids := make([]int64, 0, len(g.Variants))
	for _, v := range g.Variants {
		ids = append(ids, v.ID)
	}
	return ids
}

// GroupVariants groups by (option1, option3) preserving first-seen order.
func GroupVariants(variants []RemoteVariant) []VariantGroup {
	index := make(map[string]int)
	var groups []VariantGroup

	for _, v := range variants {
		framing := models.Framing(v.Option3)
		key := VariantGroupKey(v.Option1, framing)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, VariantGroup{Key: key, Edition: v.Option1, Framing: framing})
		}
		groups[i].Variants = append(groups[i].Variants, v)
	}

	return groups
}

// FlattenGroups is the inverse of GroupVariants up to ordering.
func FlattenGroups(groups []VariantGroup) []RemoteVariant {
	var out []RemoteVariant
	for _, g := range groups {
		out = append(out, g.Variants...)
	}
	return out
}
