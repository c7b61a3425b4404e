package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ratedarts/fulfillment/internal/models"
)

func TestReferenceService_Lists(t *testing.T) {
	db := newTestDB(t)
	svc := NewReferenceService(db)
	ctx := context.Background()

	createArtist(t, db, "Zoe Park")
	createArtist(t, db, "Ana Lopez")

	artists, err := svc.ListArtists(ctx)
	require.NoError(t, err)
	require.Len(t, artists, 2)
	assert.Equal(t, "Ana Lopez", artists[0].FullName)

	editions, err := svc.ListEditions(ctx)
	require.NoError(t, err)
	assert.Len(t, editions, 3)

	sizes, err := svc.ListSizes(ctx)
	require.NoError(t, err)
	assert.Len(t, sizes, 5)
}

func TestReferenceService_ProportionalSizes(t *testing.T) {
	svc := NewReferenceService(newTestDB(t))
	ctx := context.Background()

	// 4:5 matches 8x10 and 16x20 exactly
	sizes, err := svc.ProportionalSizes(ctx, 4000, 5000)
	require.NoError(t, err)
	displays := make([]string, 0, len(sizes))
	for _, s := range sizes {
		displays = append(displays, s.Display)
	}
	assert.ElementsMatch(t, []string{"8x10", "16x20"}, displays)

	// 3:4 matches 12x16 and 18x24
	sizes, err = svc.ProportionalSizes(ctx, 3000, 4000)
	require.NoError(t, err)
	assert.Len(t, sizes, 2)

	_, err = svc.ProportionalSizes(ctx, 0, 100)
	var validationErr *ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestIsProportional(t *testing.T) {
	size := models.Size{Width: 24, Height: 36}
	assert.True(t, IsProportional(size, 2000, 3000))
	assert.True(t, IsProportional(size, 2050, 3000))
	assert.False(t, IsProportional(size, 3000, 3000))
	assert.False(t, IsProportional(models.Size{}, 1, 1))
}

func TestReferenceService_ByIDs(t *testing.T) {
	db := newTestDB(t)
	svc := NewReferenceService(db)
	ctx := context.Background()

	paper := editionByDisplay(t, db, "Paper")
	canvas := editionByDisplay(t, db, "Canvas")

	editions, err := svc.EditionsByIDs(ctx, []uint{paper.ID, canvas.ID})
	require.NoError(t, err)
	require.Len(t, editions, 2)
	assert.Equal(t, "Paper", editions[0].Display)
	assert.Equal(t, "Canvas", editions[1].Display)

	_, err = svc.SizesByIDs(ctx, []uint{999})
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "size", notFound.Resource)

	_, err = svc.GetArtist(ctx, 42)
	assert.ErrorAs(t, err, &notFound)
}
