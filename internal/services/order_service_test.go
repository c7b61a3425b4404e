package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ratedarts/fulfillment/internal/models"
)

func TestParseLineItemName(t *testing.T) {
	itemType, size, frames, err := ParseLineItemName("Sea Wall - Canvas / 8x10 / Black")
	require.NoError(t, err)
	assert.Equal(t, "Canvas", itemType)
	assert.Equal(t, "8x10", size)
	assert.Equal(t, "Black", frames)

	// A dash inside the product name is kept with the name
	itemType, _, _, err = ParseLineItemName("Sea - Wall - Paper / 12x16 / Unframed")
	require.NoError(t, err)
	assert.Equal(t, "Paper", itemType)

	for _, name := range []string{
		"Sea Wall",
		"Sea Wall - Canvas / 8x10",
		"Sea Wall - Canvas / 8x10 / Black / Extra",
		"Sea Wall - Canvas /  / Black",
	} {
		_, _, _, err := ParseLineItemName(name)
		var formatErr *FormatError
		assert.ErrorAs(t, err, &formatErr, name)
	}
}

type orderFixture struct {
	svc      *OrderService
	products *ProductService
	catalog  *fakeCatalog
}

func newOrderFixture(t *testing.T) *orderFixture {
	t.Helper()
	db := newTestDB(t)
	products := NewProductService(db)
	catalog := newFakeCatalog()
	return &orderFixture{
		svc:      NewOrderService(db, products, catalog, 3, quietLogger()),
		products: products,
		catalog:  catalog,
	}
}

func remoteOrderFixture(id, productID int64) *RemoteOrder {
	return &RemoteOrder{
		ID:          id,
		OrderNumber: int(id) + 1000,
		TotalPrice:  decimal.RequireFromString("180.00"),
		Currency:    "USD",
		CreatedAt:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Email:       "buyer@example.com",
		Customer:    &RemoteCustomer{ID: 31, FirstName: "Sam", LastName: "Reed"},
		BillingAddress: &RemoteAddress{
			FirstName: "Sam",
			LastName:  "Reed",
			Name:      "Sam Reed",
			Address1:  "1 Harbour St",
			City:      "Portland",
			Province:  "Maine",
			Zip:       "04101",
			Country:   "United States",
		},
		LineItems: []RemoteLineItem{
			{ID: id*10 + 1, Name: "Sea Wall - Canvas / 8x10 / Black", ProductID: productID, VariantID: productID*10 + 1, Quantity: 1, Price: decimal.NewFromInt(90), SKU: "AL-CA810BL-1", Vendor: "Ana Lopez"},
			{ID: id*10 + 2, Name: "Sea Wall - Canvas / 8x10 / Unframed", ProductID: productID, VariantID: productID*10 + 2, Quantity: 1, Price: decimal.NewFromInt(90), SKU: "AL-CA810UN-1", Vendor: "Ana Lopez"},
		},
	}
}

func TestOrderService_IngestBackfillsMissingProduct(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	f.catalog.products[700] = remoteProductFixture(700, "Ana Lopez")

	order, err := f.svc.IngestOrder(ctx, remoteOrderFixture(1, 700))
	require.NoError(t, err)

	// Both line items reference product 700; it is fetched once
	assert.Equal(t, 1, f.catalog.getProductCalls(700))

	product, err := f.products.GetProduct(ctx, 700)
	require.NoError(t, err)
	assert.Len(t, product.Variants, 2)

	assert.Equal(t, "Ana Lopez", order.ArtistName)
	require.NotNil(t, order.Customer)
	assert.Equal(t, "Sam Reed", order.Customer.Name)
	assert.Equal(t, "buyer@example.com", order.Customer.Email)
	require.Len(t, order.LineItems, 2)

	item := order.LineItems[0]
	assert.Equal(t, "Canvas", item.Type)
	assert.Equal(t, "8x10", item.Size)
	assert.Equal(t, "Black", item.Frames)
	assert.Equal(t, "https://cdn.shop.test/sea-wall.jpg", item.ImageURL)
	assert.Empty(t, item.ResizedImageURL)
}

func TestOrderService_IngestUsesPrintAssets(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	f.catalog.products[701] = remoteProductFixture(701, "Ana Lopez")

	_, err := f.products.ImportRemoteProduct(ctx, f.catalog.products[701])
	require.NoError(t, err)
	product, err := f.products.GetProduct(ctx, 701)
	require.NoError(t, err)
	_, err = f.products.SavePrintAssets(ctx, 701, []PrintAsset{{SizeID: product.Variants[0].SizeID, URL: "https://bucket.test/AnaLopez/SeaWall/8x10.jpg"}})
	require.NoError(t, err)

	order, err := f.svc.IngestOrder(ctx, remoteOrderFixture(2, 701))
	require.NoError(t, err)

	assert.Zero(t, f.catalog.getProductCalls(701))
	assert.Equal(t, "https://bucket.test/AnaLopez/SeaWall/8x10.jpg", order.LineItems[0].ResizedImageURL)
}

func TestOrderService_IngestIsIdempotent(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	f.catalog.products[702] = remoteProductFixture(702, "Ana Lopez")

	first, err := f.svc.IngestOrder(ctx, remoteOrderFixture(3, 702))
	require.NoError(t, err)
	second, err := f.svc.IngestOrder(ctx, remoteOrderFixture(3, 702))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, second.LineItems, 2)

	orders, total, err := f.svc.ListOrders(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, orders, 1)
}

func TestOrderService_ConcurrentBackfill(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	f.catalog.products[703] = remoteProductFixture(703, "Ana Lopez")

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.IngestOrder(ctx, remoteOrderFixture(int64(10+i), 703))
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	var count int64
	require.NoError(t, f.svc.db.Model(&models.Product{}).Where("id = ?", 703).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestOrderService_MalformedTitleRejected(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	f.catalog.products[704] = remoteProductFixture(704, "Ana Lopez")

	remote := remoteOrderFixture(4, 704)
	remote.LineItems[1].Name = "Sea Wall"

	_, err := f.svc.IngestOrder(ctx, remote)
	var formatErr *FormatError
	require.ErrorAs(t, err, &formatErr)

	// Rejected before any backfill or write
	assert.Zero(t, f.catalog.getProductCalls(704))
	_, err = f.svc.GetOrder(ctx, 4)
	var notFound *NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestOrderService_MissingRemoteProduct(t *testing.T) {
	f := newOrderFixture(t)

	_, err := f.svc.IngestOrder(context.Background(), remoteOrderFixture(5, 999))
	var apiErr *RemoteAPIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.Status)
}

func TestOrderService_SyncOrders(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	f.catalog.products[705] = remoteProductFixture(705, "Ana Lopez")

	f.catalog.orders[20] = remoteOrderFixture(20, 705)
	f.catalog.orders[21] = remoteOrderFixture(21, 705)
	bad := remoteOrderFixture(22, 705)
	bad.LineItems[0].Name = "no options"
	f.catalog.orders[22] = bad

	_, err := f.svc.IngestOrder(ctx, f.catalog.orders[20])
	require.NoError(t, err)

	summary, err := f.svc.SyncOrders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Listed)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Ingested)
	assert.Contains(t, summary.Failed, int64(22))
}
