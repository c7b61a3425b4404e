package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ratedarts/fulfillment/internal/database"
	"github.com/ratedarts/fulfillment/internal/models"
)

func init() {
	retryInitialInterval = time.Millisecond
	retryMaxInterval = 5 * time.Millisecond
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// newTestDB opens a migrated and seeded in-memory database. A single
// connection keeps every query on the same sqlite memory store.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	log := quietLogger()
	require.NoError(t, database.RunMigrations(db, log))
	require.NoError(t, database.SeedReferenceData(db, log))
	return db
}

func createArtist(t *testing.T, db *gorm.DB, name string) *models.Artist {
	t.Helper()
	artist := &models.Artist{FullName: name}
	require.NoError(t, db.Create(artist).Error)
	return artist
}

func editionByDisplay(t *testing.T, db *gorm.DB, display string) models.Edition {
	t.Helper()
	var edition models.Edition
	require.NoError(t, db.Where("display = ?", display).First(&edition).Error)
	return edition
}

func sizeByDisplay(t *testing.T, db *gorm.DB, display string) models.Size {
	t.Helper()
	var size models.Size
	require.NoError(t, db.Where("display = ?", display).First(&size).Error)
	return size
}

func solidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func jpegBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

// memStorage is an in-memory ObjectStorage.
type memStorage struct {
	mu       sync.Mutex
	objects  map[string][]byte
	failPuts map[string]error
	puts     []string
}

func newMemStorage() *memStorage {
	return &memStorage{objects: make(map[string][]byte), failPuts: make(map[string]error)}
}

func (m *memStorage) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failPuts[key]; ok {
		return "", &StorageError{Op: "put", Key: key, Err: err}
	}
	m.objects[key] = append([]byte(nil), body...)
	m.puts = append(m.puts, key)
	return m.PublicURL(key), nil
}

func (m *memStorage) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, &StorageError{Op: "get", Key: key, Err: errors.New("no such key"), Missing: true}
	}
	return data, nil
}

func (m *memStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memStorage) PublicURL(key string) string {
	return "https://bucket.test/" + key
}

func (m *memStorage) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

// seedFrames stores a small frame overlay for every edition and framing.
func (m *memStorage) seedFrames(t *testing.T, prefix string, editions ...string) {
	t.Helper()
	frame := pngBytes(t, solidImage(16, 16, color.RGBA{A: 255}))
	for _, edition := range editions {
		for _, framing := range models.Framings {
			m.objects[FrameAssetKey(prefix, edition, framing)] = frame
		}
	}
}

// fakeImages is an ImageProcessor that records calls.
type fakeImages struct {
	mu          sync.Mutex
	upscales    []float64
	resizes     []int
	downloads   []string
	upscaleErr  error
	resizeErrs  map[int]error
	downloadErr error
	payload     []byte
}

func newFakeImages(payload []byte) *fakeImages {
	return &fakeImages{resizeErrs: make(map[int]error), payload: payload}
}

func (f *fakeImages) Upscale(ctx context.Context, url string, factor float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upscales = append(f.upscales, factor)
	if f.upscaleErr != nil {
		return "", f.upscaleErr
	}
	return url + "?upscaled", nil
}

func (f *fakeImages) Resize(ctx context.Context, url string, width int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resizes = append(f.resizes, width)
	if err := f.resizeErrs[width]; err != nil {
		return "", err
	}
	return fmt.Sprintf("%s&w=%d", url, width), nil
}

func (f *fakeImages) Download(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads = append(f.downloads, url)
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	return f.payload, nil
}

type attachCall struct {
	productID  int64
	url        string
	variantIDs []int64
}

// fakeCatalog is an in-memory CatalogClient.
type fakeCatalog struct {
	mu sync.Mutex

	nextID   int64
	products map[int64]*RemoteProduct
	orders   map[int64]*RemoteOrder

	attaches    []attachCall
	deleted     []int64
	getProducts map[int64]int

	createErr error
	attachErr error
	deleteErr error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		nextID:      1000,
		products:    make(map[int64]*RemoteProduct),
		orders:      make(map[int64]*RemoteOrder),
		getProducts: make(map[int64]int),
	}
}

func (f *fakeCatalog) CreateProduct(ctx context.Context, product *NewRemoteProduct) (*RemoteProduct, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}

	f.nextID++
	remote := &RemoteProduct{
		ID:       f.nextID,
		Title:    product.Title,
		BodyHTML: product.Description,
		Vendor:   product.Vendor,
		Options:  product.Options,
		Image:    &RemoteImage{Src: product.ImageURL},
	}
	for i, v := range product.Variants {
		remote.Variants = append(remote.Variants, RemoteVariant{
			ID:                f.nextID*100 + int64(i),
			ProductID:         f.nextID,
			Title:             fmt.Sprintf("%s / %s / %s", v.Option1, v.Option2, v.Option3),
			VariantDescriptor: v,
		})
	}
	f.products[remote.ID] = remote
	return remote, nil
}

func (f *fakeCatalog) AttachImage(ctx context.Context, productID int64, imageURL string, variantIDs []int64) (*RemoteImage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.attachErr != nil {
		return nil, f.attachErr
	}
	f.attaches = append(f.attaches, attachCall{productID: productID, url: imageURL, variantIDs: variantIDs})
	return &RemoteImage{ID: int64(len(f.attaches)), ProductID: productID, Src: imageURL, VariantIDs: variantIDs}, nil
}

func (f *fakeCatalog) GetProduct(ctx context.Context, id int64) (*RemoteProduct, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getProducts[id]++
	p, ok := f.products[id]
	if !ok {
		return nil, &RemoteAPIError{Service: catalogServiceName, Method: "GET", Path: fmt.Sprintf("products/%d.json", id), Status: 404, Body: "Not Found"}
	}
	return p, nil
}

func (f *fakeCatalog) DeleteProduct(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.products, id)
	return nil
}

func (f *fakeCatalog) ListOrders(ctx context.Context) ([]RemoteOrderSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]RemoteOrderSummary, 0, len(f.orders))
	for _, o := range f.orders {
		out = append(out, RemoteOrderSummary{ID: o.ID, OrderNumber: o.OrderNumber, CreatedAt: o.CreatedAt})
	}
	return out, nil
}

func (f *fakeCatalog) GetOrder(ctx context.Context, id int64) (*RemoteOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, &RemoteAPIError{Service: catalogServiceName, Method: "GET", Path: fmt.Sprintf("orders/%d.json", id), Status: 404, Body: "Not Found"}
	}
	return o, nil
}

func (f *fakeCatalog) getProductCalls(id int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getProducts[id]
}
