// internal/services/order_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ratedarts/fulfillment/internal/database"
	"github.com/ratedarts/fulfillment/internal/models"
)

const (
	lineItemNameSeparator   = " - "
	lineItemOptionSeparator = " / "
)

// OrderService mirrors remote orders into the local database.
type OrderService struct {
	db       *gorm.DB
	products *ProductService
	catalog  CatalogClient
	workers  int
	log      logrus.FieldLogger

	backfills singleflight.Group
}

// SyncSummary reports the outcome of a full order sync.
type SyncSummary struct {
	Listed   int              `json:"listed"`
	Skipped  int              `json:"skipped"`
	Ingested int              `json:"ingested"`
	Failed   map[int64]string `json:"failed,omitempty"`
}

func NewOrderService(db *gorm.DB, products *ProductService, catalog CatalogClient, workers int, log logrus.FieldLogger) *OrderService {
	if workers < 1 {
		workers = 1
	}
	return &OrderService{
		db:       db,
		products: products,
		catalog:  catalog,
		workers:  workers,
		log:      log.WithField("component", "orders"),
	}
}

// ParseLineItemName splits "name - type / size / frames". Anything else is
// a FormatError.
func ParseLineItemName(name string) (itemType, size, frames string, err error) {
	idx := strings.LastIndex(name, lineItemNameSeparator)
	if idx < 0 {
		return "", "", "", &FormatError{Input: name, Reason: "missing \" - \" separator"}
	}

	parts := strings.Split(name[idx+len(lineItemNameSeparator):], lineItemOptionSeparator)
	if len(parts) != 3 {
		return "", "", "", &FormatError{
			Input:  name,
			Reason: fmt.Sprintf("expected 3 options separated by \" / \", got %d", len(parts)),
		}
	}
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			return "", "", "", &FormatError{Input: name, Reason: "empty option"}
		}
	}
	return parts[0], parts[1], parts[2], nil
}

// IngestOrder stores a remote order, backfilling every referenced product
// that is not known locally. An order already stored is returned as is.
func (s *OrderService) IngestOrder(ctx context.Context, remote *RemoteOrder) (*models.Order, error) {
	if remote == nil || remote.ID == 0 {
		return nil, &ValidationError{Field: "id", Message: "order id is required"}
	}
	log := s.log.WithField("order_id", remote.ID)

	existing, err := s.GetOrder(ctx, remote.ID)
	if err == nil {
		log.Debug("Order already stored")
		return existing, nil
	}
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		return nil, err
	}

	// Reject malformed titles before touching anything remote.
	parsed := make([]parsedLineItem, 0, len(remote.LineItems))
	for _, item := range remote.LineItems {
		itemType, size, frames, err := ParseLineItemName(item.Name)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, parsedLineItem{RemoteLineItem: item, itemType: itemType, size: size, frames: frames})
	}

	if err := s.backfillProducts(ctx, remote.LineItems); err != nil {
		return nil, err
	}

	lineItems, err := s.buildLineItems(ctx, remote.ID, parsed)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		RemoteModel: models.RemoteModel{ID: remote.ID, CreatedAt: remote.CreatedAt},
		OrderNumber: remote.OrderNumber,
		Total:       remote.TotalPrice,
		Currency:    remote.Currency,
		ArtistName:  orderArtistName(remote.LineItems),
	}
	customer := customerFromRemote(remote)

	err = database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		if customer != nil {
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(customer).Error; err != nil {
				return fmt.Errorf("failed to upsert customer: %w", err)
			}
			order.CustomerID = &customer.ID
		}

		if err := tx.Omit(clause.Associations).Clauses(clause.OnConflict{DoNothing: true}).Create(order).Error; err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}
		if len(lineItems) > 0 {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&lineItems).Error; err != nil {
				return fmt.Errorf("failed to create line items: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithField("line_items", len(lineItems)).Info("Order ingested")
	return s.GetOrder(ctx, remote.ID)
}

type parsedLineItem struct {
	RemoteLineItem
	itemType string
	size     string
	frames   string
}

// backfillProducts imports each missing product once. Concurrent ingestions
// that need the same product share a single fetch.
func (s *OrderService) backfillProducts(ctx context.Context, items []RemoteLineItem) error {
	ids := make([]int64, 0, len(items))
	seen := make(map[int64]bool)
	for _, item := range items {
		if item.ProductID == 0 || seen[item.ProductID] {
			continue
		}
		seen[item.ProductID] = true
		ids = append(ids, item.ProductID)
	}

	existing, err := s.products.ExistingProductIDs(ctx, ids)
	if err != nil {
		return err
	}

	for _, id := range ids {
		if existing[id] {
			continue
		}
		_, err, _ := s.backfills.Do(strconv.FormatInt(id, 10), func() (interface{}, error) {
			return nil, s.backfillProduct(ctx, id)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *OrderService) backfillProduct(ctx context.Context, id int64) error {
	// Another caller may have finished the import since the first check.
	existing, err := s.products.ExistingProductIDs(ctx, []int64{id})
	if err != nil {
		return err
	}
	if existing[id] {
		return nil
	}

	remote, err := s.catalog.GetProduct(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to fetch product %d for backfill: %w", id, err)
	}
	if _, err := s.products.ImportRemoteProduct(ctx, remote); err != nil {
		return err
	}

	s.log.WithField("product_id", id).Info("Backfilled product referenced by order")
	return nil
}

func (s *OrderService) buildLineItems(ctx context.Context, orderID int64, parsed []parsedLineItem) ([]models.LineItem, error) {
	products := make(map[int64]*models.Product)
	items := make([]models.LineItem, 0, len(parsed))

	for _, p := range parsed {
		item := models.LineItem{
			RemoteModel: models.RemoteModel{ID: p.ID},
			Name:        p.Name,
			OrderID:     orderID,
			ProductID:   p.ProductID,
			VariantID:   p.VariantID,
			Quantity:    p.Quantity,
			Price:       p.Price,
			Type:        p.itemType,
			Size:        p.size,
			Frames:      p.frames,
			SKU:         p.SKU,
		}

		if p.ProductID != 0 {
			product, ok := products[p.ProductID]
			if !ok {
				var err error
				product, err = s.products.GetProduct(ctx, p.ProductID)
				if err != nil {
					return nil, err
				}
				products[p.ProductID] = product
			}
			item.ImageURL = product.ImageURL
			item.ResizedImageURL = printImageForSize(product, p.size)
		}

		items = append(items, item)
	}
	return items, nil
}

func printImageForSize(product *models.Product, sizeDisplay string) string {
	for _, img := range product.Images {
		if img.Size != nil && img.Size.Display == sizeDisplay {
			return img.ImageURL
		}
	}
	return ""
}

func orderArtistName(items []RemoteLineItem) string {
	for _, item := range items {
		if item.Vendor != "" {
			return item.Vendor
		}
	}
	return ""
}

func customerFromRemote(remote *RemoteOrder) *models.Customer {
	if remote.Customer == nil || remote.Customer.ID == 0 {
		return nil
	}

	customer := &models.Customer{
		RemoteModel: models.RemoteModel{ID: remote.Customer.ID},
		FirstName:   remote.Customer.FirstName,
		LastName:    remote.Customer.LastName,
		Email:       remote.Customer.Email,
		Phone:       remote.Customer.Phone,
	}
	if customer.Email == "" {
		customer.Email = remote.Email
	}

	if addr := remote.BillingAddress; addr != nil {
		customer.FirstName = addr.FirstName
		customer.LastName = addr.LastName
		customer.Name = addr.Name
		if addr.Phone != "" {
			customer.Phone = addr.Phone
		}
		customer.Address = addr.Address1
		customer.City = addr.City
		customer.Province = addr.Province
		customer.Zip = addr.Zip
		customer.Country = addr.Country
	}
	if customer.Name == "" {
		customer.Name = strings.TrimSpace(customer.FirstName + " " + customer.LastName)
	}
	return customer
}

// SyncOrders pulls every remote order and ingests the ones not stored yet.
func (s *OrderService) SyncOrders(ctx context.Context) (*SyncSummary, error) {
	summaries, err := s.catalog.ListOrders(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(summaries))
	for _, o := range summaries {
		ids = append(ids, o.ID)
	}
	var stored []int64
	if len(ids) > 0 {
		if err := s.db.WithContext(ctx).Model(&models.Order{}).Where("id IN ?", ids).Pluck("id", &stored).Error; err != nil {
			return nil, fmt.Errorf("failed to check orders: %w", err)
		}
	}
	known := make(map[int64]bool, len(stored))
	for _, id := range stored {
		known[id] = true
	}

	summary := &SyncSummary{Listed: len(summaries), Failed: make(map[int64]string)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for _, o := range summaries {
		if known[o.ID] {
			summary.Skipped++
			continue
		}
		id := o.ID
		g.Go(func() error {
			remote, err := s.catalog.GetOrder(gctx, id)
			if err == nil {
				_, err = s.IngestOrder(gctx, remote)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.log.WithError(err).WithField("order_id", id).Error("Failed to ingest order")
				summary.Failed[id] = err.Error()
				return nil
			}
			summary.Ingested++
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"listed":   summary.Listed,
		"skipped":  summary.Skipped,
		"ingested": summary.Ingested,
		"failed":   len(summary.Failed),
	}).Info("Order sync finished")
	return summary, nil
}

func (s *OrderService) ListOrders(ctx context.Context, limit, offset int) ([]models.Order, int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&models.Order{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	var orders []models.Order
	query := s.db.WithContext(ctx).
		Preload("LineItems").
		Preload("Customer").
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if err := query.Find(&orders).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, total, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).
		Preload("LineItems", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Customer").
		First(&order, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "order", ID: id}
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &order, nil
}
