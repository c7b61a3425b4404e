// internal/services/catalog_client.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/ratedarts/fulfillment/internal/config"
)

// maxResponseSize is the maximum allowed response size from the commerce API (10MB)
const maxResponseSize = 10 * 1024 * 1024

const catalogServiceName = "shopify"

// ordersPageSize is the largest page the orders endpoint serves.
const ordersPageSize = 250

// CatalogClient is the commerce platform as seen by the orchestrator and
// order ingestion.
type CatalogClient interface {
	CreateProduct(ctx context.Context, product *NewRemoteProduct) (*RemoteProduct, error)
	AttachImage(ctx context.Context, productID int64, imageURL string, variantIDs []int64) (*RemoteImage, error)
	GetProduct(ctx context.Context, id int64) (*RemoteProduct, error)
	DeleteProduct(ctx context.Context, id int64) error
	ListOrders(ctx context.Context) ([]RemoteOrderSummary, error)
	GetOrder(ctx context.Context, id int64) (*RemoteOrder, error)
}

type RemoteOption struct {
	Name   string   `json:"name"`
	Values []string `json:"values,omitempty"`
}

type RemoteVariant struct {
	ID        int64  `json:"id,omitempty"`
	ProductID int64  `json:"product_id,omitempty"`
	Title     string `json:"title,omitempty"`
	VariantDescriptor
}

type RemoteImage struct {
	ID         int64   `json:"id,omitempty"`
	ProductID  int64   `json:"product_id,omitempty"`
	Src        string  `json:"src"`
	VariantIDs []int64 `json:"variant_ids"`
	Filename   string  `json:"filename,omitempty"`
}

type RemoteProduct struct {
	ID             int64           `json:"id,omitempty"`
	Title          string          `json:"title"`
	BodyHTML       string          `json:"body_html"`
	Vendor         string          `json:"vendor"`
	TemplateSuffix string          `json:"template_suffix,omitempty"`
	Options        []RemoteOption  `json:"options,omitempty"`
	Variants       []RemoteVariant `json:"variants"`
	Images         []RemoteImage   `json:"images,omitempty"`
	Image          *RemoteImage    `json:"image,omitempty"`
}

// MarketingImageURL returns the product's primary image source.
func (p *RemoteProduct) MarketingImageURL() string {
	if p.Image != nil && p.Image.Src != "" {
		return p.Image.Src
	}
	if len(p.Images) > 0 {
		return p.Images[0].Src
	}
	return ""
}

// NewRemoteProduct is the input for product creation.
type NewRemoteProduct struct {
	Title       string
	Description string
	Vendor      string
	Variants    []VariantDescriptor
	Options     []RemoteOption
	ImageURL    string
}

type RemoteOrderSummary struct {
	ID          int64     `json:"id"`
	OrderNumber int       `json:"order_number"`
	CreatedAt   time.Time `json:"created_at"`
}

type RemoteAddress struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Address1  string `json:"address1"`
	City      string `json:"city"`
	Province  string `json:"province"`
	Zip       string `json:"zip"`
	Country   string `json:"country"`
}

type RemoteCustomer struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

type RemoteLineItem struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	ProductID int64           `json:"product_id"`
	VariantID int64           `json:"variant_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	SKU       string          `json:"sku"`
	Vendor    string          `json:"vendor"`
}

type RemoteOrder struct {
	ID             int64            `json:"id"`
	OrderNumber    int              `json:"order_number"`
	TotalPrice     decimal.Decimal  `json:"total_price"`
	Currency       string           `json:"currency"`
	CreatedAt      time.Time        `json:"created_at"`
	Email          string           `json:"email"`
	Customer       *RemoteCustomer  `json:"customer"`
	BillingAddress *RemoteAddress   `json:"billing_address"`
	LineItems      []RemoteLineItem `json:"line_items"`
}

// ShopifyClient talks to the Shopify Admin REST API.
type ShopifyClient struct {
	baseURL        string
	accessToken    string
	apiVersion     string
	templateSuffix string
	maxRetries     int
	httpClient     *http.Client
	limiter        *rate.Limiter
	log            logrus.FieldLogger
}

func NewShopifyClient(cfg config.ShopifyConfig, log logrus.FieldLogger) *ShopifyClient {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &ShopifyClient{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		accessToken:    cfg.AccessToken,
		apiVersion:     cfg.APIVersion,
		templateSuffix: cfg.TemplateSuffix,
		maxRetries:     cfg.MaxRetries,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		limiter: rate.NewLimiter(limit, 1),
		log:     log.WithField("component", "catalog_client"),
	}
}

func (c *ShopifyClient) CreateProduct(ctx context.Context, product *NewRemoteProduct) (*RemoteProduct, error) {
	payload := RemoteProduct{
		Title:          product.Title,
		BodyHTML:       product.Description,
		Vendor:         product.Vendor,
		TemplateSuffix: c.templateSuffix,
		Options:        product.Options,
		Variants:       make([]RemoteVariant, 0, len(product.Variants)),
	}
	for _, v := range product.Variants {
		payload.Variants = append(payload.Variants, RemoteVariant{VariantDescriptor: v})
	}
	if product.ImageURL != "" {
		payload.Images = []RemoteImage{{Src: product.ImageURL, VariantIDs: []int64{}, Filename: product.ImageURL}}
	}

	var resp struct {
		Product RemoteProduct `json:"product"`
	}
	if err := c.doRequest(ctx, http.MethodPost, "products.json", map[string]interface{}{"product": payload}, &resp); err != nil {
		return nil, err
	}
	if resp.Product.ID == 0 {
		return nil, &RemoteAPIError{Service: catalogServiceName, Method: http.MethodPost, Path: "products.json", Status: http.StatusOK, Body: "response carried no product id"}
	}
	if len(resp.Product.Variants) != len(product.Variants) {
		return nil, &RemoteAPIError{
			Service: catalogServiceName,
			Method:  http.MethodPost,
			Path:    "products.json",
			Status:  http.StatusOK,
			Body:    fmt.Sprintf("expected %d variants, got %d", len(product.Variants), len(resp.Product.Variants)),
		}
	}

	return &resp.Product, nil
}

func (c *ShopifyClient) AttachImage(ctx context.Context, productID int64, imageURL string, variantIDs []int64) (*RemoteImage, error) {
	if variantIDs == nil {
		variantIDs = []int64{}
	}
	body := map[string]interface{}{
		"image": RemoteImage{
			Src:        imageURL,
			VariantIDs: variantIDs,
			Filename:   fmt.Sprintf("%d.jpg", productID),
		},
	}

	var resp struct {
		Image RemoteImage `json:"image"`
	}
	if err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("products/%d/images.json", productID), body, &resp); err != nil {
		return nil, err
	}
	return &resp.Image, nil
}

func (c *ShopifyClient) GetProduct(ctx context.Context, id int64) (*RemoteProduct, error) {
	var resp struct {
		Product RemoteProduct `json:"product"`
	}
	if err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("products/%d.json", id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Product, nil
}

// DeleteProduct removes a remote product. A product that is already gone
// counts as deleted.
func (c *ShopifyClient) DeleteProduct(ctx context.Context, id int64) error {
	err := c.doRequest(ctx, http.MethodDelete, fmt.Sprintf("products/%d.json", id), nil, nil)
	var apiErr *RemoteAPIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return nil
	}
	return err
}

// ListOrders walks every page of the orders endpoint, following the
// page_info cursor of the Link header.
func (c *ShopifyClient) ListOrders(ctx context.Context) ([]RemoteOrderSummary, error) {
	const fields = "id,order_number,created_at"

	path := fmt.Sprintf("orders.json?status=any&limit=%d&fields=%s", ordersPageSize, fields)
	seen := make(map[string]bool)

	var orders []RemoteOrderSummary
	for path != "" {
		var resp struct {
			Orders []RemoteOrderSummary `json:"orders"`
		}
		header, err := c.request(ctx, http.MethodGet, path, nil, &resp)
		if err != nil {
			return nil, err
		}
		orders = append(orders, resp.Orders...)

		path = ""
		// page_info may not be combined with filters other than limit and fields
		if cursor := nextPageInfo(header.Get("Link")); cursor != "" && !seen[cursor] {
			seen[cursor] = true
			path = fmt.Sprintf("orders.json?limit=%d&fields=%s&page_info=%s", ordersPageSize, fields, url.QueryEscape(cursor))
		}
	}
	return orders, nil
}

// nextPageInfo returns the page_info of the rel="next" entry of a Link
// header, or "" on the last page.
func nextPageInfo(link string) string {
	for link != "" {
		start := strings.Index(link, "<")
		end := strings.Index(link, ">")
		if start < 0 || end < start {
			return ""
		}
		target := link[start+1 : end]
		link = link[end+1:]

		params := link
		if next := strings.Index(link, "<"); next >= 0 {
			params = link[:next]
		}
		if !strings.Contains(params, `rel="next"`) {
			continue
		}

		parsed, err := url.Parse(target)
		if err != nil {
			return ""
		}
		return parsed.Query().Get("page_info")
	}
	return ""
}

func (c *ShopifyClient) GetOrder(ctx context.Context, id int64) (*RemoteOrder, error) {
	var resp struct {
		Order RemoteOrder `json:"order"`
	}
	if err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("orders/%d.json", id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Order, nil
}

// doRequest performs an HTTP request against the Admin API, with pacing
// and bounded retries. out may be nil.
func (c *ShopifyClient) doRequest(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	_, err := c.request(ctx, method, path, body, out)
	return err
}

// request is doRequest that also returns the headers of the successful
// response.
func (c *ShopifyClient) request(ctx context.Context, method, path string, body interface{}, out interface{}) (http.Header, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("shopify: failed to encode request: %w", err)
		}
	}

	endpoint := fmt.Sprintf("%s/admin/api/%s/%s", c.baseURL, c.apiVersion, path)
	op := method + " " + path

	var header http.Header
	err := retryCall(ctx, c.maxRetries, c.log, op, method != http.MethodPost, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return fmt.Errorf("shopify: failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Shopify-Access-Token", c.accessToken)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if err != nil {
			return fmt.Errorf("%w: failed to read response: %w", ErrRemoteUnavailable, err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &RemoteAPIError{
				Service: catalogServiceName,
				Method:  method,
				Path:    path,
				Status:  resp.StatusCode,
				Body:    remoteErrorMessage(respBody),
			}
		}

		header = resp.Header
		if out == nil || len(respBody) == 0 {
			return nil
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return &RemoteAPIError{
				Service: catalogServiceName,
				Method:  method,
				Path:    path,
				Status:  resp.StatusCode,
				Body:    fmt.Sprintf("invalid response: %v", err),
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return header, nil
}

// remoteErrorMessage pulls the message out of a Shopify error body, which
// is either {"errors": ...} or {"message": ...}.
func remoteErrorMessage(body []byte) string {
	var parsed struct {
		Errors  json.RawMessage `json:"errors"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if len(parsed.Errors) > 0 {
			return string(parsed.Errors)
		}
	}

	const maxLen = 512
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxLen {
		msg = msg[:maxLen]
	}
	return msg
}
