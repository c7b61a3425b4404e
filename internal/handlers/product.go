// internal/handlers/product.go
package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ratedarts/fulfillment/internal/i18n"
	"github.com/ratedarts/fulfillment/internal/services"
	"github.com/ratedarts/fulfillment/internal/utils"
)

type ProductHandler struct {
	productService     *services.ProductService
	fulfillmentService *services.FulfillmentService
	maxUploadBytes     int64
	log                logrus.FieldLogger
}

func NewProductHandler(productService *services.ProductService, fulfillmentService *services.FulfillmentService, maxUploadMB int, log logrus.FieldLogger) *ProductHandler {
	return &ProductHandler{
		productService:     productService,
		fulfillmentService: fulfillmentService,
		maxUploadBytes:     int64(maxUploadMB) << 20,
		log:                log,
	}
}

type createProductForm struct {
	Title       string `form:"title" validate:"required,max=255"`
	Description string `form:"description"`
	Price       string `form:"price" validate:"required,decimal_amount"`
	Artist      uint   `form:"artist" validate:"required"`
	Editions    string `form:"editions" validate:"required,csv_ids"`
	Sizes       string `form:"sizes" validate:"required,csv_ids"`
}

// GET /products
func (h *ProductHandler) GetProducts(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	searchParams := services.ProductSearchParams{
		PaginationParams: params,
	}
	if artistIDStr := c.Query("artist_id"); artistIDStr != "" {
		if artistID, err := strconv.ParseUint(artistIDStr, 10, 32); err == nil {
			id := uint(artistID)
			searchParams.ArtistID = &id
		}
	}

	products, total, err := h.productService.SearchProducts(c.Request.Context(), searchParams)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	result := utils.CreatePaginationResult(products, total, params)
	utils.PaginatedResponse(c, result)
}

// POST /products
func (h *ProductHandler) CreateProduct(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}

	var form createProductForm
	if err := c.ShouldBind(&form); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			utils.ErrorResponse(c, http.StatusRequestEntityTooLarge, "TOO_LARGE", i18n.T(lang, i18n.KeyImageTooLarge), nil)
			return
		}
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&form)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationRequired, "image"), nil)
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyInvalidImage), nil)
		return
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyInvalidImage), err.Error())
		return
	}

	// Tags above already checked the formats
	price, _ := decimal.NewFromString(form.Price)
	editionIDs, _ := utils.ParseIDList(form.Editions)
	sizeIDs, _ := utils.ParseIDList(form.Sizes)

	result, err := h.fulfillmentService.CreateProduct(c.Request.Context(), &services.CreateProductRequest{
		Title:         form.Title,
		Description:   form.Description,
		Price:         price,
		ArtistID:      form.Artist,
		EditionIDs:    editionIDs,
		SizeIDs:       sizeIDs,
		Image:         image,
		ImageFilename: fileHeader.Filename,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	message := i18n.T(lang, i18n.KeyProductCreated)
	if result.Partial() {
		message = i18n.T(lang, i18n.KeyProductPartial)
	}
	utils.CreatedResponse(c, gin.H{
		"message": message,
		"partial": result.Partial(),
		"result":  result,
	})
}

// GET /products/:id
func (h *ProductHandler) GetProduct(c *gin.Context) {
	id, ok := productIDParam(c)
	if !ok {
		return
	}

	product, err := h.productService.GetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	utils.SuccessResponse(c, product)
}

// GET /products/:id/print-image?size_id=
func (h *ProductHandler) GetPrintImage(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	id, ok := productIDParam(c)
	if !ok {
		return
	}
	sizeID, err := strconv.ParseUint(c.Query("size_id"), 10, 32)
	if err != nil || sizeID == 0 {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyInvalidID, "size"), nil)
		return
	}

	url, err := h.productService.GetImageForPrint(c.Request.Context(), id, uint(sizeID))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"product_id": id,
		"size_id":    sizeID,
		"url":        url,
	})
}

// POST /products/:id/assets
func (h *ProductHandler) RegenerateAssets(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	id, ok := productIDParam(c)
	if !ok {
		return
	}

	result, err := h.fulfillmentService.RegenerateAssets(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	message := i18n.T(lang, i18n.KeyProductRegenerated)
	if result.Partial() {
		message = i18n.T(lang, i18n.KeyProductPartial)
	}
	utils.SuccessResponse(c, gin.H{
		"message": message,
		"partial": result.Partial(),
		"result":  result,
	})
}

func productIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		lang := utils.GetLangFromContext(c)
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyInvalidID, "product"), nil)
		return 0, false
	}
	return id, true
}
