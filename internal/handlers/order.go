// internal/handlers/order.go
package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ratedarts/fulfillment/internal/i18n"
	"github.com/ratedarts/fulfillment/internal/services"
	"github.com/ratedarts/fulfillment/internal/utils"
)

type OrderHandler struct {
	orderService *services.OrderService
	log          logrus.FieldLogger
}

func NewOrderHandler(orderService *services.OrderService, log logrus.FieldLogger) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
		log:          log,
	}
}

// GET /orders
func (h *OrderHandler) GetOrders(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	orders, total, err := h.orderService.ListOrders(c.Request.Context(), params.Limit, params.Offset())
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	result := utils.CreatePaginationResult(orders, total, params)
	utils.PaginatedResponse(c, result)
}

// GET /orders/:id
func (h *OrderHandler) GetOrder(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyInvalidID, "order"), nil)
		return
	}

	order, err := h.orderService.GetOrder(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	utils.SuccessResponse(c, order)
}

// POST /orders accepts an order in the commerce platform's JSON shape,
// e.g. forwarded from an orders/create webhook.
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	var remote services.RemoteOrder
	if err := c.ShouldBindJSON(&remote); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "order"), err.Error())
		return
	}

	order, err := h.orderService.IngestOrder(c.Request.Context(), &remote)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyOrderIngested),
		"order":   order,
	})
}

// POST /orders/sync
func (h *OrderHandler) SyncOrders(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	summary, err := h.orderService.SyncOrders(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyOrderSynced),
		"summary": summary,
	})
}
