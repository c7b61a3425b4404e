// internal/handlers/reference.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ratedarts/fulfillment/internal/i18n"
	"github.com/ratedarts/fulfillment/internal/services"
	"github.com/ratedarts/fulfillment/internal/utils"
)

type ReferenceHandler struct {
	referenceService *services.ReferenceService
	log              logrus.FieldLogger
}

func NewReferenceHandler(referenceService *services.ReferenceService, log logrus.FieldLogger) *ReferenceHandler {
	return &ReferenceHandler{
		referenceService: referenceService,
		log:              log,
	}
}

// GET /artists
func (h *ReferenceHandler) GetArtists(c *gin.Context) {
	artists, err := h.referenceService.ListArtists(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	utils.SuccessResponse(c, artists)
}

// GET /editions
func (h *ReferenceHandler) GetEditions(c *gin.Context) {
	editions, err := h.referenceService.ListEditions(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	utils.SuccessResponse(c, editions)
}

// GET /sizes
func (h *ReferenceHandler) GetSizes(c *gin.Context) {
	sizes, err := h.referenceService.ListSizes(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	utils.SuccessResponse(c, sizes)
}

type proportionalSizesRequest struct {
	Width  int `json:"width" validate:"required,min=1"`
	Height int `json:"height" validate:"required,min=1"`
}

// POST /sizes/proportional
func (h *ReferenceHandler) GetProportionalSizes(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	var req proportionalSizesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	sizes, err := h.referenceService.ProportionalSizes(c.Request.Context(), req.Width, req.Height)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	utils.SuccessResponse(c, sizes)
}
