// internal/handlers/errors.go
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ratedarts/fulfillment/internal/i18n"
	"github.com/ratedarts/fulfillment/internal/middleware"
	"github.com/ratedarts/fulfillment/internal/services"
	"github.com/ratedarts/fulfillment/internal/utils"
)

// respondError renders a service error with the status its type maps to.
// When the error came out of a workflow step, the step and any orphaned
// remote product id are carried in the details whatever the status.
func respondError(c *gin.Context, log logrus.FieldLogger, err error) {
	lang := utils.GetLangFromContext(c)
	log = middleware.LoggerFromContext(c, log)
	_ = c.Error(err)

	var (
		validationErr *services.ValidationError
		formatErr     *services.FormatError
		notFoundErr   *services.NotFoundError
		referenceErr  *services.ReferenceResolutionError
		stepErr       *services.StepError
		remoteErr     *services.RemoteAPIError
		storageErr    *services.StorageError
	)

	step := stepContext{}
	if errors.As(err, &stepErr) {
		step.step = stepErr.Step
		step.orphaned = stepErr.Orphaned
		step.remoteProductID = stepErr.RemoteProductID
		log = log.WithField("step", stepErr.Step)
		if stepErr.Orphaned {
			log.WithError(err).WithField("remote_product_id", stepErr.RemoteProductID).Error("Remote product left without a local record")
		}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		log.WithError(err).Warn("Request deadline exceeded")
		utils.GatewayTimeoutResponse(c, step.message(lang, ""), step.details(nil))

	case errors.As(err, &validationErr):
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, validationErr.Field), []utils.ValidationError{{
			Field:   validationErr.Field,
			Tag:     "invalid",
			Message: validationErr.Message,
		}})

	case errors.As(err, &formatErr):
		utils.UnprocessableResponse(c, i18n.T(lang, i18n.KeyMalformedTitle), gin.H{
			"input":  formatErr.Input,
			"reason": formatErr.Reason,
		})

	case errors.As(err, &notFoundErr):
		utils.NotFoundResponse(c, notFoundErr.Resource, step.details(gin.H{"id": notFoundErr.ID}))

	case errors.As(err, &referenceErr):
		utils.ConflictResponse(c, step.message(lang, i18n.T(lang, i18n.KeyReferenceMismatch)), step.details(gin.H{
			"variant_id": referenceErr.VariantID,
			"field":      referenceErr.Field,
			"value":      referenceErr.Value,
		}))

	case errors.Is(err, services.ErrTaskServiceClosed):
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "SHUTTING_DOWN", err.Error(), nil)

	case errors.As(err, &remoteErr):
		log.WithError(err).Error("Remote call failed")
		utils.BadGatewayResponse(c, step.message(lang, ""), step.details(gin.H{"service": remoteErr.Service, "status": remoteErr.Status}))

	case stepErr != nil:
		log.WithError(err).Error("Workflow step failed")
		utils.BadGatewayResponse(c, step.message(lang, ""), step.details(nil))

	case errors.As(err, &storageErr), errors.Is(err, services.ErrRemoteUnavailable):
		log.WithError(err).Error("Upstream unavailable")
		utils.BadGatewayResponse(c, "", nil)

	default:
		log.WithError(err).Error("Unhandled error")
		utils.InternalErrorResponse(c, "")
	}
}

type stepContext struct {
	step            string
	orphaned        bool
	remoteProductID int64
}

func (s stepContext) details(base gin.H) interface{} {
	if s.step == "" {
		if base == nil {
			return nil
		}
		return base
	}
	if base == nil {
		base = gin.H{}
	}
	base["step"] = s.step
	if s.orphaned {
		base["remote_product_id"] = s.remoteProductID
	}
	return base
}

// message prefers the orphaned-product message over fallback.
func (s stepContext) message(lang, fallback string) string {
	if s.orphaned {
		return i18n.T(lang, i18n.KeyProductOrphaned)
	}
	return fallback
}
