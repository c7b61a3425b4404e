// internal/i18n/keys.go
package i18n

// Translation keys constants
const (
	// Common
	KeySuccess = "success"
	KeyError   = "error"

	// Requests
	KeyValidationInvalid  = "validation.invalid"
	KeyValidationRequired = "validation.required"
	KeyInvalidID          = "validation.invalid_id"
	KeyInvalidImage       = "validation.invalid_image"
	KeyImageTooLarge      = "validation.image_too_large"
	KeyMalformedTitle     = "validation.malformed_title"
	KeyRequestTimeout     = "request.timeout"
	KeyRateLimited        = "request.rate_limited"
	KeyUpstreamFailed     = "upstream.failed"
	KeyReferenceMismatch  = "reference.mismatch"

	// Products
	KeyProductCreated     = "product.created"
	KeyProductPartial     = "product.partial"
	KeyProductRegenerated = "product.regenerated"
	KeyProductOrphaned    = "product.orphaned"

	// Orders
	KeyOrderIngested = "order.ingested"
	KeyOrderSynced   = "order.synced"

	// Tasks
	KeyTaskPending = "task.pending"
)
