// internal/router/router.go
package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/ratedarts/fulfillment/internal/config"
	"github.com/ratedarts/fulfillment/internal/handlers"
	"github.com/ratedarts/fulfillment/internal/middleware"
	"github.com/ratedarts/fulfillment/internal/services"
	"github.com/ratedarts/fulfillment/internal/utils"
)

const version = "1.0.0"

// Services holds the constructed service layer the handlers call into.
type Services struct {
	References  *services.ReferenceService
	Products    *services.ProductService
	Fulfillment *services.FulfillmentService
	Orders      *services.OrderService
	Tasks       *services.TaskService
}

func Initialize(db *gorm.DB, svc Services, cfg *config.Config, log logrus.FieldLogger) *gin.Engine {
	// Initialize handlers
	referenceHandler := handlers.NewReferenceHandler(svc.References, log)
	productHandler := handlers.NewProductHandler(svc.Products, svc.Fulfillment, cfg.Server.MaxUploadMB, log)
	orderHandler := handlers.NewOrderHandler(svc.Orders, log)
	taskHandler := handlers.NewTaskHandler(svc.Tasks, log)

	// Initialize Gin router
	r := gin.New()
	r.MaxMultipartMemory = int64(cfg.Server.MaxUploadMB) << 20

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.I18nMiddleware())
	r.Use(middleware.GeneralRateLimit())

	// Health check
	r.GET("/health", healthHandler(db))

	// API v1 routes
	v1 := r.Group("/v1")
	{
		// Reference data
		v1.GET("/artists", referenceHandler.GetArtists)
		v1.GET("/editions", referenceHandler.GetEditions)
		v1.GET("/sizes", referenceHandler.GetSizes)
		v1.POST("/sizes/proportional", referenceHandler.GetProportionalSizes)

		// Product routes
		products := v1.Group("/products")
		{
			products.GET("", productHandler.GetProducts)
			products.POST("", middleware.UploadRateLimit(), productHandler.CreateProduct)
			products.GET("/:id", productHandler.GetProduct)
			products.GET("/:id/print-image", productHandler.GetPrintImage)
			products.POST("/:id/assets", middleware.UploadRateLimit(), productHandler.RegenerateAssets)
		}

		// Print asset tasks
		v1.GET("/tasks/:id", taskHandler.GetTask)

		// Order routes
		orders := v1.Group("/orders")
		{
			orders.GET("", orderHandler.GetOrders)
			orders.POST("", orderHandler.CreateOrder)
			orders.POST("/sync", middleware.SyncRateLimit(), orderHandler.SyncOrders)
			orders.GET("/:id", orderHandler.GetOrder)
		}
	}

	// 404 handler
	r.NoRoute(func(c *gin.Context) {
		utils.ErrorResponse(c, http.StatusNotFound, "NOT_FOUND", "Endpoint not found", nil)
	})

	return r
}

func healthHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "healthy"
		code := http.StatusOK

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		c.JSON(code, gin.H{
			"status":  status,
			"version": version,
		})
	}
}
