// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ratedarts/fulfillment/internal/config"
	"github.com/ratedarts/fulfillment/internal/database"
	"github.com/ratedarts/fulfillment/internal/i18n"
	"github.com/ratedarts/fulfillment/internal/router"
	"github.com/ratedarts/fulfillment/internal/services"
	"github.com/ratedarts/fulfillment/internal/utils"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatal("Failed to load configuration: ", err)
	}

	log := utils.NewLogger(cfg.Log, cfg.Environment)

	// Initialize database
	db, err := database.Initialize(cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to initialize database: ", err)
	}
	defer database.Close(db, log)

	// Run database migrations
	if err := database.RunMigrations(db, log); err != nil {
		log.Fatal("Failed to run migrations: ", err)
	}
	if err := database.SeedReferenceData(db, log); err != nil {
		log.Fatal("Failed to seed reference data: ", err)
	}

	// Initialize i18n
	if err := i18n.Initialize(); err != nil {
		log.Fatal("Failed to initialize i18n: ", err)
	}

	// External collaborators
	storage, err := services.NewStorageService(cfg.AWS, log)
	if err != nil {
		log.Fatal("Failed to initialize storage: ", err)
	}
	images := services.NewPicsartClient(cfg.Picsart, log)
	catalog := services.NewShopifyClient(cfg.Shopify, log)

	var locker services.ArtistLocker = services.NewLocalArtistLocker()
	if cfg.Redis.Enabled() {
		redisLocker, err := services.NewRedisArtistLocker(cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to Redis: ", err)
		}
		defer redisLocker.Close()
		locker = redisLocker
		log.WithField("addr", cfg.Redis.Addr()).Info("Using Redis artist lock")
	}

	// Services
	tasks := services.NewTaskService(db, cfg.Fulfillment.PrintAssetsDeadline(), log)
	references := services.NewReferenceService(db)
	products := services.NewProductService(db)
	pipeline := services.NewAssetPipeline(storage, images, cfg.AWS.FrameKeyPrefix, cfg.Fulfillment.WorkerCount, log)
	fulfillment := services.NewFulfillmentService(cfg.Fulfillment, services.FulfillmentDeps{
		References: references,
		Products:   products,
		Catalog:    catalog,
		Storage:    storage,
		Images:     images,
		Pipeline:   pipeline,
		Locker:     locker,
		Tasks:      tasks,
	}, log)
	orders := services.NewOrderService(db, products, catalog, cfg.Fulfillment.WorkerCount, log)

	// Set Gin mode
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize router
	r := router.Initialize(db, router.Services{
		References:  references,
		Products:    products,
		Fulfillment: fulfillment,
		Orders:      orders,
		Tasks:       tasks,
	}, cfg, log)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.WithField("addr", srv.Addr).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server: ", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	// Create a deadline for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown server
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	// Stop detached print asset tasks
	if err := tasks.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Print asset tasks did not stop in time")
	}

	log.Info("Server exited")
}
