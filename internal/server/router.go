package server

import (
  "github.com/gin-contrib/cors"
  "github.com/gin-gonic/gin"
  "go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

  "github.com/medcurio/taxonomy-backend/internal/handlers"
  "github.com/medcurio/taxonomy-backend/internal/middleware"
)

type RouterConfig struct {
  ServiceName      string
  AuthHandler      *handlers.AuthHandler
  AuthMiddleware   *middleware.AuthMiddleware
  TaxonomyHandler  *handlers.TaxonomyHandler
  DocumentHandler  *handlers.DocumentHandler
  MigrationHandler *handlers.MigrationHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
  router := gin.Default()
  router.Use(otelgin.Middleware(cfg.ServiceName))

  // Cors
  router.Use(cors.New(cors.Config{
    AllowOrigins: []string{
      "http://localhost:80",
      "http://localhost:3000",
      "http://localhost:5174",
    },
    AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
    AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
    AllowCredentials: true,
  }))

  // ===============
  // || Public    ||
  // ===============
  router.GET("/healthcheck", handlers.HealthCheck)
  router.POST("/register", cfg.AuthHandler.Register)
  router.POST("/login", cfg.AuthHandler.Login)

  // ===============
  // || Protected ||
  // ===============
  protected := router.Group("/")
  protected.Use(cfg.AuthMiddleware.RequireAuth())
  // Auth
  protected.POST("/refresh", cfg.AuthHandler.Refresh)
  protected.POST("/logout", cfg.AuthHandler.Logout)
  // Taxonomy
  protected.GET("/categories", cfg.TaxonomyHandler.ListCategories)
  protected.GET("/categories/:categoryId/snapshot", cfg.TaxonomyHandler.GetSnapshot)
  protected.POST("/categories/:categoryId/batch", cfg.TaxonomyHandler.ApplyBatch)
  protected.GET("/categories/:categoryId/integrity", cfg.TaxonomyHandler.CheckCategoryIntegrity)
  protected.GET("/integrity", cfg.TaxonomyHandler.CheckIntegrity)
  // Documents
  protected.POST("/documents", cfg.DocumentHandler.Ingest)
  protected.POST("/documents/:documentId/classify", cfg.DocumentHandler.Classify)
  protected.GET("/documents/:documentId/terms", cfg.DocumentHandler.GetTerms)
  protected.GET("/documents/:documentId/calls", cfg.DocumentHandler.GetClassifyCalls)
  protected.POST("/reconcile", cfg.DocumentHandler.Reconcile)
  // Migrations
  protected.POST("/admin/migrations/split", cfg.MigrationHandler.Split)
  protected.POST("/admin/migrations/merge", cfg.MigrationHandler.Merge)

  return router
}
