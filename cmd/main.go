package main

import (
  "context"
  "fmt"
  "os"
  "time"

  "github.com/medcurio/taxonomy-backend/internal/db"
  "github.com/medcurio/taxonomy-backend/internal/handlers"
  "github.com/medcurio/taxonomy-backend/internal/logger"
  "github.com/medcurio/taxonomy-backend/internal/middleware"
  "github.com/medcurio/taxonomy-backend/internal/modules/taxonomy"
  "github.com/medcurio/taxonomy-backend/internal/observability"
  "github.com/medcurio/taxonomy-backend/internal/repos"
  "github.com/medcurio/taxonomy-backend/internal/server"
  "github.com/medcurio/taxonomy-backend/internal/services"
  "github.com/medcurio/taxonomy-backend/internal/utils"
)

func main() {
  // Logger
  logMode := os.Getenv("LOG_MODE")
  if logMode == "" {
    logMode = "development"
  }
  log, err := logger.New(logMode)
  if err != nil {
    fmt.Printf("Failed to init logger: %v\n", err)
    os.Exit(1)
  }
  defer log.Sync()

  // Env
  log.Info("Loading environment variables from main...")
  serviceName := utils.GetEnv("SERVICE_NAME", "taxonomy-backend", log)
  jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
  accessTokenTTL := utils.GetEnvAsInt("ACCESS_TOKEN_TTL", 3600, log)
  refreshTokenTTL := utils.GetEnvAsInt("REFRESH_TOKEN_TTL", 86400, log)
  categorySeedPath := utils.GetEnv("CATEGORY_SEED_PATH", "config/categories.yaml", log)

  // Tracing
  shutdownOTel := observability.InitOTel(context.Background(), log, observability.OtelConfig{
    ServiceName: serviceName,
    Environment: os.Getenv("DEPLOY_ENV"),
    Version:     os.Getenv("SERVICE_VERSION"),
  })
  if shutdownOTel != nil {
    defer func() {
      ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
      defer cancel()
      _ = shutdownOTel(ctx)
    }()
  }

  // Postgres
  postgresService, err := db.NewPostgresService(log)
  if err != nil {
    log.Error("Postgres init failed", "error", err)
    os.Exit(1)
  }
  if err = postgresService.AutoMigrateAll(); err != nil {
    log.Error("Postgres auto migration failed", "error", err)
    os.Exit(1)
  }
  thePG := postgresService.DB()

  // Repos
  log.Info("Setting up Repos from main...")
  userRepo := repos.NewUserRepo(thePG, log)
  userTokenRepo := repos.NewUserTokenRepo(thePG, log)
  categoryRepo := repos.NewCategoryRepo(thePG, log)
  keywordRepo := repos.NewKeywordRepo(thePG, log)
  subkeywordRepo := repos.NewSubkeywordRepo(thePG, log)
  documentRepo := repos.NewDocumentRepo(thePG, log)
  documentTermRepo := repos.NewDocumentTermRepo(thePG, log)
  evidenceRepo := repos.NewEvidenceRepo(thePG, log)
  classifyCallLogRepo := repos.NewClassifyCallLogRepo(thePG, log)

  // Category seed
  if err := db.SeedCategories(context.Background(), categoryRepo, categorySeedPath, log); err != nil {
    log.Error("Category seed failed", "error", err)
    os.Exit(1)
  }

  // Taxonomy engine
  log.Info("Setting up taxonomy engine from main...")
  snapshotCache, err := taxonomy.NewSnapshotCache(log)
  if err != nil {
    log.Warn("Snapshot cache unavailable, serving uncached snapshots", "error", err)
    snapshotCache = nil
  }
  store := taxonomy.NewStore(thePG, log, snapshotCache, categoryRepo, keywordRepo, subkeywordRepo, documentTermRepo, evidenceRepo)
  checker := taxonomy.NewChecker(thePG, log, categoryRepo, keywordRepo, subkeywordRepo, documentTermRepo)
  migrator := taxonomy.NewMigrator(store, checker, log)
  reconciler := taxonomy.NewReconciler(store, log)

  // Services
  log.Info("Setting up Services from main...")
  bucketService, err := services.NewBucketService(log)
  if err != nil {
    log.Warn("Could not init BucketService", "error", err)
  }
  classifierClient, err := services.NewClassifierClient(log)
  if err != nil {
    log.Error("Could not init ClassifierClient", "error", err)
    os.Exit(1)
  }
  var extractionService services.ContentExtractionService
  if bucketService != nil {
    extractionService, err = services.NewContentExtractionService(log, bucketService)
    if err != nil {
      log.Warn("Could not init ContentExtractionService, text-only ingestion", "error", err)
    }
  }
  promptService := services.NewPromptService(log, classifierClient)
  authService := services.NewAuthService(thePG, log, userRepo, userTokenRepo, jwtSecretKey, time.Duration(accessTokenTTL)*time.Second, time.Duration(refreshTokenTTL)*time.Second)
  pipelineService := services.NewDocumentPipelineService(log, store, reconciler, promptService, extractionService, documentRepo, classifyCallLogRepo)

  // Handlers
  log.Info("Setting up handlers from main...")
  authHandler := handlers.NewAuthHandler(authService)
  taxonomyHandler := handlers.NewTaxonomyHandler(log, store, checker, categoryRepo)
  documentHandler := handlers.NewDocumentHandler(log, pipelineService, reconciler, documentRepo, documentTermRepo, evidenceRepo, classifyCallLogRepo)
  migrationHandler := handlers.NewMigrationHandler(log, migrator)

  // Middleware
  log.Info("Setting up middleware from main...")
  authMiddleware := middleware.NewAuthMiddleware(log, authService)

  // Router
  log.Info("Setting up router from main...")
  router := server.NewRouter(server.RouterConfig{
    ServiceName:      serviceName,
    AuthHandler:      authHandler,
    AuthMiddleware:   authMiddleware,
    TaxonomyHandler:  taxonomyHandler,
    DocumentHandler:  documentHandler,
    MigrationHandler: migrationHandler,
  })

  port := utils.GetEnv("PORT", "8080", log)
  fmt.Printf("Server listening on :%s\n", port)
  if err := router.Run(":" + port); err != nil {
    log.Warn("Server failed", "error", err)
  }
}
