package handlers

import (
  "errors"
  "net/http"

  "github.com/gin-gonic/gin"

  "github.com/medcurio/taxonomy-backend/internal/logger"
  "github.com/medcurio/taxonomy-backend/internal/modules/taxonomy"
  "github.com/medcurio/taxonomy-backend/internal/platform/apierr"
)

type MigrationHandler struct {
  log      *logger.Logger
  migrator *taxonomy.Migrator
}

func NewMigrationHandler(log *logger.Logger, migrator *taxonomy.Migrator) *MigrationHandler {
  return &MigrationHandler{
    log:      log.With("handler", "MigrationHandler"),
    migrator: migrator,
  }
}

func (mh *MigrationHandler) Split(c *gin.Context) {
  var req struct {
    CategoryID     string `json:"categoryId"`
    CanonicalDepth int    `json:"canonicalDepth"`
  }
  if err := c.ShouldBindJSON(&req); err != nil {
    RespondError(c, http.StatusBadRequest, apierr.CodeBadRequest, err)
    return
  }
  if req.CategoryID == "" {
    RespondError(c, http.StatusBadRequest, apierr.CodeBadRequest, errors.New("categoryId required"))
    return
  }
  report, err := mh.migrator.Split(c.Request.Context(), req.CategoryID, req.CanonicalDepth)
  if err != nil {
    // The report may describe a committed migration even when the
    // post-check failed; surface both.
    var postErr *taxonomy.PostMigrationIntegrityError
    if errors.As(err, &postErr) {
      c.JSON(http.StatusInternalServerError, gin.H{
        "error":      gin.H{"message": postErr.Error(), "code": apierr.CodeIntegrityViolated},
        "violations": postErr.Violations,
        "report":     report,
      })
      return
    }
    respondTaxonomyError(c, err)
    return
  }
  RespondOK(c, report)
}

func (mh *MigrationHandler) Merge(c *gin.Context) {
  var req struct {
    CategoryID  string   `json:"categoryId"`
    CanonicalID string   `json:"canonicalId"`
    LegacyIDs   []string `json:"legacyIds"`
  }
  if err := c.ShouldBindJSON(&req); err != nil {
    RespondError(c, http.StatusBadRequest, apierr.CodeBadRequest, err)
    return
  }
  if req.CategoryID == "" || req.CanonicalID == "" || len(req.LegacyIDs) == 0 {
    RespondError(c, http.StatusBadRequest, apierr.CodeBadRequest, errors.New("categoryId, canonicalId, and legacyIds required"))
    return
  }
  report, err := mh.migrator.Merge(c.Request.Context(), req.CategoryID, req.CanonicalID, req.LegacyIDs)
  if err != nil {
    var postErr *taxonomy.PostMigrationIntegrityError
    if errors.As(err, &postErr) {
      c.JSON(http.StatusInternalServerError, gin.H{
        "error":      gin.H{"message": postErr.Error(), "code": apierr.CodeIntegrityViolated},
        "violations": postErr.Violations,
        "report":     report,
      })
      return
    }
    respondTaxonomyError(c, err)
    return
  }
  RespondOK(c, report)
}
