package handlers

import (
  "errors"
  "net/http"

  "github.com/gin-gonic/gin"

  "github.com/medcurio/taxonomy-backend/internal/logger"
  "github.com/medcurio/taxonomy-backend/internal/modules/taxonomy"
  "github.com/medcurio/taxonomy-backend/internal/platform/apierr"
  "github.com/medcurio/taxonomy-backend/internal/repos"
)

type TaxonomyHandler struct {
  log        *logger.Logger
  store      *taxonomy.Store
  checker    *taxonomy.Checker
  categories repos.CategoryRepo
}

func NewTaxonomyHandler(log *logger.Logger, store *taxonomy.Store, checker *taxonomy.Checker, categories repos.CategoryRepo) *TaxonomyHandler {
  return &TaxonomyHandler{
    log:        log.With("handler", "TaxonomyHandler"),
    store:      store,
    checker:    checker,
    categories: categories,
  }
}

// respondTaxonomyError maps domain failures onto the API envelope. Busy is
// 409 and explicitly retryable; everything validation-shaped is a 4xx.
func respondTaxonomyError(c *gin.Context, err error) {
  switch {
  case errors.Is(err, taxonomy.ErrCategoryBusy):
    RespondError(c, http.StatusConflict, apierr.CodeCategoryBusy, err)
  case errors.Is(err, taxonomy.ErrCategoryNotFound):
    RespondError(c, http.StatusNotFound, apierr.CodeNotFound, err)
  default:
    var rejErr *taxonomy.BatchRejectionError
    if errors.As(err, &rejErr) {
      c.JSON(http.StatusUnprocessableEntity, gin.H{
        "error":    gin.H{"message": "batch rejected", "code": apierr.CodeBadRequest},
        "rejected": rejErr.Rejected,
      })
      return
    }
    var postErr *taxonomy.PostMigrationIntegrityError
    if errors.As(err, &postErr) {
      c.JSON(http.StatusInternalServerError, gin.H{
        "error":      gin.H{"message": postErr.Error(), "code": apierr.CodeIntegrityViolated},
        "violations": postErr.Violations,
      })
      return
    }
    RespondError(c, http.StatusInternalServerError, apierr.CodeInternal, err)
  }
}

func (th *TaxonomyHandler) ListCategories(c *gin.Context) {
  rows, err := th.categories.List(c.Request.Context(), nil)
  if err != nil {
    RespondError(c, http.StatusInternalServerError, apierr.CodeInternal, err)
    return
  }
  RespondOK(c, gin.H{"categories": rows})
}

func (th *TaxonomyHandler) GetSnapshot(c *gin.Context) {
  snap, err := th.store.Snapshot(c.Request.Context(), c.Param("categoryId"))
  if err != nil {
    respondTaxonomyError(c, err)
    return
  }
  RespondOK(c, snap)
}

func (th *TaxonomyHandler) ApplyBatch(c *gin.Context) {
  var req struct {
    Ops    []taxonomy.Op `json:"ops"`
    Strict bool          `json:"strict"`
  }
  if err := c.ShouldBindJSON(&req); err != nil {
    RespondError(c, http.StatusBadRequest, apierr.CodeBadRequest, err)
    return
  }
  if len(req.Ops) == 0 {
    RespondError(c, http.StatusBadRequest, apierr.CodeBadRequest, errors.New("ops required"))
    return
  }
  result, err := th.store.ApplyBatch(c.Request.Context(), c.Param("categoryId"), req.Ops, req.Strict)
  if err != nil {
    respondTaxonomyError(c, err)
    return
  }
  RespondOK(c, result)
}

func (th *TaxonomyHandler) CheckIntegrity(c *gin.Context) {
  violations, err := th.checker.CheckAll(c.Request.Context())
  if err != nil {
    RespondError(c, http.StatusInternalServerError, apierr.CodeInternal, err)
    return
  }
  RespondOK(c, gin.H{"clean": len(violations) == 0, "violations": violations})
}

func (th *TaxonomyHandler) CheckCategoryIntegrity(c *gin.Context) {
  violations, err := th.checker.CheckCategory(c.Request.Context(), nil, c.Param("categoryId"))
  if err != nil {
    respondTaxonomyError(c, err)
    return
  }
  RespondOK(c, gin.H{"clean": len(violations) == 0, "violations": violations})
}
