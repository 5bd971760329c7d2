package handlers

import (
  "errors"
  "net/http"

  "github.com/gin-gonic/gin"
  "github.com/google/uuid"

  "github.com/medcurio/taxonomy-backend/internal/logger"
  "github.com/medcurio/taxonomy-backend/internal/modules/taxonomy"
  "github.com/medcurio/taxonomy-backend/internal/platform/apierr"
  "github.com/medcurio/taxonomy-backend/internal/repos"
  "github.com/medcurio/taxonomy-backend/internal/services"
)

type DocumentHandler struct {
  log        *logger.Logger
  pipeline   services.DocumentPipelineService
  reconciler *taxonomy.Reconciler
  documents  repos.DocumentRepo
  terms      repos.DocumentTermRepo
  evidence   repos.EvidenceRepo
  callLogs   repos.ClassifyCallLogRepo
}

func NewDocumentHandler(
  log *logger.Logger,
  pipeline services.DocumentPipelineService,
  reconciler *taxonomy.Reconciler,
  documents repos.DocumentRepo,
  terms repos.DocumentTermRepo,
  evidence repos.EvidenceRepo,
  callLogs repos.ClassifyCallLogRepo,
) *DocumentHandler {
  return &DocumentHandler{
    log:        log.With("handler", "DocumentHandler"),
    pipeline:   pipeline,
    reconciler: reconciler,
    documents:  documents,
    terms:      terms,
    evidence:   evidence,
    callLogs:   callLogs,
  }
}

func (dh *DocumentHandler) Ingest(c *gin.Context) {
  var req struct {
    ExternalRef string `json:"external_ref"`
    StorageURI  string `json:"storage_uri"`
    ContentType string `json:"content_type"`
    Text        string `json:"text"`
  }
  if err := c.ShouldBindJSON(&req); err != nil {
    RespondError(c, http.StatusBadRequest, apierr.CodeBadRequest, err)
    return
  }
  doc, err := dh.pipeline.Ingest(c.Request.Context(), req.ExternalRef, req.StorageURI, req.ContentType, req.Text)
  if err != nil {
    RespondError(c, http.StatusBadRequest, apierr.CodeBadRequest, err)
    return
  }
  RespondOK(c, doc)
}

func (dh *DocumentHandler) Classify(c *gin.Context) {
  documentID, err := uuid.Parse(c.Param("documentId"))
  if err != nil {
    RespondError(c, http.StatusBadRequest, apierr.CodeBadRequest, errors.New("invalid document id"))
    return
  }
  categoryIDs := c.QueryArray("category")
  if len(categoryIDs) == 0 {
    RespondError(c, http.StatusBadRequest, apierr.CodeBadRequest, errors.New("category query parameter required"))
    return
  }
  if len(categoryIDs) == 1 {
    result, err := dh.pipeline.Classify(c.Request.Context(), documentID, categoryIDs[0])
    if err != nil {
      respondTaxonomyError(c, err)
      return
    }
    RespondOK(c, result)
    return
  }
  results, err := dh.pipeline.ClassifyAll(c.Request.Context(), documentID, categoryIDs)
  if err != nil {
    respondTaxonomyError(c, err)
    return
  }
  RespondOK(c, gin.H{"results": results})
}

// Reconcile accepts an externally produced proposal directly, bypassing the
// classifier call. Used by batch re-tagging jobs and integration tests.
func (dh *DocumentHandler) Reconcile(c *gin.Context) {
  var proposal taxonomy.Proposal
  if err := c.ShouldBindJSON(&proposal); err != nil {
    RespondError(c, http.StatusBadRequest, apierr.CodeBadRequest, err)
    return
  }
  if err := taxonomy.ValidateProposal(&proposal); err != nil {
    RespondError(c, http.StatusBadRequest, apierr.CodeBadRequest, err)
    return
  }
  result, err := dh.reconciler.Reconcile(c.Request.Context(), &proposal)
  if err != nil {
    respondTaxonomyError(c, err)
    return
  }
  RespondOK(c, result)
}

func (dh *DocumentHandler) GetTerms(c *gin.Context) {
  documentID, err := uuid.Parse(c.Param("documentId"))
  if err != nil {
    RespondError(c, http.StatusBadRequest, apierr.CodeBadRequest, errors.New("invalid document id"))
    return
  }
  ctx := c.Request.Context()
  doc, err := dh.documents.GetByID(ctx, nil, documentID)
  if err != nil {
    RespondError(c, http.StatusInternalServerError, apierr.CodeInternal, err)
    return
  }
  if doc == nil {
    RespondError(c, http.StatusNotFound, apierr.CodeNotFound, errors.New("document not found"))
    return
  }
  terms, err := dh.terms.ListByDocument(ctx, nil, documentID)
  if err != nil {
    RespondError(c, http.StatusInternalServerError, apierr.CodeInternal, err)
    return
  }
  evidence, err := dh.evidence.ListByDocument(ctx, nil, documentID)
  if err != nil {
    RespondError(c, http.StatusInternalServerError, apierr.CodeInternal, err)
    return
  }
  RespondOK(c, gin.H{"document": doc, "terms": terms, "evidence": evidence})
}

func (dh *DocumentHandler) GetClassifyCalls(c *gin.Context) {
  documentID, err := uuid.Parse(c.Param("documentId"))
  if err != nil {
    RespondError(c, http.StatusBadRequest, apierr.CodeBadRequest, errors.New("invalid document id"))
    return
  }
  rows, err := dh.callLogs.ListByDocument(c.Request.Context(), nil, documentID)
  if err != nil {
    RespondError(c, http.StatusInternalServerError, apierr.CodeInternal, err)
    return
  }
  RespondOK(c, gin.H{"calls": rows})
}
