package services

import (
  "context"
  "encoding/json"
  "errors"
  "fmt"
  "os"
  "strconv"
  "strings"
  "sync"
  "time"

  "github.com/google/uuid"
  "golang.org/x/sync/errgroup"
  "gorm.io/datatypes"

  "github.com/medcurio/taxonomy-backend/internal/logger"
  "github.com/medcurio/taxonomy-backend/internal/modules/taxonomy"
  "github.com/medcurio/taxonomy-backend/internal/repos"
  "github.com/medcurio/taxonomy-backend/internal/types"
)

// DocumentPipelineService runs the end-to-end tagging flow for one document:
// snapshot, classifier call, reconciliation, audit log. Categories are
// independent write domains, so ClassifyAll fans out per category.
type DocumentPipelineService interface {
  Classify(ctx context.Context, documentID uuid.UUID, categoryID string) (*taxonomy.Result, error)
  ClassifyAll(ctx context.Context, documentID uuid.UUID, categoryIDs []string) (map[string]*taxonomy.Result, error)
  Ingest(ctx context.Context, externalRef, storageURI, contentType, text string) (*types.Document, error)
}

// proposalReconciler is the slice of the taxonomy reconciler the pipeline
// needs; narrowed so retry behavior can be tested against a stub.
type proposalReconciler interface {
  Reconcile(ctx context.Context, p *taxonomy.Proposal) (*taxonomy.Result, error)
}

type documentPipelineService struct {
  log        *logger.Logger
  store      *taxonomy.Store
  reconciler proposalReconciler
  prompts    PromptService
  extraction ContentExtractionService
  documents  repos.DocumentRepo
  callLogs   repos.ClassifyCallLogRepo

  busyRetries int
}

func NewDocumentPipelineService(
  log *logger.Logger,
  store *taxonomy.Store,
  reconciler proposalReconciler,
  prompts PromptService,
  extraction ContentExtractionService,
  documents repos.DocumentRepo,
  callLogs repos.ClassifyCallLogRepo,
) DocumentPipelineService {
  busyRetries := 5
  if v := os.Getenv("CATEGORY_BUSY_MAX_RETRIES"); v != "" {
    if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed >= 0 {
      busyRetries = parsed
    }
  }
  return &documentPipelineService{
    log:         log.With("service", "DocumentPipelineService"),
    store:       store,
    reconciler:  reconciler,
    prompts:     prompts,
    extraction:  extraction,
    documents:   documents,
    callLogs:    callLogs,
    busyRetries: busyRetries,
  }
}

func (s *documentPipelineService) Ingest(ctx context.Context, externalRef, storageURI, contentType, text string) (*types.Document, error) {
  if externalRef == "" {
    return nil, fmt.Errorf("external ref required")
  }
  if text == "" && storageURI == "" {
    return nil, fmt.Errorf("either text or a storage uri is required")
  }
  doc := &types.Document{
    ExternalRef: externalRef,
    StorageURI:  storageURI,
    ContentType: contentType,
    Text:        text,
    Status:      types.DocumentStatusPending,
  }
  if err := s.documents.Create(ctx, nil, []*types.Document{doc}); err != nil {
    return nil, err
  }
  s.log.Info("Document ingested", "document_id", doc.ID, "external_ref", externalRef)
  return doc, nil
}

func (s *documentPipelineService) Classify(ctx context.Context, documentID uuid.UUID, categoryID string) (*taxonomy.Result, error) {
  text, err := s.documentText(ctx, documentID)
  if err != nil {
    return nil, err
  }

  result, err := s.classifyCategory(ctx, documentID, categoryID, text)
  if err != nil {
    _ = s.documents.UpdateStatus(ctx, nil, documentID, types.DocumentStatusFailed)
    return nil, err
  }
  if err := s.documents.UpdateStatus(ctx, nil, documentID, types.DocumentStatusClassified); err != nil {
    return nil, err
  }
  return result, nil
}

func (s *documentPipelineService) ClassifyAll(ctx context.Context, documentID uuid.UUID, categoryIDs []string) (map[string]*taxonomy.Result, error) {
  if len(categoryIDs) == 0 {
    return nil, fmt.Errorf("at least one category is required")
  }
  text, err := s.documentText(ctx, documentID)
  if err != nil {
    return nil, err
  }

  var mu sync.Mutex
  results := make(map[string]*taxonomy.Result, len(categoryIDs))
  g, gctx := errgroup.WithContext(ctx)
  for _, categoryID := range categoryIDs {
    categoryID := categoryID
    g.Go(func() error {
      result, err := s.classifyCategory(gctx, documentID, categoryID, text)
      if err != nil {
        return fmt.Errorf("category %s: %w", categoryID, err)
      }
      mu.Lock()
      results[categoryID] = result
      mu.Unlock()
      return nil
    })
  }
  if err := g.Wait(); err != nil {
    _ = s.documents.UpdateStatus(ctx, nil, documentID, types.DocumentStatusFailed)
    return results, err
  }
  if err := s.documents.UpdateStatus(ctx, nil, documentID, types.DocumentStatusClassified); err != nil {
    return results, err
  }
  return results, nil
}

// documentText loads the document and extracts its text on first use.
func (s *documentPipelineService) documentText(ctx context.Context, documentID uuid.UUID) (string, error) {
  doc, err := s.documents.GetByID(ctx, nil, documentID)
  if err != nil {
    return "", err
  }
  if doc == nil {
    return "", fmt.Errorf("document %s not found", documentID)
  }
  if doc.Text != "" {
    return doc.Text, nil
  }
  if doc.StorageURI == "" {
    return "", fmt.Errorf("document %s has no text and no storage uri", documentID)
  }
  if s.extraction == nil {
    _ = s.documents.UpdateStatus(ctx, nil, documentID, types.DocumentStatusFailed)
    return "", fmt.Errorf("document %s needs extraction but no extraction service is configured", documentID)
  }
  extracted, err := s.extraction.ExtractText(ctx, doc.StorageURI, doc.ContentType)
  if err != nil {
    _ = s.documents.UpdateStatus(ctx, nil, documentID, types.DocumentStatusFailed)
    return "", fmt.Errorf("text extraction failed: %w", err)
  }
  if err := s.documents.UpdateText(ctx, nil, documentID, extracted); err != nil {
    return "", err
  }
  return extracted, nil
}

func (s *documentPipelineService) classifyCategory(ctx context.Context, documentID uuid.UUID, categoryID, text string) (*taxonomy.Result, error) {
  // Lock-free read; staleness is resolved by the reconciler at commit time.
  snapshot, err := s.store.Snapshot(ctx, categoryID)
  if err != nil {
    return nil, err
  }

  started := time.Now()
  proposal, raw, err := s.prompts.ProposeTags(ctx, snapshot, documentID, text)
  latency := time.Since(started).Milliseconds()
  if err != nil {
    s.writeCallLog(ctx, documentID, categoryID, raw, nil, latency, err)
    return nil, err
  }

  result, err := s.reconcileWithRetry(ctx, proposal)
  s.writeCallLog(ctx, documentID, categoryID, raw, result, latency, err)
  if err != nil {
    return nil, err
  }
  return result, nil
}

// reconcileWithRetry resubmits the unchanged proposal when the category lock
// is contended. Busy is a scheduling condition, not a validation failure.
func (s *documentPipelineService) reconcileWithRetry(ctx context.Context, proposal *taxonomy.Proposal) (*taxonomy.Result, error) {
  backoff := 200 * time.Millisecond
  for attempt := 0; ; attempt++ {
    result, err := s.reconciler.Reconcile(ctx, proposal)
    if err == nil {
      return result, nil
    }
    if !errors.Is(err, taxonomy.ErrCategoryBusy) || attempt == s.busyRetries {
      return nil, err
    }
    s.log.Warn("Category busy, retrying reconciliation",
      "category_id", proposal.CategoryID,
      "attempt", attempt+1,
      "max_retries", s.busyRetries,
    )
    select {
    case <-ctx.Done():
      return nil, ctx.Err()
    case <-time.After(jitterSleep(backoff)):
    }
    if backoff < 3*time.Second {
      backoff *= 2
    }
  }
}

func (s *documentPipelineService) writeCallLog(ctx context.Context, documentID uuid.UUID, categoryID string, raw map[string]any, result *taxonomy.Result, latencyMS int64, callErr error) {
  row := &types.ClassifyCallLog{
    DocumentID: documentID,
    CategoryID: categoryID,
    Model:      os.Getenv("OPENAI_MODEL"),
    LatencyMS:  latencyMS,
  }
  if raw != nil {
    if encoded, err := json.Marshal(raw); err == nil {
      row.Response = datatypes.JSON(encoded)
    }
  }
  if result != nil {
    if encoded, err := json.Marshal(result); err == nil {
      row.Outcome = datatypes.JSON(encoded)
    }
  }
  if callErr != nil {
    row.Error = callErr.Error()
  }
  if err := s.callLogs.Create(ctx, nil, []*types.ClassifyCallLog{row}); err != nil {
    s.log.Error("Failed to write classify call log", "document_id", documentID, "error", err)
  }
}
