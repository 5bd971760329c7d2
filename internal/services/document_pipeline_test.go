package services

import (
  "context"
  "errors"
  "testing"
  "time"

  "github.com/google/uuid"
  "gorm.io/gorm"

  "github.com/medcurio/taxonomy-backend/internal/modules/taxonomy"
  "github.com/medcurio/taxonomy-backend/internal/types"
)

type stubReconciler struct {
  busyTimes int
  calls     int
}

func (s *stubReconciler) Reconcile(ctx context.Context, p *taxonomy.Proposal) (*taxonomy.Result, error) {
  s.calls++
  if s.calls <= s.busyTimes {
    return nil, taxonomy.ErrCategoryBusy
  }
  return &taxonomy.Result{CategoryID: p.CategoryID, DocumentID: p.DocumentID}, nil
}

type recordingCallLogRepo struct {
  rows []*types.ClassifyCallLog
}

func (r *recordingCallLogRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.ClassifyCallLog) error {
  r.rows = append(r.rows, rows...)
  return nil
}

func (r *recordingCallLogRepo) ListByDocument(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) ([]*types.ClassifyCallLog, error) {
  return r.rows, nil
}

func testProposal() *taxonomy.Proposal {
  return &taxonomy.Proposal{
    CategoryID: "respiratory",
    DocumentID: uuid.New(),
    KeywordMatches: []taxonomy.KeywordMatch{{
      KeywordID: "respiratory.pulse_ox",
    }},
  }
}

func TestReconcileWithRetryRecoversFromBusyCategory(t *testing.T) {
  stub := &stubReconciler{busyTimes: 2}
  svc := &documentPipelineService{
    log:         testLogger(t),
    reconciler:  stub,
    busyRetries: 5,
  }

  result, err := svc.reconcileWithRetry(context.Background(), testProposal())
  if err != nil {
    t.Fatalf("retry loop must absorb transient busy errors: %v", err)
  }
  if result == nil || result.CategoryID != "respiratory" {
    t.Fatalf("unexpected result: %+v", result)
  }
  if stub.calls != 3 {
    t.Fatalf("expected two busy attempts and one success, got %d calls", stub.calls)
  }
}

func TestReconcileWithRetryGivesUpAfterBudget(t *testing.T) {
  stub := &stubReconciler{busyTimes: 100}
  svc := &documentPipelineService{
    log:         testLogger(t),
    reconciler:  stub,
    busyRetries: 1,
  }

  _, err := svc.reconcileWithRetry(context.Background(), testProposal())
  if !errors.Is(err, taxonomy.ErrCategoryBusy) {
    t.Fatalf("exhausted retries must surface the busy error, got %v", err)
  }
  if stub.calls != 2 {
    t.Fatalf("expected initial attempt plus one retry, got %d calls", stub.calls)
  }
}

func TestReconcileWithRetryStopsOnCanceledContext(t *testing.T) {
  stub := &stubReconciler{busyTimes: 100}
  svc := &documentPipelineService{
    log:         testLogger(t),
    reconciler:  stub,
    busyRetries: 10,
  }

  ctx, cancel := context.WithCancel(context.Background())
  cancel()
  start := time.Now()
  _, err := svc.reconcileWithRetry(ctx, testProposal())
  if !errors.Is(err, context.Canceled) {
    t.Fatalf("expected context cancellation, got %v", err)
  }
  if elapsed := time.Since(start); elapsed > 2*time.Second {
    t.Fatalf("cancellation must cut the backoff short, took %v", elapsed)
  }
}

func TestWriteCallLogRecordsOutcomeAndError(t *testing.T) {
  repo := &recordingCallLogRepo{}
  svc := &documentPipelineService{
    log:      testLogger(t),
    callLogs: repo,
  }
  docID := uuid.New()

  svc.writeCallLog(context.Background(), docID, "respiratory",
    map[string]any{"keywordMatches": []any{}},
    &taxonomy.Result{CategoryID: "respiratory", DocumentID: docID},
    42, errors.New("reconcile failed"))

  if len(repo.rows) != 1 {
    t.Fatalf("expected one call log row, got %d", len(repo.rows))
  }
  row := repo.rows[0]
  if row.DocumentID != docID || row.CategoryID != "respiratory" {
    t.Fatalf("row misattributed: %+v", row)
  }
  if row.LatencyMS != 42 {
    t.Fatalf("latency not recorded: %d", row.LatencyMS)
  }
  if row.Error != "reconcile failed" {
    t.Fatalf("error not recorded: %q", row.Error)
  }
  if len(row.Response) == 0 || len(row.Outcome) == 0 {
    t.Fatalf("raw response and outcome must both be persisted")
  }
}
