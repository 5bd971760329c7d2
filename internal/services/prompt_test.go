package services

import (
  "context"
  "strings"
  "testing"
  "time"

  "github.com/google/uuid"

  "github.com/medcurio/taxonomy-backend/internal/logger"
  "github.com/medcurio/taxonomy-backend/internal/modules/taxonomy"
)

type stubClassifier struct {
  raw        map[string]any
  err        error
  lastSystem string
  lastUser   string
}

func (s *stubClassifier) GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error) {
  s.lastSystem = system
  s.lastUser = user
  return s.raw, s.err
}

func testSnapshot() *taxonomy.CategorySnapshot {
  return &taxonomy.CategorySnapshot{
    CategoryID: "respiratory",
    Label:      "Respiratory",
    Keywords: []taxonomy.KeywordNode{{
      ID:       "respiratory.pulse_ox",
      Label:    "Pulse Ox",
      Synonyms: []string{"O2 sat"},
      Status:   "active",
    }},
    TakenAt: time.Now().UTC(),
  }
}

func testLogger(t *testing.T) *logger.Logger {
  t.Helper()
  log, err := logger.New("development")
  if err != nil {
    t.Fatalf("logger: %v", err)
  }
  return log
}

func TestProposeTagsDecodesClassifierOutput(t *testing.T) {
  stub := &stubClassifier{raw: map[string]any{
    "keywordMatches": []any{map[string]any{
      "keywordId":        "respiratory.pulse_ox",
      "observedSynonyms": []any{"O2 sat"},
      "addedSynonyms":    []any{"oxygen sat"},
      "evidence":         "O2 sat fell below 88%",
    }},
  }}
  svc := NewPromptService(testLogger(t), stub)
  docID := uuid.New()

  proposal, raw, err := svc.ProposeTags(context.Background(), testSnapshot(), docID, "patient note text")
  if err != nil {
    t.Fatalf("propose: %v", err)
  }
  if raw == nil {
    t.Fatalf("raw model output must be passed through for the audit log")
  }
  if len(proposal.KeywordMatches) != 1 {
    t.Fatalf("expected one keyword match, got %+v", proposal.KeywordMatches)
  }
  km := proposal.KeywordMatches[0]
  if km.KeywordID != "respiratory.pulse_ox" || km.Evidence != "O2 sat fell below 88%" {
    t.Fatalf("match decoded wrong: %+v", km)
  }
  if len(km.AddedSynonyms) != 1 || km.AddedSynonyms[0] != "oxygen sat" {
    t.Fatalf("added synonyms decoded wrong: %+v", km.AddedSynonyms)
  }
  if !strings.Contains(stub.lastUser, "respiratory.pulse_ox") {
    t.Fatalf("user prompt must embed the snapshot")
  }
}

func TestProposeTagsForcesIdentityFromCaller(t *testing.T) {
  stub := &stubClassifier{raw: map[string]any{
    // The model must not be able to redirect the proposal.
    "categoryId": "cardiology",
    "documentId": uuid.New().String(),
    "keywordMatches": []any{map[string]any{
      "keywordId": "respiratory.pulse_ox",
    }},
  }}
  svc := NewPromptService(testLogger(t), stub)
  docID := uuid.New()

  proposal, _, err := svc.ProposeTags(context.Background(), testSnapshot(), docID, "note")
  if err != nil {
    t.Fatalf("propose: %v", err)
  }
  if proposal.CategoryID != "respiratory" {
    t.Fatalf("category must come from the snapshot, got %q", proposal.CategoryID)
  }
  if proposal.DocumentID != docID {
    t.Fatalf("document id must come from the caller, got %s", proposal.DocumentID)
  }
}

func TestProposeTagsRejectsMalformedProposal(t *testing.T) {
  stub := &stubClassifier{raw: map[string]any{
    // Neither an id nor a new-keyword payload.
    "keywordMatches": []any{map[string]any{
      "observedSynonyms": []any{"O2 sat"},
    }},
  }}
  svc := NewPromptService(testLogger(t), stub)

  if _, _, err := svc.ProposeTags(context.Background(), testSnapshot(), uuid.New(), "note"); err == nil {
    t.Fatalf("structurally invalid model output must be rejected")
  }
}

func TestProposeTagsRequiresSnapshotAndText(t *testing.T) {
  svc := NewPromptService(testLogger(t), &stubClassifier{})
  if _, _, err := svc.ProposeTags(context.Background(), nil, uuid.New(), "note"); err == nil {
    t.Fatalf("nil snapshot must error")
  }
  if _, _, err := svc.ProposeTags(context.Background(), testSnapshot(), uuid.New(), ""); err == nil {
    t.Fatalf("empty document text must error")
  }
}
