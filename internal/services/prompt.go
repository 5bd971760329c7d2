package services

import (
  "context"
  "encoding/json"
  "fmt"

  "github.com/google/uuid"

  "github.com/medcurio/taxonomy-backend/internal/logger"
  "github.com/medcurio/taxonomy-backend/internal/modules/taxonomy"
)

// PromptService turns a category snapshot plus document text into a tagging
// proposal. The snapshot may be stale; the proposal is advisory and the
// reconciler re-validates everything against live state.
type PromptService interface {
  ProposeTags(ctx context.Context, snapshot *taxonomy.CategorySnapshot, documentID uuid.UUID, documentText string) (*taxonomy.Proposal, map[string]any, error)
}

type promptService struct {
  log      *logger.Logger
  aiClient ClassifierClient
}

func NewPromptService(log *logger.Logger, ai ClassifierClient) PromptService {
  return &promptService{
    log:      log.With("service", "PromptService"),
    aiClient: ai,
  }
}

const classifySystemPrompt = `You tag clinical and legal documents against a fixed two-level taxonomy.
You are given one category with its keywords, subkeywords, and synonyms, plus one document.
Return every keyword and subkeyword the document substantively discusses.
Prefer matching existing entries (by label or synonym) over inventing new ones.
Only propose a new keyword or subkeyword when the document clearly discusses a concept
the category does not cover yet. Quote a short verbatim snippet as evidence for each match.
Never propose renames or deletions; the taxonomy only grows.`

func (s *promptService) ProposeTags(ctx context.Context, snapshot *taxonomy.CategorySnapshot, documentID uuid.UUID, documentText string) (*taxonomy.Proposal, map[string]any, error) {
  if snapshot == nil {
    return nil, nil, fmt.Errorf("snapshot required")
  }
  if documentText == "" {
    return nil, nil, fmt.Errorf("document text required")
  }

  snapJSON, err := json.MarshalIndent(snapshot, "", "  ")
  if err != nil {
    return nil, nil, err
  }
  user := fmt.Sprintf("CATEGORY SNAPSHOT:\n%s\n\nDOCUMENT:\n%s", string(snapJSON), documentText)

  raw, err := s.aiClient.GenerateJSON(ctx, classifySystemPrompt, user, "tagging_proposal", proposalSchema())
  if err != nil {
    return nil, nil, err
  }

  encoded, err := json.Marshal(raw)
  if err != nil {
    return nil, raw, err
  }
  var proposal taxonomy.Proposal
  if err := json.Unmarshal(encoded, &proposal); err != nil {
    return nil, raw, fmt.Errorf("proposal decode failed: %w", err)
  }
  // Identity fields come from the caller, never from the model.
  proposal.CategoryID = snapshot.CategoryID
  proposal.DocumentID = documentID

  if err := taxonomy.ValidateProposal(&proposal); err != nil {
    return nil, raw, fmt.Errorf("proposal failed structural validation: %w", err)
  }
  s.log.Debug("Tagging proposal generated",
    "category_id", proposal.CategoryID,
    "document_id", proposal.DocumentID,
    "keyword_matches", len(proposal.KeywordMatches),
  )
  return &proposal, raw, nil
}

func proposalSchema() map[string]any {
  newTerm := map[string]any{
    "type":                 "object",
    "additionalProperties": false,
    "properties": map[string]any{
      "label":    map[string]any{"type": "string"},
      "synonyms": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
    },
    "required": []string{"label", "synonyms"},
  }
  subkeywordMatch := map[string]any{
    "type":                 "object",
    "additionalProperties": false,
    "properties": map[string]any{
      "subkeywordId":     map[string]any{"type": []string{"string", "null"}},
      "newSubkeyword":    map[string]any{"anyOf": []any{newTerm, map[string]any{"type": "null"}}},
      "observedSynonyms": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
      "addedSynonyms":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
      "evidence":         map[string]any{"type": "string"},
    },
    "required": []string{"subkeywordId", "newSubkeyword", "observedSynonyms", "addedSynonyms", "evidence"},
  }
  keywordMatch := map[string]any{
    "type":                 "object",
    "additionalProperties": false,
    "properties": map[string]any{
      "keywordId":         map[string]any{"type": []string{"string", "null"}},
      "newKeyword":        map[string]any{"anyOf": []any{newTerm, map[string]any{"type": "null"}}},
      "observedSynonyms":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
      "addedSynonyms":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
      "evidence":          map[string]any{"type": "string"},
      "subkeywordMatches": map[string]any{"type": "array", "items": subkeywordMatch},
    },
    "required": []string{"keywordId", "newKeyword", "observedSynonyms", "addedSynonyms", "evidence", "subkeywordMatches"},
  }
  return map[string]any{
    "type":                 "object",
    "additionalProperties": false,
    "properties": map[string]any{
      "keywordMatches": map[string]any{"type": "array", "items": keywordMatch},
    },
    "required": []string{"keywordMatches"},
  }
}
