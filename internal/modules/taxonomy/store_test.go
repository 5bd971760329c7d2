package taxonomy

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestApplyBatchBuildsHierarchy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ops := []Op{
		{Kind: OpCreateKeyword, KeywordID: "respiratory.oxygen_saturation", Label: "Oxygen Saturation", Synonyms: []string{"o2 sat", "spo2"}},
		{Kind: OpCreateSubkeyword, KeywordID: "respiratory.oxygen_saturation", SubkeywordID: "respiratory.oxygen_saturation.resting", Label: "Resting", Synonyms: []string{"resting sat"}},
		{Kind: OpAppendSynonym, KeywordID: "respiratory.oxygen_saturation", Synonym: "oxygen sat"},
	}
	result, err := env.store.ApplyBatch(ctx, "respiratory", ops, true)
	if err != nil {
		t.Fatalf("apply batch: %v", err)
	}
	if len(result.Applied) != 3 || len(result.Rejected) != 0 {
		t.Fatalf("expected all ops applied, got %+v", result)
	}

	snap, err := env.store.Snapshot(ctx, "respiratory")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Keywords) != 1 {
		t.Fatalf("expected 1 keyword in snapshot, got %d", len(snap.Keywords))
	}
	kw := snap.Keywords[0]
	if kw.ID != "respiratory.oxygen_saturation" || len(kw.Synonyms) != 3 {
		t.Fatalf("unexpected keyword node %+v", kw)
	}
	if len(kw.Subkeywords) != 1 || kw.Subkeywords[0].ID != "respiratory.oxygen_saturation.resting" {
		t.Fatalf("unexpected subkeyword nodes %+v", kw.Subkeywords)
	}
}

func TestApplyBatchRejectsGlobalSynonymConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedKeyword(t, "cardiology", "cardiology.heart_rate", "Heart Rate", "pulse")

	ops := []Op{
		{Kind: OpCreateKeyword, KeywordID: "respiratory.pulse_ox", Label: "Pulse Oximetry", Synonyms: []string{" Pulse "}},
	}
	result, err := env.store.ApplyBatch(ctx, "respiratory", ops, false)
	if err != nil {
		t.Fatalf("apply batch: %v", err)
	}
	if len(result.Applied) != 0 || len(result.Rejected) != 1 {
		t.Fatalf("expected single rejection, got %+v", result)
	}
	if got := result.Rejected[0].Reason; got != "duplicate_synonym_keyword:cardiology.heart_rate" {
		t.Fatalf("unexpected rejection reason %q", got)
	}
}

func TestApplyBatchStrictAbortsWholeBatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedKeyword(t, "respiratory", "respiratory.dyspnea", "Dyspnea", "sob")

	ops := []Op{
		{Kind: OpCreateKeyword, KeywordID: "respiratory.cough", Label: "Cough"},
		{Kind: OpCreateKeyword, KeywordID: "respiratory.breathless", Label: "Breathlessness", Synonyms: []string{"SOB"}},
	}
	_, err := env.store.ApplyBatch(ctx, "respiratory", ops, true)
	var rejErr *BatchRejectionError
	if !errors.As(err, &rejErr) {
		t.Fatalf("expected BatchRejectionError, got %v", err)
	}

	// The valid first op must have rolled back with the batch.
	kw, err := env.keywords.GetByID(ctx, nil, "respiratory.cough")
	if err != nil {
		t.Fatalf("get keyword: %v", err)
	}
	if kw != nil {
		t.Fatalf("strict batch failure must leave no partial writes, found %+v", kw)
	}
}

func TestApplyBatchPartialAcceptance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedKeyword(t, "respiratory", "respiratory.dyspnea", "Dyspnea", "sob")

	ops := []Op{
		{Kind: OpCreateKeyword, KeywordID: "respiratory.cough", Label: "Cough"},
		{Kind: OpCreateKeyword, KeywordID: "respiratory.breathless", Label: "Breathlessness", Synonyms: []string{"SOB"}},
		{Kind: OpAppendSynonym, KeywordID: "respiratory.cough", Synonym: "tussis"},
	}
	result, err := env.store.ApplyBatch(ctx, "respiratory", ops, false)
	if err != nil {
		t.Fatalf("apply batch: %v", err)
	}
	if len(result.Applied) != 2 || len(result.Rejected) != 1 {
		t.Fatalf("expected 2 applied 1 rejected, got %+v", result)
	}
	if !strings.HasPrefix(result.Rejected[0].Reason, "duplicate_synonym_keyword:") {
		t.Fatalf("unexpected reason %q", result.Rejected[0].Reason)
	}
}

func TestApplyBatchCrossParentSubkeywordSynonyms(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedKeyword(t, "respiratory", "respiratory.oxygen_saturation", "Oxygen Saturation")
	env.seedKeyword(t, "respiratory", "respiratory.dyspnea", "Dyspnea")
	env.seedSubkeyword(t, "respiratory", "respiratory.oxygen_saturation", "respiratory.oxygen_saturation.resting", "Resting", "baseline")

	ops := []Op{
		// Same synonym under a different parent is legal.
		{Kind: OpCreateSubkeyword, KeywordID: "respiratory.dyspnea", SubkeywordID: "respiratory.dyspnea.resting", Label: "At Rest", Synonyms: []string{"baseline"}},
		// Under the same parent it is not.
		{Kind: OpCreateSubkeyword, KeywordID: "respiratory.oxygen_saturation", SubkeywordID: "respiratory.oxygen_saturation.supine", Label: "Supine", Synonyms: []string{"Baseline"}},
	}
	result, err := env.store.ApplyBatch(ctx, "respiratory", ops, false)
	if err != nil {
		t.Fatalf("apply batch: %v", err)
	}
	if len(result.Applied) != 1 || result.Applied[0].SubkeywordID != "respiratory.dyspnea.resting" {
		t.Fatalf("expected cross-parent create to pass, got %+v", result)
	}
	if len(result.Rejected) != 1 || result.Rejected[0].Reason != "duplicate_synonym_subkeyword:respiratory.oxygen_saturation.resting" {
		t.Fatalf("expected sibling rejection, got %+v", result.Rejected)
	}
}

func TestApplyBatchAssociationLevels(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedKeyword(t, "respiratory", "respiratory.oxygen_saturation", "Oxygen Saturation")
	env.seedSubkeyword(t, "respiratory", "respiratory.oxygen_saturation", "respiratory.oxygen_saturation.resting", "Resting")
	docID := env.seedDocument(t)

	ops := []Op{
		{Kind: OpCreateAssociation, DocumentID: docID, KeywordID: "respiratory.oxygen_saturation"},
		{Kind: OpCreateAssociation, DocumentID: docID, KeywordID: "respiratory.oxygen_saturation", SubkeywordID: "respiratory.oxygen_saturation.resting"},
		// Exact duplicate of the keyword-level row.
		{Kind: OpCreateAssociation, DocumentID: docID, KeywordID: "respiratory.oxygen_saturation"},
	}
	result, err := env.store.ApplyBatch(ctx, "respiratory", ops, false)
	if err != nil {
		t.Fatalf("apply batch: %v", err)
	}
	if len(result.Applied) != 2 {
		t.Fatalf("keyword-level and subkeyword-level rows are distinct, got %+v", result)
	}
	if len(result.Rejected) != 1 || result.Rejected[0].Reason != "association_exists" {
		t.Fatalf("expected duplicate association rejection, got %+v", result.Rejected)
	}

	targets := env.termTargets(t, docID)
	if len(targets) != 2 {
		t.Fatalf("expected 2 stored associations, got %v", targets)
	}
	if !targets["respiratory.oxygen_saturation"] || !targets["respiratory.oxygen_saturation/respiratory.oxygen_saturation.resting"] {
		t.Fatalf("unexpected association targets %v", targets)
	}
}

func TestSnapshotUnknownCategory(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.store.Snapshot(context.Background(), "neurology")
	if !errors.Is(err, ErrCategoryNotFound) {
		t.Fatalf("expected ErrCategoryNotFound, got %v", err)
	}
}

func TestApplyBatchUnknownCategory(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.store.ApplyBatch(context.Background(), "neurology", []Op{
		{Kind: OpCreateKeyword, KeywordID: "neurology.seizure", Label: "Seizure"},
	}, true)
	if !errors.Is(err, ErrCategoryNotFound) {
		t.Fatalf("expected ErrCategoryNotFound, got %v", err)
	}
}
