package taxonomy

import (
	"context"
	"testing"
)

func TestSplitFoldsDeepKeywordIntoSubkeyword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedCategory(t, "communication", "Communication")
	env.seedKeyword(t, "communication", "communication.patient_initiated", "Patient Initiated")
	env.seedKeyword(t, "communication", "communication.patient_initiated.refill_request", "Refill Request", "refill")
	docID := env.seedDocument(t)
	env.seedTerm(t, docID, "communication.patient_initiated.refill_request", nil)
	env.seedEvidence(t, docID, "communication.patient_initiated.refill_request", nil, "patient asked for a refill")

	report, err := env.migrator.Split(ctx, "communication", DefaultCanonicalDepth)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(report.SubkeywordsCreated) != 1 || report.SubkeywordsCreated[0] != "communication.patient_initiated.refill_request" {
		t.Fatalf("unexpected subkeywords created %v", report.SubkeywordsCreated)
	}
	if report.TermsRepointed != 1 || report.TermsCollapsed != 0 {
		t.Fatalf("unexpected term counts %+v", report)
	}
	if len(report.KeywordsDeleted) != 1 {
		t.Fatalf("expected old keyword deleted, got %+v", report)
	}

	// The association now targets (parent, subkeyword).
	targets := env.termTargets(t, docID)
	if len(targets) != 1 || !targets["communication.patient_initiated/communication.patient_initiated.refill_request"] {
		t.Fatalf("association not repointed, got %v", targets)
	}
	// Evidence followed the concept.
	evs, err := env.evidence.ListByDocument(ctx, nil, docID)
	if err != nil {
		t.Fatalf("list evidence: %v", err)
	}
	if len(evs) != 1 || evs[0].KeywordID != "communication.patient_initiated" || evs[0].SubkeywordID == nil {
		t.Fatalf("evidence not repointed, got %+v", evs)
	}
	// The old keyword row no longer exists; its id lives on as the subkeyword.
	kw, err := env.keywords.GetByID(ctx, nil, "communication.patient_initiated.refill_request")
	if err != nil {
		t.Fatalf("get keyword: %v", err)
	}
	if kw != nil {
		t.Fatalf("old keyword row must be gone, got %+v", kw)
	}
	sk, err := env.subkeywords.GetByID(ctx, nil, "communication.patient_initiated.refill_request")
	if err != nil {
		t.Fatalf("get subkeyword: %v", err)
	}
	if sk == nil || sk.KeywordID != "communication.patient_initiated" {
		t.Fatalf("expected subkeyword under parent, got %+v", sk)
	}
}

func TestSplitIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedCategory(t, "communication", "Communication")
	env.seedKeyword(t, "communication", "communication.patient_initiated", "Patient Initiated")
	env.seedKeyword(t, "communication", "communication.patient_initiated.refill_request", "Refill Request")
	docID := env.seedDocument(t)
	env.seedTerm(t, docID, "communication.patient_initiated.refill_request", nil)

	if _, err := env.migrator.Split(ctx, "communication", DefaultCanonicalDepth); err != nil {
		t.Fatalf("first split: %v", err)
	}
	report, err := env.migrator.Split(ctx, "communication", DefaultCanonicalDepth)
	if err != nil {
		t.Fatalf("second split: %v", err)
	}
	if len(report.SubkeywordsCreated) != 0 || report.TermsRepointed != 0 || len(report.KeywordsDeleted) != 0 {
		t.Fatalf("second run must be a no-op, got %+v", report)
	}
	targets := env.termTargets(t, docID)
	if len(targets) != 1 || !targets["communication.patient_initiated/communication.patient_initiated.refill_request"] {
		t.Fatalf("associations changed on re-run, got %v", targets)
	}
}

func TestSplitCollapsesDuplicateAssociations(t *testing.T) {
	env := newTestEnv(t)
	env.seedCategory(t, "communication", "Communication")
	env.seedKeyword(t, "communication", "communication.patient_initiated", "Patient Initiated")
	env.seedKeyword(t, "communication", "communication.patient_initiated.refill_request", "Refill Request")
	env.seedSubkeyword(t, "communication", "communication.patient_initiated", "communication.patient_initiated.refill_request", "Refill Request")
	docID := env.seedDocument(t)
	// The document already carries the migrated pair plus the legacy row.
	env.seedTerm(t, docID, "communication.patient_initiated", strptr("communication.patient_initiated.refill_request"))
	env.seedTerm(t, docID, "communication.patient_initiated.refill_request", nil)

	report, err := env.migrator.Split(context.Background(), "communication", DefaultCanonicalDepth)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if report.TermsCollapsed != 1 || report.TermsRepointed != 0 {
		t.Fatalf("expected collapse, got %+v", report)
	}
	if len(report.AlreadyMigrated) != 1 {
		t.Fatalf("existing subkeyword must be reused, got %+v", report)
	}
	targets := env.termTargets(t, docID)
	if len(targets) != 1 {
		t.Fatalf("duplicate rows must collapse to one, got %v", targets)
	}
}

func TestSplitSkipsKeywordsWithChildren(t *testing.T) {
	env := newTestEnv(t)
	env.seedKeyword(t, "respiratory", "respiratory.oxygen", "Oxygen")
	env.seedKeyword(t, "respiratory", "respiratory.oxygen.saturation", "Oxygen Saturation")
	env.seedSubkeyword(t, "respiratory", "respiratory.oxygen.saturation", "respiratory.oxygen.saturation.resting", "Resting")

	report, err := env.migrator.Split(context.Background(), "respiratory", DefaultCanonicalDepth)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(report.SkippedHasChildren) != 1 || report.SkippedHasChildren[0] != "respiratory.oxygen.saturation" {
		t.Fatalf("keyword with children must be skipped, got %+v", report)
	}
	kw, err := env.keywords.GetByID(context.Background(), nil, "respiratory.oxygen.saturation")
	if err != nil {
		t.Fatalf("get keyword: %v", err)
	}
	if kw == nil {
		t.Fatalf("skipped keyword must survive")
	}
}

func TestSplitIgnoresDeepIDsWithoutPrefixKeyword(t *testing.T) {
	env := newTestEnv(t)
	// The dotted shape alone is not authority; no prefix keyword, no fold.
	env.seedKeyword(t, "respiratory", "respiratory.oxygen.saturation", "Oxygen Saturation")

	report, err := env.migrator.Split(context.Background(), "respiratory", DefaultCanonicalDepth)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(report.SubkeywordsCreated) != 0 || len(report.KeywordsDeleted) != 0 {
		t.Fatalf("expected no-op without prefix keyword, got %+v", report)
	}
}

func TestMergeUnionsDocumentSets(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedKeyword(t, "respiratory", "respiratory.oxygen_saturation", "Oxygen Saturation", "spo2")
	env.seedKeyword(t, "respiratory", "respiratory.o2_sat", "O2 Sat", "o2 sat")
	env.seedKeyword(t, "respiratory", "respiratory.sat", "Sat")

	docA := env.seedDocument(t)
	docB := env.seedDocument(t)
	docC := env.seedDocument(t)
	env.seedTerm(t, docA, "respiratory.oxygen_saturation", nil)
	env.seedTerm(t, docA, "respiratory.o2_sat", nil) // duplicate concept on one document
	env.seedTerm(t, docB, "respiratory.o2_sat", nil)
	env.seedTerm(t, docC, "respiratory.sat", nil)
	env.seedEvidence(t, docB, "respiratory.o2_sat", nil, "O2 sat 91% on room air")

	report, err := env.migrator.Merge(ctx, "respiratory", "respiratory.oxygen_saturation", []string{"respiratory.o2_sat", "respiratory.sat"})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if len(report.LegacyMerged) != 2 {
		t.Fatalf("expected both legacy ids merged, got %+v", report)
	}
	if report.TermsCollapsed != 1 || report.TermsRepointed != 2 {
		t.Fatalf("unexpected term counts %+v", report)
	}

	if targets := env.termTargets(t, docA); len(targets) != 1 || !targets["respiratory.oxygen_saturation"] {
		t.Fatalf("docA must hold exactly the canonical tag, got %v", targets)
	}
	if targets := env.termTargets(t, docB); len(targets) != 1 || !targets["respiratory.oxygen_saturation"] {
		t.Fatalf("docB must hold the canonical tag, got %v", targets)
	}
	if targets := env.termTargets(t, docC); len(targets) != 1 || !targets["respiratory.oxygen_saturation"] {
		t.Fatalf("docC must hold the canonical tag, got %v", targets)
	}

	evs, err := env.evidence.ListByDocument(ctx, nil, docB)
	if err != nil {
		t.Fatalf("list evidence: %v", err)
	}
	if len(evs) != 1 || evs[0].KeywordID != "respiratory.oxygen_saturation" {
		t.Fatalf("evidence must follow the merge, got %+v", evs)
	}

	// Legacy rows are gone, non-colliding synonyms folded into the canonical.
	for _, legacy := range []string{"respiratory.o2_sat", "respiratory.sat"} {
		kw, err := env.keywords.GetByID(ctx, nil, legacy)
		if err != nil {
			t.Fatalf("get keyword: %v", err)
		}
		if kw != nil {
			t.Fatalf("legacy keyword %s must be deleted", legacy)
		}
	}
	if len(report.SynonymsFolded) != 1 || report.SynonymsFolded[0] != "o2 sat" {
		t.Fatalf("expected legacy synonym folded, got %v", report.SynonymsFolded)
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedKeyword(t, "respiratory", "respiratory.oxygen_saturation", "Oxygen Saturation")
	env.seedKeyword(t, "respiratory", "respiratory.o2_sat", "O2 Sat")
	docID := env.seedDocument(t)
	env.seedTerm(t, docID, "respiratory.o2_sat", nil)

	if _, err := env.migrator.Merge(ctx, "respiratory", "respiratory.oxygen_saturation", []string{"respiratory.o2_sat"}); err != nil {
		t.Fatalf("first merge: %v", err)
	}
	report, err := env.migrator.Merge(ctx, "respiratory", "respiratory.oxygen_saturation", []string{"respiratory.o2_sat"})
	if err != nil {
		t.Fatalf("second merge: %v", err)
	}
	if len(report.LegacyMerged) != 0 || len(report.LegacyMissing) != 1 {
		t.Fatalf("second run must report the legacy id as already gone, got %+v", report)
	}
}

func TestMergeReparentsSubkeywords(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedKeyword(t, "respiratory", "respiratory.oxygen_saturation", "Oxygen Saturation")
	env.seedKeyword(t, "respiratory", "respiratory.o2_sat", "O2 Sat")
	env.seedSubkeyword(t, "respiratory", "respiratory.o2_sat", "respiratory.o2_sat.resting", "Resting")
	docID := env.seedDocument(t)
	env.seedTerm(t, docID, "respiratory.o2_sat", strptr("respiratory.o2_sat.resting"))

	report, err := env.migrator.Merge(ctx, "respiratory", "respiratory.oxygen_saturation", []string{"respiratory.o2_sat"})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if len(report.SubkeywordsReparented) != 1 {
		t.Fatalf("expected subkeyword reparented, got %+v", report)
	}
	sk, err := env.subkeywords.GetByID(ctx, nil, "respiratory.o2_sat.resting")
	if err != nil {
		t.Fatalf("get subkeyword: %v", err)
	}
	if sk == nil || sk.KeywordID != "respiratory.oxygen_saturation" {
		t.Fatalf("subkeyword must hang off the canonical keyword, got %+v", sk)
	}
	// The subkeyword-level association kept its subkeyword and moved keyword.
	targets := env.termTargets(t, docID)
	if len(targets) != 1 || !targets["respiratory.oxygen_saturation/respiratory.o2_sat.resting"] {
		t.Fatalf("unexpected association targets %v", targets)
	}
}

func TestMergeRequiresCanonicalKeyword(t *testing.T) {
	env := newTestEnv(t)
	env.seedKeyword(t, "respiratory", "respiratory.o2_sat", "O2 Sat")

	_, err := env.migrator.Merge(context.Background(), "respiratory", "respiratory.oxygen_saturation", []string{"respiratory.o2_sat"})
	if err == nil {
		t.Fatalf("merge without canonical keyword must fail")
	}
}
