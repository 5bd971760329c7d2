package taxonomy

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/medcurio/taxonomy-backend/internal/repos"
	"github.com/medcurio/taxonomy-backend/internal/types"
)

func mkKeyword(categoryID, id string, synonyms ...string) *types.Keyword {
	return &types.Keyword{
		ID:         id,
		CategoryID: categoryID,
		Label:      id,
		Synonyms:   repos.MarshalSynonyms(synonyms),
		Status:     types.TermStatusActive,
	}
}

func mkSubkeyword(categoryID, keywordID, id string, synonyms ...string) *types.Subkeyword {
	return &types.Subkeyword{
		ID:         id,
		KeywordID:  keywordID,
		CategoryID: categoryID,
		Label:      id,
		Synonyms:   repos.MarshalSynonyms(synonyms),
		Status:     types.TermStatusActive,
	}
}

func violationKinds(vs []Violation) map[ViolationKind]int {
	out := make(map[ViolationKind]int)
	for _, v := range vs {
		out[v.Kind]++
	}
	return out
}

func TestCheckCleanView(t *testing.T) {
	view := &View{
		Categories: []*types.Category{{ID: "respiratory"}, {ID: "cardiology"}},
		Keywords: []*types.Keyword{
			mkKeyword("respiratory", "respiratory.oxygen_saturation", "o2 sat", "spo2"),
			mkKeyword("cardiology", "cardiology.heart_rate", "pulse", "hr"),
		},
		Subkeywords: []*types.Subkeyword{
			mkSubkeyword("respiratory", "respiratory.oxygen_saturation", "respiratory.oxygen_saturation.resting", "resting sat"),
		},
	}
	if vs := Check(view); len(vs) != 0 {
		t.Fatalf("expected clean view, got %v", vs)
	}
}

func TestCheckKeywordSynonymConflictSpansCategories(t *testing.T) {
	view := &View{
		Keywords: []*types.Keyword{
			mkKeyword("respiratory", "respiratory.oxygen_saturation", "sat"),
			mkKeyword("cardiology", "cardiology.heart_rate", "  SAT "),
		},
	}
	vs := Check(view)
	if len(vs) != 1 {
		t.Fatalf("expected 1 violation, got %v", vs)
	}
	v := vs[0]
	if v.Kind != ViolationKeywordSynonymConflict {
		t.Fatalf("expected keyword_synonym_conflict, got %s", v.Kind)
	}
	if v.Value != "sat" {
		t.Fatalf("expected normalized value 'sat', got %q", v.Value)
	}
	if len(v.Owners) != 2 {
		t.Fatalf("expected 2 owners, got %v", v.Owners)
	}
}

func TestCheckSynonymRepeatedOnSameKeywordIsNotAConflict(t *testing.T) {
	view := &View{
		Keywords: []*types.Keyword{
			mkKeyword("respiratory", "respiratory.oxygen_saturation", "sat", "Sat"),
		},
	}
	if vs := Check(view); len(vs) != 0 {
		t.Fatalf("self-overlap must not be a violation, got %v", vs)
	}
}

func TestCheckSubkeywordSynonymScope(t *testing.T) {
	keywords := []*types.Keyword{
		mkKeyword("respiratory", "respiratory.oxygen_saturation"),
		mkKeyword("cardiology", "cardiology.heart_rate"),
	}

	// Same-parent collision violates the sibling rule.
	view := &View{
		Keywords: keywords,
		Subkeywords: []*types.Subkeyword{
			mkSubkeyword("respiratory", "respiratory.oxygen_saturation", "respiratory.oxygen_saturation.resting", "baseline"),
			mkSubkeyword("respiratory", "respiratory.oxygen_saturation", "respiratory.oxygen_saturation.ambulatory", "Baseline"),
		},
	}
	vs := Check(view)
	if len(vs) != 1 || vs[0].Kind != ViolationSubkeywordSynonymConflict {
		t.Fatalf("expected one subkeyword_synonym_conflict, got %v", vs)
	}

	// The same shared form under different parents is legal.
	view = &View{
		Keywords: keywords,
		Subkeywords: []*types.Subkeyword{
			mkSubkeyword("respiratory", "respiratory.oxygen_saturation", "respiratory.oxygen_saturation.resting", "baseline"),
			mkSubkeyword("cardiology", "cardiology.heart_rate", "cardiology.heart_rate.resting", "baseline"),
		},
	}
	if vs := Check(view); len(vs) != 0 {
		t.Fatalf("cross-parent synonym sharing must be legal, got %v", vs)
	}
}

func TestCheckSubkeywordParentRules(t *testing.T) {
	view := &View{
		Keywords: []*types.Keyword{
			mkKeyword("respiratory", "respiratory.oxygen_saturation"),
		},
		Subkeywords: []*types.Subkeyword{
			mkSubkeyword("respiratory", "respiratory.gone", "respiratory.gone.child"),
			mkSubkeyword("cardiology", "respiratory.oxygen_saturation", "cardiology.stray"),
		},
	}
	kinds := violationKinds(Check(view))
	if kinds[ViolationMissingParentKeyword] != 1 {
		t.Fatalf("expected 1 missing_parent_keyword, got %v", kinds)
	}
	if kinds[ViolationParentCategoryMismatch] != 1 {
		t.Fatalf("expected 1 parent_category_mismatch, got %v", kinds)
	}
}

func TestCheckTermReferentialRules(t *testing.T) {
	docID := uuid.New()
	view := &View{
		Keywords: []*types.Keyword{
			mkKeyword("respiratory", "respiratory.oxygen_saturation"),
			mkKeyword("respiratory", "respiratory.dyspnea"),
		},
		Subkeywords: []*types.Subkeyword{
			mkSubkeyword("respiratory", "respiratory.oxygen_saturation", "respiratory.oxygen_saturation.resting"),
		},
		Terms: []*types.DocumentTerm{
			{DocumentID: docID, KeywordID: "respiratory.removed"},
			{DocumentID: docID, KeywordID: "respiratory.oxygen_saturation", SubkeywordID: strptr("respiratory.removed.sub")},
			{DocumentID: docID, KeywordID: "respiratory.dyspnea", SubkeywordID: strptr("respiratory.oxygen_saturation.resting")},
			{DocumentID: docID, KeywordID: "respiratory.oxygen_saturation", SubkeywordID: strptr("respiratory.oxygen_saturation.resting")},
		},
	}
	kinds := violationKinds(Check(view))
	if kinds[ViolationTermUnknownKeyword] != 1 {
		t.Fatalf("expected 1 term_unknown_keyword, got %v", kinds)
	}
	if kinds[ViolationTermUnknownSubkeyword] != 1 {
		t.Fatalf("expected 1 term_unknown_subkeyword, got %v", kinds)
	}
	if kinds[ViolationTermParentMismatch] != 1 {
		t.Fatalf("expected 1 term_parent_mismatch, got %v", kinds)
	}
}

func TestCheckerCheckAllAgainstStorage(t *testing.T) {
	env := newTestEnv(t)
	env.seedKeyword(t, "respiratory", "respiratory.oxygen_saturation", "Oxygen Saturation", "sat")
	env.seedKeyword(t, "cardiology", "cardiology.heart_rate", "Heart Rate", "sat")

	vs, err := env.checker.CheckAll(context.Background())
	if err != nil {
		t.Fatalf("check all: %v", err)
	}
	if len(vs) != 1 || vs[0].Kind != ViolationKeywordSynonymConflict {
		t.Fatalf("expected one keyword_synonym_conflict, got %v", vs)
	}
}

func TestCheckCategoryFiltersToCategory(t *testing.T) {
	env := newTestEnv(t)
	// The conflict lives entirely inside cardiology.
	env.seedKeyword(t, "cardiology", "cardiology.heart_rate", "Heart Rate", "pulse")
	env.seedKeyword(t, "cardiology", "cardiology.pulse", "Pulse", "pulse")
	env.seedKeyword(t, "respiratory", "respiratory.oxygen_saturation", "Oxygen Saturation", "sat")

	vs, err := env.checker.CheckCategory(context.Background(), nil, "respiratory")
	if err != nil {
		t.Fatalf("check category: %v", err)
	}
	if len(vs) != 0 {
		t.Fatalf("respiratory audit must not report cardiology conflicts, got %v", vs)
	}

	vs, err = env.checker.CheckCategory(context.Background(), nil, "cardiology")
	if err != nil {
		t.Fatalf("check category: %v", err)
	}
	if len(vs) != 1 || vs[0].Kind != ViolationKeywordSynonymConflict {
		t.Fatalf("expected cardiology conflict, got %v", vs)
	}
}
