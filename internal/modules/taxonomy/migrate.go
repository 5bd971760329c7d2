package taxonomy

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/medcurio/taxonomy-backend/internal/logger"
	"github.com/medcurio/taxonomy-backend/internal/normalization"
	"github.com/medcurio/taxonomy-backend/internal/repos"
	"github.com/medcurio/taxonomy-backend/internal/types"
)

// DefaultCanonicalDepth is the expected dotted-path depth for keyword ids
// ("category.concept"). Anything deeper is a split candidate, provided the
// shallower prefix exists as a real keyword — the path shape is advisory
// only, the prefix keyword is the authority.
const DefaultCanonicalDepth = 2

// PostMigrationIntegrityError means the taxonomy failed its integrity check
// after a committed migration. This is a fatal operational condition: nothing
// is rolled back automatically, and the category must be investigated before
// further reconciliation against it.
type PostMigrationIntegrityError struct {
	CategoryID string
	Violations []Violation
}

func (e *PostMigrationIntegrityError) Error() string {
	return fmt.Sprintf("post-migration integrity check failed for category %q: %d violation(s)", e.CategoryID, len(e.Violations))
}

// Migrator performs the two one-shot restructuring modes. Both run under the
// per-category exclusive lock, both are idempotent, and both leave the set of
// (document, concept) pairs unchanged.
type Migrator struct {
	store   *Store
	checker *Checker
	log     *logger.Logger
}

func NewMigrator(store *Store, checker *Checker, baseLog *logger.Logger) *Migrator {
	return &Migrator{
		store:   store,
		checker: checker,
		log:     baseLog.With("component", "NormalizationMigrator"),
	}
}

type SplitReport struct {
	CategoryID         string   `json:"categoryId"`
	CanonicalDepth     int      `json:"canonicalDepth"`
	SubkeywordsCreated []string `json:"subkeywordsCreated"`
	AlreadyMigrated    []string `json:"alreadyMigrated"`
	SkippedHasChildren []string `json:"skippedHasChildren"`
	TermsRepointed     int      `json:"termsRepointed"`
	TermsCollapsed     int      `json:"termsCollapsed"`
	EvidenceRepointed  int      `json:"evidenceRepointed"`
	KeywordsDeleted    []string `json:"keywordsDeleted"`
}

// Split folds over-specified keywords (dotted path deeper than the canonical
// depth, with an existing prefix keyword) into subkeywords of that prefix.
// Running it twice is a no-op: subkeyword creation short-circuits on
// existence, only keyword-level rows are ever repointed, and a fully migrated
// keyword row no longer exists.
func (m *Migrator) Split(ctx context.Context, categoryID string, canonicalDepth int) (*SplitReport, error) {
	if canonicalDepth <= 0 {
		canonicalDepth = DefaultCanonicalDepth
	}
	report := &SplitReport{CategoryID: categoryID, CanonicalDepth: canonicalDepth}

	err := m.store.withCategoryTx(ctx, categoryID, func(tx *gorm.DB, state *categoryState) error {
		parentOf := make(map[string]bool)
		for _, sk := range state.subkeywords {
			parentOf[sk.KeywordID] = true
		}
		for _, kw := range sortedKeywordMap(state.keywords) {
			segs := strings.Split(kw.ID, ".")
			if len(segs) <= canonicalDepth {
				continue
			}
			parentID := strings.Join(segs[:canonicalDepth], ".")
			parent, ok := state.keywords[parentID]
			if !ok || parent.ID == kw.ID {
				continue
			}
			// A keyword that is itself a parent cannot be folded into a
			// subkeyword; the hierarchy has no third level.
			if parentOf[kw.ID] {
				report.SkippedHasChildren = append(report.SkippedHasChildren, kw.ID)
				continue
			}
			if err := m.splitKeyword(ctx, tx, state, kw, parent, report); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.log.Info("Split migration committed",
		"category_id", categoryID,
		"subkeywords_created", len(report.SubkeywordsCreated),
		"terms_repointed", report.TermsRepointed,
		"keywords_deleted", len(report.KeywordsDeleted),
	)
	if err := m.postCheck(ctx, categoryID); err != nil {
		return report, err
	}
	return report, nil
}

func (m *Migrator) splitKeyword(ctx context.Context, tx *gorm.DB, state *categoryState, kw, parent *types.Keyword, report *SplitReport) error {
	if _, ok := state.subkeywords[kw.ID]; ok {
		report.AlreadyMigrated = append(report.AlreadyMigrated, kw.ID)
	} else {
		sub := &types.Subkeyword{
			ID:          kw.ID,
			KeywordID:   parent.ID,
			CategoryID:  kw.CategoryID,
			Label:       kw.Label,
			Synonyms:    kw.Synonyms,
			Description: kw.Description,
			Status:      kw.Status,
		}
		if err := m.store.subkeywordRepo.Create(ctx, tx, []*types.Subkeyword{sub}); err != nil {
			return err
		}
		state.subkeywords[sub.ID] = sub
		report.SubkeywordsCreated = append(report.SubkeywordsCreated, kw.ID)
	}

	subID := kw.ID
	terms, err := m.store.termRepo.ListKeywordLevelByKeyword(ctx, tx, kw.ID)
	if err != nil {
		return err
	}
	for _, term := range terms {
		collapsed, err := m.store.Repoint(ctx, tx, term, parent.ID, &subID)
		if err != nil {
			return err
		}
		if collapsed {
			report.TermsCollapsed++
		} else {
			report.TermsRepointed++
		}
	}
	// Evidence rows whose document no longer holds a matching association
	// (or never did) still follow the concept.
	leftover, err := m.store.evidenceRepo.ListKeywordLevelByKeyword(ctx, tx, kw.ID)
	if err != nil {
		return err
	}
	for _, ev := range leftover {
		if err := m.store.evidenceRepo.UpdateTarget(ctx, tx, ev.ID, parent.ID, &subID); err != nil {
			return err
		}
		report.EvidenceRepointed++
	}

	if err := m.store.Deprecate(ctx, tx, kw.ID); err != nil {
		return err
	}
	if err := m.store.keywordRepo.Delete(ctx, tx, kw.ID); err != nil {
		return err
	}
	delete(state.keywords, kw.ID)
	delete(state.globalKeywords, kw.ID)
	report.KeywordsDeleted = append(report.KeywordsDeleted, kw.ID)
	return nil
}

type MergeReport struct {
	CategoryID            string   `json:"categoryId"`
	CanonicalID           string   `json:"canonicalId"`
	LegacyMerged          []string `json:"legacyMerged"`
	LegacyMissing         []string `json:"legacyMissing"`
	SubkeywordsReparented []string `json:"subkeywordsReparented"`
	SynonymsFolded        []string `json:"synonymsFolded"`
	TermsRepointed        int      `json:"termsRepointed"`
	TermsCollapsed        int      `json:"termsCollapsed"`
	EvidenceRepointed     int      `json:"evidenceRepointed"`
}

// Merge folds legacy duplicate keywords into one canonical keyword. The
// canonical keyword's document set afterwards is exactly the union of the
// document sets previously held by the legacy ids; no document gains or
// loses a tag. Legacy ids already gone are reported, not errors, so a
// partially completed merge can be re-run safely.
func (m *Migrator) Merge(ctx context.Context, categoryID, canonicalID string, legacyIDs []string) (*MergeReport, error) {
	report := &MergeReport{CategoryID: categoryID, CanonicalID: canonicalID}

	err := m.store.withCategoryTx(ctx, categoryID, func(tx *gorm.DB, state *categoryState) error {
		canonical, ok := state.keywords[canonicalID]
		if !ok {
			return fmt.Errorf("canonical keyword %q not found in category %q", canonicalID, categoryID)
		}
		for _, legacyID := range legacyIDs {
			if legacyID == canonicalID {
				continue
			}
			legacy, ok := state.keywords[legacyID]
			if !ok {
				report.LegacyMissing = append(report.LegacyMissing, legacyID)
				continue
			}
			if err := m.mergeKeyword(ctx, tx, state, legacy, canonical, report); err != nil {
				return err
			}
			report.LegacyMerged = append(report.LegacyMerged, legacyID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.log.Info("Merge migration committed",
		"category_id", categoryID,
		"canonical_id", canonicalID,
		"legacy_merged", len(report.LegacyMerged),
		"terms_repointed", report.TermsRepointed,
		"terms_collapsed", report.TermsCollapsed,
	)
	if err := m.postCheck(ctx, categoryID); err != nil {
		return report, err
	}
	return report, nil
}

func (m *Migrator) mergeKeyword(ctx context.Context, tx *gorm.DB, state *categoryState, legacy, canonical *types.Keyword, report *MergeReport) error {
	children, err := m.store.subkeywordRepo.ListByKeyword(ctx, tx, legacy.ID)
	if err != nil {
		return err
	}
	for _, sk := range children {
		if err := m.store.subkeywordRepo.UpdateParent(ctx, tx, sk.ID, canonical.ID); err != nil {
			return err
		}
		sk.KeywordID = canonical.ID
		report.SubkeywordsReparented = append(report.SubkeywordsReparented, sk.ID)
	}

	terms, err := m.store.termRepo.ListByKeyword(ctx, tx, legacy.ID)
	if err != nil {
		return err
	}
	for _, term := range terms {
		collapsed, err := m.store.Repoint(ctx, tx, term, canonical.ID, term.SubkeywordID)
		if err != nil {
			return err
		}
		if collapsed {
			report.TermsCollapsed++
		} else {
			report.TermsRepointed++
		}
	}
	leftover, err := m.store.evidenceRepo.ListByKeyword(ctx, tx, legacy.ID)
	if err != nil {
		return err
	}
	for _, ev := range leftover {
		if err := m.store.evidenceRepo.UpdateTarget(ctx, tx, ev.ID, canonical.ID, ev.SubkeywordID); err != nil {
			return err
		}
		report.EvidenceRepointed++
	}

	// Legacy synonyms that collide with nothing else keep working as lookup
	// forms of the canonical concept.
	merged := repos.UnmarshalSynonyms(canonical.Synonyms)
	var folded []string
	for _, syn := range repos.UnmarshalSynonyms(legacy.Synonyms) {
		norm := normalization.NormalizeSynonym(syn)
		if norm == "" {
			continue
		}
		owner, taken := state.globalSynonyms[norm]
		if taken && owner != legacy.ID && owner != canonical.ID {
			continue
		}
		already := false
		for _, existing := range merged {
			if normalization.NormalizeSynonym(existing) == norm {
				already = true
				break
			}
		}
		if already {
			continue
		}
		merged = append(merged, syn)
		folded = append(folded, syn)
		state.globalSynonyms[norm] = canonical.ID
	}
	if len(folded) > 0 {
		if err := m.store.keywordRepo.UpdateSynonyms(ctx, tx, canonical.ID, merged); err != nil {
			return err
		}
		canonical.Synonyms = repos.MarshalSynonyms(merged)
		report.SynonymsFolded = append(report.SynonymsFolded, folded...)
	}

	if err := m.store.Deprecate(ctx, tx, legacy.ID); err != nil {
		return err
	}
	if err := m.store.keywordRepo.Delete(ctx, tx, legacy.ID); err != nil {
		return err
	}
	delete(state.keywords, legacy.ID)
	delete(state.globalKeywords, legacy.ID)
	return nil
}

// postCheck re-runs the integrity checker against live, committed state.
// A failure here is fatal and operational: the migration already committed,
// nothing rolls back, and the category needs manual review.
func (m *Migrator) postCheck(ctx context.Context, categoryID string) error {
	violations, err := m.checker.CheckCategory(ctx, nil, categoryID)
	if err != nil {
		return fmt.Errorf("post-migration integrity check could not run: %w", err)
	}
	if len(violations) > 0 {
		m.log.Error("Post-migration integrity check failed", "category_id", categoryID, "violations", len(violations))
		return &PostMigrationIntegrityError{CategoryID: categoryID, Violations: violations}
	}
	return nil
}

func sortedKeywordMap(in map[string]*types.Keyword) []*types.Keyword {
	out := make([]*types.Keyword, 0, len(in))
	for _, kw := range in {
		out = append(out, kw)
	}
	return sortedKeywords(out)
}
