package taxonomy

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/medcurio/taxonomy-backend/internal/logger"
	"github.com/medcurio/taxonomy-backend/internal/normalization"
	"github.com/medcurio/taxonomy-backend/internal/repos"
	"github.com/medcurio/taxonomy-backend/internal/types"
)

type ViolationKind string

const (
	// Two distinct keywords share a normalized synonym.
	ViolationKeywordSynonymConflict ViolationKind = "keyword_synonym_conflict"
	// Two subkeywords under the same parent share a normalized synonym.
	// Subkeywords under different parents MAY share one and are never reported.
	ViolationSubkeywordSynonymConflict ViolationKind = "subkeyword_synonym_conflict"

	ViolationMissingParentKeyword   ViolationKind = "missing_parent_keyword"
	ViolationParentCategoryMismatch ViolationKind = "parent_category_mismatch"

	ViolationTermUnknownKeyword    ViolationKind = "term_unknown_keyword"
	ViolationTermUnknownSubkeyword ViolationKind = "term_unknown_subkeyword"
	ViolationTermParentMismatch    ViolationKind = "term_parent_mismatch"
)

type Violation struct {
	Kind   ViolationKind `json:"kind"`
	Value  string        `json:"value"`
	Owners []string      `json:"owners,omitempty"`
}

// View is the flat taxonomy state the checker runs over. It is either loaded
// from storage or assembled in memory when simulating a batch.
type View struct {
	Categories  []*types.Category
	Keywords    []*types.Keyword
	Subkeywords []*types.Subkeyword
	Terms       []*types.DocumentTerm
}

// Check is a pure validation pass over a full taxonomy view. It reports
// violations in deterministic order and never repairs anything.
func Check(view *View) []Violation {
	if view == nil {
		return nil
	}
	var out []Violation

	keywordByID := make(map[string]*types.Keyword, len(view.Keywords))
	for _, kw := range view.Keywords {
		keywordByID[kw.ID] = kw
	}
	categoryByID := make(map[string]*types.Category, len(view.Categories))
	for _, cat := range view.Categories {
		categoryByID[cat.ID] = cat
	}

	// Normalized synonym sets of distinct keywords must be disjoint,
	// across the entire taxonomy.
	keywords := sortedKeywords(view.Keywords)
	synonymOwner := make(map[string]string)
	for _, kw := range keywords {
		for _, syn := range repos.UnmarshalSynonyms(kw.Synonyms) {
			norm := normalization.NormalizeSynonym(syn)
			if norm == "" {
				continue
			}
			owner, seen := synonymOwner[norm]
			if !seen {
				synonymOwner[norm] = kw.ID
				continue
			}
			if owner != kw.ID {
				out = append(out, Violation{
					Kind:   ViolationKeywordSynonymConflict,
					Value:  norm,
					Owners: []string{owner, kw.ID},
				})
			}
		}
	}

	// Checked within each parent keyword independently; collisions across
	// different parents are legal and not reported.
	subkeywords := sortedSubkeywords(view.Subkeywords)
	siblingOwner := make(map[string]map[string]string) // parent -> norm -> subkeyword id
	for _, sk := range subkeywords {
		group, ok := siblingOwner[sk.KeywordID]
		if !ok {
			group = make(map[string]string)
			siblingOwner[sk.KeywordID] = group
		}
		for _, syn := range repos.UnmarshalSynonyms(sk.Synonyms) {
			norm := normalization.NormalizeSynonym(syn)
			if norm == "" {
				continue
			}
			owner, seen := group[norm]
			if !seen {
				group[norm] = sk.ID
				continue
			}
			if owner != sk.ID {
				out = append(out, Violation{
					Kind:   ViolationSubkeywordSynonymConflict,
					Value:  norm,
					Owners: []string{owner, sk.ID},
				})
			}
		}
	}

	// Every subkeyword's parent must exist and share its category.
	for _, sk := range subkeywords {
		parent, ok := keywordByID[sk.KeywordID]
		if !ok {
			out = append(out, Violation{
				Kind:   ViolationMissingParentKeyword,
				Value:  sk.ID,
				Owners: []string{sk.KeywordID},
			})
			continue
		}
		if parent.CategoryID != sk.CategoryID {
			out = append(out, Violation{
				Kind:   ViolationParentCategoryMismatch,
				Value:  sk.ID,
				Owners: []string{parent.ID},
			})
		}
	}

	// Associations reference live keywords, and any subkeyword on an
	// association is a child of that association's keyword.
	subkeywordByID := make(map[string]*types.Subkeyword, len(subkeywords))
	for _, sk := range subkeywords {
		subkeywordByID[sk.ID] = sk
	}
	for _, term := range sortedTerms(view.Terms) {
		if _, ok := keywordByID[term.KeywordID]; !ok {
			out = append(out, Violation{
				Kind:   ViolationTermUnknownKeyword,
				Value:  term.DocumentID.String(),
				Owners: []string{term.KeywordID},
			})
			continue
		}
		if term.SubkeywordID == nil {
			continue
		}
		sk, ok := subkeywordByID[*term.SubkeywordID]
		if !ok {
			out = append(out, Violation{
				Kind:   ViolationTermUnknownSubkeyword,
				Value:  term.DocumentID.String(),
				Owners: []string{*term.SubkeywordID},
			})
			continue
		}
		if sk.KeywordID != term.KeywordID {
			out = append(out, Violation{
				Kind:   ViolationTermParentMismatch,
				Value:  term.DocumentID.String(),
				Owners: []string{term.KeywordID, sk.ID},
			})
		}
	}

	return out
}

func sortedKeywords(in []*types.Keyword) []*types.Keyword {
	out := make([]*types.Keyword, len(in))
	copy(out, in)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedSubkeywords(in []*types.Subkeyword) []*types.Subkeyword {
	out := make([]*types.Subkeyword, len(in))
	copy(out, in)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedTerms(in []*types.DocumentTerm) []*types.DocumentTerm {
	out := make([]*types.DocumentTerm, len(in))
	copy(out, in)
	sort.Slice(out, func(i, j int) bool {
		if out[i].KeywordID != out[j].KeywordID {
			return out[i].KeywordID < out[j].KeywordID
		}
		return out[i].DocumentID.String() < out[j].DocumentID.String()
	})
	return out
}

// Checker loads taxonomy state and runs Check over it. It is the audit
// surface: report-only, repair happens through explicitly invoked migrations.
type Checker struct {
	db             *gorm.DB
	log            *logger.Logger
	categoryRepo   repos.CategoryRepo
	keywordRepo    repos.KeywordRepo
	subkeywordRepo repos.SubkeywordRepo
	termRepo       repos.DocumentTermRepo
}

func NewChecker(
	db *gorm.DB,
	baseLog *logger.Logger,
	categoryRepo repos.CategoryRepo,
	keywordRepo repos.KeywordRepo,
	subkeywordRepo repos.SubkeywordRepo,
	termRepo repos.DocumentTermRepo,
) *Checker {
	return &Checker{
		db:             db,
		log:            baseLog.With("component", "IntegrityChecker"),
		categoryRepo:   categoryRepo,
		keywordRepo:    keywordRepo,
		subkeywordRepo: subkeywordRepo,
		termRepo:       termRepo,
	}
}

// CheckAll audits the whole taxonomy. The four table scans run concurrently;
// the pass itself is pure and ordered.
func (c *Checker) CheckAll(ctx context.Context) ([]Violation, error) {
	view := &View{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := c.categoryRepo.List(gctx, nil)
		view.Categories = rows
		return err
	})
	g.Go(func() error {
		rows, err := c.keywordRepo.ListAll(gctx, nil)
		view.Keywords = rows
		return err
	})
	g.Go(func() error {
		rows, err := c.subkeywordRepo.ListAll(gctx, nil)
		view.Subkeywords = rows
		return err
	})
	g.Go(func() error {
		rows, err := c.termRepo.ListAll(gctx, nil)
		view.Terms = rows
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	violations := Check(view)
	if len(violations) > 0 {
		c.log.Warn("Integrity audit found violations", "count", len(violations))
	}
	return violations, nil
}

// CheckCategory audits one category against live state inside tx. Keywords
// from every category participate (synonym ownership is global) but only
// violations touching the named category are reported.
func (c *Checker) CheckCategory(ctx context.Context, tx *gorm.DB, categoryID string) ([]Violation, error) {
	categories, err := c.categoryRepo.List(ctx, tx)
	if err != nil {
		return nil, err
	}
	keywords, err := c.keywordRepo.ListAll(ctx, tx)
	if err != nil {
		return nil, err
	}
	subkeywords, err := c.subkeywordRepo.ListAll(ctx, tx)
	if err != nil {
		return nil, err
	}
	terms, err := c.termRepo.ListAll(ctx, tx)
	if err != nil {
		return nil, err
	}
	view := &View{Categories: categories, Keywords: keywords, Subkeywords: subkeywords, Terms: terms}
	return FilterViolations(Check(view), view, categoryID), nil
}

// FilterViolations keeps only violations involving entities of one category.
func FilterViolations(violations []Violation, view *View, categoryID string) []Violation {
	member := make(map[string]bool)
	for _, kw := range view.Keywords {
		if kw.CategoryID == categoryID {
			member[kw.ID] = true
		}
	}
	for _, sk := range view.Subkeywords {
		if sk.CategoryID == categoryID {
			member[sk.ID] = true
		}
	}
	var out []Violation
	for _, v := range violations {
		if member[v.Value] {
			out = append(out, v)
			continue
		}
		for _, owner := range v.Owners {
			if member[owner] {
				out = append(out, v)
				break
			}
		}
	}
	return out
}
