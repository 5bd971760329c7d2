package taxonomy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/medcurio/taxonomy-backend/internal/logger"
	"github.com/medcurio/taxonomy-backend/internal/normalization"
	"github.com/medcurio/taxonomy-backend/internal/repos"
	"github.com/medcurio/taxonomy-backend/internal/types"
)

var ErrCategoryNotFound = errors.New("category not found")

// BatchRejectionError is returned by ApplyBatch in strict mode when any
// operation would violate an invariant; the whole batch rolls back.
type BatchRejectionError struct {
	Rejected []RejectedOp
}

func (e *BatchRejectionError) Error() string {
	if len(e.Rejected) == 0 {
		return "batch rejected"
	}
	return fmt.Sprintf("batch rejected: %s", e.Rejected[0].Reason)
}

// Store owns the durable taxonomy and its document-term associations, and
// enforces invariants at write time. Every mutating entry point runs inside a
// transaction holding the per-category exclusive lock.
type Store struct {
	db    *gorm.DB
	log   *logger.Logger
	cache *SnapshotCache

	categoryRepo   repos.CategoryRepo
	keywordRepo    repos.KeywordRepo
	subkeywordRepo repos.SubkeywordRepo
	termRepo       repos.DocumentTermRepo
	evidenceRepo   repos.EvidenceRepo
}

func NewStore(
	db *gorm.DB,
	baseLog *logger.Logger,
	cache *SnapshotCache,
	categoryRepo repos.CategoryRepo,
	keywordRepo repos.KeywordRepo,
	subkeywordRepo repos.SubkeywordRepo,
	termRepo repos.DocumentTermRepo,
	evidenceRepo repos.EvidenceRepo,
) *Store {
	return &Store{
		db:             db,
		log:            baseLog.With("component", "TaxonomyStore"),
		cache:          cache,
		categoryRepo:   categoryRepo,
		keywordRepo:    keywordRepo,
		subkeywordRepo: subkeywordRepo,
		termRepo:       termRepo,
		evidenceRepo:   evidenceRepo,
	}
}

func (s *Store) DB() *gorm.DB { return s.db }

// categoryState is the live write-side view of one category, plus the global
// synonym ownership map, since keyword synonym ownership spans all categories.
type categoryState struct {
	category       *types.Category
	keywords       map[string]*types.Keyword
	subkeywords    map[string]*types.Subkeyword
	globalKeywords map[string]*types.Keyword
	globalSynonyms map[string]string // normalized synonym -> owning keyword id
}

func (st *categoryState) siblingSynonyms(parentID string) map[string]string {
	out := make(map[string]string)
	for _, sk := range st.subkeywords {
		if sk.KeywordID != parentID {
			continue
		}
		for _, syn := range repos.UnmarshalSynonyms(sk.Synonyms) {
			norm := normalization.NormalizeSynonym(syn)
			if norm == "" {
				continue
			}
			if _, ok := out[norm]; !ok {
				out[norm] = sk.ID
			}
		}
	}
	return out
}

func (s *Store) loadStateTx(ctx context.Context, tx *gorm.DB, categoryID string) (*categoryState, error) {
	category, err := s.categoryRepo.GetByID(ctx, tx, categoryID)
	if err != nil {
		return nil, err
	}
	if category == nil {
		return nil, ErrCategoryNotFound
	}
	allKeywords, err := s.keywordRepo.ListAll(ctx, tx)
	if err != nil {
		return nil, err
	}
	subkeywords, err := s.subkeywordRepo.ListByCategory(ctx, tx, categoryID)
	if err != nil {
		return nil, err
	}
	state := &categoryState{
		category:       category,
		keywords:       make(map[string]*types.Keyword),
		subkeywords:    make(map[string]*types.Subkeyword, len(subkeywords)),
		globalKeywords: make(map[string]*types.Keyword, len(allKeywords)),
		globalSynonyms: make(map[string]string),
	}
	for _, kw := range allKeywords {
		state.globalKeywords[kw.ID] = kw
		if kw.CategoryID == categoryID {
			state.keywords[kw.ID] = kw
		}
		for _, syn := range repos.UnmarshalSynonyms(kw.Synonyms) {
			norm := normalization.NormalizeSynonym(syn)
			if norm == "" {
				continue
			}
			if _, ok := state.globalSynonyms[norm]; !ok {
				state.globalSynonyms[norm] = kw.ID
			}
		}
	}
	for _, sk := range subkeywords {
		state.subkeywords[sk.ID] = sk
	}
	return state, nil
}

// withCategoryTx runs fn inside one transaction holding the category's
// exclusive lock, with fresh live state loaded after the lock was taken.
// The category's cached snapshot is invalidated after a successful commit.
func (s *Store) withCategoryTx(ctx context.Context, categoryID string, fn func(tx *gorm.DB, state *categoryState) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tryCategoryLock(tx, categoryID); err != nil {
			return err
		}
		state, err := s.loadStateTx(ctx, tx, categoryID)
		if err != nil {
			return err
		}
		return fn(tx, state)
	})
	if err != nil {
		return err
	}
	s.cache.Invalidate(ctx, categoryID)
	return nil
}

// Snapshot returns the full keyword/subkeyword/synonym subtree for one
// category. Lock-free, safe for concurrent callers, may be slightly stale:
// served from cache when available, rebuilt and cached otherwise.
func (s *Store) Snapshot(ctx context.Context, categoryID string) (*CategorySnapshot, error) {
	if snap, ok := s.cache.Get(ctx, categoryID); ok {
		return snap, nil
	}
	category, err := s.categoryRepo.GetByID(ctx, nil, categoryID)
	if err != nil {
		return nil, err
	}
	if category == nil {
		return nil, ErrCategoryNotFound
	}
	keywords, err := s.keywordRepo.ListByCategory(ctx, nil, categoryID)
	if err != nil {
		return nil, err
	}
	subkeywords, err := s.subkeywordRepo.ListByCategory(ctx, nil, categoryID)
	if err != nil {
		return nil, err
	}
	snap := assembleSnapshot(category, keywords, subkeywords)
	s.cache.Set(ctx, snap)
	return snap, nil
}

func assembleSnapshot(category *types.Category, keywords []*types.Keyword, subkeywords []*types.Subkeyword) *CategorySnapshot {
	children := make(map[string][]SubkeywordNode)
	for _, sk := range subkeywords {
		children[sk.KeywordID] = append(children[sk.KeywordID], SubkeywordNode{
			ID:          sk.ID,
			Label:       sk.Label,
			Synonyms:    repos.UnmarshalSynonyms(sk.Synonyms),
			Description: sk.Description,
			Status:      sk.Status,
		})
	}
	snap := &CategorySnapshot{
		CategoryID: category.ID,
		Label:      category.Label,
		Keywords:   make([]KeywordNode, 0, len(keywords)),
		TakenAt:    time.Now().UTC(),
	}
	for _, kw := range keywords {
		snap.Keywords = append(snap.Keywords, KeywordNode{
			ID:          kw.ID,
			Label:       kw.Label,
			Synonyms:    repos.UnmarshalSynonyms(kw.Synonyms),
			Description: kw.Description,
			Status:      kw.Status,
			Subkeywords: children[kw.ID],
		})
	}
	return snap
}

// ApplyBatch atomically applies additive operations against one category,
// validating each operation against the post-batch state. In strict mode any
// violation aborts the whole batch with no partial effect; otherwise the
// offending operation alone is rejected and reported while the rest commit.
func (s *Store) ApplyBatch(ctx context.Context, categoryID string, ops []Op, strict bool) (*BatchResult, error) {
	result := &BatchResult{}
	err := s.withCategoryTx(ctx, categoryID, func(tx *gorm.DB, state *categoryState) error {
		for _, op := range ops {
			reason, err := s.validateOp(ctx, tx, state, op)
			if err != nil {
				return err
			}
			if reason != "" {
				if strict {
					return &BatchRejectionError{Rejected: []RejectedOp{{Op: op, Reason: reason}}}
				}
				result.Rejected = append(result.Rejected, RejectedOp{Op: op, Reason: reason})
				continue
			}
			if err := s.applyOpTx(ctx, tx, state, op); err != nil {
				return err
			}
			result.Applied = append(result.Applied, op)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// validateOp simulates op against the current in-transaction state and
// returns a machine-readable rejection reason, or "" when the op is clean.
func (s *Store) validateOp(ctx context.Context, tx *gorm.DB, state *categoryState, op Op) (string, error) {
	switch op.Kind {
	case OpCreateKeyword:
		if strings.TrimSpace(op.KeywordID) == "" {
			return "missing_keyword_id", nil
		}
		if strings.TrimSpace(op.Label) == "" {
			return "empty_label", nil
		}
		if _, ok := state.globalKeywords[op.KeywordID]; ok {
			return "keyword_exists:" + op.KeywordID, nil
		}
		normLabel := normalization.NormalizeLabel(op.Label)
		for _, kw := range state.keywords {
			if normalization.NormalizeLabel(kw.Label) == normLabel {
				return "duplicate_label_keyword:" + kw.ID, nil
			}
		}
		seen := make(map[string]bool)
		for _, syn := range op.Synonyms {
			norm := normalization.NormalizeSynonym(syn)
			if norm == "" {
				return "empty_synonym", nil
			}
			if seen[norm] {
				return "duplicate_synonym_in_op:" + norm, nil
			}
			seen[norm] = true
			if owner, ok := state.globalSynonyms[norm]; ok {
				return "duplicate_synonym_keyword:" + owner, nil
			}
		}
		return "", nil

	case OpCreateSubkeyword:
		parent, ok := state.keywords[op.KeywordID]
		if !ok {
			return "unknown_keyword:" + op.KeywordID, nil
		}
		if strings.TrimSpace(op.SubkeywordID) == "" {
			return "missing_subkeyword_id", nil
		}
		if strings.TrimSpace(op.Label) == "" {
			return "empty_label", nil
		}
		if _, ok := state.subkeywords[op.SubkeywordID]; ok {
			return "subkeyword_exists:" + op.SubkeywordID, nil
		}
		siblings := state.siblingSynonyms(parent.ID)
		normLabel := normalization.NormalizeLabel(op.Label)
		for _, sk := range state.subkeywords {
			if sk.KeywordID == parent.ID && normalization.NormalizeLabel(sk.Label) == normLabel {
				return "duplicate_label_subkeyword:" + sk.ID, nil
			}
		}
		seen := make(map[string]bool)
		for _, syn := range op.Synonyms {
			norm := normalization.NormalizeSynonym(syn)
			if norm == "" {
				return "empty_synonym", nil
			}
			if seen[norm] {
				return "duplicate_synonym_in_op:" + norm, nil
			}
			seen[norm] = true
			if owner, ok := siblings[norm]; ok {
				return "duplicate_synonym_subkeyword:" + owner, nil
			}
		}
		return "", nil

	case OpAppendSynonym:
		norm := normalization.NormalizeSynonym(op.Synonym)
		if norm == "" {
			return "empty_synonym", nil
		}
		if op.SubkeywordID == "" {
			target, ok := state.keywords[op.KeywordID]
			if !ok {
				return "unknown_keyword:" + op.KeywordID, nil
			}
			if owner, ok := state.globalSynonyms[norm]; ok {
				if owner == target.ID {
					return "synonym_already_present:" + target.ID, nil
				}
				return "duplicate_synonym_keyword:" + owner, nil
			}
			return "", nil
		}
		target, ok := state.subkeywords[op.SubkeywordID]
		if !ok {
			return "unknown_subkeyword:" + op.SubkeywordID, nil
		}
		if op.KeywordID != "" && target.KeywordID != op.KeywordID {
			return "subkeyword_parent_mismatch:" + op.SubkeywordID, nil
		}
		siblings := state.siblingSynonyms(target.KeywordID)
		if owner, ok := siblings[norm]; ok {
			if owner == target.ID {
				return "synonym_already_present:" + target.ID, nil
			}
			return "duplicate_synonym_subkeyword:" + owner, nil
		}
		return "", nil

	case OpCreateAssociation:
		if op.DocumentID == uuid.Nil {
			return "missing_document", nil
		}
		if _, ok := state.keywords[op.KeywordID]; !ok {
			return "unknown_keyword:" + op.KeywordID, nil
		}
		var subID *string
		if op.SubkeywordID != "" {
			sk, ok := state.subkeywords[op.SubkeywordID]
			if !ok {
				return "unknown_subkeyword:" + op.SubkeywordID, nil
			}
			if sk.KeywordID != op.KeywordID {
				return "subkeyword_parent_mismatch:" + op.SubkeywordID, nil
			}
			subID = &op.SubkeywordID
		}
		exists, err := s.termRepo.Exists(ctx, tx, op.DocumentID, op.KeywordID, subID)
		if err != nil {
			return "", err
		}
		if exists {
			return "association_exists", nil
		}
		return "", nil

	case OpCreateEvidence:
		if op.DocumentID == uuid.Nil {
			return "missing_document", nil
		}
		if strings.TrimSpace(op.Snippet) == "" {
			return "empty_snippet", nil
		}
		if _, ok := state.keywords[op.KeywordID]; !ok {
			return "unknown_keyword:" + op.KeywordID, nil
		}
		var subID *string
		if op.SubkeywordID != "" {
			sk, ok := state.subkeywords[op.SubkeywordID]
			if !ok {
				return "unknown_subkeyword:" + op.SubkeywordID, nil
			}
			if sk.KeywordID != op.KeywordID {
				return "subkeyword_parent_mismatch:" + op.SubkeywordID, nil
			}
			subID = &op.SubkeywordID
		}
		exists, err := s.evidenceRepo.Exists(ctx, tx, op.DocumentID, op.KeywordID, subID, op.Snippet)
		if err != nil {
			return "", err
		}
		if exists {
			return "evidence_exists", nil
		}
		return "", nil
	}
	return "unknown_op_kind:" + string(op.Kind), nil
}

// applyOpTx persists a validated op and folds it into the in-memory state so
// later ops in the same batch validate against the post-op state.
func (s *Store) applyOpTx(ctx context.Context, tx *gorm.DB, state *categoryState, op Op) error {
	switch op.Kind {
	case OpCreateKeyword:
		row := &types.Keyword{
			ID:          op.KeywordID,
			CategoryID:  state.category.ID,
			Label:       op.Label,
			Synonyms:    repos.MarshalSynonyms(op.Synonyms),
			Description: op.Description,
		}
		if err := s.keywordRepo.Create(ctx, tx, []*types.Keyword{row}); err != nil {
			return err
		}
		state.keywords[row.ID] = row
		state.globalKeywords[row.ID] = row
		for _, syn := range op.Synonyms {
			norm := normalization.NormalizeSynonym(syn)
			if norm != "" {
				state.globalSynonyms[norm] = row.ID
			}
		}
		return nil

	case OpCreateSubkeyword:
		row := &types.Subkeyword{
			ID:          op.SubkeywordID,
			KeywordID:   op.KeywordID,
			CategoryID:  state.category.ID,
			Label:       op.Label,
			Synonyms:    repos.MarshalSynonyms(op.Synonyms),
			Description: op.Description,
		}
		if err := s.subkeywordRepo.Create(ctx, tx, []*types.Subkeyword{row}); err != nil {
			return err
		}
		state.subkeywords[row.ID] = row
		return nil

	case OpAppendSynonym:
		if op.SubkeywordID == "" {
			target := state.keywords[op.KeywordID]
			updated := append(repos.UnmarshalSynonyms(target.Synonyms), op.Synonym)
			if err := s.keywordRepo.UpdateSynonyms(ctx, tx, target.ID, updated); err != nil {
				return err
			}
			target.Synonyms = repos.MarshalSynonyms(updated)
			state.globalSynonyms[normalization.NormalizeSynonym(op.Synonym)] = target.ID
			return nil
		}
		target := state.subkeywords[op.SubkeywordID]
		updated := append(repos.UnmarshalSynonyms(target.Synonyms), op.Synonym)
		if err := s.subkeywordRepo.UpdateSynonyms(ctx, tx, target.ID, updated); err != nil {
			return err
		}
		target.Synonyms = repos.MarshalSynonyms(updated)
		return nil

	case OpCreateAssociation:
		row := &types.DocumentTerm{
			DocumentID: op.DocumentID,
			KeywordID:  op.KeywordID,
		}
		if op.SubkeywordID != "" {
			sub := op.SubkeywordID
			row.SubkeywordID = &sub
		}
		if err := s.termRepo.Create(ctx, tx, []*types.DocumentTerm{row}); err != nil {
			if isUniqueViolation(err, "") {
				return nil
			}
			return err
		}
		return nil

	case OpCreateEvidence:
		row := &types.Evidence{
			DocumentID: op.DocumentID,
			KeywordID:  op.KeywordID,
			Snippet:    op.Snippet,
		}
		if op.SubkeywordID != "" {
			sub := op.SubkeywordID
			row.SubkeywordID = &sub
		}
		return s.evidenceRepo.Create(ctx, tx, []*types.Evidence{row})
	}
	return fmt.Errorf("unknown op kind %q", op.Kind)
}

// Deprecate marks a keyword or subkeyword retired. Migrator-only primitive:
// entities are deprecated once fully migrated, right before row removal.
func (s *Store) Deprecate(ctx context.Context, tx *gorm.DB, entityID string) error {
	kw, err := s.keywordRepo.GetByID(ctx, tx, entityID)
	if err != nil {
		return err
	}
	if kw != nil {
		return s.keywordRepo.UpdateStatus(ctx, tx, entityID, types.TermStatusDeprecated)
	}
	sk, err := s.subkeywordRepo.GetByID(ctx, tx, entityID)
	if err != nil {
		return err
	}
	if sk != nil {
		return s.subkeywordRepo.UpdateStatus(ctx, tx, entityID, types.TermStatusDeprecated)
	}
	return fmt.Errorf("no keyword or subkeyword with id %q", entityID)
}

// Repoint rewrites one association row's (keyword, subkeyword) target in
// place, dragging the matching evidence rows along. If the target pair
// already exists for the document the source row is removed instead, so
// duplicates collapse to one row per document; the returned flag reports
// that case. Migrator-only primitive.
func (s *Store) Repoint(ctx context.Context, tx *gorm.DB, term *types.DocumentTerm, toKeywordID string, toSubkeywordID *string) (collapsed bool, err error) {
	evidence, err := s.evidenceRepo.ListByDocument(ctx, tx, term.DocumentID)
	if err != nil {
		return false, err
	}
	for _, ev := range evidence {
		if ev.KeywordID != term.KeywordID || !equalSubkeyword(ev.SubkeywordID, term.SubkeywordID) {
			continue
		}
		if err := s.evidenceRepo.UpdateTarget(ctx, tx, ev.ID, toKeywordID, toSubkeywordID); err != nil {
			return false, err
		}
	}
	exists, err := s.termRepo.Exists(ctx, tx, term.DocumentID, toKeywordID, toSubkeywordID)
	if err != nil {
		return false, err
	}
	if exists {
		return true, s.termRepo.DeleteByID(ctx, tx, term.ID)
	}
	return false, s.termRepo.UpdateTarget(ctx, tx, term.ID, toKeywordID, toSubkeywordID)
}

func equalSubkeyword(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func isUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" {
			if strings.TrimSpace(constraint) == "" {
				return true
			}
			return strings.EqualFold(strings.TrimSpace(pgErr.ConstraintName), strings.TrimSpace(constraint))
		}
	}
	// SQLite test harness surfaces its own constraint error text.
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
