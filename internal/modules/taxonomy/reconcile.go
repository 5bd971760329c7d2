package taxonomy

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medcurio/taxonomy-backend/internal/logger"
	"github.com/medcurio/taxonomy-backend/internal/normalization"
	"github.com/medcurio/taxonomy-backend/internal/types"
)

// Proposal is the structured output of the external classification
// collaborator for one document against one category. It is untrusted input:
// ids it claims exist are always checked against the live store.
type Proposal struct {
	CategoryID     string         `json:"categoryId"`
	DocumentID     uuid.UUID      `json:"documentId"`
	KeywordMatches []KeywordMatch `json:"keywordMatches"`
}

type KeywordMatch struct {
	KeywordID        string            `json:"keywordId,omitempty"`
	NewKeyword       *NewTermPayload   `json:"newKeyword,omitempty"`
	ObservedSynonyms []string          `json:"observedSynonyms,omitempty"`
	AddedSynonyms    []string          `json:"addedSynonyms,omitempty"`
	Evidence         string            `json:"evidence,omitempty"`
	SubkeywordMatches []SubkeywordMatch `json:"subkeywordMatches,omitempty"`
}

type SubkeywordMatch struct {
	SubkeywordID     string          `json:"subkeywordId,omitempty"`
	NewSubkeyword    *NewTermPayload `json:"newSubkeyword,omitempty"`
	ObservedSynonyms []string        `json:"observedSynonyms,omitempty"`
	AddedSynonyms    []string        `json:"addedSynonyms,omitempty"`
	Evidence         string          `json:"evidence,omitempty"`
}

type NewTermPayload struct {
	Label    string   `json:"label"`
	Synonyms []string `json:"synonyms"`
}

type AcceptedItem struct {
	Kind  string `json:"kind"` // keyword_created | subkeyword_created | synonym_added
	ID    string `json:"id"`
	Value string `json:"value,omitempty"`
}

type RejectedItem struct {
	Item   string `json:"item"`
	Reason string `json:"reason"`
}

// Result enumerates what the reconciler did with one proposal. Partial
// acceptance is the normal, expected outcome: one bad synonym never fails
// the proposal.
type Result struct {
	CategoryID          string           `json:"categoryId"`
	DocumentID          uuid.UUID        `json:"documentId"`
	Accepted            []AcceptedItem   `json:"accepted"`
	Rejected            []RejectedItem   `json:"rejected"`
	AssociationsWritten []AssociationRef `json:"associationsWritten"`
}

// ValidateProposal checks the proposal's structure before any semantic work:
// required fields and nesting shape. Semantic checks (id existence, synonym
// ownership) happen later against live state.
func ValidateProposal(p *Proposal) error {
	if p == nil {
		return fmt.Errorf("proposal is nil")
	}
	if strings.TrimSpace(p.CategoryID) == "" {
		return fmt.Errorf("proposal category id is required")
	}
	if p.DocumentID == uuid.Nil {
		return fmt.Errorf("proposal document id is required")
	}
	for i, km := range p.KeywordMatches {
		if km.KeywordID == "" && km.NewKeyword == nil {
			return fmt.Errorf("keyword match %d: either keywordId or newKeyword is required", i)
		}
		if km.KeywordID != "" && km.NewKeyword != nil {
			return fmt.Errorf("keyword match %d: keywordId and newKeyword are mutually exclusive", i)
		}
		for j, sm := range km.SubkeywordMatches {
			if sm.SubkeywordID == "" && sm.NewSubkeyword == nil {
				return fmt.Errorf("keyword match %d, subkeyword match %d: either subkeywordId or newSubkeyword is required", i, j)
			}
			if sm.SubkeywordID != "" && sm.NewSubkeyword != nil {
				return fmt.Errorf("keyword match %d, subkeyword match %d: subkeywordId and newSubkeyword are mutually exclusive", i, j)
			}
		}
	}
	return nil
}

// Reconciler merges classifier proposals into the taxonomy. Strictly
// additive: it never deletes, renames, or overwrites an existing label,
// synonym, or association. Anything that would violate an invariant is
// dropped item by item with a recorded reason.
type Reconciler struct {
	store *Store
	log   *logger.Logger
}

func NewReconciler(store *Store, baseLog *logger.Logger) *Reconciler {
	return &Reconciler{
		store: store,
		log:   baseLog.With("component", "UpdateReconciler"),
	}
}

// Reconcile resolves and commits one proposal inside a single per-category
// transaction. The snapshot the proposal was built from may have been stale;
// every check below runs against the live, locked state.
func (r *Reconciler) Reconcile(ctx context.Context, p *Proposal) (*Result, error) {
	if err := ValidateProposal(p); err != nil {
		return nil, err
	}
	result := &Result{CategoryID: p.CategoryID, DocumentID: p.DocumentID}

	err := r.store.withCategoryTx(ctx, p.CategoryID, func(tx *gorm.DB, state *categoryState) error {
		for _, km := range p.KeywordMatches {
			keyword := r.resolveKeyword(ctx, tx, state, km, result)
			if keyword == nil {
				continue
			}
			r.appendKeywordSynonyms(ctx, tx, state, keyword, km.AddedSynonyms, result)

			if err := r.writeAssociation(ctx, tx, state, result, p.DocumentID, keyword.ID, nil, km.Evidence); err != nil {
				return err
			}
			for _, sm := range km.SubkeywordMatches {
				sub := r.resolveSubkeyword(ctx, tx, state, keyword, sm, result)
				if sub == nil {
					continue
				}
				r.appendSubkeywordSynonyms(ctx, tx, state, sub, sm.AddedSynonyms, result)
				if err := r.writeAssociation(ctx, tx, state, result, p.DocumentID, keyword.ID, &sub.ID, sm.Evidence); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.log.Info("Proposal reconciled",
		"category_id", p.CategoryID,
		"document_id", p.DocumentID,
		"accepted", len(result.Accepted),
		"rejected", len(result.Rejected),
		"associations", len(result.AssociationsWritten),
	)
	return result, nil
}

// resolveKeyword returns the live keyword row a match refers to, creating it
// for new-keyword payloads. A nil return means the whole match was rejected.
func (r *Reconciler) resolveKeyword(ctx context.Context, tx *gorm.DB, state *categoryState, km KeywordMatch, result *Result) *types.Keyword {
	if km.KeywordID != "" {
		kw, ok := state.keywords[km.KeywordID]
		if ok {
			return kw
		}
		if _, elsewhere := state.globalKeywords[km.KeywordID]; elsewhere {
			result.Rejected = append(result.Rejected, RejectedItem{Item: km.KeywordID, Reason: "keyword_not_in_category:" + km.KeywordID})
		} else {
			result.Rejected = append(result.Rejected, RejectedItem{Item: km.KeywordID, Reason: "unknown_keyword:" + km.KeywordID})
		}
		return nil
	}

	label := strings.TrimSpace(km.NewKeyword.Label)
	if label == "" {
		result.Rejected = append(result.Rejected, RejectedItem{Item: "(new keyword)", Reason: "empty_label"})
		return nil
	}
	// An exact label duplicate inside the category means the classifier
	// re-invented an existing concept: treat the payload as a match against
	// the existing keyword instead of failing.
	normLabel := normalization.NormalizeLabel(label)
	for _, kw := range state.keywords {
		if normalization.NormalizeLabel(kw.Label) == normLabel {
			result.Rejected = append(result.Rejected, RejectedItem{Item: label, Reason: "duplicate_label_keyword:" + kw.ID})
			// The payload's synonyms still belong to the concept; append
			// them to the matched keyword instead of discarding silently.
			r.appendKeywordSynonyms(ctx, tx, state, kw, km.NewKeyword.Synonyms, result)
			return kw
		}
	}
	id := state.category.ID + "." + Slugify(label)
	if existing, ok := state.globalKeywords[id]; ok {
		if existing.CategoryID == state.category.ID {
			result.Rejected = append(result.Rejected, RejectedItem{Item: label, Reason: "duplicate_label_keyword:" + existing.ID})
			r.appendKeywordSynonyms(ctx, tx, state, existing, km.NewKeyword.Synonyms, result)
			return existing
		}
		result.Rejected = append(result.Rejected, RejectedItem{Item: label, Reason: "keyword_id_collision:" + id})
		return nil
	}

	synonyms := r.filterKeywordSynonyms(state, id, km.NewKeyword.Synonyms, result)
	op := Op{Kind: OpCreateKeyword, KeywordID: id, Label: label, Synonyms: synonyms}
	if err := r.store.applyOpTx(ctx, tx, state, op); err != nil {
		r.log.Error("Keyword creation failed", "keyword_id", id, "error", err)
		result.Rejected = append(result.Rejected, RejectedItem{Item: label, Reason: "store_error"})
		return nil
	}
	result.Accepted = append(result.Accepted, AcceptedItem{Kind: "keyword_created", ID: id, Value: label})
	return state.keywords[id]
}

// filterKeywordSynonyms drops proposed synonyms that collide with any other
// keyword's synonym set anywhere in the taxonomy. Surviving synonyms
// keep their verbatim spelling; comparison is on the normalized form.
func (r *Reconciler) filterKeywordSynonyms(state *categoryState, selfID string, proposed []string, result *Result) []string {
	var out []string
	seen := make(map[string]bool)
	for _, syn := range proposed {
		norm := normalization.NormalizeSynonym(syn)
		if norm == "" {
			result.Rejected = append(result.Rejected, RejectedItem{Item: syn, Reason: "empty_synonym"})
			continue
		}
		if seen[norm] {
			continue
		}
		if owner, taken := state.globalSynonyms[norm]; taken && owner != selfID {
			result.Rejected = append(result.Rejected, RejectedItem{Item: syn, Reason: "duplicate_synonym_keyword:" + owner})
			continue
		}
		seen[norm] = true
		out = append(out, syn)
	}
	return out
}

func (r *Reconciler) appendKeywordSynonyms(ctx context.Context, tx *gorm.DB, state *categoryState, kw *types.Keyword, added []string, result *Result) {
	for _, syn := range added {
		op := Op{Kind: OpAppendSynonym, KeywordID: kw.ID, Synonym: syn}
		reason, err := r.store.validateOp(ctx, tx, state, op)
		if err != nil {
			r.log.Error("Synonym validation failed", "keyword_id", kw.ID, "error", err)
			result.Rejected = append(result.Rejected, RejectedItem{Item: syn, Reason: "store_error"})
			continue
		}
		if reason != "" {
			if !strings.HasPrefix(reason, "synonym_already_present:") {
				result.Rejected = append(result.Rejected, RejectedItem{Item: syn, Reason: reason})
			}
			continue
		}
		if err := r.store.applyOpTx(ctx, tx, state, op); err != nil {
			r.log.Error("Synonym append failed", "keyword_id", kw.ID, "error", err)
			result.Rejected = append(result.Rejected, RejectedItem{Item: syn, Reason: "store_error"})
			continue
		}
		result.Accepted = append(result.Accepted, AcceptedItem{Kind: "synonym_added", ID: kw.ID, Value: syn})
	}
}

// resolveSubkeyword mirrors resolveKeyword one level down. The collision
// scope for synonyms is the sibling set under the resolved parent;
// collisions with subkeywords of other parents are legal and never
// rejected here.
func (r *Reconciler) resolveSubkeyword(ctx context.Context, tx *gorm.DB, state *categoryState, parent *types.Keyword, sm SubkeywordMatch, result *Result) *types.Subkeyword {
	if sm.SubkeywordID != "" {
		sk, ok := state.subkeywords[sm.SubkeywordID]
		if !ok {
			result.Rejected = append(result.Rejected, RejectedItem{Item: sm.SubkeywordID, Reason: "unknown_subkeyword:" + sm.SubkeywordID})
			return nil
		}
		if sk.KeywordID != parent.ID {
			result.Rejected = append(result.Rejected, RejectedItem{Item: sm.SubkeywordID, Reason: "subkeyword_parent_mismatch:" + sm.SubkeywordID})
			return nil
		}
		return sk
	}

	label := strings.TrimSpace(sm.NewSubkeyword.Label)
	if label == "" {
		result.Rejected = append(result.Rejected, RejectedItem{Item: "(new subkeyword)", Reason: "empty_label"})
		return nil
	}
	normLabel := normalization.NormalizeLabel(label)
	for _, sk := range state.subkeywords {
		if sk.KeywordID == parent.ID && normalization.NormalizeLabel(sk.Label) == normLabel {
			result.Rejected = append(result.Rejected, RejectedItem{Item: label, Reason: "duplicate_label_subkeyword:" + sk.ID})
			return sk
		}
	}
	id := parent.ID + "." + Slugify(label)
	if existing, ok := state.subkeywords[id]; ok {
		if existing.KeywordID == parent.ID {
			result.Rejected = append(result.Rejected, RejectedItem{Item: label, Reason: "duplicate_label_subkeyword:" + existing.ID})
			return existing
		}
		result.Rejected = append(result.Rejected, RejectedItem{Item: label, Reason: "subkeyword_id_collision:" + id})
		return nil
	}

	siblings := state.siblingSynonyms(parent.ID)
	var synonyms []string
	seen := make(map[string]bool)
	for _, syn := range sm.NewSubkeyword.Synonyms {
		norm := normalization.NormalizeSynonym(syn)
		if norm == "" {
			result.Rejected = append(result.Rejected, RejectedItem{Item: syn, Reason: "empty_synonym"})
			continue
		}
		if seen[norm] {
			continue
		}
		if owner, taken := siblings[norm]; taken {
			result.Rejected = append(result.Rejected, RejectedItem{Item: syn, Reason: "duplicate_synonym_subkeyword:" + owner})
			continue
		}
		seen[norm] = true
		synonyms = append(synonyms, syn)
	}

	op := Op{Kind: OpCreateSubkeyword, KeywordID: parent.ID, SubkeywordID: id, Label: label, Synonyms: synonyms}
	if err := r.store.applyOpTx(ctx, tx, state, op); err != nil {
		r.log.Error("Subkeyword creation failed", "subkeyword_id", id, "error", err)
		result.Rejected = append(result.Rejected, RejectedItem{Item: label, Reason: "store_error"})
		return nil
	}
	result.Accepted = append(result.Accepted, AcceptedItem{Kind: "subkeyword_created", ID: id, Value: label})
	return state.subkeywords[id]
}

func (r *Reconciler) appendSubkeywordSynonyms(ctx context.Context, tx *gorm.DB, state *categoryState, sk *types.Subkeyword, added []string, result *Result) {
	for _, syn := range added {
		op := Op{Kind: OpAppendSynonym, KeywordID: sk.KeywordID, SubkeywordID: sk.ID, Synonym: syn}
		reason, err := r.store.validateOp(ctx, tx, state, op)
		if err != nil {
			result.Rejected = append(result.Rejected, RejectedItem{Item: syn, Reason: "store_error"})
			continue
		}
		if reason != "" {
			if !strings.HasPrefix(reason, "synonym_already_present:") {
				result.Rejected = append(result.Rejected, RejectedItem{Item: syn, Reason: reason})
			}
			continue
		}
		if err := r.store.applyOpTx(ctx, tx, state, op); err != nil {
			result.Rejected = append(result.Rejected, RejectedItem{Item: syn, Reason: "store_error"})
			continue
		}
		result.Accepted = append(result.Accepted, AcceptedItem{Kind: "synonym_added", ID: sk.ID, Value: syn})
	}
}

func (r *Reconciler) writeAssociation(ctx context.Context, tx *gorm.DB, state *categoryState, result *Result, documentID uuid.UUID, keywordID string, subkeywordID *string, evidence string) error {
	op := Op{Kind: OpCreateAssociation, DocumentID: documentID, KeywordID: keywordID}
	if subkeywordID != nil {
		op.SubkeywordID = *subkeywordID
	}
	reason, err := r.store.validateOp(ctx, tx, state, op)
	if err != nil {
		return err
	}
	if reason == "" {
		if err := r.store.applyOpTx(ctx, tx, state, op); err != nil {
			return err
		}
		result.AssociationsWritten = append(result.AssociationsWritten, AssociationRef{
			DocumentID:   documentID,
			KeywordID:    keywordID,
			SubkeywordID: subkeywordID,
		})
	} else if reason != "association_exists" {
		result.Rejected = append(result.Rejected, RejectedItem{Item: keywordID, Reason: reason})
		return nil
	}

	if strings.TrimSpace(evidence) == "" {
		return nil
	}
	evOp := Op{Kind: OpCreateEvidence, DocumentID: documentID, KeywordID: keywordID, Snippet: evidence}
	if subkeywordID != nil {
		evOp.SubkeywordID = *subkeywordID
	}
	evReason, err := r.store.validateOp(ctx, tx, state, evOp)
	if err != nil {
		return err
	}
	if evReason != "" {
		// An identical snippet from an earlier run is a no-op, not a defect.
		if evReason != "evidence_exists" {
			result.Rejected = append(result.Rejected, RejectedItem{Item: keywordID, Reason: evReason})
		}
		return nil
	}
	return r.store.applyOpTx(ctx, tx, state, evOp)
}

// Slugify derives the path segment of an entity id from its label: lowercase,
// runs of non-alphanumerics collapsed to single underscores.
func Slugify(label string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(strings.TrimSpace(label)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}
