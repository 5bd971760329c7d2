package taxonomy

import (
	"time"

	"github.com/google/uuid"
)

// CategorySnapshot is the read model handed to external collaborators and to
// the integrity checker: one category's full keyword/subkeyword/synonym
// subtree. Snapshots may be stale relative to a concurrent writer; invariants
// are always re-validated against live state at commit time.
type CategorySnapshot struct {
	CategoryID string        `json:"categoryId"`
	Label      string        `json:"label"`
	Keywords   []KeywordNode `json:"keywords"`
	TakenAt    time.Time     `json:"takenAt"`
}

type KeywordNode struct {
	ID          string           `json:"id"`
	Label       string           `json:"label"`
	Synonyms    []string         `json:"synonyms"`
	Description string           `json:"description,omitempty"`
	Status      string           `json:"status"`
	Subkeywords []SubkeywordNode `json:"subkeywords,omitempty"`
}

type SubkeywordNode struct {
	ID          string   `json:"id"`
	Label       string   `json:"label"`
	Synonyms    []string `json:"synonyms"`
	Description string   `json:"description,omitempty"`
	Status      string   `json:"status"`
}

type OpKind string

const (
	OpCreateKeyword       OpKind = "create_keyword"
	OpCreateSubkeyword    OpKind = "create_subkeyword"
	OpAppendSynonym       OpKind = "append_synonym"
	OpCreateAssociation   OpKind = "create_association"
	OpCreateEvidence      OpKind = "create_evidence"
)

// Op is one additive batch operation. Which fields are read depends on Kind:
//   - create_keyword:     KeywordID, Label, Synonyms, Description
//   - create_subkeyword:  KeywordID (parent), SubkeywordID, Label, Synonyms, Description
//   - append_synonym:     KeywordID, SubkeywordID (empty for keyword level), Synonym
//   - create_association: DocumentID, KeywordID, SubkeywordID (empty for keyword level)
//   - create_evidence:    DocumentID, KeywordID, SubkeywordID, Snippet
type Op struct {
	Kind OpKind `json:"kind"`

	KeywordID    string   `json:"keywordId,omitempty"`
	SubkeywordID string   `json:"subkeywordId,omitempty"`
	Label        string   `json:"label,omitempty"`
	Synonyms     []string `json:"synonyms,omitempty"`
	Synonym      string   `json:"synonym,omitempty"`
	Description  string   `json:"description,omitempty"`

	DocumentID uuid.UUID `json:"documentId,omitempty"`
	Snippet    string    `json:"snippet,omitempty"`
}

type RejectedOp struct {
	Op     Op     `json:"op"`
	Reason string `json:"reason"`
}

type BatchResult struct {
	Applied  []Op         `json:"applied"`
	Rejected []RejectedOp `json:"rejected"`
}

// AssociationRef identifies one written document-term association.
type AssociationRef struct {
	DocumentID   uuid.UUID `json:"documentId"`
	KeywordID    string    `json:"keywordId"`
	SubkeywordID *string   `json:"subkeywordId,omitempty"`
}
