package taxonomy

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/medcurio/taxonomy-backend/internal/logger"
	"github.com/medcurio/taxonomy-backend/internal/repos"
	"github.com/medcurio/taxonomy-backend/internal/types"
)

type testEnv struct {
	db         *gorm.DB
	store      *Store
	checker    *Checker
	migrator   *Migrator
	reconciler *Reconciler

	categories  repos.CategoryRepo
	keywords    repos.KeywordRepo
	subkeywords repos.SubkeywordRepo
	terms       repos.DocumentTermRepo
	evidence    repos.EvidenceRepo
	documents   repos.DocumentRepo
}

var testDBSeq int

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	testDBSeq++
	dsn := fmt.Sprintf("file:taxonomy_test_%d?mode=memory&cache=shared", testDBSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("raw db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(
		&types.Category{},
		&types.Keyword{},
		&types.Subkeyword{},
		&types.Document{},
		&types.DocumentTerm{},
		&types.Evidence{},
		&types.ClassifyCallLog{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	env := &testEnv{
		db:          db,
		categories:  repos.NewCategoryRepo(db, log),
		keywords:    repos.NewKeywordRepo(db, log),
		subkeywords: repos.NewSubkeywordRepo(db, log),
		terms:       repos.NewDocumentTermRepo(db, log),
		evidence:    repos.NewEvidenceRepo(db, log),
		documents:   repos.NewDocumentRepo(db, log),
	}
	env.store = NewStore(db, log, nil, env.categories, env.keywords, env.subkeywords, env.terms, env.evidence)
	env.checker = NewChecker(db, log, env.categories, env.keywords, env.subkeywords, env.terms)
	env.migrator = NewMigrator(env.store, env.checker, log)
	env.reconciler = NewReconciler(env.store, log)

	env.seedCategory(t, "respiratory", "Respiratory")
	env.seedCategory(t, "cardiology", "Cardiology")
	return env
}

func (e *testEnv) seedCategory(t *testing.T, id, label string) {
	t.Helper()
	err := e.categories.Seed(context.Background(), nil, []*types.Category{{ID: id, Label: label}})
	if err != nil {
		t.Fatalf("seed category %s: %v", id, err)
	}
}

func (e *testEnv) seedKeyword(t *testing.T, categoryID, id, label string, synonyms ...string) {
	t.Helper()
	row := &types.Keyword{
		ID:         id,
		CategoryID: categoryID,
		Label:      label,
		Synonyms:   repos.MarshalSynonyms(synonyms),
		Status:     types.TermStatusActive,
	}
	if err := e.keywords.Create(context.Background(), nil, []*types.Keyword{row}); err != nil {
		t.Fatalf("seed keyword %s: %v", id, err)
	}
}

func (e *testEnv) seedSubkeyword(t *testing.T, categoryID, keywordID, id, label string, synonyms ...string) {
	t.Helper()
	row := &types.Subkeyword{
		ID:         id,
		KeywordID:  keywordID,
		CategoryID: categoryID,
		Label:      label,
		Synonyms:   repos.MarshalSynonyms(synonyms),
		Status:     types.TermStatusActive,
	}
	if err := e.subkeywords.Create(context.Background(), nil, []*types.Subkeyword{row}); err != nil {
		t.Fatalf("seed subkeyword %s: %v", id, err)
	}
}

func (e *testEnv) seedDocument(t *testing.T) uuid.UUID {
	t.Helper()
	row := &types.Document{
		ExternalRef: "doc-" + uuid.NewString()[:8],
		Status:      types.DocumentStatusPending,
	}
	if err := e.documents.Create(context.Background(), nil, []*types.Document{row}); err != nil {
		t.Fatalf("seed document: %v", err)
	}
	return row.ID
}

func (e *testEnv) seedTerm(t *testing.T, documentID uuid.UUID, keywordID string, subkeywordID *string) {
	t.Helper()
	row := &types.DocumentTerm{
		DocumentID:   documentID,
		KeywordID:    keywordID,
		SubkeywordID: subkeywordID,
	}
	if err := e.terms.Create(context.Background(), nil, []*types.DocumentTerm{row}); err != nil {
		t.Fatalf("seed term %s/%s: %v", documentID, keywordID, err)
	}
}

func (e *testEnv) seedEvidence(t *testing.T, documentID uuid.UUID, keywordID string, subkeywordID *string, snippet string) {
	t.Helper()
	row := &types.Evidence{
		DocumentID:   documentID,
		KeywordID:    keywordID,
		SubkeywordID: subkeywordID,
		Snippet:      snippet,
	}
	if err := e.evidence.Create(context.Background(), nil, []*types.Evidence{row}); err != nil {
		t.Fatalf("seed evidence: %v", err)
	}
}

func (e *testEnv) termTargets(t *testing.T, documentID uuid.UUID) map[string]bool {
	t.Helper()
	rows, err := e.terms.ListByDocument(context.Background(), nil, documentID)
	if err != nil {
		t.Fatalf("list terms: %v", err)
	}
	out := make(map[string]bool, len(rows))
	for _, row := range rows {
		key := row.KeywordID
		if row.SubkeywordID != nil {
			key += "/" + *row.SubkeywordID
		}
		out[key] = true
	}
	return out
}

func strptr(s string) *string { return &s }
