package taxonomy

import (
	"errors"
	"testing"
)

func TestAdvisoryKeyIsStableAndScoped(t *testing.T) {
	a := advisoryKey64("taxonomy_category", "respiratory")
	b := advisoryKey64("taxonomy_category", "respiratory")
	if a != b {
		t.Fatalf("key must be deterministic: %d vs %d", a, b)
	}
	if advisoryKey64("taxonomy_category", "cardiology") == a {
		t.Fatalf("distinct categories must hash to distinct lock keys")
	}
	if advisoryKey64("other_namespace", "respiratory") == a {
		t.Fatalf("namespaces must not share lock keys")
	}
}

func TestTryCategoryLockSkipsNonPostgres(t *testing.T) {
	env := newTestEnv(t)
	// SQLite serializes writers itself; the advisory lock must not fire
	// postgres-only SQL against it.
	if err := tryCategoryLock(env.db, "respiratory"); err != nil {
		t.Fatalf("lock on sqlite must be a no-op, got %v", err)
	}
}

func TestCategoryBusyIsDistinctFromValidationErrors(t *testing.T) {
	if !errors.Is(ErrCategoryBusy, ErrCategoryBusy) {
		t.Fatalf("busy must match itself through errors.Is")
	}
	if errors.Is(ErrCategoryBusy, ErrCategoryNotFound) {
		t.Fatalf("busy must not be conflated with not-found")
	}
}
