package taxonomy

import (
	"errors"
	"hash/fnv"

	"gorm.io/gorm"
)

// ErrCategoryBusy is returned when the per-category exclusive lock could not
// be acquired. It is retryable: callers re-submit the same payload after
// backoff. It is deliberately distinct from every invariant/validation error.
var ErrCategoryBusy = errors.New("category busy")

// tryCategoryLock takes the per-category exclusive lock for the duration of
// the surrounding transaction. Two writers against the same category never
// interleave; writers against different categories proceed in parallel. The
// lock never spans more than one category, so cross-category deadlock is not
// possible.
//
// On non-postgres dialects (the SQLite test harness) this is a no-op: SQLite
// serializes writers on its own.
func tryCategoryLock(tx *gorm.DB, categoryID string) error {
	if tx == nil || categoryID == "" {
		return nil
	}
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	key := advisoryKey64("taxonomy_category", categoryID)
	var acquired bool
	if err := tx.Raw("SELECT pg_try_advisory_xact_lock(?)", key).Scan(&acquired).Error; err != nil {
		return err
	}
	if !acquired {
		return ErrCategoryBusy
	}
	return nil
}

func advisoryKey64(namespace string, id string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(namespace))
	_, _ = h.Write([]byte{':'})
	_, _ = h.Write([]byte(id))
	return int64(h.Sum64())
}
