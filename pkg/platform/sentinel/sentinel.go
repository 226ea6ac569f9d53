package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into coded domain errors.
//
// These represent factual states about resources, not rule violations:
// - ErrNotFound: document or revision does not exist in store
// - ErrVersionConflict: optimistic concurrency check failed on save
// - ErrLockHeld: another operation holds the per-document lock
// - ErrUnavailable: backing service temporarily unreachable
//
// For rule violations (bad input, illegal transition), use pkg/domain-errors.
var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict")
	ErrLockHeld        = errors.New("lock held")
	ErrUnavailable     = errors.New("unavailable")
)
