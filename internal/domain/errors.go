package domain

import "errors"

var (
	ErrInvalidAmount                       = errors.New("invalid amount")
	ErrInvalidIdentifier                   = errors.New("invalid customer or store id")
	ErrInsufficientBalance                 = errors.New("insufficient balance")
	ErrNotFound                            = errors.New("not found")
	ErrStorageUnavailable                  = errors.New("storage temporarily unavailable")
	ErrConcurrentModification              = errors.New("concurrent modification detected")
	ErrConcurrentModificationRetryExceeded = errors.New("concurrent modification retry budget exceeded")
	ErrObligationNotFound                  = errors.New("reimbursement obligation not found")
	ErrObligationNotPending                = errors.New("reimbursement obligation is not pending")
	ErrInvalidEvent                        = errors.New("invalid ledger event")
	ErrStoreNotFound                       = errors.New("store not found")
	ErrEventQueueFull                      = errors.New("event queue is full")
	// ErrCommitOutcomeUnknown means the commit failed after it was sent, so
	// the write may or may not have landed. It must never be retried blindly.
	ErrCommitOutcomeUnknown = errors.New("transaction commit outcome unknown")
)

// IsBusinessError reports whether err is an expected rejection that must
// be returned to the caller as is and never retried.
func IsBusinessError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidIdentifier) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrObligationNotFound) ||
		errors.Is(err, ErrObligationNotPending) ||
		errors.Is(err, ErrInvalidEvent) ||
		errors.Is(err, ErrStoreNotFound)
}
