package domain

import "errors"

var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrSyncInProgress indicates a sync is already running for the shop.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrSyncCancelled indicates a sync run was cooperatively cancelled.
	ErrSyncCancelled = errors.New("sync cancelled")
)

// IsAuthExpired reports whether err carries the upstream platform's
// expired-credentials signal anywhere in its chain. The marketplace
// adapter attaches the signal via an AuthExpired method on its typed
// error, so the engine never string-matches upstream messages.
func IsAuthExpired(err error) bool {
	var ae interface{ AuthExpired() bool }
	if errors.As(err, &ae) {
		return ae.AuthExpired()
	}
	return false
}
