package retrieval

import "fmt"

// StorageErrorMode decides what the store path does with index failures.
type StorageErrorMode string

const (
	// StorageErrorPropagate returns index failures to the caller.
	StorageErrorPropagate StorageErrorMode = "propagate"
	// StorageErrorSuppress logs index failures and reports success.
	StorageErrorSuppress StorageErrorMode = "suppress"
)

// ParseStorageErrorMode validates a configured mode. Empty means propagate.
func ParseStorageErrorMode(s string) (StorageErrorMode, error) {
	switch StorageErrorMode(s) {
	case "", StorageErrorPropagate:
		return StorageErrorPropagate, nil
	case StorageErrorSuppress:
		return StorageErrorSuppress, nil
	default:
		return "", fmt.Errorf("unknown storage error mode %q (want propagate or suppress)", s)
	}
}

// Policy controls how the service behaves when the index is missing or failing.
// Query-path index failures always resolve to "no match".
type Policy struct {
	// SkipIfUnconfigured turns store into a no-op and query into "no match"
	// when no index is configured. Otherwise both return ErrIndexNotConfigured.
	SkipIfUnconfigured bool
	OnStorageError     StorageErrorMode
}

// DefaultPolicy skips when unconfigured and propagates storage errors.
func DefaultPolicy() Policy {
	return Policy{
		SkipIfUnconfigured: true,
		OnStorageError:     StorageErrorPropagate,
	}
}
