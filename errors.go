package embedpg

import "github.com/embedpg/embedpg/internal/fault"

// FaultKind classifies acquisition failures.
type FaultKind = fault.Kind

// The failure taxonomy. Every error returned by this package either
// carries one of these kinds or is a plain wrapped I/O error.
const (
	VersionNotFound        = fault.KindVersionNotFound
	NoReleasesAvailable    = fault.KindNoReleasesAvailable
	RegistryUnreachable    = fault.KindRegistryUnreachable
	RegistryMalformed      = fault.KindRegistryMalformed
	UnsupportedPlatform    = fault.KindUnsupportedPlatform
	IntegrityMismatch      = fault.KindIntegrityMismatch
	DestinationUnavailable = fault.KindDestinationUnavailable
	UnsafeArchiveEntry     = fault.KindUnsafeArchiveEntry
	CacheConflict          = fault.KindCacheConflict
)

// IsFault reports whether err carries the given kind anywhere in its
// chain.
func IsFault(err error, kind FaultKind) bool {
	return fault.IsKind(err, kind)
}
