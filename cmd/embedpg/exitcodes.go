package main

import (
	"os"

	"github.com/embedpg/embedpg"
)

// Exit codes for different failure modes, so scripts can distinguish
// a missing version from a network problem.
const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0

	// ExitGeneral indicates a general error
	ExitGeneral = 1

	// ExitUsage indicates invalid arguments or usage error
	ExitUsage = 2

	// ExitVersionNotFound indicates no release matched the specifier
	ExitVersionNotFound = 3

	// ExitRegistry indicates the registry was unreachable or malformed
	ExitRegistry = 4

	// ExitPlatform indicates no build exists for the target platform
	ExitPlatform = 5

	// ExitIntegrity indicates digest verification failed
	ExitIntegrity = 6

	// ExitDestination indicates the destination was unusable
	ExitDestination = 7
)

// exitCodeFor maps an acquisition failure onto an exit code.
func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case embedpg.IsFault(err, embedpg.VersionNotFound),
		embedpg.IsFault(err, embedpg.NoReleasesAvailable):
		return ExitVersionNotFound
	case embedpg.IsFault(err, embedpg.RegistryUnreachable),
		embedpg.IsFault(err, embedpg.RegistryMalformed):
		return ExitRegistry
	case embedpg.IsFault(err, embedpg.UnsupportedPlatform):
		return ExitPlatform
	case embedpg.IsFault(err, embedpg.IntegrityMismatch),
		embedpg.IsFault(err, embedpg.UnsafeArchiveEntry):
		return ExitIntegrity
	case embedpg.IsFault(err, embedpg.DestinationUnavailable),
		embedpg.IsFault(err, embedpg.CacheConflict):
		return ExitDestination
	default:
		return ExitGeneral
	}
}

// exitWithCode exits with the specified exit code
func exitWithCode(code int) {
	os.Exit(code)
}
