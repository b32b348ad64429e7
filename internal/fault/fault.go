// Package fault defines the typed error taxonomy shared by the
// acquisition pipeline. Every stage reports failures as a *Fault so
// callers can tell which stage failed and why without string matching.
package fault

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Kind classifies pipeline failures.
type Kind int

const (
	// KindVersionNotFound indicates a requested or constrained version
	// does not exist in the release index.
	KindVersionNotFound Kind = iota
	// KindNoReleasesAvailable indicates the release index is empty.
	KindNoReleasesAvailable
	// KindRegistryUnreachable indicates the release registry could not be
	// reached after bounded retries.
	KindRegistryUnreachable
	// KindRegistryMalformed indicates the registry response could not be
	// mapped onto the release model.
	KindRegistryMalformed
	// KindUnsupportedPlatform indicates a release ships no asset for the
	// requested platform.
	KindUnsupportedPlatform
	// KindIntegrityMismatch indicates the downloaded payload digest does
	// not match the registry-published digest.
	KindIntegrityMismatch
	// KindDestinationUnavailable indicates the extraction destination does
	// not exist and could not be created.
	KindDestinationUnavailable
	// KindUnsafeArchiveEntry indicates an archive entry whose path or
	// symlink target would escape the destination directory.
	KindUnsafeArchiveEntry
	// KindCacheConflict indicates a cache put for an existing key with
	// different content.
	KindCacheConflict
)

// String returns the spec-level name of the kind.
func (k Kind) String() string {
	switch k {
	case KindVersionNotFound:
		return "VersionNotFound"
	case KindNoReleasesAvailable:
		return "NoReleasesAvailable"
	case KindRegistryUnreachable:
		return "RegistryUnreachable"
	case KindRegistryMalformed:
		return "RegistryMalformed"
	case KindUnsupportedPlatform:
		return "UnsupportedPlatform"
	case KindIntegrityMismatch:
		return "IntegrityMismatch"
	case KindDestinationUnavailable:
		return "DestinationUnavailable"
	case KindUnsafeArchiveEntry:
		return "UnsafeArchiveEntry"
	case KindCacheConflict:
		return "CacheConflict"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Fault is a stage-attributed pipeline error.
type Fault struct {
	Kind    Kind
	Stage   string // pipeline stage (e.g., "resolve", "download", "extract")
	Message string
	Err     error // underlying error, if any
}

// Error implements the error interface.
func (f *Fault) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", f.Stage, f.Kind, f.Message, f.Err)
	}
	return fmt.Sprintf("%s: %s: %s", f.Stage, f.Kind, f.Message)
}

// Unwrap returns the underlying error for error chain support.
func (f *Fault) Unwrap() error {
	return f.Err
}

// New constructs a Fault without an underlying cause.
func New(kind Kind, stage, format string, args ...any) *Fault {
	return &Fault{Kind: kind, Stage: stage, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs a Fault around an underlying error.
func Wrap(err error, kind Kind, stage, format string, args ...any) *Fault {
	return &Fault{Kind: kind, Stage: stage, Message: fmt.Sprintf(format, args...), Err: err}
}

// IsKind reports whether err is (or wraps) a Fault of the given kind.
func IsKind(err error, kind Kind) bool {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind == kind
	}
	return false
}

// NetworkClass describes the shape of a network failure. It drives the
// registry client's retry decision: connection-level failures are
// retried, everything else is not.
type NetworkClass int

const (
	// ClassOther is the fallback when no specific class applies.
	ClassOther NetworkClass = iota
	// ClassTimeout indicates a request or dial timeout.
	ClassTimeout
	// ClassDNS indicates DNS resolution failure.
	ClassDNS
	// ClassConnection indicates connection refused or reset.
	ClassConnection
	// ClassTLS indicates TLS certificate errors.
	ClassTLS
	// ClassCanceled indicates caller-initiated cancellation.
	ClassCanceled
)

// Classify examines an error chain and returns the most specific
// NetworkClass. Uses Go's error unwrapping to detect net-level types.
func Classify(err error) NetworkClass {
	if err == nil {
		return ClassOther
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ClassCanceled
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return ClassTimeout
		}
		return ClassDNS
	}

	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return ClassTLS
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() {
			return ClassTimeout
		}
		var innerDNS *net.DNSError
		if errors.As(opErr.Err, &innerDNS) {
			return ClassDNS
		}
		return ClassConnection
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return ClassTimeout
		}
		if strings.Contains(urlErr.Err.Error(), "certificate") ||
			strings.Contains(urlErr.Err.Error(), "tls") ||
			strings.Contains(urlErr.Err.Error(), "x509") {
			return ClassTLS
		}
		return Classify(urlErr.Err)
	}

	return ClassOther
}

// Transient reports whether a network failure class is worth retrying.
// Cancellation and TLS failures are never transient.
func (c NetworkClass) Transient() bool {
	switch c {
	case ClassTimeout, ClassDNS, ClassConnection:
		return true
	default:
		return false
	}
}
