// Package errs defines the small set of sentinel error kinds that flow
// between the store, wordlist facade, scorer, and classifier driver
// (spec §7). Call sites wrap these with fmt.Errorf("...: %w", errs.X) in the
// same style the rest of this codebase uses for context, so errors.Is still
// matches the sentinel underneath.
package errs

import "errors"

var (
	// NotFound is returned by a store lookup for an absent key. Callers
	// recover locally by treating the token as having zero counts.
	NotFound = errors.New("key not found")

	// TempFail signals a deadlock or other retryable store condition. It
	// propagates to the nearest retry boundary (a registration transaction
	// or the classifier driver's per-message loop).
	TempFail = errors.New("temporary failure, retry")

	// Corrupt signals a checksum mismatch, a failed verify, or recovery
	// that could not complete even in catastrophic mode. Fatal.
	Corrupt = errors.New("store corrupt")

	// LimitExceeded signals the file-size resource-limit guard tripped.
	// Fatal.
	LimitExceeded = errors.New("file size limit exceeded")

	// MalformedInput signals the lexer could not decode a MIME part. It is
	// recovered locally by treating the part as OTHER.
	MalformedInput = errors.New("malformed input")

	// ConfigError signals an invalid configuration value (e.g. robx out of
	// range) or a mutually exclusive option combination. Fatal at startup.
	ConfigError = errors.New("invalid configuration")
)
