// Package cdnerr holds the error kinds shared by the client and the server.
// Callers wrap them with context and match with errors.Is.
package cdnerr

import "errors"

var (
	ErrInvalidPath         = errors.New("invalid path")
	ErrIO                  = errors.New("io error")
	ErrMalformedKey        = errors.New("malformed key")
	ErrMalformedMetadata   = errors.New("malformed metadata")
	ErrNotFound            = errors.New("not found")
	ErrAmbiguousResult     = errors.New("ambiguous result")
	ErrChunkOutOfRange     = errors.New("chunk out of range")
	ErrChecksumMismatch    = errors.New("checksum mismatch")
	ErrUnsupportedEncoding = errors.New("unsupported encoding")
)

// IsPermanent reports whether retrying the operation that produced err can
// never succeed.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrInvalidPath) ||
		errors.Is(err, ErrMalformedKey) ||
		errors.Is(err, ErrChunkOutOfRange)
}
