package errors

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint returns a short, non-reversible hex digest of s, suitable for
// correlating repeated log lines (stderr bursts, oversized tool payloads)
// without writing the raw content — which may carry API keys or source
// fragments — into logs.
func Fingerprint(s string) string {
	return strconv.FormatUint(xxhash.Sum64String(s), 16)
}
