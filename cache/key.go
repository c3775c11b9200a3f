package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/stratgov/researchgraph/core"
	"github.com/stratgov/researchgraph/internal/textutil"
)

// keyVersion is baked into every derived key so a change to the derivation
// scheme invalidates old entries instead of colliding with them.
const keyVersion = "v1"

// Key derives the deterministic cache key for a query under a domain filter.
// The query is case-folded and whitespace-normalized and the filter's domain
// set is normalized and sorted, so equivalent queries with reordered filters
// collapse to one key.
func Key(query string, filter core.SearchFilter) string {
	parts := []string{
		keyVersion,
		textutil.NormalizeQuery(query),
		strings.Join(filter.Normalized(), ","),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// DistillKey derives the cache key for a distillation result: the content
// hash of the source text combined with the focusing query, mirroring how
// search keys are derived.
func DistillKey(content, query string) string {
	h := sha256.New()
	h.Write([]byte(keyVersion + "|distill|"))
	h.Write([]byte(content))
	h.Write([]byte{0})
	h.Write([]byte(textutil.NormalizeQuery(query)))
	return hex.EncodeToString(h.Sum(nil))
}
