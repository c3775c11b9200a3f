package core

import (
	"sort"
	"strings"
)

// SearchFilter constrains a search to a set of trusted domains. The zero
// value places no restriction.
type SearchFilter struct {
	Domains []string `json:"domains,omitempty"`
}

// Clone returns an independent copy of the filter.
func (f SearchFilter) Clone() SearchFilter {
	if len(f.Domains) == 0 {
		return SearchFilter{}
	}
	domains := make([]string, len(f.Domains))
	copy(domains, f.Domains)
	return SearchFilter{Domains: domains}
}

// Normalized returns the filter's domains case-folded, trimmed of whitespace
// and "site:" prefixes, de-duplicated and sorted. Two filters that differ
// only in ordering or casing normalize identically, which is what makes
// cache key derivation deterministic.
func (f SearchFilter) Normalized() []string {
	seen := make(map[string]struct{}, len(f.Domains))
	out := make([]string, 0, len(f.Domains))
	for _, d := range f.Domains {
		d = strings.ToLower(strings.TrimSpace(d))
		d = strings.TrimPrefix(d, "site:")
		if d == "" {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// SearchResult is one hit returned by the search capability: a reference to
// content that has not been fetched yet.
type SearchResult struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet,omitempty"`
}
