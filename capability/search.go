package capability

import (
	"context"
	"strings"

	"github.com/stratgov/researchgraph/core"
	"github.com/stratgov/researchgraph/logging"
)

// SearchProvider is the outward-facing search dependency: a web search API
// returning result references for a query. Implementations classify their
// failures with core.Transient / core.Fatal so the resilience layer can
// decide whether to retry.
type SearchProvider interface {
	Search(ctx context.Context, query string, limit int) ([]core.SearchResult, error)
}

// DefaultSearchLimit bounds how many results one search call requests.
const DefaultSearchLimit = 8

// SearchCapability adapts a SearchProvider to the capability interface and
// enforces the trusted-domain filter: results outside the filter are dropped
// before they reach the executor, regardless of provider behaviour.
type SearchCapability struct {
	provider SearchProvider
	limit    int
	logger   logging.Logger
}

// NewSearchCapability wraps provider. A non-positive limit falls back to
// DefaultSearchLimit.
func NewSearchCapability(provider SearchProvider, limit int, logger logging.Logger) *SearchCapability {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &SearchCapability{provider: provider, limit: limit, logger: logger}
}

var _ core.Capability = (*SearchCapability)(nil)

// Name implements core.Capability.
func (c *SearchCapability) Name() string { return core.CapabilitySearch }

// Call expects params {"query": string, "domains": []string optional} and
// returns []core.SearchResult restricted to the given domains. An empty
// result set is a valid outcome, not an error.
func (c *SearchCapability) Call(ctx context.Context, params map[string]any) (any, error) {
	query, err := stringParam(core.CapabilitySearch, params, "query")
	if err != nil {
		return nil, core.Fatal(core.CapabilitySearch, err)
	}

	var filter core.SearchFilter
	if v, ok := params["domains"]; ok {
		if domains, ok := v.([]string); ok {
			filter.Domains = domains
		}
	}

	results, err := c.provider.Search(ctx, query, c.limit)
	if err != nil {
		return nil, err
	}

	allowed := filter.Normalized()
	if len(allowed) == 0 {
		return results, nil
	}

	kept := make([]core.SearchResult, 0, len(results))
	for _, r := range results {
		if domainAllowed(r.URL, allowed) {
			kept = append(kept, r)
		}
	}
	if dropped := len(results) - len(kept); dropped > 0 {
		c.logger.Debug("dropped search results outside trusted domains",
			"dropped", dropped, "kept", len(kept))
	}
	return kept, nil
}

// domainAllowed reports whether rawURL's host is one of the allowed domains
// or a subdomain of one.
func domainAllowed(rawURL string, allowed []string) bool {
	host := hostOf(rawURL)
	if host == "" {
		return false
	}
	for _, domain := range allowed {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

func hostOf(rawURL string) string {
	s := rawURL
	if idx := strings.Index(s, "://"); idx >= 0 {
		s = s[idx+3:]
	}
	if idx := strings.IndexAny(s, "/?#"); idx >= 0 {
		s = s[:idx]
	}
	if idx := strings.Index(s, "@"); idx >= 0 {
		s = s[idx+1:]
	}
	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}
	return strings.ToLower(s)
}
