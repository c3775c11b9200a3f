package capability

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/stratgov/researchgraph/core"
	"github.com/stratgov/researchgraph/internal/textutil"
	"github.com/stratgov/researchgraph/logging"
)

// Fetch limits. Bodies beyond maxFetchBytes are truncated, not rejected, so
// one oversized page cannot blow up memory or the distillation budget.
const (
	maxFetchBytes       = 2 << 20 // 2 MiB
	defaultFetchTimeout = 20 * time.Second
	fetchUserAgent      = "researchgraph/1.0 (+https://github.com/stratgov/researchgraph)"
)

// FetchCapability downloads the content behind a search result and reduces
// HTML to clean text. Network errors and 5xx responses classify as
// transient; 4xx responses as fatal for that URL.
type FetchCapability struct {
	client *http.Client
	logger logging.Logger
}

// NewFetchCapability builds a fetch adapter. A nil client gets a default
// with a bounded timeout.
func NewFetchCapability(client *http.Client, logger logging.Logger) *FetchCapability {
	if client == nil {
		client = &http.Client{Timeout: defaultFetchTimeout}
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &FetchCapability{client: client, logger: logger}
}

var _ core.Capability = (*FetchCapability)(nil)

// Name implements core.Capability.
func (c *FetchCapability) Name() string { return core.CapabilityFetch }

// Call expects params {"url": string, "title": string optional} and returns
// a core.Document with cleaned text content. The document id is derived from
// the URL so re-fetching the same page yields the same id.
func (c *FetchCapability) Call(ctx context.Context, params map[string]any) (any, error) {
	rawURL, err := stringParam(core.CapabilityFetch, params, "url")
	if err != nil {
		return nil, core.Fatal(core.CapabilityFetch, err)
	}
	title, _ := params["title"].(string)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, core.Fatal(core.CapabilityFetch, err)
	}
	req.Header.Set("User-Agent", fetchUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyFetchErr(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, core.Transient(core.CapabilityFetch, statusError(rawURL, resp.StatusCode))
	case resp.StatusCode >= 400:
		return nil, core.Fatal(core.CapabilityFetch, statusError(rawURL, resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, core.Transient(core.CapabilityFetch, fmt.Errorf("read %s: %w", rawURL, err))
	}

	content := string(body)
	if isHTML(resp.Header.Get("Content-Type"), content) {
		content = textutil.HTMLToText(content)
	} else {
		content = strings.TrimSpace(content)
	}

	doc := core.Document{
		ID:        DocumentID(rawURL),
		Title:     title,
		URL:       rawURL,
		Content:   content,
		FetchedAt: time.Now().UTC(),
	}
	c.logger.Debug("fetched document", "url", rawURL, "bytes", len(body), "text_len", len(content))
	return doc, nil
}

// DocumentID derives the stable document identifier for a URL.
func DocumentID(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return "doc_" + hex.EncodeToString(sum[:12])
}

func statusError(rawURL string, status int) *Error {
	return &Error{
		Capability: core.CapabilityFetch,
		Code:       CodeHTTPStatus,
		Message:    fmt.Sprintf("GET %s: status %d", rawURL, status),
	}
}

func isHTML(contentType, body string) bool {
	if strings.Contains(contentType, "html") {
		return true
	}
	head := strings.ToLower(body)
	if len(head) > 256 {
		head = head[:256]
	}
	return strings.Contains(head, "<html") || strings.Contains(head, "<!doctype html")
}

func classifyFetchErr(err error) error {
	// Timeouts and temporary network conditions are worth retrying; anything
	// else (bad scheme, unsupported protocol) is not.
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return core.Transient(core.CapabilityFetch, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return core.Transient(core.CapabilityFetch, err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return core.Transient(core.CapabilityFetch, err)
	}
	return core.Fatal(core.CapabilityFetch, err)
}
