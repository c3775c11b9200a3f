// Package textutil contains small text processing helpers shared by the
// fetch adapter, the distiller and the semantic cache: HTML reduction, token
// estimation and query normalization. This lives in internal to avoid
// committing to public API stability prematurely.
package textutil

import (
	"regexp"
	"strings"
)

// maxTextLines caps the number of lines kept after HTML reduction so a single
// page cannot flood the distillation budget.
const maxTextLines = 150

var (
	dropBlockRe = regexp.MustCompile(`(?is)<(script|style|nav|footer|header|aside|iframe|noscript)[^>]*>.*?</\s*(?:script|style|nav|footer|header|aside|iframe|noscript)\s*>`)
	tagRe       = regexp.MustCompile(`(?s)<[^>]*>`)
	commentRe   = regexp.MustCompile(`(?s)<!--.*?-->`)
	entityRe    = regexp.MustCompile(`&[a-zA-Z#0-9]+;`)
	spaceRe     = regexp.MustCompile(`[ \t]+`)
)

var entities = map[string]string{
	"&amp;": "&", "&lt;": "<", "&gt;": ">", "&quot;": `"`,
	"&#39;": "'", "&apos;": "'", "&nbsp;": " ",
}

// HTMLToText strips markup and boilerplate blocks (scripts, styles,
// navigation chrome) from an HTML page and returns cleaned, line-trimmed
// text capped at a fixed number of lines.
func HTMLToText(html string) string {
	text := commentRe.ReplaceAllString(html, "")
	text = dropBlockRe.ReplaceAllString(text, "")
	// Preserve block boundaries as line breaks before removing tags.
	text = regexp.MustCompile(`(?i)</(p|div|li|h[1-6]|tr|br)>`).ReplaceAllString(text, "\n")
	text = tagRe.ReplaceAllString(text, " ")
	text = entityRe.ReplaceAllStringFunc(text, func(e string) string {
		if r, ok := entities[e]; ok {
			return r
		}
		return " "
	})

	lines := make([]string, 0, maxTextLines)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(spaceRe.ReplaceAllString(line, " "))
		if line == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) >= maxTextLines {
			break
		}
	}
	return strings.Join(lines, "\n")
}

// EstimateTokens approximates the token count of text. The heuristic (one
// token per four characters, floor one for non-empty text) tracks common BPE
// vocabularies closely enough for budget enforcement.
func EstimateTokens(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	n := len(trimmed) / 4
	if n == 0 {
		n = 1
	}
	return n
}

// TruncateToTokens cuts text to roughly the given token budget, preferring a
// whitespace boundary near the cut point.
func TruncateToTokens(text string, budget int) string {
	if budget <= 0 {
		return ""
	}
	limit := budget * 4
	if len(text) <= limit {
		return text
	}
	cut := text[:limit]
	if idx := strings.LastIndexAny(cut, " \n\t"); idx > limit/2 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut)
}

// NormalizeQuery canonicalizes a query for cache key derivation: case-fold,
// trim, and collapse internal whitespace. Equivalent queries that differ
// only in spacing or casing normalize identically.
func NormalizeQuery(q string) string {
	q = strings.ToLower(strings.TrimSpace(q))
	return spaceRe.ReplaceAllString(q, " ")
}
