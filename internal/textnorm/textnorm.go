// Package textnorm holds the keyword matching and URL helpers shared by every adapter.
package textnorm

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var schemePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.\-]*:`)

// MatchesKeywords reports whether text contains any keyword as a case-insensitive substring.
// An empty keyword set matches nothing.
func MatchesKeywords(text string, keywords []string) bool {
	if len(keywords) == 0 || text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// MatchedKeywords returns the keywords found in text, in keyword order.
func MatchedKeywords(text string, keywords []string) []string {
	if len(keywords) == 0 || text == "" {
		return nil
	}
	lower := strings.ToLower(text)
	var out []string
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			out = append(out, kw)
		}
	}
	return out
}

// IsAbsolute reports whether href starts with a URL scheme.
func IsAbsolute(href string) bool {
	return schemePattern.MatchString(href)
}

// ResolveURL returns href unchanged when it is absolute, otherwise base and href joined by
// exactly one slash. An empty href yields "".
func ResolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if IsAbsolute(href) {
		return href
	}
	if strings.HasPrefix(href, "//") {
		if m := schemePattern.FindString(base); m != "" {
			return m + href
		}
		return "https:" + href
	}
	base = strings.TrimSpace(base)
	if base == "" {
		return href
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(href, "/")
}

// Normalize applies Unicode compatibility normalization (NFKC), turning ligatures such as "ﬁ" and
// full-width letters into their plain spellings. PDF text extraction produces both.
func Normalize(s string) string {
	return norm.NFKC.String(s)
}

// CleanText normalizes s, collapses whitespace runs (including non-breaking spaces) and trims.
func CleanText(s string) string {
	return strings.Join(strings.Fields(Normalize(s)), " ")
}

// HasPDFSuffix reports whether a link points at a .pdf path, ignoring query and fragment.
func HasPDFSuffix(link string) bool {
	if idx := strings.IndexAny(link, "?#"); idx >= 0 {
		link = link[:idx]
	}
	return strings.HasSuffix(strings.ToLower(link), ".pdf")
}
