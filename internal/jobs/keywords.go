package jobs

import "strings"

// Keywords is an ordered set of lowercase search terms supplied once per scan.
type Keywords []string

// NewKeywords normalizes terms: trimmed, lowercased, empties and duplicates dropped,
// first-seen order kept.
func NewKeywords(terms ...string) Keywords {
	seen := make(map[string]struct{}, len(terms))
	out := make(Keywords, 0, len(terms))
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		out = append(out, term)
	}
	return out
}

// ParseKeywords splits user input on commas.
func ParseKeywords(input string) Keywords {
	return NewKeywords(strings.Split(input, ",")...)
}

// String joins the keywords the way a user would have typed them.
func (k Keywords) String() string {
	return strings.Join(k, ",")
}
