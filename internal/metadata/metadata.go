// Package metadata pulls best-effort posting fields out of unstructured text.
//
// Every pattern is case-insensitive and first-match-wins. A field that no pattern finds is left
// absent; false negatives and the occasional false positive on ambiguous text are expected.
package metadata

import (
	"regexp"
	"strings"

	"github.com/JakeFAU/govjob-scanner/internal/jobs"
)

// datePattern matches an ISO date, or day, optional separator, month name or number, optional
// separator and a two to four digit year: 2024-08-15, 15/08/2024, 5th March, 2024, 01-Jan-24.
const datePattern = `(\d{4}-\d{2}-\d{2}|\d{1,2}(?:st|nd|rd|th)?[\s./\-]*(?:\d{1,2}|[A-Za-z]{3,9})[\s./\-,]*\d{2,4})`

var (
	postedRe = regexp.MustCompile(`(?i)\b(?:posted\s+on|dated)\b\s*[:\-]?\s*` + datePattern)

	lastDateRe = regexp.MustCompile(`(?i)\b(?:` +
		`last\s+date(?:\s+(?:of|for)\s+[a-z ]{0,40}?)?|` +
		`closing\s+date|` +
		`deadline|` +
		`submission\s+date|` +
		`date\s+of\s+submission` +
		`)\s*(?:is\s+)?[:\-]?\s*` + datePattern)

	experienceRe = regexp.MustCompile(
		`(?i)\b(\d{1,2})\s*(\+?)\s*(years?|yrs?)\.?\s*(?:of\s+)?(?:relevant\s+|work\s+|professional\s+)?experience`)

	locationRe = regexp.MustCompile(`(?i)\b(?:location|place\s+of\s+posting)\s*[:\-]?\s*([A-Za-z][A-Za-z, \t]*)`)
)

// Extract runs every field pattern over text.
func Extract(text string) jobs.Metadata {
	var md jobs.Metadata
	if strings.TrimSpace(text) == "" {
		return md
	}
	md.Posted = firstGroup(postedRe, text)
	md.LastDate = firstGroup(lastDateRe, text)
	md.Experience = experience(text)
	md.Location = location(text)
	return md
}

func firstGroup(re *regexp.Regexp, text string) *string {
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return nil
	}
	return jobs.Optional(strings.TrimRight(m[1], " ,.-"))
}

func experience(text string) *string {
	m := experienceRe.FindStringSubmatch(text)
	if len(m) < 4 {
		return nil
	}
	return jobs.Optional(m[1] + m[2] + " " + m[3])
}

func location(text string) *string {
	m := locationRe.FindStringSubmatch(text)
	if len(m) < 2 {
		return nil
	}
	return jobs.Optional(strings.TrimRight(m[1], " \t,"))
}
