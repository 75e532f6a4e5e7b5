package chat

import (
	"regexp"
	"strconv"
	"strings"
)

// Control annotations are bracketed tags some backends embed in the reply
// text instead of (or in addition to) structured done-event fields. They are
// never shown to the candidate and never spoken.
//
//	[SCORE: 0.83]  judge quality for the answered question
//	[FINISHED]     the interview is over after this reply
//	[CODING]       switch to the coding challenge phase
var (
	scoreTag  = regexp.MustCompile(`\[SCORE:\s*([0-9]*\.?[0-9]+)\]`)
	finishTag = regexp.MustCompile(`\[FINISHED\]`)
	codingTag = regexp.MustCompile(`\[CODING\]`)
	spaceRuns = regexp.MustCompile(`[ \t]{2,}`)
)

// Annotations is the set of control tags parsed out of a reply.
type Annotations struct {
	// QualityScore is the parsed [SCORE: x] value, nil when absent.
	QualityScore *float64

	// Finished reports whether a [FINISHED] tag was present.
	Finished bool

	// CodingPhase reports whether a [CODING] tag was present.
	CodingPhase bool
}

// ParseAnnotations extracts control tags from s.
func ParseAnnotations(s string) Annotations {
	var a Annotations
	if m := scoreTag.FindStringSubmatch(s); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			a.QualityScore = &v
		}
	}
	a.Finished = finishTag.MatchString(s)
	a.CodingPhase = codingTag.MatchString(s)
	return a
}

// StripAnnotations removes all complete control tags from s and collapses
// the whitespace runs they leave behind. Incomplete tags (a trailing "[SCO"
// still streaming in) are left untouched.
func StripAnnotations(s string) string {
	out := scoreTag.ReplaceAllString(s, "")
	out = finishTag.ReplaceAllString(out, "")
	out = codingTag.ReplaceAllString(out, "")
	out = spaceRuns.ReplaceAllString(out, " ")
	return strings.TrimRight(out, " \t")
}

// SafeSpoken returns the prefix of stripped text that is safe to hand to the
// speech pipeline: any trailing unclosed "[" (a control tag that may still be
// streaming) is held back until it either completes as a tag or proves to be
// ordinary text.
func SafeSpoken(stripped string) string {
	i := strings.LastIndex(stripped, "[")
	if i < 0 {
		return stripped
	}
	if strings.Contains(stripped[i:], "]") {
		return stripped
	}
	return stripped[:i]
}
