// Package moderation implements phrase-based auto-moderation, the
// muted-role lifecycle and the persistent unmute schedule.
package moderation

import (
	"regexp"
	"strings"
)

func isAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// compilePhrase turns a stored phrase into a whole-word, case-insensitive
// pattern that tolerates stretched spelling of the final letter:
// "hur" matches "hurrr!" but not "hurt". Multi-word phrases allow any
// whitespace run between tokens. A phrase that fails to compile falls
// back to a literal match.
func compilePhrase(phrase string) *regexp.Regexp {
	tokens := strings.Fields(strings.ToLower(phrase))
	if len(tokens) == 0 {
		return nil
	}

	last := tokens[len(tokens)-1]
	var lastPat string
	if c := last[len(last)-1]; isAlnum(c) {
		lastPat = regexp.QuoteMeta(last[:len(last)-1]) + regexp.QuoteMeta(string(c)) + "+"
	} else {
		lastPat = regexp.QuoteMeta(last)
	}

	parts := make([]string, 0, len(tokens))
	for _, tok := range tokens[:len(tokens)-1] {
		parts = append(parts, regexp.QuoteMeta(tok))
	}
	parts = append(parts, lastPat)

	re, err := regexp.Compile(`(?i)\b` + strings.Join(parts, `\s+`) + `\b`)
	if err != nil {
		re, err = regexp.Compile(`(?i)` + regexp.QuoteMeta(phrase))
		if err != nil {
			return nil
		}
	}
	return re
}

// rule pairs a stored phrase with its compiled pattern.
type rule struct {
	phrase   string
	reason   string
	duration int64 // seconds, mute only
	pattern  *regexp.Regexp
}

func (r rule) matches(content string) bool {
	return r.pattern != nil && r.pattern.MatchString(content)
}
