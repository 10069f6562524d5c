package moderation

import (
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func phraseToken() *rapid.Generator[string] {
	return rapid.StringMatching(`[a-z]{1,8}`)
}

func TestCompilePhraseMatchesWholeWords(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tokens := rapid.SliceOfN(phraseToken(), 1, 3).Draw(t, "tokens")
		phrase := strings.Join(tokens, " ")

		re := compilePhrase(phrase)
		if re == nil {
			t.Fatalf("compilePhrase(%q) = nil", phrase)
		}

		if !re.MatchString(phrase) {
			t.Fatalf("compilePhrase(%q) does not match the phrase itself", phrase)
		}

		// Whitespace runs between tokens are tolerated.
		gap := rapid.SampledFrom([]string{" ", "  ", "\t", " \t "}).Draw(t, "gap")
		if !re.MatchString("so " + strings.Join(tokens, gap) + " then") {
			t.Fatalf("compilePhrase(%q) does not match with gap %q", phrase, gap)
		}

		// Stretching the final letter still matches.
		stretch := rapid.IntRange(1, 6).Draw(t, "stretch")
		last := tokens[len(tokens)-1]
		stretched := phrase + strings.Repeat(string(last[len(last)-1]), stretch)
		if !re.MatchString(stretched) {
			t.Fatalf("compilePhrase(%q) does not match stretched %q", phrase, stretched)
		}
	})
}

func TestCompilePhraseRejectsEmbeddedSubstrings(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tokens := rapid.SliceOfN(phraseToken(), 1, 3).Draw(t, "tokens")
		phrase := strings.Join(tokens, " ")

		re := compilePhrase(phrase)
		if re == nil {
			t.Fatalf("compilePhrase(%q) = nil", phrase)
		}

		prefix := rapid.StringMatching(`[a-z]{1,4}`).Draw(t, "prefix")
		if re.MatchString(prefix + phrase) {
			t.Fatalf("compilePhrase(%q) matches inside %q", phrase, prefix+phrase)
		}

		// A different trailing letter is a different word, not a stretch.
		last := tokens[len(tokens)-1]
		lastChar := last[len(last)-1]
		suffix := rapid.StringMatching(`[a-z]`).
			Filter(func(s string) bool { return s[0] != lastChar }).
			Draw(t, "suffix")
		if re.MatchString(phrase + suffix) {
			t.Fatalf("compilePhrase(%q) matches inside %q", phrase, phrase+suffix)
		}
	})
}
