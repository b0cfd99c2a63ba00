package vector

import (
	"regexp"
	"strings"

	"github.com/healthline/service/types"
)

// =============================================================================
// 🧩 跟进问题增强
// =============================================================================

// anaphoraMarkers are words that signal a follow-up question is
// referring back to the prior turn rather than standing alone ("it",
// "that", "this one", "the same").
var anaphoraMarkers = []string{
	"it", "that", "this", "those", "these", "they", "them",
	"the same", "again", "also", "what about", "still",
}

var wordPattern = regexp.MustCompile(`[a-zA-Z][a-zA-Z'-]*`)

// stopwords excluded from keyword extraction so enhancement adds
// signal words from recent turns, not filler.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "been": true, "to": true, "of": true, "in": true,
	"on": true, "at": true, "for": true, "and": true, "or": true, "but": true,
	"i": true, "you": true, "it": true, "this": true, "that": true, "my": true,
	"what": true, "how": true, "do": true, "does": true, "did": true, "have": true,
	"has": true, "with": true, "about": true, "can": true, "should": true,
}

// IsFollowUp reports whether query looks like a follow-up referring to
// prior context: short (under 6 words) and/or containing an anaphora
// marker.
func IsFollowUp(query string) bool {
	lower := strings.ToLower(strings.TrimSpace(query))
	words := strings.Fields(lower)
	if len(words) == 0 {
		return false
	}
	if len(words) < 6 {
		for _, m := range anaphoraMarkers {
			if strings.Contains(lower, m) {
				return true
			}
		}
	}
	for _, m := range anaphoraMarkers {
		if strings.HasPrefix(lower, m+" ") {
			return true
		}
	}
	return false
}

// Enhance rewrites query into a retrieval-friendlier form when it
// looks like a follow-up, by prepending keywords extracted from the
// last few turns of history. Non-follow-up queries are returned
// unchanged.
func Enhance(query string, recentTurns []types.ChatMessage) string {
	if !IsFollowUp(query) {
		return query
	}

	keywords := extractKeywords(recentTurns, 4)
	if len(keywords) == 0 {
		return query
	}

	return strings.Join(keywords, " ") + " " + query
}

// extractKeywords pulls distinct, non-stopword tokens from the last n
// messages, most recent first, capped at 8 keywords.
func extractKeywords(turns []types.ChatMessage, n int) []string {
	if n > len(turns) {
		n = len(turns)
	}
	start := len(turns) - n
	if start < 0 {
		start = 0
	}

	seen := make(map[string]bool)
	var keywords []string
	for i := len(turns) - 1; i >= start; i-- {
		for _, w := range wordPattern.FindAllString(strings.ToLower(turns[i].Content), -1) {
			if stopwords[w] || len(w) < 3 || seen[w] {
				continue
			}
			seen[w] = true
			keywords = append(keywords, w)
			if len(keywords) >= 8 {
				return keywords
			}
		}
	}
	return keywords
}
