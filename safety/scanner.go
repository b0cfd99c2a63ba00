// Package safety implements the Safety Scanner: pure rule-based text
// matchers that flag red-flag symptoms, mental-health crisis language,
// and pregnancy emergencies ahead of any LLM call.
package safety

import (
	"strings"

	"github.com/healthline/service/types"
)

// =============================================================================
// 🚨 安全扫描
// =============================================================================

// Scan runs every category matcher over text (expected to already be
// English-normalized) and returns the first category that matches, in
// priority order: red flag, crisis, pregnancy emergency. Scanning
// stops at the first match — categories are not meant to stack, since
// the pipeline only needs one safety message per turn.
func Scan(text string) types.SafetyResult {
	lower := strings.ToLower(text)

	if matched := matchAny(lower, redFlagPhrases); len(matched) > 0 {
		return types.SafetyResult{
			Flagged:  true,
			Category: "red_flag",
			Matched:  matched,
			Message:  "These symptoms can be signs of a serious emergency. Please call your local emergency number or go to the nearest emergency department now.",
		}
	}

	if matched := matchAny(lower, crisisPhrases); len(matched) > 0 {
		return types.SafetyResult{
			Flagged:  true,
			Category: "crisis",
			Matched:  matched,
			Message:  "It sounds like you may be in crisis. You deserve support right now — please contact a crisis line or emergency services in your area immediately.",
		}
	}

	if matched := matchAny(lower, pregnancyEmergencyPhrases); len(matched) > 0 {
		return types.SafetyResult{
			Flagged:  true,
			Category: "pregnancy_emergency",
			Matched:  matched,
			Message:  "These symptoms during pregnancy can be signs of an emergency. Please contact your obstetric provider or go to the emergency department now.",
		}
	}

	return types.SafetyResult{Flagged: false}
}

func matchAny(lower string, phrases []string) []string {
	var matched []string
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			matched = append(matched, p)
		}
	}
	return matched
}
