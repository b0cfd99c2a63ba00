package pipeline

import (
	"regexp"
	"strings"
)

// =============================================================================
// 🧭 路由与实体抽取
// =============================================================================

// Route names the backend a turn is grounded on.
type Route string

const (
	RouteGraph  Route = "graph"
	RouteVector Route = "vector"
)

// graphIntentPhrases mark a question as wanting a structured graph
// answer — contraindication, provider lookup, or safe-activity
// phrasing — rather than a free-text passage.
var graphIntentPhrases = []string{
	"should i avoid", "which medicines should i avoid", "safe to take",
	"interact with", "interaction with", "contraindicat",
	"find a doctor", "find a clinic", "nearest hospital", "nearest clinic",
	"which doctor", "what kind of doctor", "specialist", "clinic near",
	"is it safe to", "safe activities", "safe to exercise", "safe for me",
	"can i take", "can i exercise", "can i travel",
}

// symptomVocabulary is the canonical set of symptom phrases the
// router and fact-gathering stage recognize. Grounded on the safety
// scanner's lexicon, extended with common non-emergency complaints.
var symptomVocabulary = []string{
	"fever", "body ache", "headache", "cough", "sore throat", "runny nose",
	"nausea", "vomiting", "diarrhea", "stomach ache", "abdominal pain",
	"fatigue", "dizziness", "rash", "joint pain", "back pain", "chest pain",
	"shortness of breath", "difficulty breathing", "swelling", "itching",
	"chills", "congestion", "loss of appetite", "insomnia", "anxiety",
}

var conditionVocabulary = []string{
	"diabetes", "hypertension", "asthma", "pregnancy", "pregnant",
	"heart disease", "kidney disease", "liver disease", "copd",
	"high blood pressure", "high cholesterol",
}

var cityPattern = regexp.MustCompile(`(?i)\bin ([A-Z][a-zA-Z]+(?: [A-Z][a-zA-Z]+)?)\b`)

// IsGraphIntent reports whether text reads as wanting a structured
// graph answer (contraindication, provider lookup, safe-activity)
// rather than a free-text passage.
func IsGraphIntent(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range graphIntentPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// ExtractSymptoms returns every canonical symptom phrase present in
// text, used both for routing and to seed graph fact queries.
func ExtractSymptoms(text string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, s := range symptomVocabulary {
		if strings.Contains(lower, s) {
			found = append(found, s)
		}
	}
	return found
}

// ExtractConditions returns every canonical condition phrase present
// in text, used to augment a profile's self-reported conditions with
// ones only mentioned in the message itself.
func ExtractConditions(text string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, c := range conditionVocabulary {
		if strings.Contains(lower, c) {
			found = append(found, c)
		}
	}
	return found
}

// ExtractCity pulls a best-effort city name out of an "in <City>"
// phrase. Returns "" if none is found; callers fall back to the
// profile's city field.
func ExtractCity(text string) string {
	m := cityPattern.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// MergeUnique appends items from extra to base that aren't already
// present (case-insensitive), preserving base's order.
func MergeUnique(base, extra []string) []string {
	seen := make(map[string]bool, len(base))
	for _, b := range base {
		seen[strings.ToLower(b)] = true
	}
	out := append([]string(nil), base...)
	for _, e := range extra {
		key := strings.ToLower(e)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	return out
}
