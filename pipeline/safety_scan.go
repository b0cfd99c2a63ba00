package pipeline

import (
	"github.com/healthline/service/types"
)

// SafetyScanner is the subset of safety.Scan this stage needs.
type SafetyScanner func(text string) types.SafetyResult

// SafetyScan runs the rule-based safety scanner over the English text.
// The scanner is pure and cannot fail, so this stage always returns Ok
// — a flagged result is still a fully-succeeded scan, not a degraded
// one; it's the orchestrator's job to decide what a flag means for the
// rest of the turn.
func SafetyScan(scan SafetyScanner, text string) Result[types.SafetyResult] {
	return Ok(scan(text))
}
