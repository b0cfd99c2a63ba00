package pipeline

import (
	"testing"

	"github.com/healthline/service/types"
)

func TestSafetyScan_AlwaysOK(t *testing.T) {
	flagged := func(string) types.SafetyResult {
		return types.SafetyResult{Flagged: true, Category: "red_flag"}
	}
	res := SafetyScan(flagged, "chest pain")
	if !res.IsOK() {
		t.Fatalf("expected Ok even when flagged, got status %v", res.Status)
	}
	if !res.Value.Flagged {
		t.Errorf("expected flagged result to carry through")
	}

	clean := func(string) types.SafetyResult { return types.SafetyResult{} }
	res = SafetyScan(clean, "I feel fine")
	if !res.IsOK() || res.Value.Flagged {
		t.Fatalf("expected unflagged Ok, got %+v", res)
	}
}
