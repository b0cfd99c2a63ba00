package handlers

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/healthline/service/orchestrator"
	"github.com/healthline/service/pipeline"
	"github.com/healthline/service/types"
)

func TestValidateChatBody_RequiresText(t *testing.T) {
	body := chatRequestBody{Text: ""}
	if err := validateChatBody(&body); err == nil {
		t.Fatal("expected error for empty text")
	}
}

func TestValidateChatBody_RejectsOverlongText(t *testing.T) {
	body := chatRequestBody{Text: strings.Repeat("a", 5001)}
	if err := validateChatBody(&body); err == nil {
		t.Fatal("expected error for text over 5000 chars")
	}
}

func TestValidateChatBody_DefaultsLangToEnglish(t *testing.T) {
	body := chatRequestBody{Text: "hello"}
	if err := validateChatBody(&body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body.Lang != "en" {
		t.Errorf("expected default lang en, got %q", body.Lang)
	}
}

func TestValidateChatBody_RejectsUnsupportedLang(t *testing.T) {
	body := chatRequestBody{Text: "hello", Lang: "fr"}
	if err := validateChatBody(&body); err == nil {
		t.Fatal("expected error for unsupported language")
	}
}

func TestValidateChatBody_RejectsMalformedSessionID(t *testing.T) {
	body := chatRequestBody{Text: "hello", SessionID: "not-a-uuid"}
	if err := validateChatBody(&body); err == nil {
		t.Fatal("expected error for malformed session id")
	}
}

func TestToHealthProfile_MergesBooleanFlagsIntoConditions(t *testing.T) {
	p := chatProfile{Diabetes: true, Hypertension: true, MedicalConditions: []string{"asthma"}}
	profile := toHealthProfile("cust-1", p)

	for _, want := range []string{"diabetes", "hypertension", "asthma"} {
		found := false
		for _, c := range profile.KnownConditions {
			if c == want {
				found = true
			}
		}
		if !found {
			t.Errorf("expected condition %q in %v", want, profile.KnownConditions)
		}
	}
}

func TestToHealthProfile_PregnancyStatus(t *testing.T) {
	profile := toHealthProfile("cust-1", chatProfile{Pregnancy: true})
	if profile.PregnancyStatus != "pregnant" {
		t.Errorf("expected pregnant status, got %q", profile.PregnancyStatus)
	}
}

func TestAgeToBand(t *testing.T) {
	cases := []struct {
		age  int
		want string
	}{
		{5, "child"},
		{16, "teen"},
		{40, "adult"},
		{70, "senior"},
	}
	for _, c := range cases {
		if got := ageToBand(c.age); got != c.want {
			t.Errorf("ageToBand(%d) = %q, want %q", c.age, got, c.want)
		}
	}
}

func TestToChatResponseBody_MapsRedFlagCategory(t *testing.T) {
	resp := &orchestrator.ChatResponse{
		Route:  pipeline.RouteGraph,
		Safety: types.SafetyResult{Flagged: true, Category: "red_flag", Matched: []string{"chest pain"}},
	}
	body := toChatResponseBody(resp)
	if !body.Safety.RedFlag {
		t.Errorf("expected red_flag true, got %+v", body.Safety)
	}
}

func TestToChatResponseBody_MapsCrisisCategory(t *testing.T) {
	resp := &orchestrator.ChatResponse{
		Safety: types.SafetyResult{Flagged: true, Category: "crisis", Matched: []string{"kill myself"}},
	}
	body := toChatResponseBody(resp)
	if !body.Safety.MentalHealth.Crisis {
		t.Errorf("expected mental_health.crisis true, got %+v", body.Safety)
	}
}

func TestCustomerIDFromRequest_MissingHeader(t *testing.T) {
	r := httptest.NewRequest("POST", "/chat", nil)
	_, err := customerIDFromRequest(r)
	if err == nil {
		t.Fatal("expected error when X-Customer-ID header is absent")
	}
}

func TestCustomerIDFromRequest_ReadsHeader(t *testing.T) {
	r := httptest.NewRequest("POST", "/chat", nil)
	r.Header.Set("X-Customer-ID", "cust-42")
	id, err := customerIDFromRequest(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "cust-42" {
		t.Errorf("got %q", id)
	}
}
