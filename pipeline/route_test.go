package pipeline

import "testing"

func TestIsGraphIntent(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"which medicines should I avoid?", true},
		{"can I find a doctor near me", true},
		{"I have fever and body ache", false},
		{"is it safe to take ibuprofen with my blood pressure pills", true},
	}
	for _, c := range cases {
		if got := IsGraphIntent(c.text); got != c.want {
			t.Errorf("IsGraphIntent(%q) = %v, want %v", c.text, got, c.want)
		}
	}
}

func TestExtractSymptoms(t *testing.T) {
	got := ExtractSymptoms("I have fever and a sore throat")
	want := map[string]bool{"fever": true, "sore throat": true}
	if len(got) != len(want) {
		t.Fatalf("got %v, want 2 symptoms", got)
	}
	for _, s := range got {
		if !want[s] {
			t.Errorf("unexpected symptom %q", s)
		}
	}
}

func TestExtractConditions(t *testing.T) {
	got := ExtractConditions("I have diabetes and hypertension")
	if len(got) != 2 {
		t.Fatalf("expected 2 conditions, got %v", got)
	}
}

func TestExtractCity(t *testing.T) {
	if got := ExtractCity("find a clinic in Mumbai please"); got != "Mumbai" {
		t.Errorf("ExtractCity = %q, want Mumbai", got)
	}
	if got := ExtractCity("no city mentioned here"); got != "" {
		t.Errorf("ExtractCity = %q, want empty", got)
	}
}

func TestMergeUnique(t *testing.T) {
	got := MergeUnique([]string{"diabetes"}, []string{"Diabetes", "hypertension"})
	if len(got) != 2 {
		t.Fatalf("expected dedup to length 2, got %v", got)
	}
	if got[0] != "diabetes" || got[1] != "hypertension" {
		t.Errorf("unexpected merge result %v", got)
	}
}
