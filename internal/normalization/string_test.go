package normalization

import "testing"

func TestNormalizeSynonym(t *testing.T) {
	cases := map[string]string{
		"O2 Sat":     "o2 sat",
		"  SPO2  ":   "spo2",
		"pulse":      "pulse",
		"":           "",
		"   ":        "",
		"O2-sat":     "o2-sat",  // punctuation survives
		"O2 sats":    "o2 sats", // plural is a distinct form
	}
	for in, want := range cases {
		if got := NormalizeSynonym(in); got != want {
			t.Fatalf("NormalizeSynonym(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeLabelMatchesSynonymForm(t *testing.T) {
	for _, s := range []string{"Emphysema", "  Heart Rate ", "o2 SAT"} {
		if NormalizeLabel(s) != NormalizeSynonym(s) {
			t.Fatalf("label and synonym normalization diverge for %q", s)
		}
	}
}
