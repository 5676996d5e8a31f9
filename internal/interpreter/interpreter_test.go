package interpreter

import "testing"

func TestInterpretThreshold(t *testing.T) {
	cases := []struct {
		score      float64
		label      string
		suggestion string
	}{
		{0, LabelNonCancer, SuggestionNonCancer},
		{0.4999999, LabelNonCancer, SuggestionNonCancer},
		{0.5, LabelNonCancer, SuggestionNonCancer},
		{0.5000001, LabelCancer, SuggestionCancer},
		{0.9, LabelCancer, SuggestionCancer},
		{1, LabelCancer, SuggestionCancer},
	}
	for _, tc := range cases {
		label, suggestion := Interpret(tc.score)
		if label != tc.label || suggestion != tc.suggestion {
			t.Fatalf("score %v: got (%q, %q) want (%q, %q)", tc.score, label, suggestion, tc.label, tc.suggestion)
		}
	}
}

func TestInterpretFloat32Scores(t *testing.T) {
	// Model outputs are float32; the boundary must survive the widening.
	if label, _ := Interpret(float64(float32(0.5))); label != LabelNonCancer {
		t.Fatalf("expected %s at the threshold, got %s", LabelNonCancer, label)
	}
	if label, _ := Interpret(float64(float32(0.5000001))); label != LabelCancer {
		t.Fatalf("expected %s just above the threshold, got %s", LabelCancer, label)
	}
}

func TestInterpretIsStable(t *testing.T) {
	for _, score := range []float64{0.1, 0.5, 0.73} {
		l1, s1 := Interpret(score)
		l2, s2 := Interpret(score)
		if l1 != l2 || s1 != s2 {
			t.Fatalf("score %v: results differ between calls", score)
		}
		if s1 == "" {
			t.Fatalf("score %v: empty suggestion", score)
		}
	}
}
