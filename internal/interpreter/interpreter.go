// Package interpreter maps classifier scores to labels and advice.
package interpreter

// Labels.
const (
	LabelCancer    = "Cancer"
	LabelNonCancer = "Non-cancer"
)

// Suggestions shown with each label.
const (
	SuggestionCancer    = "Please consult a doctor immediately!"
	SuggestionNonCancer = "No cancer detected, keep up your regular check-ups."
)

// Threshold is the score a prediction must exceed to be labelled Cancer.
const Threshold = 0.5

// Interpret labels score. A score of exactly Threshold is Non-cancer.
func Interpret(score float64) (label, suggestion string) {
	if score > Threshold {
		return LabelCancer, SuggestionCancer
	}
	return LabelNonCancer, SuggestionNonCancer
}
