package verify

import (
	"context"

	"github.com/ppiankov/verity/internal/model"
)

// QuestionJudge judges a single question
type QuestionJudge interface {
	Judge(ctx context.Context, question string) (model.Judgment, error)
}

// Aggregate judges questions in order and stops at the first one that is not
// Yes. Zero questions are vacuously factual. Every question appears in the
// returned slice; those after a stop are marked not evaluated.
func Aggregate(ctx context.Context, judge QuestionJudge, questions []string) (model.Verdict, []model.QuestionResult, error) {
	results := make([]model.QuestionResult, len(questions))
	for i, q := range questions {
		results[i] = model.QuestionResult{Question: q}
	}

	for i, q := range questions {
		judgment, err := judge.Judge(ctx, q)
		if err != nil {
			return "", results, err
		}
		results[i].Judgment = judgment
		results[i].Evaluated = true

		if !judgment.Affirmative() {
			return model.VerdictNotFactual, results, nil
		}
	}

	return model.VerdictFactual, results, nil
}
