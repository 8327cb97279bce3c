package verify

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ppiankov/verity/internal/llm"
	"github.com/ppiankov/verity/internal/metrics"
	"github.com/ppiankov/verity/internal/model"
	"github.com/ppiankov/verity/internal/search"
)

const judgeSystemPrompt = "You are a data analyst that only answers Yes or No."

const judgeUserTemplate = `You are a precise analyst.
Analyze the data below and answer the question strictly with "Yes" or "No".

Data:
%s

Question:
%s

Answer (Yes/No only):`

// Judge answers one atomic question from retrieved evidence
type Judge struct {
	searcher  search.Searcher
	options   search.Options
	formatter *search.Formatter
	settings  model.VerifyConfig
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewJudge creates a judge
func NewJudge(searcher search.Searcher, options search.Options, formatter *search.Formatter,
	settings model.VerifyConfig, logger *zap.Logger, m *metrics.Metrics) *Judge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Judge{
		searcher:  searcher,
		options:   options,
		formatter: formatter,
		settings:  settings,
		logger:    logger,
		metrics:   m,
	}
}

// Judge retrieves evidence for question and asks gen for a verdict. A failed
// retrieval yields Inconclusive without a generation call; a failed
// generation is returned.
func (j *Judge) Judge(ctx context.Context, gen llm.Generator, question string) (model.Judgment, error) {
	ctx, span := tracer.Start(ctx, "verify.judge")
	defer span.End()

	resp, err := j.searcher.Search(ctx, question, j.options)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		j.logger.Warn("evidence retrieval failed, judging inconclusive",
			zap.String("question", question),
			zap.Error(err))
		j.metrics.IncrementRetrievalFailure()
		span.SetAttributes(attribute.Bool("verity.retrieval_failed", true))
		return model.JudgmentInconclusive, nil
	}

	evidence := j.formatter.Format(resp)
	span.SetAttributes(attribute.Int("verity.evidence_results", len(resp.Results)))

	answer, err := gen.Generate(ctx, llm.Request{
		System:      judgeSystemPrompt,
		User:        fmt.Sprintf(judgeUserTemplate, evidence, question),
		Temperature: j.settings.JudgeTemperature,
		MaxTokens:   j.settings.JudgeMaxTokens,
	})
	if err != nil {
		return "", err
	}

	judgment := NormalizeJudgment(answer.Text)
	j.logger.Debug("question judged",
		zap.String("question", question),
		zap.String("answer", answer.Text),
		zap.String("judgment", string(judgment)))
	return judgment, nil
}

// NormalizeJudgment maps free text to Yes or No: Yes only when the trimmed,
// lower-cased text starts with "y".
func NormalizeJudgment(text string) model.Judgment {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(text)), "y") {
		return model.JudgmentYes
	}
	return model.JudgmentNo
}
