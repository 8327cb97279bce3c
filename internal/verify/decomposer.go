package verify

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/verity/internal/llm"
	"github.com/ppiankov/verity/internal/model"
)

const decomposeSystemPrompt = "You are a helpful assistant that verifies facts by breaking statements into verifiable sub-questions. " +
	"Please ensure each question can be answered with a yes or no and an answer yes means that the original statement is true " +
	"and an answer no means that the original statement is false. " +
	"Please only include items from the statement that are objective facts"

const decomposeUserTemplate = `Given the following factual statement, break it into individual atomic questions that can be independently verified.

Statement: "%s"

Atomic questions:`

// Decomposer turns a statement into atomic yes/no questions
type Decomposer struct {
	settings model.VerifyConfig
}

// NewDecomposer creates a decomposer
func NewDecomposer(settings model.VerifyConfig) *Decomposer {
	return &Decomposer{settings: settings}
}

// Request builds the generation request. A local request carries the local
// model's own temperature plus top-p and a repeat penalty; the remote
// sampling stays in place for when the local model falls back.
func (d *Decomposer) Request(statement string, mode model.BackendMode) llm.Request {
	req := llm.Request{
		System:      decomposeSystemPrompt,
		User:        fmt.Sprintf(decomposeUserTemplate, statement),
		Temperature: d.settings.DecomposeTemperature,
		MaxTokens:   d.settings.DecomposeMaxTokens,
	}
	if mode == model.BackendLocal {
		req.Local = &llm.LocalSampling{
			Temperature:   d.settings.LocalDecomposeTemperature,
			TopP:          d.settings.DecomposeTopP,
			RepeatPenalty: d.settings.DecomposeRepeatPenalty,
		}
	}
	return req
}

// Decompose asks gen for questions and parses them. Generation errors are
// returned unchanged.
func (d *Decomposer) Decompose(ctx context.Context, gen llm.Generator, statement string, mode model.BackendMode) ([]string, error) {
	resp, err := gen.Generate(ctx, d.Request(statement, mode))
	if err != nil {
		return nil, err
	}
	return ParseQuestions(resp.Text), nil
}

// ParseQuestions splits generated text into questions: one per non-blank
// line, with surrounding dashes, bullets and whitespace removed.
func ParseQuestions(text string) []string {
	questions := []string{}
	for _, line := range strings.Split(text, "\n") {
		q := strings.TrimLeft(strings.TrimSpace(line), "-*• ")
		q = strings.TrimSpace(strings.TrimRight(q, "- "))
		if q != "" {
			questions = append(questions, q)
		}
	}
	return questions
}
