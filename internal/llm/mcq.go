package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/reverba/api/internal/model"
)

// MCQGenerator writes one multiple-choice question per word.
type MCQGenerator struct {
	client Client
}

func NewMCQGenerator(client Client) *MCQGenerator {
	return &MCQGenerator{client: client}
}

func (g *MCQGenerator) GenerateMCQ(ctx context.Context, w model.Word) (*model.MCQ, error) {
	prompt := fmt.Sprintf(MCQPrompt, w.Word, w.Meaning, w.Example, w.Word, w.Meaning, w.Meaning)

	reply, err := g.client.Complete(ctx, mcqSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	var mcq model.MCQ
	if err := decode(reply, &mcq); err != nil {
		return nil, fmt.Errorf("invalid mcq response: %w", err)
	}
	mcq.Question = strings.TrimSpace(mcq.Question)
	if err := mcq.Validate(); err != nil {
		return nil, err
	}
	return &mcq, nil
}
