package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/reverba/api/internal/model"
)

// Evaluation is the tutor's verdict on one free-text answer.
type Evaluation struct {
	Result         model.TaskResult `json:"result"`
	Feedback       string           `json:"feedback"`
	Hint           string           `json:"hint,omitempty"`
	AnswerRevealed bool             `json:"answerRevealed"`
	ExpectedAnswer string           `json:"expectedAnswer,omitempty"`
}

type evaluationReply struct {
	Result         string `json:"result"`
	Feedback       string `json:"feedback"`
	Hint           string `json:"hint"`
	AnswerRevealed bool   `json:"answerRevealed"`
}

// Evaluator grades free-text answers.
type Evaluator struct {
	client Client
}

func NewEvaluator(client Client) *Evaluator {
	return &Evaluator{client: client}
}

// Evaluate grades response. priorFailures is the number of FAIL verdicts
// already given in the chat: a hint is only kept on the first failure and the
// answer is revealed from the second failure on, whatever the model says.
func (e *Evaluator) Evaluate(ctx context.Context, w model.Word, taskType model.TaskType, response string, priorFailures int) (*Evaluation, error) {
	if !taskType.FreeText() {
		return nil, fmt.Errorf("%s tasks are not graded by the tutor", taskType)
	}

	reply, err := e.client.Complete(ctx, tutorSystemPrompt(w, taskType), evaluationPrompt(w, taskType, response, priorFailures))
	if err != nil {
		return nil, err
	}

	var r evaluationReply
	if err := decode(reply, &r); err != nil {
		return nil, fmt.Errorf("invalid evaluation response: %w", err)
	}

	out := &Evaluation{
		Result:   model.TaskResultFail,
		Feedback: strings.TrimSpace(r.Feedback),
	}
	if strings.EqualFold(strings.TrimSpace(r.Result), string(model.TaskResultPass)) {
		out.Result = model.TaskResultPass
		return out, nil
	}

	if priorFailures == 0 {
		out.Hint = strings.TrimSpace(r.Hint)
	} else {
		out.AnswerRevealed = true
		out.ExpectedAnswer = w.Meaning
	}
	return out, nil
}
