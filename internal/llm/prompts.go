package llm

import (
	"fmt"
	"strings"

	"github.com/reverba/api/internal/model"
)

const mcqSystemPrompt = `You are an expert vocabulary teacher creating high-quality multiple-choice questions. Be strict and accurate in your assessments.`

// MCQPrompt accepts word, meaning, example, word, meaning, meaning.
const MCQPrompt = `Generate a multiple-choice question (MCQ) for the word "%s".

Word details:
- Meaning: %s
- Example: %s

Requirements:
1. Test understanding of the word's meaning in context.
2. Provide exactly 4 options, each a complete sentence using "%s".
3. Only ONE option may be correct: the one that matches the meaning "%s".
4. The other 3 options must be plausible but incorrect.
5. Give a clear reason why each option is correct or incorrect.

Return a JSON object with this exact structure:
{
    "question": "The question text asking which sentence uses the word correctly",
    "options": ["sentence 1", "sentence 2", "sentence 3", "sentence 4"],
    "correctOption": 1,
    "optionReasons": ["reason 1", "reason 2", "reason 3", "reason 4"]
}

Important:
- correctOption must be 1, 2, 3, or 4 (not 0-based)
- The correct option must match the meaning: "%s"
`

const tutorBasePrompt = `You are a vocabulary tutor evaluating student responses.
Your role is to assess whether the student's answer demonstrates understanding of the word.
Be encouraging but accurate. Accept paraphrases and similar meanings.
Reject vague, circular, or incorrect definitions.`

func tutorSystemPrompt(w model.Word, taskType model.TaskType) string {
	switch taskType {
	case model.TaskTypeMeaning:
		return fmt.Sprintf("%s\nThe student should provide the meaning of the word: %s\nCorrect meaning: %s",
			tutorBasePrompt, w.Word, w.Meaning)
	case model.TaskTypeSentence:
		return fmt.Sprintf("%s\nThe student should create a sentence using the word: %s\nExample sentence: %s",
			tutorBasePrompt, w.Word, w.Example)
	case model.TaskTypeParagraph:
		return fmt.Sprintf("%s\nThe student should write a paragraph using the word: %s\nThe word's meaning: %s\nExample: %s",
			tutorBasePrompt, w.Word, w.Meaning, w.Example)
	}
	return tutorBasePrompt
}

func evaluationPrompt(w model.Word, taskType model.TaskType, response string, priorFailures int) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Evaluate this student response for the word "%s".

Word meaning: %s
Example: %s
Task type: %s
Student response: %s

Evaluation rules:
- Accept paraphrases and similar meanings
- Reject vague or circular definitions
- Be encouraging but accurate

Return a JSON object with this structure:
{
    "result": "PASS" or "FAIL",
    "feedback": "Detailed feedback message",
    "hint": "Optional hint if FAIL (only on first failure)",
    "answerRevealed": true/false (true only on second failure)
}

Failure count so far: %d
`, w.Word, w.Meaning, w.Example, taskType, response, priorFailures)

	switch priorFailures {
	case 0:
		b.WriteString("\nThis is the first attempt. If FAIL, provide a hint but don't reveal the answer.")
	case 1:
		b.WriteString("\nThis is the second attempt. If FAIL, reveal the correct answer.")
	}
	return b.String()
}
