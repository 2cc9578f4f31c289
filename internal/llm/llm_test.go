package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reverba/api/internal/model"
)

type scriptedClient struct {
	reply   string
	err     error
	prompts []string
	systems []string
}

func (c *scriptedClient) Complete(_ context.Context, system, prompt string) (string, error) {
	c.systems = append(c.systems, system)
	c.prompts = append(c.prompts, prompt)
	return c.reply, c.err
}

var lucid = model.Word{ID: "w1", Word: "lucid", Meaning: "expressed clearly", Example: "a lucid explanation"}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"plain", `{"a":1}`, `{"a":1}`, false},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`, false},
		{"chatter", "Sure! Here it is: {\"a\": {\"b\": 2}} Hope it helps.", `{"a": {"b": 2}}`, false},
		{"no object", "no json here", "", true},
		{"broken", `{"a": }`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGenerateMCQ(t *testing.T) {
	c := &scriptedClient{reply: "```json\n" + `{
		"question": " Which sentence uses lucid correctly? ",
		"options": ["a", "b", "c", "d"],
		"correctOption": 2,
		"optionReasons": ["r1", "r2", "r3", "r4"]
	}` + "\n```"}
	g := NewMCQGenerator(c)

	mcq, err := g.GenerateMCQ(context.Background(), lucid)
	require.NoError(t, err)
	assert.Equal(t, "Which sentence uses lucid correctly?", mcq.Question)
	assert.Equal(t, 2, mcq.CorrectOption)
	require.Len(t, c.prompts, 1)
	assert.Contains(t, c.prompts[0], `"lucid"`)
	assert.Contains(t, c.prompts[0], "expressed clearly")
	assert.NotContains(t, c.prompts[0], "%!")
}

func TestGenerateMCQRejectsMalformedReplies(t *testing.T) {
	replies := []string{
		`{"question": "q", "options": ["a", "b", "c"], "correctOption": 1, "optionReasons": ["1","2","3"]}`,
		`{"question": "q", "options": ["a", "b", "c", "d"], "correctOption": 0, "optionReasons": ["1","2","3","4"]}`,
		`{"question": "", "options": ["a", "b", "c", "d"], "correctOption": 1, "optionReasons": ["1","2","3","4"]}`,
		`{"question": "q", "options": ["a", "b", "c", "d"], "correctOption": 1}`,
		`not json`,
	}
	for _, reply := range replies {
		_, err := NewMCQGenerator(&scriptedClient{reply: reply}).GenerateMCQ(context.Background(), lucid)
		assert.Error(t, err, reply)
	}
}

func TestGenerateMCQPropagatesClientErrors(t *testing.T) {
	boom := errors.New("upstream down")
	_, err := NewMCQGenerator(&scriptedClient{err: boom}).GenerateMCQ(context.Background(), lucid)
	assert.ErrorIs(t, err, boom)
}

func TestEvaluatePass(t *testing.T) {
	c := &scriptedClient{reply: `{"result": "pass", "feedback": "Nice.", "hint": "ignored"}`}

	ev, err := NewEvaluator(c).Evaluate(context.Background(), lucid, model.TaskTypeMeaning, "clear", 0)
	require.NoError(t, err)
	assert.Equal(t, model.TaskResultPass, ev.Result)
	assert.Equal(t, "Nice.", ev.Feedback)
	assert.Empty(t, ev.Hint)
	assert.False(t, ev.AnswerRevealed)
	assert.Contains(t, c.systems[0], "Correct meaning: expressed clearly")
	assert.Contains(t, c.prompts[0], "This is the first attempt")
}

func TestEvaluateHintThenReveal(t *testing.T) {
	c := &scriptedClient{reply: `{"result": "FAIL", "feedback": "Not quite.", "hint": "Think of clarity.", "answerRevealed": true}`}
	e := NewEvaluator(c)

	first, err := e.Evaluate(context.Background(), lucid, model.TaskTypeSentence, "lucid is a fish", 0)
	require.NoError(t, err)
	assert.Equal(t, model.TaskResultFail, first.Result)
	assert.Equal(t, "Think of clarity.", first.Hint)
	assert.False(t, first.AnswerRevealed, "no reveal on the first failure")
	assert.Empty(t, first.ExpectedAnswer)

	c.reply = `{"result": "FAIL", "feedback": "Still off."}`
	second, err := e.Evaluate(context.Background(), lucid, model.TaskTypeSentence, "lucid is a bird", 1)
	require.NoError(t, err)
	assert.Empty(t, second.Hint)
	assert.True(t, second.AnswerRevealed)
	assert.Equal(t, "expressed clearly", second.ExpectedAnswer)
	assert.Contains(t, c.prompts[1], "reveal the correct answer")
}

func TestEvaluateRejectsMCQ(t *testing.T) {
	c := &scriptedClient{reply: `{"result": "PASS"}`}
	_, err := NewEvaluator(c).Evaluate(context.Background(), lucid, model.TaskTypeMCQ, "2", 0)
	assert.Error(t, err)
	assert.Empty(t, c.prompts)
}

func TestOllamaClient(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(generateResponse{Model: got.Model, Response: `{"ok":true}`, Done: true})
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL+"/", "llama3")
	reply, err := c.Complete(context.Background(), "sys", "prompt")
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, reply)
	assert.Equal(t, "llama3", got.Model)
	assert.Equal(t, "sys", got.System)
	assert.Equal(t, "json", got.Format)
	assert.False(t, got.Stream)
}

func TestOllamaClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewOllamaClient(srv.URL, "llama3").Complete(context.Background(), "", "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestOpenAIClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "test-model", body["model"])
		assert.Equal(t, map[string]interface{}{"type": "json_object"}, body["response_format"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "1", "object": "chat.completion", "model": "test-model",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"result\":\"PASS\"}"}, "finish_reason": "stop"}]
		}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("sk-test", srv.URL, "test-model")
	reply, err := c.Complete(context.Background(), "sys", "prompt")
	require.NoError(t, err)
	assert.Equal(t, `{"result":"PASS"}`, reply)
}

func TestNew(t *testing.T) {
	_, err := New(Options{Provider: "openai"})
	assert.Error(t, err, "missing key")

	c, err := New(Options{Provider: "ollama", OllamaURL: "http://localhost:11434", OllamaModel: "llama3"})
	require.NoError(t, err)
	assert.IsType(t, &OllamaClient{}, c)

	c, err = New(Options{Provider: "OpenAI", OpenAIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, c)

	_, err = New(Options{Provider: "bard"})
	assert.Error(t, err)
}
