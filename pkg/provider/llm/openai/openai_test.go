package openai

import (
	"testing"

	"github.com/MrWong99/parley/pkg/provider/llm"
)

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New("", "gpt-4o-mini"); err == nil {
		t.Error("New accepted an empty apiKey")
	}
}

func TestNew_EmptyModel(t *testing.T) {
	if _, err := New("sk-test", ""); err == nil {
		t.Error("New accepted an empty model")
	}
}

func TestBuildParams_RolesAndSystemPrompt(t *testing.T) {
	p, err := New("sk-test", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	params, err := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "be brief",
		Messages: []llm.Message{
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "hello"},
			{Role: "user", Content: "bye"},
		},
	})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	// System prompt plus the three conversation messages.
	if len(params.Messages) != 4 {
		t.Errorf("messages = %d, want 4", len(params.Messages))
	}
	if string(params.Model) != "gpt-4o-mini" {
		t.Errorf("model = %q, want gpt-4o-mini", params.Model)
	}
}

func TestBuildParams_UnsupportedRole(t *testing.T) {
	p, err := New("sk-test", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: "tool", Content: "ignored"}},
	})
	if err == nil {
		t.Error("buildParams accepted an unsupported role")
	}
}

func TestBuildParams_SamplingOptions(t *testing.T) {
	p, err := New("sk-test", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	params, err := p.buildParams(llm.CompletionRequest{
		Messages:    []llm.Message{{Role: "user", Content: "hi"}},
		Temperature: 0.7,
		MaxTokens:   128,
	})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if !params.Temperature.Valid() || params.Temperature.Value != 0.7 {
		t.Errorf("temperature = %+v, want 0.7", params.Temperature)
	}
	if !params.MaxCompletionTokens.Valid() || params.MaxCompletionTokens.Value != 128 {
		t.Errorf("max completion tokens = %+v, want 128", params.MaxCompletionTokens)
	}
}
