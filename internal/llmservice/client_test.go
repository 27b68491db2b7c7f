package llmservice

import (
	"context"
	"errors"
	"testing"

	"github.com/tmc/langchaingo/llms"

	"rag-assistant/internal/config"
	"rag-assistant/internal/models"
)

type fakeModel struct {
	content string
	err     error
	prompts []string
	opts    llms.CallOptions
}

func (m *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if tc, ok := part.(llms.TextContent); ok {
				m.prompts = append(m.prompts, tc.Text)
			}
		}
	}
	for _, o := range options {
		o(&m.opts)
	}
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.content}}}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestGenerate_OK(t *testing.T) {
	model := &fakeModel{content: "Batteries are replaced in store."}
	g := NewGenerator("primary", model, 0.2, 300)

	out, err := g.Generate(context.Background(), "How do I replace my battery?")
	if err != nil {
		t.Fatal(err)
	}
	if out != "Batteries are replaced in store." {
		t.Errorf("out = %q", out)
	}
	if len(model.prompts) != 1 || model.prompts[0] != "How do I replace my battery?" {
		t.Errorf("prompts = %q", model.prompts)
	}
	if model.opts.Temperature != 0.2 || model.opts.MaxTokens != 300 {
		t.Errorf("call options = %+v", model.opts)
	}
}

func TestGenerate_Failures(t *testing.T) {
	cause := errors.New("deployment not found")
	tests := []struct {
		name  string
		model *fakeModel
		is    error
	}{
		{"provider error", &fakeModel{err: cause}, cause},
		{"empty content", &fakeModel{content: "  \n"}, models.ErrEmptyGeneration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGenerator("fallback", tt.model, 0, 0).Generate(context.Background(), "q")
			var gerr *models.GenerationError
			if !errors.As(err, &gerr) {
				t.Fatalf("expected GenerationError, got %v", err)
			}
			if gerr.Generator != "fallback" {
				t.Errorf("Generator = %q", gerr.Generator)
			}
			if !errors.Is(err, tt.is) {
				t.Errorf("errors.Is(%v, %v) = false", err, tt.is)
			}
		})
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New("primary", &config.LLMConfig{Provider: "palm"})
	var cerr *models.ConfigurationError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}
