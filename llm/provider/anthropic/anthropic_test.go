package anthropic

import (
	"context"
	"errors"
	"testing"

	"github.com/oldnordic/ai-coder-assistant-sub001/llm/provider"
)

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty API key")
	}

	a, err := New("test-key")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if a.Name() != provider.TypeAnthropic {
		t.Errorf("Name() = %q, want %q", a.Name(), provider.TypeAnthropic)
	}
}

func TestChatRejectsEmptyMessages(t *testing.T) {
	a, err := New("test-key")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = a.Chat(context.Background(), provider.ChatRequest{Model: "claude-3-5-sonnet-20241022"})
	var perr *provider.Error
	if !errors.As(err, &perr) {
		t.Fatalf("Chat() error = %v, want *provider.Error", err)
	}
	if perr.Code != provider.CodeBadRequest {
		t.Errorf("Code = %q, want %q", perr.Code, provider.CodeBadRequest)
	}
}

func TestChatRejectsSystemOnlyConversation(t *testing.T) {
	a, err := New("test-key")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = a.Chat(context.Background(), provider.ChatRequest{
		Model:    "claude-3-5-sonnet-20241022",
		Messages: []provider.Message{{Role: provider.RoleSystem, Content: "be brief"}},
	})
	var perr *provider.Error
	if !errors.As(err, &perr) {
		t.Fatalf("Chat() error = %v, want *provider.Error", err)
	}
	if perr.Code != provider.CodeBadRequest {
		t.Errorf("Code = %q, want %q", perr.Code, provider.CodeBadRequest)
	}
}

func TestEmbedUnsupported(t *testing.T) {
	a, err := New("test-key")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = a.Embed(context.Background(), provider.EmbeddingRequest{
		Model: "claude-3-5-sonnet-20241022",
		Input: []string{"some text"},
	})
	if !errors.Is(err, provider.ErrUnsupported) {
		t.Errorf("Embed() error = %v, want ErrUnsupported", err)
	}
	if provider.IsRetryable(err) {
		t.Error("unsupported-operation errors must not be retryable")
	}
}

func TestSplitSystem(t *testing.T) {
	system, turns := splitSystem([]provider.Message{
		{Role: provider.RoleSystem, Content: "first instruction"},
		{Role: provider.RoleUser, Content: "hello"},
		{Role: provider.RoleAssistant, Content: "hi"},
		{Role: provider.RoleSystem, Content: "second instruction"},
		{Role: provider.RoleUser, Content: "question"},
	})

	want := "first instruction\n\nsecond instruction"
	if system != want {
		t.Errorf("system = %q, want %q", system, want)
	}
	if len(turns) != 3 {
		t.Errorf("len(turns) = %d, want 3", len(turns))
	}
}

func TestSplitSystemNoSystemMessages(t *testing.T) {
	system, turns := splitSystem([]provider.Message{
		{Role: provider.RoleUser, Content: "hello"},
	})
	if system != "" {
		t.Errorf("system = %q, want empty", system)
	}
	if len(turns) != 1 {
		t.Errorf("len(turns) = %d, want 1", len(turns))
	}
}

func TestMapError(t *testing.T) {
	if mapError(nil) != nil {
		t.Error("mapError(nil) should be nil")
	}
	if !errors.Is(mapError(context.Canceled), context.Canceled) {
		t.Error("context.Canceled should pass through unclassified")
	}

	err := mapError(errors.New("overloaded_error: Anthropic is temporarily overloaded"))
	var perr *provider.Error
	if !errors.As(err, &perr) {
		t.Fatalf("mapError() = %v, want *provider.Error", err)
	}
	if perr.Code != provider.CodeServer {
		t.Errorf("Code = %q, want %q", perr.Code, provider.CodeServer)
	}
	if !perr.Retryable {
		t.Error("overloaded errors should be retryable")
	}
	if perr.Provider != provider.TypeAnthropic {
		t.Errorf("Provider = %q, want %q", perr.Provider, provider.TypeAnthropic)
	}
}
