// Package google adapts Google's Gemini API to the normalized provider
// interface using the official generative-ai-go client.
package google

import (
	"context"
	"errors"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/oldnordic/ai-coder-assistant-sub001/llm/provider"
)

// Adapter implements provider.Provider using the Gemini API. Callers must
// Close the adapter to release the underlying gRPC connection.
type Adapter struct {
	client *genai.Client
}

// New creates a Gemini adapter. The context governs only client setup, not
// later requests.
func New(ctx context.Context, apiKey string) (*Adapter, error) {
	if apiKey == "" {
		return nil, errors.New("google: API key cannot be empty")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, provider.Classify(provider.TypeGoogle, err)
	}

	return &Adapter{client: client}, nil
}

// Close releases the underlying client connection.
func (a *Adapter) Close() error {
	if a.client != nil {
		return a.client.Close()
	}
	return nil
}

// Name implements provider.Provider.
func (a *Adapter) Name() provider.Type {
	return provider.TypeGoogle
}

// Chat implements provider.Provider.
//
// Gemini models take the system prompt as a SystemInstruction and the
// conversation as alternating user/model turns. The final message is sent
// as the live turn; everything before it becomes chat history.
func (a *Adapter) Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	if len(req.Messages) == 0 {
		return nil, provider.Errorf(provider.TypeGoogle, provider.CodeBadRequest, "chat request has no messages")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	system, turns := splitSystem(req.Messages)
	if len(turns) == 0 {
		return nil, provider.Errorf(provider.TypeGoogle, provider.CodeBadRequest, "chat request has no user or assistant messages")
	}

	model := a.client.GenerativeModel(req.Model)
	applyOptions(model, req.Options)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	var resp *genai.GenerateContentResponse
	var err error
	if len(turns) == 1 {
		resp, err = model.GenerateContent(ctx, genai.Text(turns[0].Content))
	} else {
		cs := model.StartChat()
		cs.History = toHistory(turns[:len(turns)-1])
		resp, err = cs.SendMessage(ctx, genai.Text(turns[len(turns)-1].Content))
	}
	if err != nil {
		return nil, mapError(err)
	}

	text, finish, err := extractText(resp)
	if err != nil {
		return nil, err
	}

	return &provider.ChatResponse{
		Text:         text,
		Model:        req.Model,
		Provider:     provider.TypeGoogle,
		Usage:        usageFrom(resp),
		FinishReason: finish,
	}, nil
}

// Complete implements provider.Provider.
func (a *Adapter) Complete(ctx context.Context, req provider.CompletionRequest) (*provider.CompletionResponse, error) {
	if req.Prompt == "" {
		return nil, provider.Errorf(provider.TypeGoogle, provider.CodeBadRequest, "completion request has no prompt")
	}

	messages := make([]provider.Message, 0, 2)
	if req.System != "" {
		messages = append(messages, provider.Message{Role: provider.RoleSystem, Content: req.System})
	}
	messages = append(messages, provider.Message{Role: provider.RoleUser, Content: req.Prompt})

	out, err := a.Chat(ctx, provider.ChatRequest{
		Model:    req.Model,
		Messages: messages,
		Options:  req.Options,
	})
	if err != nil {
		return nil, err
	}

	return &provider.CompletionResponse{
		Text:     out.Text,
		Model:    out.Model,
		Provider: provider.TypeGoogle,
		Usage:    out.Usage,
	}, nil
}

// Embed implements provider.Provider. Each input is embedded with its own
// EmbedContent call; the Gemini embeddings API reports no token usage.
func (a *Adapter) Embed(ctx context.Context, req provider.EmbeddingRequest) (*provider.EmbeddingResponse, error) {
	if len(req.Input) == 0 {
		return nil, provider.Errorf(provider.TypeGoogle, provider.CodeBadRequest, "embedding request has no input")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	em := a.client.EmbeddingModel(req.Model)
	vectors := make([][]float64, 0, len(req.Input))
	for _, text := range req.Input {
		res, err := em.EmbedContent(ctx, genai.Text(text))
		if err != nil {
			return nil, mapError(err)
		}
		if res.Embedding == nil {
			return nil, provider.Errorf(provider.TypeGoogle, provider.CodeUnknown, "embedding response contained no vector")
		}
		vec := make([]float64, len(res.Embedding.Values))
		for i, v := range res.Embedding.Values {
			vec[i] = float64(v)
		}
		vectors = append(vectors, vec)
	}

	return &provider.EmbeddingResponse{
		Vectors:  vectors,
		Model:    req.Model,
		Provider: provider.TypeGoogle,
	}, nil
}

// splitSystem separates system messages from conversation turns, joining
// multiple system messages with a blank line.
func splitSystem(messages []provider.Message) (string, []provider.Message) {
	var system []string
	turns := make([]provider.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == provider.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		turns = append(turns, m)
	}
	return strings.Join(system, "\n\n"), turns
}

// toHistory converts prior turns into genai chat history. Gemini names the
// assistant role "model".
func toHistory(turns []provider.Message) []*genai.Content {
	history := make([]*genai.Content, 0, len(turns))
	for _, m := range turns {
		role := "user"
		if m.Role == provider.RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{
			Parts: []genai.Part{genai.Text(m.Content)},
			Role:  role,
		})
	}
	return history
}

func applyOptions(model *genai.GenerativeModel, opts provider.Options) {
	if opts.Temperature != nil {
		model.SetTemperature(float32(*opts.Temperature))
	}
	if opts.TopP != nil {
		model.SetTopP(float32(*opts.TopP))
	}
	if opts.MaxTokens != nil {
		model.SetMaxOutputTokens(int32(*opts.MaxTokens))
	}
	if len(opts.Stop) > 0 {
		model.StopSequences = opts.Stop
	}
	if opts.JSONMode {
		model.ResponseMIMEType = "application/json"
	}
}

// extractText pulls the text parts out of the first candidate. Safety
// blocks surface as content_filtered errors so the router does not retry
// them against another key.
func extractText(resp *genai.GenerateContentResponse) (string, string, error) {
	if resp == nil {
		return "", "", provider.Errorf(provider.TypeGoogle, provider.CodeUnknown, "nil response from Gemini API")
	}

	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
			return "", "", provider.Errorf(provider.TypeGoogle, provider.CodeContentFiltered,
				"prompt blocked: %s", resp.PromptFeedback.BlockReason.String())
		}
		return "", "", provider.Errorf(provider.TypeGoogle, provider.CodeUnknown, "response contained no candidates")
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", "", provider.Errorf(provider.TypeGoogle, provider.CodeContentFiltered,
			"response blocked by safety filter")
	}

	var sb strings.Builder
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
	}
	return sb.String(), candidate.FinishReason.String(), nil
}

func usageFrom(resp *genai.GenerateContentResponse) provider.Usage {
	if resp == nil || resp.UsageMetadata == nil {
		return provider.Usage{}
	}
	return provider.Usage{
		InputTokens:  int64(resp.UsageMetadata.PromptTokenCount),
		OutputTokens: int64(resp.UsageMetadata.CandidatesTokenCount),
		TotalTokens:  int64(resp.UsageMetadata.TotalTokenCount),
	}.Normalize()
}

// mapError converts Gemini API errors into classified provider errors.
// google.golang.org/api surfaces failures as message-bearing errors, so
// classification is by content rather than typed status.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "resource_exhausted") || strings.Contains(msg, "resource exhausted"):
		return provider.Errorf(provider.TypeGoogle, provider.CodeRateLimited, "rate limit exceeded: %v", err)
	case strings.Contains(msg, "api key not valid") || strings.Contains(msg, "invalid_api_key"):
		return provider.Errorf(provider.TypeGoogle, provider.CodeAuth, "invalid API key: %v", err)
	}

	return provider.Classify(provider.TypeGoogle, err)
}
