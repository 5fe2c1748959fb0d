package llm

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/oldnordic/ai-coder-assistant-sub001/llm/catalog"
	"github.com/oldnordic/ai-coder-assistant-sub001/llm/emit"
	"github.com/oldnordic/ai-coder-assistant-sub001/llm/provider"
	"github.com/oldnordic/ai-coder-assistant-sub001/llm/store"
)

// testCatalog registers openai (priority 1) and anthropic (priority 2)
// with one chat model each.
func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat := catalog.New()

	mustSet := func(err error) {
		if err != nil {
			t.Fatalf("catalog setup failed: %v", err)
		}
	}
	mustSet(cat.SetProvider(catalog.ProviderConfig{Type: provider.TypeOpenAI, Enabled: true, Priority: 1}))
	mustSet(cat.SetProvider(catalog.ProviderConfig{Type: provider.TypeAnthropic, Enabled: true, Priority: 2}))
	mustSet(cat.SetModel(catalog.ModelConfig{Name: "gpt-4o", Provider: provider.TypeOpenAI, SupportsChat: true}))
	mustSet(cat.SetModel(catalog.ModelConfig{Name: "claude-3-haiku", Provider: provider.TypeAnthropic, SupportsChat: true}))
	return cat
}

// instantRetries keeps tests fast: no backoff sleeps between attempts.
func instantRetries(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts}
}

func chatReq(model string) provider.ChatRequest {
	return provider.ChatRequest{
		Model:    model,
		Messages: []provider.Message{{Role: provider.RoleUser, Content: "hello"}},
	}
}

func TestManagerChatRoutesToModelProvider(t *testing.T) {
	ctx := context.Background()
	openai := &provider.Mock{
		Type: provider.TypeOpenAI,
		ChatResponses: []provider.ChatResponse{
			{Text: "from openai", Usage: provider.Usage{InputTokens: 10, OutputTokens: 4, TotalTokens: 14}},
		},
	}
	anthropic := &provider.Mock{Type: provider.TypeAnthropic}

	mgr, err := New(testCatalog(t),
		WithProvider(openai),
		WithProvider(anthropic),
		WithRetryPolicy(instantRetries(1)),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	res, err := mgr.Chat(ctx, chatReq("gpt-4o"))
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if res.Text != "from openai" {
		t.Errorf("Text = %q, want %q", res.Text, "from openai")
	}
	if anthropic.CallCount() != 0 {
		t.Errorf("anthropic should not be called, got %d calls", anthropic.CallCount())
	}

	recs := mgr.History(0)
	if len(recs) != 1 {
		t.Fatalf("expected 1 history record, got %d", len(recs))
	}
	rec := recs[0]
	if rec.Provider != "openai" || rec.Model != "gpt-4o" || rec.Operation != "chat" {
		t.Errorf("history record identity wrong: %+v", rec)
	}
	if rec.Status != store.StatusOK || rec.InputTokens != 10 || rec.OutputTokens != 4 {
		t.Errorf("history record accounting wrong: %+v", rec)
	}

	totals := mgr.Usage()
	if totals.Requests != 1 || totals.InputTokens != 10 || totals.OutputTokens != 4 {
		t.Errorf("usage totals wrong: %+v", totals)
	}
}

func TestManagerCompleteAndEmbed(t *testing.T) {
	ctx := context.Background()
	openai := &provider.Mock{
		Type:                provider.TypeOpenAI,
		CompletionResponses: []provider.CompletionResponse{{Text: "done"}},
		EmbeddingResponses:  []provider.EmbeddingResponse{{Vectors: [][]float64{{0.1, 0.2}}}},
	}

	mgr, err := New(testCatalog(t), WithProvider(openai), WithRetryPolicy(instantRetries(1)))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	comp, err := mgr.Complete(ctx, provider.CompletionRequest{Model: "gpt-4o", Prompt: "say done"})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if comp.Text != "done" {
		t.Errorf("Complete text = %q", comp.Text)
	}

	emb, err := mgr.Embed(ctx, provider.EmbeddingRequest{Model: "gpt-4o", Input: []string{"x"}})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(emb.Vectors) != 1 {
		t.Errorf("expected 1 vector, got %d", len(emb.Vectors))
	}

	recs := mgr.History(0)
	if len(recs) != 2 {
		t.Fatalf("expected 2 history records, got %d", len(recs))
	}
	if recs[0].Operation != "embed" || recs[1].Operation != "complete" {
		t.Errorf("history order wrong: %q, %q", recs[0].Operation, recs[1].Operation)
	}
}

func TestManagerFailsOverToNextProvider(t *testing.T) {
	ctx := context.Background()
	openai := &provider.Mock{Type: provider.TypeOpenAI, Err: provider.ErrRateLimited}
	anthropic := &provider.Mock{
		Type:          provider.TypeAnthropic,
		ChatResponses: []provider.ChatResponse{{Text: "from anthropic"}},
	}
	sink := emit.NewBufferedEmitter()

	mgr, err := New(testCatalog(t),
		WithProvider(openai),
		WithProvider(anthropic),
		WithRetryPolicy(instantRetries(2)),
		WithEmitter(sink),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	res, err := mgr.Chat(ctx, chatReq("gpt-4o"))
	if err != nil {
		t.Fatalf("Chat should succeed via failover: %v", err)
	}
	if res.Text != "from anthropic" {
		t.Errorf("Text = %q, want %q", res.Text, "from anthropic")
	}

	// Two retry attempts against openai, then one anthropic call with the
	// fallback provider's own model.
	if openai.CallCount() != 2 {
		t.Errorf("openai calls = %d, want 2", openai.CallCount())
	}
	if len(anthropic.Calls) != 1 || anthropic.Calls[0].Model != "claude-3-haiku" {
		t.Errorf("anthropic should get its own model, got %+v", anthropic.Calls)
	}

	ids := sink.RequestIDs()
	if len(ids) != 1 {
		t.Fatalf("expected 1 request ID, got %d", len(ids))
	}
	fallbacks := sink.HistoryWithFilter(ids[0], emit.Filter{Msg: emit.MsgProviderFallback})
	if len(fallbacks) != 1 {
		t.Fatalf("expected 1 fallback event, got %d", len(fallbacks))
	}
	if fallbacks[0].Provider != "anthropic" || fallbacks[0].Meta["from"] != "openai" {
		t.Errorf("fallback event wrong: %+v", fallbacks[0])
	}
}

func TestManagerFailoverDisabled(t *testing.T) {
	ctx := context.Background()
	openai := &provider.Mock{Type: provider.TypeOpenAI, Err: provider.ErrRateLimited}
	anthropic := &provider.Mock{Type: provider.TypeAnthropic}

	mgr, err := New(testCatalog(t),
		WithProvider(openai),
		WithProvider(anthropic),
		WithRetryPolicy(instantRetries(1)),
		WithFailover(false),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	_, err = mgr.Chat(ctx, chatReq("gpt-4o"))
	if err == nil {
		t.Fatal("Chat should fail with failover disabled")
	}

	var ferr *FailoverError
	if !errors.As(err, &ferr) {
		t.Fatalf("expected *FailoverError, got %T: %v", err, err)
	}
	if len(ferr.Attempts) != 1 || ferr.Attempts[0].Provider != provider.TypeOpenAI {
		t.Errorf("attempts wrong: %+v", ferr.Attempts)
	}
	if !errors.Is(err, provider.ErrRateLimited) {
		t.Error("errors.Is should see the rate limit through the failover error")
	}
	if anthropic.CallCount() != 0 {
		t.Errorf("anthropic must not be called when failover is off, got %d", anthropic.CallCount())
	}

	recs := mgr.History(0)
	if len(recs) != 1 || recs[0].Status != store.StatusError {
		t.Errorf("failed request should be recorded: %+v", recs)
	}
}

func TestManagerRetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	openai := &provider.Mock{
		Type:          provider.TypeOpenAI,
		Err:           provider.ErrRateLimited,
		FailFirst:     2,
		ChatResponses: []provider.ChatResponse{{Text: "third time lucky"}},
	}

	mgr, err := New(testCatalog(t), WithProvider(openai), WithRetryPolicy(instantRetries(3)))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	res, err := mgr.Chat(ctx, chatReq("gpt-4o"))
	if err != nil {
		t.Fatalf("Chat should succeed on the third attempt: %v", err)
	}
	if res.Text != "third time lucky" {
		t.Errorf("Text = %q", res.Text)
	}
	if openai.CallCount() != 3 {
		t.Errorf("openai calls = %d, want 3", openai.CallCount())
	}
}

func TestManagerProviderRetryBudgetOverride(t *testing.T) {
	ctx := context.Background()
	cat := testCatalog(t)
	// openai allows a single retry regardless of the manager policy.
	if err := cat.SetProvider(catalog.ProviderConfig{Type: provider.TypeOpenAI, Enabled: true, Priority: 1, MaxRetries: 1}); err != nil {
		t.Fatalf("SetProvider failed: %v", err)
	}
	openai := &provider.Mock{Type: provider.TypeOpenAI, Err: provider.ErrRateLimited}

	mgr, err := New(cat, WithProvider(openai), WithRetryPolicy(instantRetries(5)), WithFailover(false))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	_, err = mgr.Chat(ctx, chatReq("gpt-4o"))
	if err == nil {
		t.Fatal("Chat should fail")
	}
	if openai.CallCount() != 2 {
		t.Errorf("openai calls = %d, want 2 (initial + 1 retry)", openai.CallCount())
	}
}

func TestManagerNonRetryableSkipsRetries(t *testing.T) {
	ctx := context.Background()
	openai := &provider.Mock{Type: provider.TypeOpenAI, Err: provider.ErrAuth}
	anthropic := &provider.Mock{
		Type:          provider.TypeAnthropic,
		ChatResponses: []provider.ChatResponse{{Text: "rescued"}},
	}

	mgr, err := New(testCatalog(t),
		WithProvider(openai),
		WithProvider(anthropic),
		WithRetryPolicy(instantRetries(3)),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	res, err := mgr.Chat(ctx, chatReq("gpt-4o"))
	if err != nil {
		t.Fatalf("Chat should succeed via failover: %v", err)
	}
	if res.Text != "rescued" {
		t.Errorf("Text = %q", res.Text)
	}
	if openai.CallCount() != 1 {
		t.Errorf("auth failure should not be retried, got %d calls", openai.CallCount())
	}
}

func TestManagerFatalErrorStopsFailover(t *testing.T) {
	ctx := context.Background()
	openai := &provider.Mock{
		Type: provider.TypeOpenAI,
		Err:  provider.Errorf(provider.TypeOpenAI, provider.CodeBadRequest, "messages must not be empty"),
	}
	anthropic := &provider.Mock{Type: provider.TypeAnthropic}

	mgr, err := New(testCatalog(t),
		WithProvider(openai),
		WithProvider(anthropic),
		WithRetryPolicy(instantRetries(3)),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	_, err = mgr.Chat(ctx, chatReq("gpt-4o"))
	if err == nil {
		t.Fatal("Chat should fail")
	}
	var ferr *FailoverError
	if !errors.As(err, &ferr) {
		t.Fatalf("expected *FailoverError, got %T", err)
	}
	if len(ferr.Attempts) != 1 {
		t.Errorf("bad request should stop after one provider, got %d attempts", len(ferr.Attempts))
	}
	if openai.CallCount() != 1 || anthropic.CallCount() != 0 {
		t.Errorf("calls = %d/%d, want 1/0", openai.CallCount(), anthropic.CallCount())
	}
}

func TestManagerUnknownModel(t *testing.T) {
	mgr, err := New(testCatalog(t), WithProvider(&provider.Mock{Type: provider.TypeOpenAI}))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	_, err = mgr.Chat(context.Background(), chatReq("mystery-model"))
	if !errors.Is(err, ErrUnknownModel) {
		t.Errorf("expected ErrUnknownModel, got %v", err)
	}
}

func TestManagerNoRegisteredAdapter(t *testing.T) {
	mgr, err := New(testCatalog(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	_, err = mgr.Chat(context.Background(), chatReq("gpt-4o"))
	if !errors.Is(err, ErrNoProviders) {
		t.Errorf("expected ErrNoProviders, got %v", err)
	}
}

func TestManagerClosed(t *testing.T) {
	mgr, err := New(testCatalog(t), WithProvider(&provider.Mock{Type: provider.TypeOpenAI}))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := mgr.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := mgr.Chat(context.Background(), chatReq("gpt-4o")); !errors.Is(err, ErrManagerClosed) {
		t.Errorf("expected ErrManagerClosed, got %v", err)
	}
	if err := mgr.RegisterProvider(&provider.Mock{}); !errors.Is(err, ErrManagerClosed) {
		t.Errorf("RegisterProvider after Close: expected ErrManagerClosed, got %v", err)
	}
}

func TestManagerHistoryRolls(t *testing.T) {
	ctx := context.Background()
	openai := &provider.Mock{Type: provider.TypeOpenAI}

	mgr, err := New(testCatalog(t),
		WithProvider(openai),
		WithRetryPolicy(instantRetries(1)),
		WithHistoryLimit(3),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		if _, err := mgr.Chat(ctx, chatReq("gpt-4o")); err != nil {
			t.Fatalf("Chat %d failed: %v", i, err)
		}
	}

	recs := mgr.History(0)
	if len(recs) != 3 {
		t.Fatalf("expected rolling window of 3, got %d", len(recs))
	}
	if recs[0].ID != 5 || recs[2].ID != 3 {
		t.Errorf("expected newest first (IDs 5..3), got %d..%d", recs[0].ID, recs[2].ID)
	}

	if got := mgr.History(2); len(got) != 2 || got[0].ID != 5 {
		t.Errorf("History(2) wrong: %+v", got)
	}
}

func TestManagerArchivesRecords(t *testing.T) {
	ctx := context.Background()
	archive := store.NewMemStore()
	defer archive.Close()
	openai := &provider.Mock{
		Type:          provider.TypeOpenAI,
		ChatResponses: []provider.ChatResponse{{Text: "ok", Usage: provider.Usage{InputTokens: 7, OutputTokens: 3}}},
	}

	mgr, err := New(testCatalog(t),
		WithProvider(openai),
		WithRetryPolicy(instantRetries(1)),
		WithStore(archive),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := mgr.Chat(ctx, chatReq("gpt-4o")); err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	recs, err := archive.RecentRecords(ctx, 0)
	if err != nil {
		t.Fatalf("RecentRecords failed: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 archived record, got %d", len(recs))
	}
	if recs[0].Provider != "openai" || recs[0].InputTokens != 7 {
		t.Errorf("archived record wrong: %+v", recs[0])
	}
}

func TestManagerArchiveFailureDoesNotFailRequest(t *testing.T) {
	ctx := context.Background()
	archive := store.NewMemStore()
	archive.Close() // every save will fail
	sink := emit.NewBufferedEmitter()
	openai := &provider.Mock{Type: provider.TypeOpenAI}

	mgr, err := New(testCatalog(t),
		WithProvider(openai),
		WithRetryPolicy(instantRetries(1)),
		WithStore(archive),
		WithEmitter(sink),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := mgr.Chat(ctx, chatReq("gpt-4o")); err != nil {
		t.Fatalf("Chat should succeed despite archive failure: %v", err)
	}

	ids := sink.RequestIDs()
	if len(ids) != 1 {
		t.Fatalf("expected 1 request ID, got %d", len(ids))
	}
	archiveErrs := sink.HistoryWithFilter(ids[0], emit.Filter{Msg: emit.MsgArchiveError})
	if len(archiveErrs) != 1 {
		t.Errorf("expected 1 archive_error event, got %d", len(archiveErrs))
	}
}

// optionsCapture wraps Mock to record the options each chat request
// arrived with.
type optionsCapture struct {
	provider.Mock
	mu   sync.Mutex
	reqs []provider.ChatRequest
}

func (o *optionsCapture) Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	o.mu.Lock()
	o.reqs = append(o.reqs, req)
	o.mu.Unlock()
	return o.Mock.Chat(ctx, req)
}

func TestManagerAppliesModelDefaults(t *testing.T) {
	ctx := context.Background()
	cat := testCatalog(t)
	temp := 0.2
	if err := cat.SetModel(catalog.ModelConfig{
		Name:         "gpt-4o",
		Provider:     provider.TypeOpenAI,
		SupportsChat: true,
		Temperature:  &temp,
		MaxTokens:    512,
	}); err != nil {
		t.Fatalf("SetModel failed: %v", err)
	}

	openai := &optionsCapture{Mock: provider.Mock{Type: provider.TypeOpenAI}}
	mgr, err := New(cat, WithProvider(openai), WithRetryPolicy(instantRetries(1)))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := mgr.Chat(ctx, chatReq("gpt-4o")); err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if len(openai.reqs) != 1 {
		t.Fatalf("expected 1 captured request, got %d", len(openai.reqs))
	}
	got := openai.reqs[0].Options
	if got.Temperature == nil || *got.Temperature != 0.2 {
		t.Errorf("catalog temperature not applied: %+v", got.Temperature)
	}
	if got.MaxTokens == nil || *got.MaxTokens != 512 {
		t.Errorf("catalog max tokens not applied: %+v", got.MaxTokens)
	}

	// Explicit request options win over catalog defaults.
	req := chatReq("gpt-4o")
	explicit := 0.9
	req.Options.Temperature = &explicit
	if _, err := mgr.Chat(ctx, req); err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	got = openai.reqs[1].Options
	if got.Temperature == nil || *got.Temperature != 0.9 {
		t.Errorf("explicit temperature should win: %+v", got.Temperature)
	}
}

func TestManagerCatalogPricingOverridesDefaults(t *testing.T) {
	ctx := context.Background()
	cat := testCatalog(t)
	if err := cat.SetModel(catalog.ModelConfig{
		Name:            "gpt-4o",
		Provider:        provider.TypeOpenAI,
		SupportsChat:    true,
		InputCostPer1M:  100,
		OutputCostPer1M: 200,
	}); err != nil {
		t.Fatalf("SetModel failed: %v", err)
	}

	openai := &provider.Mock{
		Type:          provider.TypeOpenAI,
		ChatResponses: []provider.ChatResponse{{Text: "ok", Usage: provider.Usage{InputTokens: 1000, OutputTokens: 500}}},
	}
	mgr, err := New(cat, WithProvider(openai), WithRetryPolicy(instantRetries(1)))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := mgr.Chat(ctx, chatReq("gpt-4o")); err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	want := 1000.0/1_000_000.0*100 + 500.0/1_000_000.0*200
	recs := mgr.History(1)
	if len(recs) != 1 || !almostEqual(recs[0].CostUSD, want) {
		t.Errorf("record cost = %v, want %v", recs[0].CostUSD, want)
	}
	if got := mgr.Costs().GetTotalCost(); !almostEqual(got, want) {
		t.Errorf("tracker total = %v, want %v", got, want)
	}
}

func TestManagerEmbedFallbackNeedsEmbeddingModel(t *testing.T) {
	ctx := context.Background()
	cat := testCatalog(t)
	if err := cat.SetProvider(catalog.ProviderConfig{Type: provider.TypeOllama, Enabled: true, Priority: 3}); err != nil {
		t.Fatalf("SetProvider failed: %v", err)
	}
	if err := cat.SetModel(catalog.ModelConfig{
		Name:              "nomic-embed-text:latest",
		Provider:          provider.TypeOllama,
		SupportsEmbedding: true,
	}); err != nil {
		t.Fatalf("SetModel failed: %v", err)
	}

	openai := &provider.Mock{Type: provider.TypeOpenAI, Err: provider.ErrRateLimited}
	anthropic := &provider.Mock{Type: provider.TypeAnthropic}
	ollama := &provider.Mock{
		Type:               provider.TypeOllama,
		EmbeddingResponses: []provider.EmbeddingResponse{{Vectors: [][]float64{{1, 2, 3}}}},
	}

	mgr, err := New(cat,
		WithProvider(openai),
		WithProvider(anthropic),
		WithProvider(ollama),
		WithRetryPolicy(instantRetries(1)),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	res, err := mgr.Embed(ctx, provider.EmbeddingRequest{Model: "text-embedding-3-small", Input: []string{"x"}})
	if err != nil {
		t.Fatalf("Embed should fail over to ollama: %v", err)
	}
	if len(res.Vectors) != 1 {
		t.Errorf("expected 1 vector, got %d", len(res.Vectors))
	}

	// Anthropic has no embedding-capable model, so it is skipped entirely.
	if anthropic.CallCount() != 0 {
		t.Errorf("anthropic should be skipped for embeddings, got %d calls", anthropic.CallCount())
	}
	if len(ollama.Calls) != 1 || ollama.Calls[0].Model != "nomic-embed-text:latest" {
		t.Errorf("ollama should get its embedding model, got %+v", ollama.Calls)
	}
}

func TestManagerEmitsLifecycleEvents(t *testing.T) {
	ctx := context.Background()
	sink := emit.NewBufferedEmitter()
	openai := &provider.Mock{Type: provider.TypeOpenAI}

	mgr, err := New(testCatalog(t),
		WithProvider(openai),
		WithRetryPolicy(instantRetries(1)),
		WithEmitter(sink),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := mgr.Chat(ctx, chatReq("gpt-4o")); err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	ids := sink.RequestIDs()
	if len(ids) != 1 {
		t.Fatalf("expected 1 request ID, got %d", len(ids))
	}
	events := sink.History(ids[0])
	wantMsgs := []string{emit.MsgRequestStart, emit.MsgProviderAttempt, emit.MsgRequestComplete}
	if len(events) != len(wantMsgs) {
		t.Fatalf("expected %d events, got %d: %+v", len(wantMsgs), len(events), events)
	}
	for i, want := range wantMsgs {
		if events[i].Msg != want {
			t.Errorf("event %d = %q, want %q", i, events[i].Msg, want)
		}
	}

	complete := events[len(events)-1]
	if _, ok := complete.Meta["duration_ms"]; !ok {
		t.Error("request_complete should carry duration_ms")
	}
	if _, ok := complete.Meta["cost_usd"]; !ok {
		t.Error("request_complete should carry cost_usd")
	}
}

func TestManagerRecordsMetrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	openai := &provider.Mock{Type: provider.TypeOpenAI, Err: provider.ErrRateLimited}
	anthropic := &provider.Mock{
		Type:          provider.TypeAnthropic,
		ChatResponses: []provider.ChatResponse{{Text: "ok", Usage: provider.Usage{InputTokens: 50, OutputTokens: 20}}},
	}

	mgr, err := New(testCatalog(t),
		WithProvider(openai),
		WithProvider(anthropic),
		WithRetryPolicy(instantRetries(1)),
		WithMetrics(NewPrometheusMetrics(reg)),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := mgr.Chat(ctx, chatReq("gpt-4o")); err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	values := gatherValues(t, reg)
	if values["aicoder_llm_requests_total"] != 1 {
		t.Errorf("requests_total = %v, want 1", values["aicoder_llm_requests_total"])
	}
	if values["aicoder_llm_fallbacks_total"] != 1 {
		t.Errorf("fallbacks_total = %v, want 1", values["aicoder_llm_fallbacks_total"])
	}
	if values["aicoder_llm_tokens_input_total"] != 50 {
		t.Errorf("tokens_input_total = %v, want 50", values["aicoder_llm_tokens_input_total"])
	}
	if values["aicoder_llm_inflight_requests"] != 0 {
		t.Errorf("inflight should return to 0, got %v", values["aicoder_llm_inflight_requests"])
	}
}

func TestManagerRegisterProviderAtRuntime(t *testing.T) {
	ctx := context.Background()
	mgr, err := New(testCatalog(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := mgr.Chat(ctx, chatReq("gpt-4o")); !errors.Is(err, ErrNoProviders) {
		t.Fatalf("expected ErrNoProviders before registration, got %v", err)
	}

	if err := mgr.RegisterProvider(&provider.Mock{Type: provider.TypeOpenAI}); err != nil {
		t.Fatalf("RegisterProvider failed: %v", err)
	}
	if _, err := mgr.Chat(ctx, chatReq("gpt-4o")); err != nil {
		t.Errorf("Chat should succeed after registration: %v", err)
	}

	types := mgr.Providers()
	if len(types) != 1 || types[0] != provider.TypeOpenAI {
		t.Errorf("Providers() = %v", types)
	}
}
