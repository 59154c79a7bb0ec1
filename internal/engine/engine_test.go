package engine

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"docchat/internal/chat"
	"docchat/internal/citation"
	"docchat/internal/domain"
	"docchat/internal/failure"
	"docchat/internal/queryopt"
	"docchat/internal/storage"
)

const docText = "The contract requires payment within 30 days of invoice receipt. " +
	"Either party may terminate the agreement with sixty days written notice."

type fakeProvider struct {
	response string
	err      error
	calls    int
	lastReq  domain.ChatRequest
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &domain.ChatResponse{Content: f.response, Model: "fake"}, nil
}

func (f *fakeProvider) Healthy(ctx context.Context) error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestEngine(t *testing.T, prov domain.Provider) (*Engine, string) {
	t.Helper()
	logger := testLogger()
	store := storage.NewManager(storage.Config{TTLDays: 30, Logger: logger})

	res, err := store.StoreDocument(context.Background(), "contract.txt", docText, nil)
	if err != nil {
		t.Fatal(err)
	}

	e := New(Config{
		Optimizer: queryopt.New(queryopt.Config{Logger: logger}),
		Chat:      chat.NewManager(chat.Config{Logger: logger}),
		Citations: citation.NewEngine(citation.EngineConfig{Logger: logger}),
		Store:     store,
		Provider:  prov,
		Advisor:   failure.NewAdvisor(failure.AdvisorConfig{Logger: logger}),
		Logger:    logger,
	})
	return e, res.ID
}

func wellFormed(quote string) string {
	return "**Answer:** Payment is due within 30 days.\n" +
		"**Source:** Page 1\n" +
		"**Confidence:** High\n" +
		"**Quote:** \"" + quote + "\"\n" +
		"**Classification:** DIRECT_QUOTE"
}

func TestAsk_FullFlow(t *testing.T) {
	prov := &fakeProvider{response: wellFormed("payment within 30 days of invoice receipt")}
	e, docID := newTestEngine(t, prov)

	ans, err := e.Ask(context.Background(), docID, "what are the payment terms in the contract")
	if err != nil {
		t.Fatal(err)
	}
	if ans.FromCache || ans.Advice != nil {
		t.Fatalf("unexpected answer shape: %+v", ans)
	}
	if ans.Response == "" {
		t.Error("formatted response missing")
	}
	if ans.Citation.Confidence != domain.ConfidenceHigh {
		t.Errorf("citation not extracted: %+v", ans.Citation)
	}
	if ans.Verification == nil || !ans.Verification.Verified {
		t.Errorf("verbatim quote should verify: %+v", ans.Verification)
	}
	if ans.Quality.Score == 0 {
		t.Error("quality report missing")
	}

	// The system prompt carries the citation grammar and document content.
	if !strings.Contains(prov.lastReq.System, "**Answer:**") {
		t.Error("system prompt should request the citation format")
	}
	if !strings.Contains(prov.lastReq.System, "Document content:") {
		t.Error("system prompt should carry the document context")
	}

	// The conversation was persisted against the document.
	msgs, err := e.store.GetConversation(context.Background(), docID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Errorf("expected persisted user+assistant messages, got %d", len(msgs))
	}
}

func TestAsk_SecondIdenticalQuestionHitsCache(t *testing.T) {
	prov := &fakeProvider{response: wellFormed("payment within 30 days")}
	e, docID := newTestEngine(t, prov)
	ctx := context.Background()

	if _, err := e.Ask(ctx, docID, "what are the payment terms in the contract"); err != nil {
		t.Fatal(err)
	}
	ans, err := e.Ask(ctx, docID, "what are the payment terms in the contract")
	if err != nil {
		t.Fatal(err)
	}
	if !ans.FromCache {
		t.Error("identical question should come from the cache")
	}
	if prov.calls != 1 {
		t.Errorf("provider called %d times, cache should prevent the second call", prov.calls)
	}
	if ans.Duplicate == nil {
		t.Error("repeat question should surface the duplicate match")
	}
}

func TestAsk_ProviderFailureBecomesAdvice(t *testing.T) {
	prov := &fakeProvider{err: errors.New("429 too many requests, retry after 20 seconds")}
	e, docID := newTestEngine(t, prov)

	ans, err := e.Ask(context.Background(), docID, "what are the termination conditions")
	if err != nil {
		t.Fatalf("collaborator failure must not surface as an error: %v", err)
	}
	if ans.Advice == nil {
		t.Fatal("expected an advisory")
	}
	if ans.Advice.RetryDelay == nil || *ans.Advice.RetryDelay != 20 {
		t.Errorf("retry delay not extracted: %+v", ans.Advice)
	}
	if ans.Response != "" {
		t.Error("no response should accompany an advisory")
	}
}

func TestAsk_FabricatedQuoteFlagged(t *testing.T) {
	prov := &fakeProvider{response: wellFormed("penalty of one million dollars applies instantly")}
	e, docID := newTestEngine(t, prov)

	ans, err := e.Ask(context.Background(), docID, "what penalties does the contract impose")
	if err != nil {
		t.Fatal(err)
	}
	if ans.Verification == nil {
		t.Fatal("expected a verification result")
	}
	if ans.Verification.Verified {
		t.Error("a quote absent from the document must not verify")
	}
	if len(ans.Verification.Issues) == 0 {
		t.Error("verification should report the missing quote")
	}
}

func TestResume(t *testing.T) {
	prov := &fakeProvider{response: wellFormed("payment within 30 days of invoice receipt")}
	e, docID := newTestEngine(t, prov)
	ctx := context.Background()

	if _, err := e.Ask(ctx, docID, "what are the payment terms in the contract"); err != nil {
		t.Fatal(err)
	}

	// A fresh session restores the persisted conversation.
	fresh, _ := newTestEngineSharingStore(t, prov, e)
	n, err := fresh.Resume(ctx, docID)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2 restored messages, got %d", n)
	}
	if got := fresh.chat.Messages(); len(got) != 2 {
		t.Errorf("restored context holds %d messages", len(got))
	}
}

func newTestEngineSharingStore(t *testing.T, prov domain.Provider, from *Engine) (*Engine, string) {
	t.Helper()
	logger := testLogger()
	return New(Config{
		Optimizer: queryopt.New(queryopt.Config{Logger: logger}),
		Chat:      chat.NewManager(chat.Config{Logger: logger}),
		Citations: citation.NewEngine(citation.EngineConfig{Logger: logger}),
		Store:     from.store,
		Provider:  prov,
		Advisor:   failure.NewAdvisor(failure.AdvisorConfig{Logger: logger}),
		Logger:    logger,
	}), ""
}

func TestSuggestions(t *testing.T) {
	e, _ := newTestEngine(t, &fakeProvider{})
	got := e.Suggestions("tell me about it", "legal_contract")
	if len(got) == 0 {
		t.Error("a vague question should yield suggestions")
	}
}
