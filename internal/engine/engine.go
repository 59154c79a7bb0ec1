package engine

import (
	"context"
	"log/slog"

	"docchat/internal/chat"
	"docchat/internal/citation"
	"docchat/internal/domain"
	"docchat/internal/failure"
	"docchat/internal/metrics"
	"docchat/internal/queryopt"
)

const (
	defaultLLMMaxTokens = 1024
	defaultTemperature  = 0.3

	basePrompt = `You are a document analysis assistant. Answer questions using only the document content provided below. If the document does not contain the answer, say so.`
)

// Engine is the per-session question-answering core: optimize the query,
// consult the cache, call the model, extract and verify citations, persist
// the conversation.
type Engine struct {
	optimizer *queryopt.Optimizer
	chat      *chat.Manager
	citations *citation.Engine
	store     domain.DocumentStore
	provider  domain.Provider
	advisor   *failure.Advisor
	logger    *slog.Logger

	duplicateThreshold float64
	contextBudget      int
	maxTokens          int
	temperature        float64
}

// Config holds the engine's collaborators and tuning parameters.
type Config struct {
	Optimizer *queryopt.Optimizer
	Chat      *chat.Manager
	Citations *citation.Engine
	Store     domain.DocumentStore
	Provider  domain.Provider
	Advisor   *failure.Advisor
	Logger    *slog.Logger

	DuplicateThreshold float64
	ContextBudget      int
	MaxTokens          int
	Temperature        float64
}

func New(cfg Config) *Engine {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultLLMMaxTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = defaultTemperature
	}
	lgr := cfg.Logger
	if lgr == nil {
		lgr = slog.Default()
	}
	return &Engine{
		optimizer:          cfg.Optimizer,
		chat:               cfg.Chat,
		citations:          cfg.Citations,
		store:              cfg.Store,
		provider:           cfg.Provider,
		advisor:            cfg.Advisor,
		logger:             lgr,
		duplicateThreshold: cfg.DuplicateThreshold,
		contextBudget:      cfg.ContextBudget,
		maxTokens:          cfg.MaxTokens,
		temperature:        cfg.Temperature,
	}
}

// Answer is the full outcome of one question. Advice is set instead of
// Response when the model call failed; the session always continues.
type Answer struct {
	Response     string                     `json:"response"`
	Raw          string                     `json:"raw,omitempty"`
	FromCache    bool                       `json:"from_cache"`
	Quality      queryopt.QualityReport     `json:"quality"`
	Duplicate    *queryopt.DuplicateMatch   `json:"duplicate,omitempty"`
	Estimate     queryopt.TokenEstimate     `json:"estimate"`
	Citation     domain.Citation            `json:"citation"`
	Verification *domain.VerificationResult `json:"verification,omitempty"`
	Advice       *failure.Advice            `json:"advice,omitempty"`
}

// Ask runs one question against a stored document.
func (e *Engine) Ask(ctx context.Context, docID, question string) (*Answer, error) {
	answer := &Answer{
		Quality: e.optimizer.ScoreQuestionQuality(question),
	}

	cleaned := e.optimizer.PreprocessQuestion(question)
	if dup := e.optimizer.FindDuplicate(cleaned, e.duplicateThreshold); dup != nil {
		metrics.DuplicateQuestions.Inc()
		e.logger.Info("near-duplicate question", "similarity", dup.Similarity)
		answer.Duplicate = dup
	}

	docText, err := e.store.GetDocumentText(ctx, docID)
	if err != nil {
		return nil, err
	}
	docContext := e.optimizer.OptimizeContext(docText, cleaned, e.contextBudget)
	answer.Estimate = e.optimizer.EstimateTokenCost(cleaned, docContext)

	turn := e.chat.ProcessUserMessage(cleaned, docContext)
	if turn.FromCache {
		answer.FromCache = true
		answer.Response = turn.Cached.FormattedResponse
		answer.Raw = turn.Cached.RawResponse
		answer.Citation = e.citations.ExtractCitations(turn.Cached.RawResponse)
		return answer, nil
	}

	msgs := make([]domain.Message, len(turn.ContextWindow))
	copy(msgs, turn.ContextWindow)
	if n := len(msgs); n > 0 && msgs[n-1].Role == domain.RoleUser {
		msgs[n-1].Content = turn.EnhancedPrompt
	}

	system := e.citations.EnhanceSystemPrompt(basePrompt)
	if docContext != "" {
		system += "\n\nDocument content:\n" + docContext
	}

	resp, err := e.provider.Chat(ctx, domain.ChatRequest{
		System:      system,
		Messages:    msgs,
		MaxTokens:   e.maxTokens,
		Temperature: e.temperature,
	})
	if err != nil {
		advice := e.advisor.Advise(err, map[string]any{"provider": e.provider.Name()})
		answer.Advice = &advice
		return answer, nil
	}

	answer.Raw = resp.Content
	answer.Citation = e.citations.ExtractCitations(resp.Content)

	verification := e.citations.VerifyCitation(answer.Citation, docText, nil)
	answer.Verification = &verification
	if verification.Verified {
		metrics.CitationsVerified.Inc()
	} else {
		metrics.CitationsFlagged.Inc()
	}

	cached := e.chat.ProcessAIResponse(resp.Content, cleaned, docContext, map[string]any{
		"model":      resp.Model,
		"tokens_in":  resp.TokensIn,
		"tokens_out": resp.TokensOut,
	})
	answer.Response = cached.FormattedResponse

	e.optimizer.AddToHistory(cleaned, resp.Content)

	if err := e.store.UpdateConversation(ctx, docID, e.chat.Messages()); err != nil {
		e.logger.Warn("persist conversation", "doc", docID, "error", err)
	}
	return answer, nil
}

// Upload ingests a document and returns its store result.
func (e *Engine) Upload(ctx context.Context, filename, text string, metadata map[string]any) (domain.StoreResult, error) {
	return e.store.StoreDocument(ctx, filename, text, metadata)
}

// Resume loads the most recent persisted conversation for a document into
// the session, returning the number of restored messages.
func (e *Engine) Resume(ctx context.Context, docID string) (int, error) {
	msgs, err := e.store.GetConversation(ctx, docID)
	if err != nil {
		return 0, err
	}
	for _, m := range msgs {
		e.chat.RestoreMessage(m)
	}
	return len(msgs), nil
}

// Suggestions proposes better phrasings for a weak question.
func (e *Engine) Suggestions(question, documentType string) []string {
	return e.optimizer.SuggestBetterQuestions(question, documentType)
}

// Stats exposes the session's conversation stats.
func (e *Engine) Stats() chat.ConversationStats {
	return e.chat.Stats()
}
