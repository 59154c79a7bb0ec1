// Package chat orchestrates the conversation: it owns the message lifecycle
// (submit, respond, regenerate, edit, export, clear), the sliding-window
// context, and a bounded response cache.
package chat

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"docchat/internal/conversation"
	"docchat/internal/domain"
	"docchat/internal/metrics"
)

// Manager ties a ConversationContext to a bounded response cache. All state
// is session-scoped; the mutex makes the append-then-evict and
// insert-then-evict sequences safe when a session is shared across
// goroutines, but the intended deployment is one Manager per session.
type Manager struct {
	mu        sync.Mutex
	context   *conversation.Context
	cache     *responseCache
	feedback  []Feedback
	cacheHits int64
	logger    *slog.Logger
}

// Config configures a chat Manager. Zero values use the package defaults.
type Config struct {
	MaxHistory    int
	MaxTokens     int
	CacheCapacity int
	EvictBatch    int
	Logger        *slog.Logger
}

func NewManager(cfg Config) *Manager {
	lgr := cfg.Logger
	if lgr == nil {
		lgr = slog.Default()
	}
	return &Manager{
		context: conversation.New(cfg.MaxHistory, cfg.MaxTokens),
		cache:   newResponseCache(cfg.CacheCapacity, cfg.EvictBatch),
		logger:  lgr,
	}
}

// UserTurn is the prepared form of a user message. On a cache hit, Cached is
// set, FromCache is true, and the conversation context was NOT mutated.
type UserTurn struct {
	OriginalMessage string
	CleanedMessage  string
	EnhancedPrompt  string
	ContextWindow   []domain.Message
	FromCache       bool
	Cached          *CachedResponse
}

// Feedback is a user rating attached to a response.
type Feedback struct {
	MessageIndex int       `json:"message_index"`
	Feedback     string    `json:"feedback"`
	Rating       int       `json:"rating,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// ConversationStats summarizes the session for the presentation boundary.
type ConversationStats struct {
	TotalMessages        int   `json:"total_messages"`
	UserMessages         int   `json:"user_messages"`
	AssistantMessages    int   `json:"ai_messages"`
	AvgUserMessageLength int   `json:"avg_user_message_length"`
	AvgAIMessageLength   int   `json:"avg_ai_message_length"`
	CacheHits            int64 `json:"cache_hits"`
	FeedbackCount        int   `json:"feedback_count"`
}

// ProcessUserMessage cleans the message, consults the response cache, and on
// a miss appends the message to the context and builds the enhanced prompt.
func (m *Manager) ProcessUserMessage(message, docContext string) UserTurn {
	m.mu.Lock()
	defer m.mu.Unlock()

	cleaned := cleanMessage(message)
	key := cacheKey(cleaned, docContext)

	if cached, ok := m.cache.get(key); ok {
		m.cacheHits++
		metrics.CacheHits.Inc()
		m.logger.Debug("response cache hit", "key", key[:12])
		return UserTurn{
			OriginalMessage: message,
			CleanedMessage:  cleaned,
			FromCache:       true,
			Cached:          &cached,
		}
	}

	m.context.AddMessage(domain.RoleUser, cleaned, nil)
	metrics.MessagesTotal.Inc()

	return UserTurn{
		OriginalMessage: message,
		CleanedMessage:  cleaned,
		EnhancedPrompt:  m.enhancePrompt(cleaned),
		ContextWindow:   m.context.Window(),
	}
}

// enhancePrompt prefixes the message with a context-awareness note when the
// conversation is underway and recent topics are tracked.
func (m *Manager) enhancePrompt(message string) string {
	topics := m.context.RecentTopics(3)
	if len(topics) == 0 || m.context.Len() <= 2 {
		return message
	}
	return "[Context: Previously discussed " + strings.Join(topics, ", ") + "]\n\n" + message
}

// ProcessAIResponse formats the raw model output, appends it to the context,
// and caches the result. userMessage must be the cleaned message the turn was
// keyed on.
func (m *Manager) ProcessAIResponse(raw, userMessage, docContext string, metadata map[string]any) CachedResponse {
	m.mu.Lock()
	defer m.mu.Unlock()

	formatted := FormatCodeBlocks(FormatMarkdown(raw))
	m.context.AddMessage(domain.RoleAssistant, formatted, metadata)
	metrics.MessagesTotal.Inc()

	result := CachedResponse{
		FormattedResponse: formatted,
		RawResponse:       raw,
		Metadata:          metadata,
		Timestamp:         time.Now(),
	}

	before := m.cache.evictions
	m.cache.put(cacheKey(userMessage, docContext), result)
	if evicted := m.cache.evictions - before; evicted > 0 {
		metrics.CacheEvictions.Add(evicted)
		m.logger.Info("response cache eviction", "evicted", evicted, "remaining", m.cache.len())
	}

	return result
}

// Regenerate returns the content of the user message immediately preceding
// the assistant message at index. It fails when the index is out of range or
// does not reference an assistant message.
func (m *Manager) Regenerate(index int) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	target, ok := m.context.Message(index)
	if !ok || target.Role != domain.RoleAssistant {
		return "", false
	}
	prev, ok := m.context.Message(index - 1)
	if !ok || prev.Role != domain.RoleUser {
		return "", false
	}
	return prev.Content, true
}

// EditMessage replaces a message's content in place, stamping edit metadata.
func (m *Manager) EditMessage(index int, newContent string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.context.Edit(index, newContent)
}

// AddFeedback records user feedback against a response.
func (m *Manager) AddFeedback(index int, feedback string, rating int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feedback = append(m.feedback, Feedback{
		MessageIndex: index,
		Feedback:     feedback,
		Rating:       rating,
		Timestamp:    time.Now(),
	})
}

// RestoreMessage appends a persisted message to the context, for resuming a
// stored conversation.
func (m *Manager) RestoreMessage(msg domain.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.context.AddMessage(msg.Role, msg.Content, msg.Metadata)
}

// Messages returns a copy of the current conversation history.
func (m *Manager) Messages() []domain.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.context.Messages()
}

// Stats computes conversation statistics. Pure read, no side effects.
func (m *Manager) Stats() ConversationStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := ConversationStats{
		CacheHits:     m.cacheHits,
		FeedbackCount: len(m.feedback),
	}
	var userLen, aiLen int
	for _, msg := range m.context.Messages() {
		stats.TotalMessages++
		switch msg.Role {
		case domain.RoleUser:
			stats.UserMessages++
			userLen += len(msg.Content)
		case domain.RoleAssistant:
			stats.AssistantMessages++
			aiLen += len(msg.Content)
		}
	}
	if stats.UserMessages > 0 {
		stats.AvgUserMessageLength = userLen / stats.UserMessages
	}
	if stats.AssistantMessages > 0 {
		stats.AvgAIMessageLength = aiLen / stats.AssistantMessages
	}
	return stats
}

// Export renders the conversation as markdown, json, or plain text.
func (m *Manager) Export(format string) (string, error) {
	m.mu.Lock()
	messages := m.context.Messages()
	m.mu.Unlock()

	now := time.Now()
	switch format {
	case "markdown":
		var sb strings.Builder
		sb.WriteString("# Conversation Export\n\n")
		sb.WriteString("**Date:** " + now.Format("2006-01-02 15:04:05") + "\n\n---\n\n")
		for _, msg := range messages {
			icon, name := "🤖", "AI Assistant"
			if msg.Role == domain.RoleUser {
				icon, name = "👤", "You"
			}
			sb.WriteString("## " + icon + " " + name + "\n\n")
			sb.WriteString(msg.Content + "\n\n---\n\n")
		}
		return sb.String(), nil

	case "json":
		payload := struct {
			Messages   []domain.Message `json:"messages"`
			ExportedAt time.Time        `json:"exported_at"`
		}{Messages: messages, ExportedAt: now}
		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal conversation: %w", err)
		}
		return string(data), nil

	case "text":
		var sb strings.Builder
		sb.WriteString("Conversation Export - " + now.Format("2006-01-02 15:04:05") + "\n")
		sb.WriteString(strings.Repeat("=", 60) + "\n\n")
		for _, msg := range messages {
			name := "AI Assistant"
			if msg.Role == domain.RoleUser {
				name = "You"
			}
			sb.WriteString(name + ":\n" + msg.Content + "\n\n")
			sb.WriteString(strings.Repeat("-", 60) + "\n\n")
		}
		return sb.String(), nil

	default:
		return "", fmt.Errorf("unknown export format %q", format)
	}
}

// Clear empties the conversation, the response cache, and feedback. The
// context does not own the cache, so both are cleared here.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.context.Clear()
	m.cache.clear()
	m.feedback = nil
}

// CacheLen reports the number of cached responses.
func (m *Manager) CacheLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache.len()
}
