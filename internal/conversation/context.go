// Package conversation maintains the token-budgeted sliding window of
// dialogue: a FIFO ring of recent messages, lightweight topic tracking, and
// window extraction under a heuristic token budget.
package conversation

import (
	"fmt"
	"strings"
	"time"

	"docchat/internal/domain"
)

const (
	defaultMaxHistory = 10
	defaultMaxTokens  = 4000
	// Topics are capped FIFO; only the tail is ever consulted.
	maxTrackedTopics = 20
	topicWords       = 5
)

// Context holds a bounded conversation history. It is a ring buffer, not an
// LRU: overflow always evicts the oldest message regardless of access.
// A Context is not safe for concurrent use; callers own one per session.
type Context struct {
	maxHistory int
	maxTokens  int
	messages   []domain.Message
	topics     []string
}

// New creates a Context with the given history capacity and token budget for
// window extraction. Non-positive values fall back to defaults.
func New(maxHistory, maxTokens int) *Context {
	if maxHistory <= 0 {
		maxHistory = defaultMaxHistory
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Context{
		maxHistory: maxHistory,
		maxTokens:  maxTokens,
	}
}

// EstimateTokens approximates the token cost of a string as len/4. This is a
// deliberate heuristic, not a tokenizer count; window boundaries are defined
// in terms of it and tests depend on it staying exactly this.
func EstimateTokens(s string) int {
	return len(s) / 4
}

// AddMessage appends a message, evicting the oldest when the history is full.
// User messages also contribute a topic: the first five whitespace-separated
// tokens of the content, lower-cased.
func (c *Context) AddMessage(role domain.Role, content string, metadata map[string]any) {
	c.messages = append(c.messages, domain.Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
		Metadata:  metadata,
	})
	if len(c.messages) > c.maxHistory {
		c.messages = c.messages[len(c.messages)-c.maxHistory:]
	}

	if role == domain.RoleUser {
		c.trackTopic(content)
	}
}

func (c *Context) trackTopic(content string) {
	words := strings.Fields(strings.ToLower(content))
	if len(words) <= 3 {
		return
	}
	n := topicWords
	if len(words) < n {
		n = len(words)
	}
	c.topics = append(c.topics, strings.Join(words[:n], " "))
	if len(c.topics) > maxTrackedTopics {
		c.topics = c.topics[len(c.topics)-maxTrackedTopics:]
	}
}

// Window returns the most recent messages whose summed heuristic token
// estimate fits the budget, in chronological order. Messages are accepted
// newest-first; the first older message that would overflow the budget stops
// the walk. Only role and content are populated.
func (c *Context) Window() []domain.Message {
	var window []domain.Message
	total := 0
	for i := len(c.messages) - 1; i >= 0; i-- {
		cost := EstimateTokens(c.messages[i].Content)
		if total+cost > c.maxTokens {
			break
		}
		window = append(window, domain.Message{
			Role:    c.messages[i].Role,
			Content: c.messages[i].Content,
		})
		total += cost
	}
	// Restore chronological order.
	for i, j := 0, len(window)-1; i < j; i, j = i+1, j-1 {
		window[i], window[j] = window[j], window[i]
	}
	return window
}

// Summary holds conversation counts. No side effects.
type Summary struct {
	TotalMessages     int
	UserMessages      int
	AssistantMessages int
	TopicsDiscussed   int
}

func (c *Context) Summary() Summary {
	s := Summary{
		TotalMessages:   len(c.messages),
		TopicsDiscussed: len(c.topics),
	}
	for _, m := range c.messages {
		switch m.Role {
		case domain.RoleUser:
			s.UserMessages++
		case domain.RoleAssistant:
			s.AssistantMessages++
		}
	}
	return s
}

func (s Summary) String() string {
	return fmt.Sprintf("Conversation Summary:\n- Total messages: %d\n- User questions: %d\n- AI responses: %d\n- Topics discussed: %d",
		s.TotalMessages, s.UserMessages, s.AssistantMessages, s.TopicsDiscussed)
}

// Messages returns a copy of the current history.
func (c *Context) Messages() []domain.Message {
	out := make([]domain.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages currently held.
func (c *Context) Len() int { return len(c.messages) }

// Message returns the message at index, counting from the oldest held.
func (c *Context) Message(index int) (domain.Message, bool) {
	if index < 0 || index >= len(c.messages) {
		return domain.Message{}, false
	}
	return c.messages[index], true
}

// Edit replaces the content of the message at index and stamps the edit.
func (c *Context) Edit(index int, newContent string) bool {
	if index < 0 || index >= len(c.messages) {
		return false
	}
	now := time.Now()
	c.messages[index].Content = newContent
	c.messages[index].Edited = true
	c.messages[index].EditedAt = &now
	return true
}

// RecentTopics returns up to n of the most recently tracked topics,
// oldest first.
func (c *Context) RecentTopics(n int) []string {
	if n <= 0 || len(c.topics) == 0 {
		return nil
	}
	if n > len(c.topics) {
		n = len(c.topics)
	}
	out := make([]string, n)
	copy(out, c.topics[len(c.topics)-n:])
	return out
}

// Clear empties messages and topics. The response cache is owned by the
// orchestrator and must be cleared separately.
func (c *Context) Clear() {
	c.messages = nil
	c.topics = nil
}
