package conversation

import (
	"fmt"
	"strings"
	"testing"

	"docchat/internal/domain"
)

func TestAddMessage_FIFOEviction(t *testing.T) {
	c := New(3, 4000)
	for i := 0; i < 10; i++ {
		c.AddMessage(domain.RoleUser, fmt.Sprintf("message number %d please", i), nil)
	}

	if c.Len() != 3 {
		t.Fatalf("expected history capped at 3, got %d", c.Len())
	}
	msgs := c.Messages()
	for i, want := range []string{"7", "8", "9"} {
		if !strings.Contains(msgs[i].Content, want) {
			t.Errorf("slot %d: expected most recent messages, got %q", i, msgs[i].Content)
		}
	}
}

func TestWindow_RespectsTokenBudget(t *testing.T) {
	// Each message is 40 chars -> 10 estimated tokens.
	content := strings.Repeat("x", 40)
	c := New(100, 25)
	for i := 0; i < 5; i++ {
		c.AddMessage(domain.RoleUser, content, nil)
	}

	window := c.Window()
	if len(window) != 2 {
		t.Fatalf("expected 2 messages in window (20 tokens <= 25), got %d", len(window))
	}

	total := 0
	for _, m := range window {
		total += EstimateTokens(m.Content)
	}
	if total > 25 {
		t.Errorf("window exceeds budget: %d tokens", total)
	}
}

func TestWindow_ChronologicalOrder(t *testing.T) {
	c := New(10, 4000)
	c.AddMessage(domain.RoleUser, "first question here", nil)
	c.AddMessage(domain.RoleAssistant, "first answer", nil)
	c.AddMessage(domain.RoleUser, "second question here", nil)

	window := c.Window()
	if len(window) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(window))
	}
	if window[0].Content != "first question here" || window[2].Content != "second question here" {
		t.Error("window not in chronological order")
	}
}

func TestWindow_OversizedNewestMessage(t *testing.T) {
	c := New(10, 5)
	c.AddMessage(domain.RoleUser, strings.Repeat("x", 100), nil)

	if got := len(c.Window()); got != 0 {
		t.Errorf("expected empty window when newest message alone overflows, got %d", got)
	}
}

func TestTopicTracking(t *testing.T) {
	c := New(10, 4000)
	c.AddMessage(domain.RoleUser, "What Are THE payment terms in section four", nil)
	c.AddMessage(domain.RoleAssistant, "The payment terms are net thirty days", nil)

	topics := c.RecentTopics(3)
	if len(topics) != 1 {
		t.Fatalf("expected 1 topic (assistant messages do not contribute), got %d", len(topics))
	}
	if topics[0] != "what are the payment terms" {
		t.Errorf("topic should be first five tokens lower-cased, got %q", topics[0])
	}
}

func TestTopicTracking_ShortMessageSkipped(t *testing.T) {
	c := New(10, 4000)
	c.AddMessage(domain.RoleUser, "why is that", nil)
	if got := c.RecentTopics(5); got != nil {
		t.Errorf("expected no topic for a three-word message, got %v", got)
	}
}

func TestTopicTracking_Capped(t *testing.T) {
	c := New(100, 4000)
	for i := 0; i < 30; i++ {
		c.AddMessage(domain.RoleUser, fmt.Sprintf("question about clause number %d", i), nil)
	}
	if got := len(c.RecentTopics(100)); got != maxTrackedTopics {
		t.Errorf("expected topic list capped at %d, got %d", maxTrackedTopics, got)
	}
}

func TestSummary(t *testing.T) {
	c := New(10, 4000)
	c.AddMessage(domain.RoleUser, "tell me about the payment schedule", nil)
	c.AddMessage(domain.RoleAssistant, "here it is", nil)
	c.AddMessage(domain.RoleUser, "and the late fees too please", nil)

	s := c.Summary()
	if s.TotalMessages != 3 || s.UserMessages != 2 || s.AssistantMessages != 1 {
		t.Errorf("unexpected summary counts: %+v", s)
	}
	if s.TopicsDiscussed != 2 {
		t.Errorf("expected 2 topics, got %d", s.TopicsDiscussed)
	}
}

func TestEdit(t *testing.T) {
	c := New(10, 4000)
	c.AddMessage(domain.RoleUser, "original content goes here", nil)

	if !c.Edit(0, "revised content") {
		t.Fatal("edit of valid index should succeed")
	}
	msg, _ := c.Message(0)
	if msg.Content != "revised content" || !msg.Edited || msg.EditedAt == nil {
		t.Errorf("edit should replace content and stamp metadata, got %+v", msg)
	}

	if c.Edit(5, "nope") {
		t.Error("edit of out-of-range index should fail")
	}
	if c.Edit(-1, "nope") {
		t.Error("edit of negative index should fail")
	}
}

func TestClear(t *testing.T) {
	c := New(10, 4000)
	c.AddMessage(domain.RoleUser, "some question about the document", nil)
	c.Clear()
	if c.Len() != 0 || len(c.RecentTopics(5)) != 0 {
		t.Error("clear should empty messages and topics")
	}
}

func TestEstimateTokens(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"abc", 0},
		{"abcd", 1},
		{strings.Repeat("x", 400), 100},
	}
	for _, tc := range cases {
		if got := EstimateTokens(tc.in); got != tc.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
