package failure

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"docchat/internal/metrics"
)

// Advice is the user-facing form of a collaborator failure. The session
// never terminates on one: every error becomes an advisory the caller can
// render and act on.
type Advice struct {
	Title            string   `json:"title"`
	Message          string   `json:"message"`
	Icon             string   `json:"icon"`
	Severity         string   `json:"severity"`
	Actions          []string `json:"actions"`
	RetryDelay       *int     `json:"retry_delay,omitempty"`
	TechnicalDetails string   `json:"technical_details"`
}

// LogEntry records a classified failure for the session stats.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Kind      Kind           `json:"type"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
}

// Stats aggregates the session's failure log.
type Stats struct {
	Total  int          `json:"total"`
	ByKind map[Kind]int `json:"by_type"`
	Recent []LogEntry   `json:"recent"`
}

const recentLogEntries = 10

// Advisor turns collaborator errors into structured advisories and keeps a
// session-scoped failure log.
type Advisor struct {
	classifier Classifier
	log        []LogEntry
	logger     *slog.Logger
}

type AdvisorConfig struct {
	Classifier Classifier
	Logger     *slog.Logger
}

func NewAdvisor(cfg AdvisorConfig) *Advisor {
	cls := cfg.Classifier
	if cls == nil {
		cls = KeywordClassifier{}
	}
	lgr := cfg.Logger
	if lgr == nil {
		lgr = slog.Default()
	}
	return &Advisor{classifier: cls, logger: lgr}
}

var (
	secondsRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)retry after (\d+) seconds?`),
		regexp.MustCompile(`(?i)wait (\d+) seconds?`),
		regexp.MustCompile(`(?i)try again in (\d+) seconds?`),
		regexp.MustCompile(`(?i)retry in (\d+)s`),
	}
	minutesRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)retry after (\d+) minutes?`),
		regexp.MustCompile(`(?i)wait (\d+) minutes?`),
	}
)

// ExtractRetryDelay pulls a retry delay in seconds out of an error message,
// or nil when the message carries none.
func ExtractRetryDelay(err error) *int {
	if err == nil {
		return nil
	}
	msg := err.Error()

	for _, re := range secondsRes {
		if m := re.FindStringSubmatch(msg); m != nil {
			n, _ := strconv.Atoi(m[1])
			return &n
		}
	}
	for _, re := range minutesRes {
		if m := re.FindStringSubmatch(msg); m != nil {
			n, _ := strconv.Atoi(m[1])
			n *= 60
			return &n
		}
	}
	return nil
}

// Advise classifies the error, logs it, and builds the advisory for the
// presentation boundary.
func (a *Advisor) Advise(err error, context map[string]any) Advice {
	kind := a.classifier.Classify(err)
	delay := ExtractRetryDelay(err)

	a.log = append(a.log, LogEntry{
		Timestamp: time.Now(),
		Kind:      kind,
		Message:   errString(err),
		Context:   context,
	})
	metrics.CollaboratorFailures.Inc()
	a.logger.Warn("collaborator failure", "kind", kind, "error", errString(err))

	switch kind {
	case KindRateLimit:
		return adviseRateLimit(err, delay, context)
	case KindTimeout:
		return adviseTimeout(err)
	case KindInvalidResponse:
		return adviseInvalidResponse(err)
	case KindAuthFailure:
		return adviseAuthFailure(err, context)
	case KindNetwork:
		return adviseNetwork(err)
	case KindContextLength:
		return adviseContextLength(err)
	default:
		return adviseUnknown(err)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func intPtr(n int) *int { return &n }

func adviseRateLimit(err error, delay *int, context map[string]any) Advice {
	provider := "AI service"
	if p, ok := context["provider"].(string); ok && p != "" {
		provider = p
	}
	wait := "a moment"
	if delay != nil {
		wait = fmt.Sprintf("%d seconds", *delay)
	}
	if delay == nil {
		delay = intPtr(30)
	}
	return Advice{
		Title: "🟡 High Traffic Detected",
		Message: fmt.Sprintf(`The %s service is busy right now.

⏱️ Estimated wait: %s

**Meanwhile, you can:**
• View your document
• Ask a simpler question
• Wait and retry automatically`, provider, wait),
		Icon:             "🟡",
		Severity:         "warning",
		Actions:          []string{"switch_provider", "simplify_query", "wait_retry"},
		RetryDelay:       delay,
		TechnicalDetails: errString(err),
	}
}

func adviseTimeout(err error) Advice {
	return Advice{
		Title: "🟠 Request Taking Longer Than Expected",
		Message: `The model is taking longer to respond than usual.

**This might be because:**
• Network connection is slow
• Large document being processed
• High server load

**What you can do:**
• Wait a bit longer
• Try a shorter question
• Check your internet connection`,
		Icon:             "🟠",
		Severity:         "warning",
		Actions:          []string{"extend_timeout", "simplify_query", "check_network"},
		RetryDelay:       intPtr(10),
		TechnicalDetails: errString(err),
	}
}

func adviseInvalidResponse(err error) Advice {
	return Advice{
		Title: "🔴 Unexpected Response Format",
		Message: `The model returned data in an unexpected format.

**You can:**
• Try asking your question again
• Rephrase your question
• Report this issue if it persists`,
		Icon:             "🔴",
		Severity:         "error",
		Actions:          []string{"retry", "rephrase", "report"},
		RetryDelay:       intPtr(5),
		TechnicalDetails: errString(err),
	}
}

func adviseAuthFailure(err error, context map[string]any) Advice {
	provider := "API"
	if p, ok := context["provider"].(string); ok && p != "" {
		provider = p
	}
	return Advice{
		Title: "🔴 Authentication Issue",
		Message: fmt.Sprintf(`There is a problem with the %s credentials.

**Possible causes:**
• API key is invalid or expired
• API key lacks required permissions
• Service is temporarily unavailable

**What to do:**
• Check your configured API keys
• Verify the key is active in the provider dashboard
• Try switching to another provider`, provider),
		Icon:             "🔴",
		Severity:         "error",
		Actions:          []string{"check_api_key", "switch_provider", "view_docs"},
		TechnicalDetails: errString(err),
	}
}

func adviseNetwork(err error) Advice {
	return Advice{
		Title: "🟠 Network Connection Issue",
		Message: `Unable to reach the model service.

**Please check:**
• Your internet connection is active
• A firewall is not blocking the request
• A VPN is not interfering`,
		Icon:             "🟠",
		Severity:         "warning",
		Actions:          []string{"check_network", "retry", "switch_provider"},
		RetryDelay:       intPtr(15),
		TechnicalDetails: errString(err),
	}
}

func adviseContextLength(err error) Advice {
	return Advice{
		Title: "🟡 Document Too Large for Single Query",
		Message: `Your question requires more context than the model accepts.

**Try:**
• Ask about a specific page or section
• Simplify your question
• Use a model with a larger context window`,
		Icon:             "🟡",
		Severity:         "warning",
		Actions:          []string{"chunk_query", "specify_section", "use_larger_model"},
		TechnicalDetails: errString(err),
	}
}

func adviseUnknown(err error) Advice {
	return Advice{
		Title: "🔴 Unexpected Error",
		Message: `Something unexpected happened.

**You can:**
• Try your action again
• Restart the session if the problem persists
• Report the error details`,
		Icon:             "🔴",
		Severity:         "error",
		Actions:          []string{"retry", "restart", "report"},
		RetryDelay:       intPtr(5),
		TechnicalDetails: errString(err),
	}
}

// Stats summarizes the failure log with per-kind counts and the last few
// entries.
func (a *Advisor) Stats() Stats {
	stats := Stats{Total: len(a.log), ByKind: make(map[Kind]int)}
	for _, entry := range a.log {
		stats.ByKind[entry.Kind]++
	}
	start := len(a.log) - recentLogEntries
	if start < 0 {
		start = 0
	}
	stats.Recent = append(stats.Recent, a.log[start:]...)
	return stats
}

// ClearLog drops the failure log.
func (a *Advisor) ClearLog() {
	a.log = nil
}
