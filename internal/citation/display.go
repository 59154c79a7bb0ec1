package citation

import (
	"strings"

	"docchat/internal/domain"
)

var confidenceBadges = map[domain.Confidence]string{
	domain.ConfidenceHigh:    "🟢",
	domain.ConfidenceMedium:  "🟡",
	domain.ConfidenceLow:     "🔴",
	domain.ConfidenceUnknown: "⚪",
}

var statusIcons = map[domain.VerificationStatus]string{
	domain.StatusVerified:       "✅",
	domain.StatusLikelyAccurate: "✓",
	domain.StatusNeedsReview:    "⚠️",
	domain.StatusQuestionable:   "❌",
}

// FormatDisplay renders a citation (and optionally its verification) as
// markdown for the presentation boundary. Pure formatting, no verification
// logic.
func FormatDisplay(c domain.Citation, v *domain.VerificationResult) string {
	badge, ok := confidenceBadges[c.Confidence]
	if !ok {
		badge = "⚪"
	}
	statusIcon := ""
	if v != nil {
		statusIcon = statusIcons[v.Status]
	}

	var sb strings.Builder
	sb.WriteString(c.Answer)
	sb.WriteString("\n\n---\n\n")
	sb.WriteString("**📍 Source:** " + c.Source + "\n\n")
	sb.WriteString("**" + badge + " Confidence:** " + string(c.Confidence))
	if statusIcon != "" {
		sb.WriteString(" " + statusIcon)
	}
	sb.WriteString("\n\n**📋 Classification:** " + titleClassification(c.Classification))

	if c.Quote != "" {
		sb.WriteString("\n\n**📝 Quote:** \"" + c.Quote + "\"")
	}

	if v != nil && len(v.Issues) > 0 {
		sb.WriteString("\n\n**⚠️ Verification Issues:**\n")
		for _, issue := range v.Issues {
			sb.WriteString("- " + issue + "\n")
		}
	}

	return strings.TrimSpace(sb.String())
}

// titleClassification renders DIRECT_QUOTE as "Direct Quote".
func titleClassification(c domain.Classification) string {
	words := strings.Split(strings.ToLower(string(c)), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
