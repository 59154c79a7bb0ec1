// Package citation parses the five-field citation grammar out of model
// responses and verifies the claims against source text. Parsing never
// fails: malformed output degrades to low-information citations.
package citation

import (
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"docchat/internal/domain"
	"docchat/internal/similarity"
)

// PromptAddition is appended to the system prompt to mandate the five-field
// response grammar the extractor understands.
const PromptAddition = `You MUST cite your sources for every claim. Format your response as follows:

**Answer:** [Your detailed response]

**Source:** Page [X], Section [Y] (or "Not in document" if using general knowledge)

**Confidence:** [High/Medium/Low]
- High: Direct quote from document
- Medium: Paraphrased from document
- Low: Inferred from context or general knowledge

**Quote:** "[Exact text from document if available]"

**Classification:** [DIRECT_QUOTE / PARAPHRASE / INFERENCE / GENERAL_KNOWLEDGE]

Always include page numbers when referencing the document. If information is not in the document, clearly state that.`

// DefaultFuzzyThreshold is the similarity ratio at or above which a quote
// window counts as a fuzzy match.
const DefaultFuzzyThreshold = 0.85

var (
	answerRe     = regexp.MustCompile(`(?is)\*\*Answer:\*\*\s*(.+?)(?:\*\*Source:|$)`)
	sourceRe     = regexp.MustCompile(`(?is)\*\*Source:\*\*\s*(.+?)(?:\*\*Confidence:|$)`)
	confidenceRe = regexp.MustCompile(`(?i)\*\*Confidence:\*\*\s*(\w+)`)
	quoteRe      = regexp.MustCompile(`(?is)\*\*Quote:\*\*\s*["'](.+?)["']`)
	classRe      = regexp.MustCompile(`(?i)\*\*Classification:\*\*\s*(\w+(?:_\w+)?)`)

	pageSingleRe = regexp.MustCompile(`[Pp]age\s+(\d+)`)
	pageListRe   = regexp.MustCompile(`[Pp]ages\s+([\d,\s-]+)`)
	pAbbrevRe    = regexp.MustCompile(`p\.?\s*(\d+)`)
	ppAbbrevRe   = regexp.MustCompile(`pp\.?\s*([\d,\s-]+)`)
)

// Engine extracts and verifies citations.
type Engine struct {
	sim            domain.Similarity
	fuzzyThreshold float64
	logger         *slog.Logger
}

// EngineConfig configures a citation Engine. Zero values use edit-distance
// similarity and the default fuzzy threshold.
type EngineConfig struct {
	Similarity     domain.Similarity
	FuzzyThreshold float64
	Logger         *slog.Logger
}

func NewEngine(cfg EngineConfig) *Engine {
	sim := cfg.Similarity
	if sim == nil {
		sim = similarity.EditDistance{}
	}
	threshold := cfg.FuzzyThreshold
	if threshold <= 0 {
		threshold = DefaultFuzzyThreshold
	}
	lgr := cfg.Logger
	if lgr == nil {
		lgr = slog.Default()
	}
	return &Engine{
		sim:            sim,
		fuzzyThreshold: threshold,
		logger:         lgr,
	}
}

// EnhanceSystemPrompt appends the citation grammar instruction block.
func (e *Engine) EnhanceSystemPrompt(base string) string {
	return base + "\n\n" + PromptAddition
}

// ExtractCitations parses the five fields out of a model response. Any field
// the response lacks keeps a safe default; this function never fails, any
// free text degrades to an uncited answer.
func (e *Engine) ExtractCitations(response string) domain.Citation {
	c := domain.Citation{
		Answer:         response,
		Source:         "Not specified",
		Confidence:     domain.ConfidenceUnknown,
		Classification: domain.ClassUnknown,
	}

	if m := answerRe.FindStringSubmatch(response); m != nil {
		c.Answer = strings.TrimSpace(m[1])
	}
	if m := sourceRe.FindStringSubmatch(response); m != nil {
		c.Source = strings.TrimSpace(m[1])
		c.HasCitation = true
	}
	if m := confidenceRe.FindStringSubmatch(response); m != nil {
		c.Confidence = normalizeConfidence(m[1])
	}
	if m := quoteRe.FindStringSubmatch(response); m != nil {
		c.Quote = strings.TrimSpace(m[1])
	}
	if m := classRe.FindStringSubmatch(response); m != nil {
		c.Classification = domain.Classification(strings.ToUpper(strings.TrimSpace(m[1])))
	}

	c.PageNumbers = extractPageNumbers(c.Source)
	return c
}

func normalizeConfidence(raw string) domain.Confidence {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "high":
		return domain.ConfidenceHigh
	case "medium":
		return domain.ConfidenceMedium
	case "low":
		return domain.ConfidenceLow
	default:
		return domain.ConfidenceUnknown
	}
}

// extractPageNumbers pulls page references out of a source citation,
// supporting single pages, hyphenated ranges, and comma lists. The result is
// deduplicated and sorted ascending.
func extractPageNumbers(source string) []int {
	seen := make(map[int]struct{})

	for _, re := range []*regexp.Regexp{pageSingleRe, pageListRe, pAbbrevRe, ppAbbrevRe} {
		for _, m := range re.FindAllStringSubmatch(source, -1) {
			for _, n := range parsePageGroup(m[1]) {
				seen[n] = struct{}{}
			}
		}
	}

	if len(seen) == 0 {
		return nil
	}
	pages := make([]int, 0, len(seen))
	for n := range seen {
		pages = append(pages, n)
	}
	sort.Ints(pages)
	return pages
}

// parsePageGroup interprets a matched group as a range ("5-7"), a comma list
// ("5, 7, 9"), or a single page. Unparseable pieces are skipped.
func parsePageGroup(group string) []int {
	group = strings.TrimSpace(group)
	var pages []int

	switch {
	case strings.Contains(group, "-"):
		parts := strings.SplitN(group, "-", 2)
		start, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
		end, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err1 == nil && err2 == nil && start <= end {
			for n := start; n <= end; n++ {
				pages = append(pages, n)
			}
		}
	case strings.Contains(group, ","):
		for _, part := range strings.Split(group, ",") {
			if n, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
				pages = append(pages, n)
			}
		}
	default:
		if n, err := strconv.Atoi(group); err == nil {
			pages = append(pages, n)
		}
	}
	return pages
}

// VerifyCitation checks a citation against the full source text and an
// optional page-to-text map. Verification problems are soft: the score drops
// and an issue is recorded, the answer stays usable.
func (e *Engine) VerifyCitation(c domain.Citation, fullText string, pageTexts map[int]string) domain.VerificationResult {
	var issues []string
	score := 1.0

	if c.Quote != "" {
		found := strings.Contains(strings.ToLower(fullText), strings.ToLower(c.Quote))
		if !found {
			found = e.fuzzyMatchQuote(c.Quote, fullText)
		}
		if !found {
			issues = append(issues, "Quoted text not found in document")
			score -= 0.5
		}
	}

	if len(c.PageNumbers) > 0 && pageTexts != nil {
		for _, page := range c.PageNumbers {
			if _, ok := pageTexts[page]; !ok {
				issues = append(issues, "Page "+strconv.Itoa(page)+" does not exist in document")
				score -= 0.2
			}
		}
	}

	if c.Classification == domain.ClassDirectQuote && c.Quote == "" {
		issues = append(issues, "Classified as direct quote but no quote provided")
		score -= 0.3
	}

	var status domain.VerificationStatus
	switch {
	case score >= 0.9:
		status = domain.StatusVerified
	case score >= 0.7:
		status = domain.StatusLikelyAccurate
	case score >= 0.5:
		status = domain.StatusNeedsReview
	default:
		status = domain.StatusQuestionable
	}

	if score < 0 {
		score = 0
	}
	return domain.VerificationResult{
		Verified:        score >= 0.7,
		ConfidenceScore: score,
		Issues:          issues,
		Status:          status,
	}
}

// fuzzyMatchQuote slides a window of the quote's word length across the
// tokenized source text and accepts when the similarity ratio reaches the
// threshold.
func (e *Engine) fuzzyMatchQuote(quote, text string) bool {
	quoteLower := strings.ToLower(quote)
	textWords := strings.Fields(strings.ToLower(text))
	quoteWords := strings.Fields(quoteLower)
	if len(quoteWords) == 0 || len(textWords) < len(quoteWords) {
		return false
	}

	for i := 0; i <= len(textWords)-len(quoteWords); i++ {
		window := strings.Join(textWords[i:i+len(quoteWords)], " ")
		if e.sim.Ratio(quoteLower, window) >= e.fuzzyThreshold {
			return true
		}
	}
	return false
}

// ConfidenceScore derives a numeric [0,1] score from the model's self-reported
// tier, adjusted by classification and citation completeness. Independent of
// verification, which checks the claims against the text.
func (e *Engine) ConfidenceScore(c domain.Citation) float64 {
	var score float64
	switch c.Confidence {
	case domain.ConfidenceHigh:
		score = 0.9
	case domain.ConfidenceMedium:
		score = 0.7
	case domain.ConfidenceLow:
		score = 0.4
	default:
		score = 0.3
	}

	switch c.Classification {
	case domain.ClassDirectQuote:
		score += 0.1
	case domain.ClassGeneralKnowledge:
		score -= 0.2
	}

	if len(c.PageNumbers) > 0 {
		score += 0.05
	}
	if c.Quote != "" {
		score += 0.05
	}

	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}
