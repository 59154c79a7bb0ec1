// Package queryopt scores, normalizes, and deduplicates user questions and
// trims document context to a token budget. All heuristics are lexical: word
// lists and similarity ratios, no embeddings.
package queryopt

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"docchat/internal/domain"
	"docchat/internal/similarity"
)

const (
	// DefaultDuplicateThreshold is the similarity ratio at or above which a
	// prior question counts as a duplicate.
	DefaultDuplicateThreshold = 0.85
	maxQueryHistory           = 50
	defaultContextBudget      = 3000
)

// Quality labels, mapped from score by fixed thresholds.
const (
	QualityOptimal  = "optimal"
	QualityGood     = "good"
	QualityVague    = "vague"
	QualityTooBroad = "too_broad"
)

var wordRe = regexp.MustCompile(`\w+`)

// QualityReport is the outcome of scoring a question.
type QualityReport struct {
	Score       float64  `json:"score"`
	Quality     string   `json:"quality"`
	Suggestions []string `json:"suggestions"`
	Issues      []string `json:"issues"`
}

// HistoryEntry is a previously asked question kept for duplicate detection.
type HistoryEntry struct {
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Timestamp time.Time `json:"timestamp"`
}

// DuplicateMatch reports a prior question similar enough to count as a repeat.
type DuplicateMatch struct {
	PreviousQuestion string    `json:"previous_question"`
	PreviousAnswer   string    `json:"previous_answer"`
	Similarity       float64   `json:"similarity"`
	Timestamp        time.Time `json:"timestamp"`
}

// TokenEstimate breaks down the heuristic token cost of a query.
type TokenEstimate struct {
	QuestionTokens        int `json:"question_tokens"`
	ContextTokens         int `json:"context_tokens"`
	TotalInputTokens      int `json:"total_input_tokens"`
	EstimatedOutputTokens int `json:"estimated_output_tokens"`
	TotalEstimatedTokens  int `json:"total_estimated_tokens"`
}

type replacement struct {
	re   *regexp.Regexp
	with string
}

// Optimizer holds the lexicon, the similarity strategy, and a bounded history
// of prior questions. Not safe for concurrent use; one per session.
type Optimizer struct {
	lex          Lexicon
	sim          domain.Similarity
	stopWords    map[string]struct{}
	contractions []replacement
	fillers      []*regexp.Regexp
	history      []HistoryEntry
	logger       *slog.Logger
}

// Config configures an Optimizer. Zero values fall back to the default
// lexicon, edit-distance similarity, and the default logger.
type Config struct {
	Lexicon    *Lexicon
	Similarity domain.Similarity
	Logger     *slog.Logger
}

func New(cfg Config) *Optimizer {
	lex := DefaultLexicon()
	if cfg.Lexicon != nil {
		lex = *cfg.Lexicon
	}
	sim := cfg.Similarity
	if sim == nil {
		sim = similarity.EditDistance{}
	}
	lgr := cfg.Logger
	if lgr == nil {
		lgr = slog.Default()
	}

	o := &Optimizer{
		lex:       lex,
		sim:       sim,
		stopWords: make(map[string]struct{}, len(lex.StopWords)),
		logger:    lgr,
	}
	for _, w := range lex.StopWords {
		o.stopWords[w] = struct{}{}
	}

	// Compile contraction and filler patterns once. Map iteration order is
	// random, so contractions are applied in sorted key order for
	// deterministic output.
	keys := make([]string, 0, len(lex.Contractions))
	for k := range lex.Contractions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		o.contractions = append(o.contractions, replacement{
			re:   regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(k) + `\b`),
			with: lex.Contractions[k],
		})
	}
	for _, f := range lex.Fillers {
		o.fillers = append(o.fillers, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(f)+`\b`))
	}

	return o
}

// ScoreQuestionQuality scores a question on [0,1] and maps it to a quality
// label. Deductions and bonuses use the lexicon's fixed lists; the exact
// arithmetic is part of the contract.
func (o *Optimizer) ScoreQuestionQuality(question string) QualityReport {
	lower := strings.ToLower(question)
	score := 1.0
	var issues, suggestions []string

	if containsAny(lower, o.lex.VaguePatterns) {
		score -= 0.3
		issues = append(issues, "Question is too vague")
		suggestions = append(suggestions, "Be more specific about what you want to know")
	}
	if containsAny(lower, o.lex.BroadPatterns) {
		score -= 0.4
		issues = append(issues, "Question is too broad")
		suggestions = append(suggestions, "Focus on a specific aspect or section")
	}
	if containsAny(lower, o.lex.SpecificityIndicators) {
		score += 0.2
	}

	wordCount := len(strings.Fields(question))
	if wordCount < 3 {
		score -= 0.2
		issues = append(issues, "Question is too short")
		suggestions = append(suggestions, "Add more context to your question")
	} else if wordCount > 50 {
		score -= 0.1
		issues = append(issues, "Question is very long")
		suggestions = append(suggestions, "Try breaking into multiple shorter questions")
	}

	if score < 0 {
		score = 0
	} else if score > 1 {
		score = 1
	}

	var quality string
	switch {
	case score >= 0.8:
		quality = QualityOptimal
	case score >= 0.6:
		quality = QualityGood
	case score >= 0.4:
		quality = QualityVague
	default:
		quality = QualityTooBroad
	}

	return QualityReport{
		Score:       score,
		Quality:     quality,
		Suggestions: suggestions,
		Issues:      issues,
	}
}

// FindDuplicate scans the question history in insertion order and returns the
// FIRST entry whose similarity ratio reaches the threshold — deliberately not
// the best match. A non-positive threshold uses the default.
func (o *Optimizer) FindDuplicate(question string, threshold float64) *DuplicateMatch {
	if threshold <= 0 {
		threshold = DefaultDuplicateThreshold
	}
	normalized := strings.ToLower(strings.TrimSpace(question))

	for _, prev := range o.history {
		ratio := o.sim.Ratio(normalized, strings.ToLower(strings.TrimSpace(prev.Question)))
		if ratio >= threshold {
			return &DuplicateMatch{
				PreviousQuestion: prev.Question,
				PreviousAnswer:   prev.Answer,
				Similarity:       ratio,
				Timestamp:        prev.Timestamp,
			}
		}
	}
	return nil
}

// AddToHistory records a question for duplicate detection, keeping only the
// most recent entries (FIFO).
func (o *Optimizer) AddToHistory(question, answer string) {
	o.history = append(o.history, HistoryEntry{
		Question:  question,
		Answer:    answer,
		Timestamp: time.Now(),
	})
	if len(o.history) > maxQueryHistory {
		o.history = o.history[len(o.history)-maxQueryHistory:]
	}
}

// HistoryLen returns the number of questions currently held for dedup.
func (o *Optimizer) HistoryLen() int { return len(o.history) }

// PreprocessQuestion expands contractions, strips filler words, and collapses
// whitespace.
func (o *Optimizer) PreprocessQuestion(question string) string {
	for _, c := range o.contractions {
		question = c.re.ReplaceAllString(question, c.with)
	}
	for _, f := range o.fillers {
		question = f.ReplaceAllString(question, "")
	}
	return strings.Join(strings.Fields(question), " ")
}

// EstimateTokenCost estimates input tokens as len/4 and picks an output
// estimate by question category: summarization 200, yes/no style 50,
// list style 150, everything else 300.
func (o *Optimizer) EstimateTokenCost(question, context string) TokenEstimate {
	questionTokens := len(question) / 4
	contextTokens := len(context) / 4

	lower := strings.ToLower(question)
	words := make(map[string]struct{})
	for _, w := range strings.Fields(lower) {
		words[strings.Trim(w, ".,!?")] = struct{}{}
	}

	output := 300
	switch {
	case strings.Contains(lower, "summarize") || strings.Contains(lower, "summary") || strings.Contains(lower, "overview"):
		output = 200
	case hasAnyWord(words, "yes", "no", "is", "does", "can"):
		output = 50
	case strings.Contains(lower, "list") || strings.Contains(lower, "enumerate") || strings.Contains(lower, "what are"):
		output = 150
	}

	return TokenEstimate{
		QuestionTokens:        questionTokens,
		ContextTokens:         contextTokens,
		TotalInputTokens:      questionTokens + contextTokens,
		EstimatedOutputTokens: output,
		TotalEstimatedTokens:  questionTokens + contextTokens + output,
	}
}

// OptimizeContext trims fullContext to the token budget by keeping the
// paragraphs most relevant to the question. Paragraphs are scored by how many
// question keywords they contain and accepted greedily in relevance order;
// the output is in relevance order, not original document order. Ties keep
// their original relative order (stable sort).
func (o *Optimizer) OptimizeContext(fullContext, question string, maxTokens int) string {
	if maxTokens <= 0 {
		maxTokens = defaultContextBudget
	}
	keywords := o.extractKeywords(question)

	type scored struct {
		score int
		para  string
	}
	var paragraphs []scored
	for _, para := range strings.Split(fullContext, "\n\n") {
		if strings.TrimSpace(para) == "" {
			continue
		}
		lower := strings.ToLower(para)
		score := 0
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				score++
			}
		}
		paragraphs = append(paragraphs, scored{score: score, para: para})
	}

	sort.SliceStable(paragraphs, func(i, j int) bool {
		return paragraphs[i].score > paragraphs[j].score
	})

	var kept []string
	tokens := 0
	for _, p := range paragraphs {
		cost := len(p.para) / 4
		if tokens+cost > maxTokens {
			break
		}
		kept = append(kept, p.para)
		tokens += cost
	}
	return strings.Join(kept, "\n\n")
}

// SuggestBetterQuestions proposes up to three sharper formulations of a weak
// question, optionally tuned to the document type.
func (o *Optimizer) SuggestBetterQuestions(question, documentType string) []string {
	var suggestions []string
	lower := strings.ToLower(question)

	if strings.Contains(lower, "tell me about") {
		topic := strings.TrimSpace(strings.ReplaceAll(lower, "tell me about", ""))
		suggestions = append(suggestions,
			"What are the key points about "+topic+"?",
			"Summarize the information about "+topic)
	}
	if strings.Contains(lower, "explain this") || strings.Contains(lower, "what is this") {
		suggestions = append(suggestions,
			"What is the main topic of this document?",
			"Summarize this document in 3 sentences")
	}

	switch documentType {
	case "legal_contract":
		if !strings.Contains(lower, "page") && !strings.Contains(lower, "section") && !strings.Contains(lower, "clause") {
			suggestions = append(suggestions,
				"Try: 'What are the payment terms in Section X?'",
				"Try: 'List the termination clauses'")
		}
	case "research_paper":
		if !strings.Contains(lower, "methodology") && !strings.Contains(lower, "findings") {
			suggestions = append(suggestions,
				"Try: 'What methodology was used?'",
				"Try: 'What are the key findings?'")
		}
	}

	if len(suggestions) > 3 {
		suggestions = suggestions[:3]
	}
	return suggestions
}

// extractKeywords returns the lower-cased words of text longer than three
// characters that are not stop words.
func (o *Optimizer) extractKeywords(text string) []string {
	var keywords []string
	for _, w := range wordRe.FindAllString(strings.ToLower(text), -1) {
		if len(w) <= 3 {
			continue
		}
		if _, stop := o.stopWords[w]; stop {
			continue
		}
		keywords = append(keywords, w)
	}
	return keywords
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func hasAnyWord(words map[string]struct{}, candidates ...string) bool {
	for _, c := range candidates {
		if _, ok := words[c]; ok {
			return true
		}
	}
	return false
}
