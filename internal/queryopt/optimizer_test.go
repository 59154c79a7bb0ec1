package queryopt

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func newOptimizer() *Optimizer {
	return New(Config{Logger: testLogger()})
}

func TestScoreQuestionQuality_VaguePattern(t *testing.T) {
	o := newOptimizer()
	report := o.ScoreQuestionQuality("Tell me about the contract")

	// 1.0 - 0.3 for the vague pattern, no other adjustments.
	if report.Score != 0.7 {
		t.Errorf("expected score 0.7, got %f", report.Score)
	}
	if len(report.Issues) != 1 || report.Issues[0] != "Question is too vague" {
		t.Errorf("expected a single vagueness issue, got %v", report.Issues)
	}
}

func TestScoreQuestionQuality_VagueAndShort(t *testing.T) {
	o := newOptimizer()
	report := o.ScoreQuestionQuality("Describe it")

	// 1.0 - 0.3 (vague) - 0.2 (under three words) = 0.5.
	if report.Score != 0.5 {
		t.Errorf("expected score 0.5, got %f", report.Score)
	}
	if report.Quality != QualityVague {
		t.Errorf("expected quality %q, got %q", QualityVague, report.Quality)
	}
}

func TestScoreQuestionQuality_Broad(t *testing.T) {
	o := newOptimizer()
	report := o.ScoreQuestionQuality("Tell me about everything in here")

	// 1.0 - 0.3 (vague) - 0.4 (broad) = 0.3.
	if report.Quality != QualityTooBroad {
		t.Errorf("expected quality %q, got %q", QualityTooBroad, report.Quality)
	}
	if report.Score >= 0.4 {
		t.Errorf("expected score below 0.4, got %f", report.Score)
	}
}

func TestScoreQuestionQuality_SpecificityBonus(t *testing.T) {
	o := newOptimizer()
	report := o.ScoreQuestionQuality("What does clause 4 on page 12 say?")

	// 1.0 + 0.2 clamped to 1.0.
	if report.Score != 1.0 {
		t.Errorf("expected clamped score 1.0, got %f", report.Score)
	}
	if report.Quality != QualityOptimal {
		t.Errorf("expected quality %q, got %q", QualityOptimal, report.Quality)
	}
}

func TestScoreQuestionQuality_LongQuestion(t *testing.T) {
	o := newOptimizer()
	question := strings.Repeat("word ", 60) + "terms"
	report := o.ScoreQuestionQuality(question)

	found := false
	for _, issue := range report.Issues {
		if issue == "Question is very long" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected long-question issue, got %v", report.Issues)
	}
}

func TestFindDuplicate_FirstMatchNotBest(t *testing.T) {
	o := newOptimizer()
	query := "what are the payment terms in the contract"

	// Three prior questions of increasing similarity to the query, all above
	// the test threshold. The policy is first-match, not best-match.
	o.AddToHistory("what are the payment terms in this contract", "answer one")
	o.AddToHistory("what are the payment terms in the contracts", "answer two")
	o.AddToHistory("what are the payment terms in the contract", "answer three")

	match := o.FindDuplicate(query, 0.85)
	if match == nil {
		t.Fatal("expected a duplicate match")
	}
	if match.PreviousAnswer != "answer one" {
		t.Errorf("expected the FIRST qualifying entry, got answer %q (similarity %f)",
			match.PreviousAnswer, match.Similarity)
	}
}

func TestFindDuplicate_NoMatch(t *testing.T) {
	o := newOptimizer()
	o.AddToHistory("what are the payment terms", "net 30")

	if match := o.FindDuplicate("who signed the agreement", 0.85); match != nil {
		t.Errorf("expected no match for an unrelated question, got %+v", match)
	}
}

func TestFindDuplicate_CaseAndSpaceInsensitive(t *testing.T) {
	o := newOptimizer()
	o.AddToHistory("What Are The Payment Terms", "net 30")

	match := o.FindDuplicate("  what are the payment terms  ", 0.85)
	if match == nil {
		t.Fatal("expected case- and whitespace-insensitive duplicate match")
	}
	if match.Similarity != 1.0 {
		t.Errorf("expected normalized strings to match exactly, got %f", match.Similarity)
	}
}

func TestAddToHistory_CappedAt50(t *testing.T) {
	o := newOptimizer()
	for i := 0; i < 80; i++ {
		o.AddToHistory(fmt.Sprintf("question number %d about the document", i), "")
	}
	if o.HistoryLen() != 50 {
		t.Errorf("expected history capped at 50, got %d", o.HistoryLen())
	}
	// Oldest entries are gone: question 0 should no longer match.
	if match := o.FindDuplicate("question number 0 about the document", 0.99); match != nil {
		t.Errorf("expected evicted entry not to match, got %+v", match)
	}
}

func TestPreprocessQuestion_Contractions(t *testing.T) {
	o := newOptimizer()
	// Expansions are substituted as-is, so the replaced word is lower-cased.
	got := o.PreprocessQuestion("What's in it? Don't skip anything, it's important")
	want := "what is in it? do not skip anything, it is important"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestPreprocessQuestion_FillersAndWhitespace(t *testing.T) {
	o := newOptimizer()
	got := o.PreprocessQuestion("um so basically   what does, you know, section 5 say")
	if strings.Contains(got, "um") || strings.Contains(got, "basically") || strings.Contains(got, "you know") {
		t.Errorf("fillers should be stripped, got %q", got)
	}
	if strings.Contains(got, "  ") {
		t.Errorf("whitespace should be collapsed, got %q", got)
	}
}

func TestEstimateTokenCost_Categories(t *testing.T) {
	o := newOptimizer()
	cases := []struct {
		question string
		output   int
	}{
		{"Please summarize the whole agreement for me", 200},
		{"does the warranty cover water damage", 50},
		{"list the termination conditions mentioned", 150},
		{"explain how the arbitration procedure works", 300},
	}
	for _, tc := range cases {
		est := o.EstimateTokenCost(tc.question, "")
		if est.EstimatedOutputTokens != tc.output {
			t.Errorf("%q: expected output estimate %d, got %d", tc.question, tc.output, est.EstimatedOutputTokens)
		}
	}
}

func TestEstimateTokenCost_Arithmetic(t *testing.T) {
	o := newOptimizer()
	question := strings.Repeat("q", 40)  // 10 tokens
	context := strings.Repeat("c", 400) // 100 tokens

	est := o.EstimateTokenCost(question, context)
	if est.QuestionTokens != 10 || est.ContextTokens != 100 {
		t.Errorf("unexpected input estimates: %+v", est)
	}
	if est.TotalInputTokens != 110 {
		t.Errorf("expected total input 110, got %d", est.TotalInputTokens)
	}
	if est.TotalEstimatedTokens != est.TotalInputTokens+est.EstimatedOutputTokens {
		t.Errorf("total should be input plus output: %+v", est)
	}
}

func TestOptimizeContext_RelevanceOrder(t *testing.T) {
	o := newOptimizer()
	context := strings.Join([]string{
		"The weather in the region is generally mild throughout the year.",
		"Payment terms require invoices settled within thirty days of receipt.",
		"The office cafeteria serves lunch between noon and two.",
		"Late payment incurs interest per the payment schedule in appendix B.",
	}, "\n\n")

	got := o.OptimizeContext(context, "what are the payment terms", 10000)
	paras := strings.Split(got, "\n\n")

	// Both payment paragraphs must sort ahead of the irrelevant ones, and the
	// output is relevance order, not document order.
	if !strings.Contains(paras[0], "Payment terms") {
		t.Errorf("most relevant paragraph should come first, got %q", paras[0])
	}
	if !strings.Contains(paras[1], "Late payment") {
		t.Errorf("second most relevant paragraph should come second, got %q", paras[1])
	}
}

func TestOptimizeContext_BudgetEnforced(t *testing.T) {
	o := newOptimizer()
	para := strings.Repeat("payment terms and conditions apply here ", 10) // ~400 chars, ~100 tokens
	context := para + "\n\n" + para + "\n\n" + para

	got := o.OptimizeContext(context, "payment terms", 150)
	kept := strings.Split(got, "\n\n")
	if len(kept) != 1 {
		t.Errorf("expected exactly one paragraph under a 150-token budget, got %d", len(kept))
	}
}

func TestOptimizeContext_StableTieOrder(t *testing.T) {
	o := newOptimizer()
	context := "alpha paragraph one\n\nalpha paragraph two\n\nalpha paragraph three"

	got := o.OptimizeContext(context, "alpha", 10000)
	want := context // all tie on score; stable sort keeps original order
	if got != want {
		t.Errorf("ties should keep original relative order:\ngot  %q\nwant %q", got, want)
	}
}

func TestSuggestBetterQuestions(t *testing.T) {
	o := newOptimizer()
	got := o.SuggestBetterQuestions("tell me about the warranty", "general")
	if len(got) == 0 || len(got) > 3 {
		t.Fatalf("expected 1-3 suggestions, got %d", len(got))
	}
	if !strings.Contains(got[0], "warranty") {
		t.Errorf("suggestion should carry the topic, got %q", got[0])
	}

	legal := o.SuggestBetterQuestions("who is liable", "legal_contract")
	if len(legal) == 0 {
		t.Error("expected contract-specific suggestions")
	}
}

func TestLexiconOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lexicon.yaml")
	yaml := "vaguePatterns:\n  - \"gimme\"\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	lex, err := LoadLexicon(path, testLogger())
	if err != nil {
		t.Fatalf("load lexicon: %v", err)
	}
	if len(lex.VaguePatterns) != 1 || lex.VaguePatterns[0] != "gimme" {
		t.Errorf("override should replace vague patterns, got %v", lex.VaguePatterns)
	}
	if len(lex.StopWords) == 0 {
		t.Error("unspecified lists should keep defaults")
	}

	o := New(Config{Lexicon: &lex, Logger: testLogger()})
	report := o.ScoreQuestionQuality("gimme the details of section four")
	if len(report.Issues) == 0 {
		t.Error("override pattern should trigger the vagueness deduction")
	}
}

func TestLoadLexicon_MissingFile(t *testing.T) {
	lex, err := LoadLexicon("/nonexistent/lexicon.yaml", testLogger())
	if err != nil {
		t.Fatalf("missing file should not be an error: %v", err)
	}
	if len(lex.VaguePatterns) == 0 {
		t.Error("missing file should fall back to defaults")
	}
}
