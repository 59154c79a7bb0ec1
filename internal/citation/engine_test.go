package citation

import (
	"log/slog"
	"os"
	"reflect"
	"strings"
	"testing"

	"docchat/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func newEngine() *Engine {
	return NewEngine(EngineConfig{Logger: testLogger()})
}

const wellFormedResponse = `**Answer:** The contract requires payment within thirty days.

**Source:** Page 4, Section 2.1

**Confidence:** High

**Quote:** "payment shall be made within thirty days of invoice"

**Classification:** DIRECT_QUOTE`

func TestExtractCitations_WellFormed(t *testing.T) {
	c := newEngine().ExtractCitations(wellFormedResponse)

	if c.Answer != "The contract requires payment within thirty days." {
		t.Errorf("unexpected answer: %q", c.Answer)
	}
	if !strings.Contains(c.Source, "Page 4") {
		t.Errorf("unexpected source: %q", c.Source)
	}
	if c.Confidence != domain.ConfidenceHigh {
		t.Errorf("expected High confidence, got %q", c.Confidence)
	}
	if c.Quote != "payment shall be made within thirty days of invoice" {
		t.Errorf("unexpected quote: %q", c.Quote)
	}
	if c.Classification != domain.ClassDirectQuote {
		t.Errorf("expected DIRECT_QUOTE, got %q", c.Classification)
	}
	if !reflect.DeepEqual(c.PageNumbers, []int{4}) {
		t.Errorf("expected pages [4], got %v", c.PageNumbers)
	}
	if !c.HasCitation {
		t.Error("expected HasCitation")
	}
}

func TestExtractCitations_FreeTextFallsBackToDefaults(t *testing.T) {
	response := "The agreement says payment is due in thirty days, no citation given."
	c := newEngine().ExtractCitations(response)

	if c.Answer != response {
		t.Errorf("answer should default to the whole response, got %q", c.Answer)
	}
	if c.Source != "Not specified" {
		t.Errorf("expected default source, got %q", c.Source)
	}
	if c.Confidence != domain.ConfidenceUnknown {
		t.Errorf("expected Unknown confidence, got %q", c.Confidence)
	}
	if c.Classification != domain.ClassUnknown {
		t.Errorf("expected UNKNOWN classification, got %q", c.Classification)
	}
	if c.Quote != "" || c.HasCitation || len(c.PageNumbers) != 0 {
		t.Errorf("expected empty quote/pages and no citation flag, got %+v", c)
	}
}

func TestExtractCitations_PartialFields(t *testing.T) {
	response := "**Answer:** Something.\n\n**Confidence:** Medium"
	c := newEngine().ExtractCitations(response)

	if c.Answer != "Something." {
		t.Errorf("unexpected answer: %q", c.Answer)
	}
	if c.Confidence != domain.ConfidenceMedium {
		t.Errorf("expected Medium, got %q", c.Confidence)
	}
	if c.Source != "Not specified" || c.HasCitation {
		t.Errorf("missing source should keep default, got %q", c.Source)
	}
}

func TestExtractPageNumbers(t *testing.T) {
	cases := []struct {
		source string
		want   []int
	}{
		{"Page 5", []int{5}},
		{"Pages 5-7", []int{5, 6, 7}},
		{"Pages 5, 7, 9", []int{5, 7, 9}},
		{"p. 12", []int{12}},
		{"pp. 3-4", []int{3, 4}},
		{"Page 5 and Page 5 again", []int{5}},
		{"Not in document", nil},
	}
	for _, tc := range cases {
		if got := extractPageNumbers(tc.source); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("extractPageNumbers(%q) = %v, want %v", tc.source, got, tc.want)
		}
	}
}

const sourceText = `This agreement is entered into by both parties.
Payment shall be made within thirty days of invoice.
Either party may terminate with sixty days written notice.`

func TestVerifyCitation_ExactQuote(t *testing.T) {
	c := domain.Citation{
		Quote:          "Payment SHALL be made within thirty days of invoice",
		Classification: domain.ClassDirectQuote,
	}
	v := newEngine().VerifyCitation(c, sourceText, nil)

	if v.Status != domain.StatusVerified {
		t.Errorf("expected VERIFIED, got %q", v.Status)
	}
	if v.ConfidenceScore < 0.9 {
		t.Errorf("expected score >= 0.9, got %f", v.ConfidenceScore)
	}
	if !v.Verified || len(v.Issues) != 0 {
		t.Errorf("expected clean verification, got %+v", v)
	}
}

func TestVerifyCitation_FuzzyQuote(t *testing.T) {
	// One word changed; the sliding-window ratio stays above 0.85.
	c := domain.Citation{Quote: "payment shall be made within thirty days of invoices"}
	v := newEngine().VerifyCitation(c, sourceText, nil)

	if len(v.Issues) != 0 {
		t.Errorf("near-verbatim quote should fuzzy-match, got issues %v", v.Issues)
	}
	if v.Status != domain.StatusVerified {
		t.Errorf("expected VERIFIED, got %q", v.Status)
	}
}

func TestVerifyCitation_FabricatedQuote(t *testing.T) {
	c := domain.Citation{Quote: "the seller guarantees lifetime replacement at no cost"}
	v := newEngine().VerifyCitation(c, sourceText, nil)

	if v.ConfidenceScore > 0.5 {
		t.Errorf("expected score <= 0.5 for a fabricated quote, got %f", v.ConfidenceScore)
	}
	if v.Verified {
		t.Error("fabricated quote must not verify")
	}
	if len(v.Issues) == 0 {
		t.Error("expected an issue for the missing quote")
	}
}

func TestVerifyCitation_MissingPages(t *testing.T) {
	pages := map[int]string{1: "page one text", 2: "page two text"}
	c := domain.Citation{PageNumbers: []int{1, 7, 9}}
	v := newEngine().VerifyCitation(c, sourceText, pages)

	// Two missing pages: 1.0 - 0.2 - 0.2 = 0.6.
	if v.ConfidenceScore != 0.6 {
		t.Errorf("expected score 0.6, got %f", v.ConfidenceScore)
	}
	if v.Status != domain.StatusNeedsReview {
		t.Errorf("expected NEEDS_REVIEW, got %q", v.Status)
	}
	if len(v.Issues) != 2 {
		t.Errorf("expected two page issues, got %v", v.Issues)
	}
}

func TestVerifyCitation_DirectQuoteWithoutQuote(t *testing.T) {
	c := domain.Citation{Classification: domain.ClassDirectQuote}
	v := newEngine().VerifyCitation(c, sourceText, nil)

	// 1.0 - 0.3 = 0.7: still verified, but flagged.
	if v.ConfidenceScore != 0.7 {
		t.Errorf("expected score 0.7, got %f", v.ConfidenceScore)
	}
	if v.Status != domain.StatusLikelyAccurate {
		t.Errorf("expected LIKELY_ACCURATE, got %q", v.Status)
	}
	if len(v.Issues) != 1 {
		t.Errorf("expected a consistency issue, got %v", v.Issues)
	}
}

func TestVerifyCitation_NoPagesMapSkipsPageCheck(t *testing.T) {
	c := domain.Citation{PageNumbers: []int{99}}
	v := newEngine().VerifyCitation(c, sourceText, nil)
	if v.ConfidenceScore != 1.0 {
		t.Errorf("page check requires a page map; expected 1.0, got %f", v.ConfidenceScore)
	}
}

func TestEnhanceSystemPrompt(t *testing.T) {
	got := newEngine().EnhanceSystemPrompt("You answer questions about documents.")
	if !strings.HasPrefix(got, "You answer questions about documents.") {
		t.Error("base prompt should lead")
	}
	for _, field := range []string{"**Answer:**", "**Source:**", "**Confidence:**", "**Quote:**", "**Classification:**"} {
		if !strings.Contains(got, field) {
			t.Errorf("prompt should mandate %s", field)
		}
	}
}

func TestConfidenceScore(t *testing.T) {
	e := newEngine()
	cases := []struct {
		name string
		c    domain.Citation
		want float64
	}{
		{"high direct quote with everything", domain.Citation{
			Confidence:     domain.ConfidenceHigh,
			Classification: domain.ClassDirectQuote,
			PageNumbers:    []int{1},
			Quote:          "q",
		}, 1.0}, // 0.9 + 0.1 + 0.05 + 0.05 clamped
		{"medium paraphrase", domain.Citation{
			Confidence:     domain.ConfidenceMedium,
			Classification: domain.ClassParaphrase,
		}, 0.7},
		{"unknown general knowledge", domain.Citation{
			Confidence:     domain.ConfidenceUnknown,
			Classification: domain.ClassGeneralKnowledge,
		}, 0.1},
	}
	for _, tc := range cases {
		if got := e.ConfidenceScore(tc.c); got < tc.want-1e-9 || got > tc.want+1e-9 {
			t.Errorf("%s: got %f, want %f", tc.name, got, tc.want)
		}
	}
}

func TestFormatDisplay(t *testing.T) {
	c := domain.Citation{
		Answer:         "Thirty days.",
		Source:         "Page 4",
		Confidence:     domain.ConfidenceHigh,
		Quote:          "within thirty days",
		Classification: domain.ClassDirectQuote,
	}
	v := domain.VerificationResult{Status: domain.StatusVerified}

	out := FormatDisplay(c, &v)
	if !strings.HasPrefix(out, "Thirty days.") {
		t.Error("answer should lead the display")
	}
	if !strings.Contains(out, "Page 4") || !strings.Contains(out, "Direct Quote") {
		t.Errorf("display missing fields:\n%s", out)
	}
	if !strings.Contains(out, "within thirty days") {
		t.Error("quote should be rendered")
	}
}

func TestFormatDisplay_Issues(t *testing.T) {
	c := domain.Citation{Answer: "A", Source: "Not specified", Confidence: domain.ConfidenceUnknown, Classification: domain.ClassUnknown}
	v := domain.VerificationResult{
		Status: domain.StatusQuestionable,
		Issues: []string{"Quoted text not found in document"},
	}
	out := FormatDisplay(c, &v)
	if !strings.Contains(out, "Verification Issues") || !strings.Contains(out, "Quoted text not found") {
		t.Errorf("issues should be listed:\n%s", out)
	}
}
