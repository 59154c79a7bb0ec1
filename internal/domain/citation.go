package domain

// Confidence is the citation confidence tier self-reported by the model.
type Confidence string

const (
	ConfidenceHigh    Confidence = "High"
	ConfidenceMedium  Confidence = "Medium"
	ConfidenceLow     Confidence = "Low"
	ConfidenceUnknown Confidence = "Unknown"
)

// Classification describes how an answer relates to the source document.
type Classification string

const (
	ClassDirectQuote      Classification = "DIRECT_QUOTE"
	ClassParaphrase       Classification = "PARAPHRASE"
	ClassInference        Classification = "INFERENCE"
	ClassGeneralKnowledge Classification = "GENERAL_KNOWLEDGE"
	ClassUnknown          Classification = "UNKNOWN"
)

// Citation is the structured form of a model response that followed (or
// partially followed) the five-field citation grammar. Missing fields carry
// safe defaults; parsing never fails.
type Citation struct {
	Answer         string         `json:"answer"`
	Source         string         `json:"source"`
	Confidence     Confidence     `json:"confidence"`
	Quote          string         `json:"quote"`
	Classification Classification `json:"classification"`
	PageNumbers    []int          `json:"page_numbers"`
	HasCitation    bool           `json:"has_citation"`
}

// VerificationStatus is the outcome tier of citation verification.
type VerificationStatus string

const (
	StatusVerified       VerificationStatus = "VERIFIED"
	StatusLikelyAccurate VerificationStatus = "LIKELY_ACCURATE"
	StatusNeedsReview    VerificationStatus = "NEEDS_REVIEW"
	StatusQuestionable   VerificationStatus = "QUESTIONABLE"
)

// VerificationResult reports how well a citation held up against the source
// text. Issues are soft: the answer remains usable, the caller decides how
// to surface low confidence.
type VerificationResult struct {
	Verified        bool               `json:"verified"`
	ConfidenceScore float64            `json:"confidence_score"`
	Issues          []string           `json:"issues"`
	Status          VerificationStatus `json:"verification_status"`
}

// Similarity scores how alike two strings are on a [0,1] scale, 1 meaning
// identical. Implementations may be edit-distance based or anything better;
// duplicate detection and fuzzy quote matching only depend on this contract.
type Similarity interface {
	Ratio(a, b string) float64
}
