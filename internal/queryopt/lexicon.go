package queryopt

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Lexicon holds the word lists driving question scoring, preprocessing, and
// keyword extraction. The defaults are fixed and test-depended-upon; a YAML
// file can override individual lists for tuning without code changes.
type Lexicon struct {
	VaguePatterns         []string          `yaml:"vaguePatterns"`
	BroadPatterns         []string          `yaml:"broadPatterns"`
	SpecificityIndicators []string          `yaml:"specificityIndicators"`
	Contractions          map[string]string `yaml:"contractions"`
	Fillers               []string          `yaml:"fillers"`
	StopWords             []string          `yaml:"stopWords"`
}

// DefaultLexicon returns the built-in lists. Scoring thresholds assume
// exactly these entries.
func DefaultLexicon() Lexicon {
	return Lexicon{
		VaguePatterns: []string{
			"tell me about", "explain this", "what is this", "describe",
			"give me information", "what about", "talk about",
		},
		BroadPatterns: []string{
			"everything", "all information", "complete", "entire", "whole",
			"every", "all details", "comprehensive",
		},
		SpecificityIndicators: []string{
			"page", "section", "paragraph", "clause", "chapter",
			"specific", "particular", "exact", "line",
		},
		Contractions: map[string]string{
			"what's":    "what is",
			"that's":    "that is",
			"it's":      "it is",
			"don't":     "do not",
			"can't":     "cannot",
			"won't":     "will not",
			"shouldn't": "should not",
			"wouldn't":  "would not",
			"couldn't":  "could not",
		},
		Fillers: []string{
			"um", "uh", "like", "you know", "i mean", "basically", "actually",
		},
		StopWords: []string{
			"the", "a", "an", "and", "or", "but", "in", "on", "at", "to", "for",
			"of", "with", "by", "from", "as", "is", "was", "are", "were", "been",
			"be", "have", "has", "had", "do", "does", "did", "will", "would",
			"should", "could", "may", "might", "must", "can", "this", "that",
			"these", "those", "what", "which", "who", "when", "where", "why", "how",
		},
	}
}

// LoadLexicon reads a YAML override file and merges it over the defaults.
// Empty lists in the file keep the built-in entries. A missing file is not an
// error: callers get the defaults.
func LoadLexicon(path string, logger *slog.Logger) (Lexicon, error) {
	lex := DefaultLexicon()
	if path == "" {
		return lex, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debug("lexicon file does not exist, using defaults", "path", path)
			return lex, nil
		}
		return lex, fmt.Errorf("read lexicon: %w", err)
	}

	var override Lexicon
	if err := yaml.Unmarshal(data, &override); err != nil {
		return lex, fmt.Errorf("parse lexicon %s: %w", path, err)
	}

	if len(override.VaguePatterns) > 0 {
		lex.VaguePatterns = override.VaguePatterns
	}
	if len(override.BroadPatterns) > 0 {
		lex.BroadPatterns = override.BroadPatterns
	}
	if len(override.SpecificityIndicators) > 0 {
		lex.SpecificityIndicators = override.SpecificityIndicators
	}
	if len(override.Contractions) > 0 {
		lex.Contractions = override.Contractions
	}
	if len(override.Fillers) > 0 {
		lex.Fillers = override.Fillers
	}
	if len(override.StopWords) > 0 {
		lex.StopWords = override.StopWords
	}

	logger.Info("loaded lexicon overrides", "path", path)
	return lex, nil
}
