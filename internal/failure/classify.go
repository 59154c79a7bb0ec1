package failure

import (
	"errors"
	"strings"
)

// Kind is an error taxonomy bucket for collaborator failures.
type Kind string

const (
	KindRateLimit       Kind = "RATE_LIMIT"
	KindTimeout         Kind = "TIMEOUT"
	KindInvalidResponse Kind = "INVALID_RESPONSE"
	KindAuthFailure     Kind = "AUTH_FAILURE"
	KindNetwork         Kind = "NETWORK"
	KindContextLength   Kind = "CONTEXT_LENGTH"
	KindUnknown         Kind = "UNKNOWN"
)

// Classifier assigns a Kind to a collaborator error.
type Classifier interface {
	Classify(err error) Kind
}

// KindError lets a collaborator report its failure kind directly instead of
// relying on message sniffing.
type KindError struct {
	Kind Kind
	Err  error
}

func (e *KindError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

func (e *KindError) Unwrap() error { return e.Err }

// kindPatterns is checked in order; the first matching substring wins.
var kindPatterns = []struct {
	kind     Kind
	patterns []string
}{
	{KindRateLimit, []string{"429", "quota", "rate limit", "resource_exhausted", "too many requests"}},
	{KindTimeout, []string{"timeout", "timed out", "deadline exceeded"}},
	{KindInvalidResponse, []string{"malformed", "invalid json", "parse error", "unexpected response"}},
	{KindAuthFailure, []string{"401", "403", "unauthorized", "forbidden", "invalid api key"}},
	{KindNetwork, []string{"connection", "network", "unreachable", "dns"}},
	{KindContextLength, []string{"context length", "token limit", "too long", "maximum context"}},
}

// KeywordClassifier classifies errors by message substrings. It is a
// fallback for collaborators that cannot attach a KindError; a typed kind on
// the chain always wins over sniffing.
type KeywordClassifier struct{}

func (KeywordClassifier) Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var ke *KindError
	if errors.As(err, &ke) {
		return ke.Kind
	}

	msg := strings.ToLower(err.Error())
	for _, entry := range kindPatterns {
		for _, p := range entry.patterns {
			if strings.Contains(msg, p) {
				return entry.kind
			}
		}
	}
	return KindUnknown
}
