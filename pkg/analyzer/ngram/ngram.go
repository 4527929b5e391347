// Package ngram extracts per-author token n-grams from columnar message
// batches. The extractor is stateless; the engine owns aggregation across
// batches.
package ngram

import (
	"strings"
	"unicode"

	"github.com/gramforge/gramforge/pkg/columnar"
	"github.com/gramforge/gramforge/pkg/config"
	"github.com/gramforge/gramforge/pkg/errors"
	"github.com/gramforge/gramforge/pkg/tally"
)

// Extractor computes n-gram tallies from message batches.
type Extractor struct {
	n         int
	minToken  int
	lowercase bool
}

// NewExtractor creates an extractor from analyzer configuration.
func NewExtractor(cfg config.AnalyzerConfig) (*Extractor, error) {
	if cfg.NGramSize <= 0 {
		return nil, errors.New(errors.ErrorTypeValidation, "ngram size must be positive")
	}
	return &Extractor{
		n:         cfg.NGramSize,
		minToken:  cfg.MinTokenLength,
		lowercase: cfg.Lowercase,
	}, nil
}

// Extract tallies every n-gram in the batch under its author. The batch
// must carry the message schema (author, text columns).
func (e *Extractor) Extract(batch *columnar.Batch) (tally.Tally, error) {
	authors, ok := batch.Column("author").(*columnar.StringColumn)
	if !ok {
		return nil, errors.New(errors.ErrorTypeData, "batch missing author column")
	}
	texts, ok := batch.Column("text").(*columnar.StringColumn)
	if !ok {
		return nil, errors.New(errors.ErrorTypeData, "batch missing text column")
	}

	result := tally.New()
	rows := batch.RowCount()
	for i := 0; i < rows; i++ {
		author := authors.GetString(i)
		tokens := e.tokenize(texts.GetString(i))
		if len(tokens) < e.n {
			continue
		}
		for j := 0; j+e.n <= len(tokens); j++ {
			gram := strings.Join(tokens[j:j+e.n], " ")
			result.Add(tally.Key{NGram: gram, Author: author}, 1)
		}
	}

	return result, nil
}

// tokenize splits on anything that is not a letter, digit, or apostrophe.
func (e *Extractor) tokenize(text string) []string {
	if e.lowercase {
		text = strings.ToLower(text)
	}

	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})

	if e.minToken <= 1 {
		return fields
	}

	tokens := fields[:0]
	for _, tok := range fields {
		if len(tok) >= e.minToken {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}
