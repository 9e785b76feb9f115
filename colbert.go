package colbert

import (
	"errors"

	"github.com/knights-analytics/colbert/backends"
	"github.com/knights-analytics/colbert/datasets"
	"github.com/knights-analytics/colbert/options"
	"github.com/knights-analytics/colbert/tokenization"
)

// ValidReader is the validation reader used during training, yielding one batch of
// tensorized triples per step.
type ValidReader = datasets.ValidTripleReader[[]tokenization.TripleBatch]

// ValidationSession owns a validation reader together with the tokenizer it tensorizes with.
type ValidationSession struct {
	Reader         *ValidReader
	QueryTokenizer *tokenization.QueryTokenizer
	DocTokenizer   *tokenization.DocTokenizer
	tokenizer      *backends.Tokenizer
	options        *options.Options
}

// NewValidationSession loads the tokenizer, builds the query and document tokenizers with their
// max lengths, and loads the validation triples, queries and collection.
func NewValidationSession(opts ...options.WithOption) (*ValidationSession, error) {
	parsedOptions, err := options.Apply(opts...)
	if err != nil {
		return nil, err
	}
	if err = parsedOptions.Validate(); err != nil {
		return nil, err
	}

	tk, err := backends.LoadTokenizer(parsedOptions.TokenizerPath, parsedOptions.Backend)
	if err != nil {
		return nil, err
	}
	session := &ValidationSession{tokenizer: tk, options: parsedOptions}

	session.QueryTokenizer, err = tokenization.NewQueryTokenizer(tk, parsedOptions.QueryMaxLen, parsedOptions.QueryMarker)
	if err != nil {
		return nil, errors.Join(err, session.Destroy())
	}
	session.DocTokenizer, err = tokenization.NewDocTokenizer(tk, parsedOptions.DocMaxLen, parsedOptions.DocMarker)
	if err != nil {
		return nil, errors.Join(err, session.Destroy())
	}

	session.Reader, err = datasets.NewValidTripleReader[[]tokenization.TripleBatch](parsedOptions,
		tokenization.TripleTensorizer(session.QueryTokenizer, session.DocTokenizer))
	if err != nil {
		return nil, errors.Join(err, session.Destroy())
	}
	return session, nil
}

// Options returns the options the session was created with.
func (s *ValidationSession) Options() *options.Options {
	return s.options
}

// GetStatistics returns the tokenizer timings accumulated by the session, or zero values
// once the session has been destroyed.
func (s *ValidationSession) GetStatistics() backends.TokenizerStatistics {
	if s.tokenizer == nil {
		return backends.TokenizerStatistics{}
	}
	return s.tokenizer.GetStatistics()
}

// Destroy releases the tokenizer. The reader must not be used afterwards.
func (s *ValidationSession) Destroy() error {
	if s.tokenizer == nil {
		return nil
	}
	s.options.Logger.Info().Msg("Destroying tokenizer")
	err := s.tokenizer.Destroy()
	s.tokenizer = nil
	return err
}
