package options

import (
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/phuslu/log"

	"github.com/knights-analytics/colbert/util/fileutil"
)

// Options is the configuration bundle shared by the reader, the tokenizers and the cli.
type Options struct {
	Logger           *log.Logger `json:"-"`
	TriplesPath      string      `json:"validTriples"`
	QueriesPath      string      `json:"validQueries"`
	CollectionPath   string      `json:"collection"`
	TokenizerPath    string      `json:"tokenizer"`
	Backend          string      `json:"backend"`
	QueryMarker      string      `json:"queryMarker"`
	DocMarker        string      `json:"docMarker"`
	QueryMaxLen      int         `json:"queryMaxlen"`
	DocMaxLen        int         `json:"docMaxlen"`
	Rank             int         `json:"rank"`
	NRanks           int         `json:"nranks"`
	StrictReferences bool        `json:"strictReferences"`
}

// WithOption is the interface for all option functions.
type WithOption func(o *Options) error

func Defaults() *Options {
	return &Options{
		Logger:      &log.DefaultLogger,
		Backend:     "GO",
		QueryMarker: "[unused0]",
		DocMarker:   "[unused1]",
		QueryMaxLen: 32,
		DocMaxLen:   180,
		Rank:        0,
		NRanks:      1,
	}
}

// Apply applies opts in order on top of Defaults.
func Apply(opts ...WithOption) (*Options, error) {
	parsed := Defaults()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(parsed); err != nil {
			return nil, err
		}
	}
	return parsed, nil
}

// Validate checks the fields needed to build a reader.
func (o *Options) Validate() error {
	var errs []error
	if o.TriplesPath == "" {
		errs = append(errs, errors.New("triples path is required"))
	}
	if o.QueriesPath == "" {
		errs = append(errs, errors.New("queries path is required"))
	}
	if o.CollectionPath == "" {
		errs = append(errs, errors.New("collection path is required"))
	}
	if o.NRanks <= 0 {
		errs = append(errs, fmt.Errorf("nranks must be greater than 0, got %d", o.NRanks))
	} else if o.Rank < 0 || o.Rank >= o.NRanks {
		errs = append(errs, fmt.Errorf("rank must be in [0, %d), got %d", o.NRanks, o.Rank))
	}
	if o.QueryMaxLen < 3 {
		errs = append(errs, fmt.Errorf("query maxlen must be at least 3, got %d", o.QueryMaxLen))
	}
	if o.DocMaxLen < 3 {
		errs = append(errs, fmt.Errorf("doc maxlen must be at least 3, got %d", o.DocMaxLen))
	}
	if o.Logger == nil {
		errs = append(errs, errors.New("logger is required"))
	}
	return errors.Join(errs...)
}

// WithTriples sets the path of the validation triples file (one [qid, pos, neg] json array per line).
func WithTriples(path string) WithOption {
	return func(o *Options) error {
		o.TriplesPath = path
		return nil
	}
}

// WithQueries sets the path of the tab separated qid, query file.
func WithQueries(path string) WithOption {
	return func(o *Options) error {
		o.QueriesPath = path
		return nil
	}
}

// WithCollection sets the path of the tab separated pid, passage, title file.
func WithCollection(path string) WithOption {
	return func(o *Options) error {
		o.CollectionPath = path
		return nil
	}
}

// WithTokenizer sets the path to a tokenizer.json file or to a folder containing one.
func WithTokenizer(path string) WithOption {
	return func(o *Options) error {
		o.TokenizerPath = path
		return nil
	}
}

// WithBackend selects the tokenizer implementation, "GO" or "RUST".
func WithBackend(backend string) WithOption {
	return func(o *Options) error {
		switch backend {
		case "GO", "RUST":
			o.Backend = backend
			return nil
		default:
			return fmt.Errorf("backend %s not recognized", backend)
		}
	}
}

func WithQueryMaxLen(maxLen int) WithOption {
	return func(o *Options) error {
		if maxLen < 3 {
			return fmt.Errorf("query maxlen must be at least 3, got %d", maxLen)
		}
		o.QueryMaxLen = maxLen
		return nil
	}
}

func WithDocMaxLen(maxLen int) WithOption {
	return func(o *Options) error {
		if maxLen < 3 {
			return fmt.Errorf("doc maxlen must be at least 3, got %d", maxLen)
		}
		o.DocMaxLen = maxLen
		return nil
	}
}

// WithShard assigns the reader the lines of the triples file whose index modulo nranks equals rank.
func WithShard(rank, nranks int) WithOption {
	return func(o *Options) error {
		if nranks <= 0 {
			return fmt.Errorf("nranks must be greater than 0")
		}
		if rank < 0 || rank >= nranks {
			return fmt.Errorf("rank must be in [0, %d)", nranks)
		}
		o.Rank = rank
		o.NRanks = nranks
		return nil
	}
}

// WithRank sets the shard to read and keeps the current shard count.
// The pair is checked by Validate.
func WithRank(rank int) WithOption {
	return func(o *Options) error {
		if rank < 0 {
			return fmt.Errorf("rank must not be negative, got %d", rank)
		}
		o.Rank = rank
		return nil
	}
}

// WithNRanks sets the number of shards and keeps the current rank.
func WithNRanks(nranks int) WithOption {
	return func(o *Options) error {
		if nranks <= 0 {
			return fmt.Errorf("nranks must be greater than 0")
		}
		o.NRanks = nranks
		return nil
	}
}

// WithMarkers overrides the tokens written at position 1 of query and document sequences.
func WithMarkers(queryMarker, docMarker string) WithOption {
	return func(o *Options) error {
		o.QueryMarker = queryMarker
		o.DocMarker = docMarker
		return nil
	}
}

// WithStrictReferences makes the reader check every triple id against the loaded
// tables at construction time instead of when the triple is reached.
func WithStrictReferences(strict bool) WithOption {
	return func(o *Options) error {
		o.StrictReferences = strict
		return nil
	}
}

func WithLogger(logger *log.Logger) WithOption {
	return func(o *Options) error {
		if logger == nil {
			return errors.New("logger is required")
		}
		o.Logger = logger
		return nil
	}
}

// WithConfigFile loads a json config file on top of the current options.
// Keys missing from the file leave the current values untouched.
func WithConfigFile(path string) WithOption {
	return func(o *Options) error {
		return LoadConfigFile(path, o)
	}
}

// LoadConfigFile decodes the json file at path into o. The path can be local or s3.
func LoadConfigFile(path string, o *Options) error {
	configBytes, err := fileutil.ReadFileBytes(path)
	if err != nil {
		return err
	}
	if err = jsoniter.Unmarshal(configBytes, o); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}
