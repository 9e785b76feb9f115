package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/mattn/go-isatty"
	"github.com/phuslu/log"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/knights-analytics/colbert"
	"github.com/knights-analytics/colbert/datasets"
	"github.com/knights-analytics/colbert/options"
	"github.com/knights-analytics/colbert/tokenization"
	"github.com/knights-analytics/colbert/util/fileutil"
)

var configPath string
var triplesPath string
var queriesPath string
var collectionPath string
var tokenizerPath string
var backend string
var outputPath string
var queryMaxLen int
var docMaxLen int
var rank int
var nranks int
var strict bool

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var logger = &log.Logger{
	Level: log.InfoLevel,
	Writer: &log.ConsoleWriter{
		ColorOutput: isatty.IsTerminal(os.Stderr.Fd()),
	},
}

func dataFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "Path to a json config file, flags override its values",
			Aliases:     []string{"c"},
			Destination: &configPath,
		},
		&cli.StringFlag{
			Name:        "triples",
			Usage:       "Path to the validation triples file",
			Destination: &triplesPath,
		},
		&cli.StringFlag{
			Name:        "queries",
			Usage:       "Path to the validation queries file",
			Destination: &queriesPath,
		},
		&cli.StringFlag{
			Name:        "collection",
			Usage:       "Path to the passage collection file",
			Destination: &collectionPath,
		},
		&cli.IntFlag{
			Name:        "rank",
			Usage:       "Shard to read",
			Destination: &rank,
		},
		&cli.IntFlag{
			Name:        "nranks",
			Usage:       "Number of shards the triples are split into",
			Destination: &nranks,
			Value:       1,
		},
		&cli.BoolFlag{
			Name:        "strict",
			Usage:       "Check every triple id when loading instead of when it is reached",
			Destination: &strict,
		},
		&cli.StringFlag{
			Name:        "output",
			Usage:       "Path of the output .jsonl file. If omitted, the output will be sent to stdout.",
			Aliases:     []string{"o"},
			Destination: &outputPath,
		},
	}
}

func tokenizerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "tokenizer",
			Usage:       "Path to a tokenizer.json file or a folder containing one",
			Aliases:     []string{"t"},
			Destination: &tokenizerPath,
		},
		&cli.StringFlag{
			Name:        "backend",
			Usage:       "Tokenizer backend, GO or RUST",
			Destination: &backend,
			Value:       "GO",
		},
		&cli.IntFlag{
			Name:        "queryMaxlen",
			Usage:       "Number of tokens queries are padded or truncated to",
			Destination: &queryMaxLen,
			Value:       32,
		},
		&cli.IntFlag{
			Name:        "docMaxlen",
			Usage:       "Maximum number of tokens per passage",
			Destination: &docMaxLen,
			Value:       180,
		},
	}
}

// readerOptions builds the options from the config file and the flags that were set explicitly.
func readerOptions(ctx *cli.Context) []options.WithOption {
	opts := []options.WithOption{options.WithLogger(logger)}
	if configPath != "" {
		opts = append(opts, options.WithConfigFile(configPath))
	}
	if ctx.IsSet("triples") {
		opts = append(opts, options.WithTriples(triplesPath))
	}
	if ctx.IsSet("queries") {
		opts = append(opts, options.WithQueries(queriesPath))
	}
	if ctx.IsSet("collection") {
		opts = append(opts, options.WithCollection(collectionPath))
	}
	if ctx.IsSet("rank") {
		opts = append(opts, options.WithRank(rank))
	}
	if ctx.IsSet("nranks") {
		opts = append(opts, options.WithNRanks(nranks))
	}
	if ctx.IsSet("strict") {
		opts = append(opts, options.WithStrictReferences(strict))
	}
	if ctx.IsSet("tokenizer") {
		opts = append(opts, options.WithTokenizer(tokenizerPath))
	}
	if ctx.IsSet("backend") {
		opts = append(opts, options.WithBackend(backend))
	}
	if ctx.IsSet("queryMaxlen") {
		opts = append(opts, options.WithQueryMaxLen(queryMaxLen))
	}
	if ctx.IsSet("docMaxlen") {
		opts = append(opts, options.WithDocMaxLen(docMaxLen))
	}
	return opts
}

func openOutput() (io.WriteCloser, func() error, error) {
	if outputPath == "" {
		return os.Stdout, func() error { return nil }, nil
	}
	writer, err := fileutil.NewFileWriter(outputPath, "application/jsonl")
	if err != nil {
		return nil, nil, err
	}
	return writer, writer.Close, nil
}

func writeLine(w io.Writer, value any) error {
	lineBytes, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = w.Write(append(lineBytes, '\n'))
	return err
}

type stepOutput struct {
	QueryShape     []int `json:"queryShape"`
	DocShape       []int `json:"docShape"`
	QueryTokens    int64 `json:"queryTokens"`
	PositiveTokens int64 `json:"positiveTokens"`
	NegativeTokens int64 `json:"negativeTokens"`
	Step           int   `json:"step"`
}

// summarise reads a batch of one triple: query rows are duplicated, doc row 0 is the
// positive passage and row 1 the negative one.
func summarise(step int, batch tokenization.TripleBatch) (stepOutput, error) {
	queryMask, ok := batch.QueryMask.Data().([]int64)
	if !ok {
		return stepOutput{}, errors.New("query mask is not an int64 tensor")
	}
	docMask, ok := batch.DocMask.Data().([]int64)
	if !ok {
		return stepOutput{}, errors.New("doc mask is not an int64 tensor")
	}
	queryShape := batch.QueryMask.Shape().Clone()
	docShape := batch.DocMask.Shape().Clone()
	if len(queryShape) != 2 || len(docShape) != 2 || docShape[0] != 2 {
		return stepOutput{}, fmt.Errorf("unexpected batch shapes %v and %v", queryShape, docShape)
	}
	docWidth := docShape[1]
	return stepOutput{
		Step:           step,
		QueryShape:     queryShape,
		DocShape:       docShape,
		QueryTokens:    sum(queryMask[:queryShape[1]]),
		PositiveTokens: sum(docMask[:docWidth]),
		NegativeTokens: sum(docMask[docWidth:]),
	}, nil
}

func sum(values []int64) int64 {
	var total int64
	for _, v := range values {
		total += v
	}
	return total
}

var validateCommand = &cli.Command{
	Name:  "validate",
	Usage: "Tensorize every validation triple of a shard",
	Description: `Validate loads the validation triples, queries and collection, tokenizes each triple
				and writes one json line per step with the tensor shapes and the number of attended tokens.`,
	Flags: append(dataFlags(), tokenizerFlags()...),
	Action: func(ctx *cli.Context) (err error) {
		session, err := colbert.NewValidationSession(readerOptions(ctx)...)
		if err != nil {
			return err
		}
		defer func() {
			err = errors.Join(err, session.Destroy())
		}()

		writer, closeWriter, err := openOutput()
		if err != nil {
			return err
		}
		defer func() {
			err = errors.Join(err, closeWriter())
		}()

		var bar *progressbar.ProgressBar
		if isatty.IsTerminal(os.Stderr.Fd()) {
			bar = progressbar.Default(int64(session.Reader.Len()), "validating")
		}

		var docLengths []float64
		for step := 0; ; step++ {
			batches, nextErr := session.Reader.Next()
			if nextErr == io.EOF {
				break
			}
			if nextErr != nil {
				return nextErr
			}
			for _, batch := range batches {
				out, summaryErr := summarise(step, batch)
				if summaryErr != nil {
					return summaryErr
				}
				docLengths = append(docLengths, float64(out.PositiveTokens), float64(out.NegativeTokens))
				if writeErr := writeLine(writer, out); writeErr != nil {
					return writeErr
				}
			}
			if bar != nil {
				if barErr := bar.Add(1); barErr != nil {
					return barErr
				}
			}
		}

		stats := session.GetStatistics()
		event := logger.Info().Int("triples", session.Reader.Len()).
			Uint64("tokenizerCalls", stats.ExecutionCount).
			Dur("tokenizerAvg", stats.AvgQueryTime)
		if len(docLengths) > 0 {
			mean, std := stat.MeanStdDev(docLengths, nil)
			event = event.Float64("docTokensMean", mean).Float64("docTokensStd", std)
		}
		event.Msg("validation pass completed")
		return nil
	},
}

var inspectCommand = &cli.Command{
	Name:  "inspect",
	Usage: "Write the resolved query, positive and negative texts of a shard",
	Flags: dataFlags(),
	Action: func(ctx *cli.Context) (err error) {
		opts, err := options.Apply(readerOptions(ctx)...)
		if err != nil {
			return err
		}
		reader, err := datasets.NewValidTripleReader[struct{}](opts, nil)
		if err != nil {
			return err
		}

		writer, closeWriter, err := openOutput()
		if err != nil {
			return err
		}
		defer func() {
			err = errors.Join(err, closeWriter())
		}()

		for {
			resolved, nextErr := reader.NextRaw()
			if nextErr == io.EOF {
				return nil
			}
			if nextErr != nil {
				return nextErr
			}
			if writeErr := writeLine(writer, resolved); writeErr != nil {
				return writeErr
			}
		}
	},
}

type shardOutput struct {
	Rank    int `json:"rank"`
	Triples int `json:"triples"`
}

var shardsCommand = &cli.Command{
	Name:  "shards",
	Usage: "Load every shard of the triples file and check they partition it",
	Flags: dataFlags(),
	Action: func(ctx *cli.Context) (err error) {
		opts, err := options.Apply(readerOptions(ctx)...)
		if err != nil {
			return err
		}
		if opts.TriplesPath == "" {
			return errors.New("triples path is required")
		}
		if opts.NRanks <= 0 {
			return fmt.Errorf("nranks must be greater than 0, got %d", opts.NRanks)
		}

		counts := make([]int, opts.NRanks)
		var group errgroup.Group
		for r := range opts.NRanks {
			group.Go(func() error {
				triples, loadErr := datasets.LoadTriples(opts.Logger, opts.TriplesPath, r, opts.NRanks)
				if loadErr != nil {
					return fmt.Errorf("shard %d: %w", r, loadErr)
				}
				counts[r] = len(triples)
				return nil
			})
		}
		if err = group.Wait(); err != nil {
			return err
		}

		writer, closeWriter, err := openOutput()
		if err != nil {
			return err
		}
		defer func() {
			err = errors.Join(err, closeWriter())
		}()

		total := 0
		for r, count := range counts {
			total += count
			if writeErr := writeLine(writer, shardOutput{Rank: r, Triples: count}); writeErr != nil {
				return writeErr
			}
		}
		lines, err := fileutil.CountLines(opts.TriplesPath)
		if err != nil {
			return err
		}
		if total != lines {
			return fmt.Errorf("shards hold %d triples but %s has %d lines", total, opts.TriplesPath, lines)
		}
		return nil
	},
}

var modelName string
var downloadDir string

var downloadCommand = &cli.Command{
	Name:      "download",
	Usage:     "Download a tokenizer from huggingface",
	ArgsUsage: "--model: huggingface model name, e.g. bert-base-uncased",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:        "model",
			Usage:       "Huggingface model name",
			Aliases:     []string{"m"},
			Destination: &modelName,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "folder",
			Usage:       "Folder where to store the tokenizer. Falls back to $HOME/colbert/tokenizers if not specified",
			Aliases:     []string{"f"},
			Destination: &downloadDir,
		},
	},
	Action: func(ctx *cli.Context) error {
		if downloadDir == "" {
			userDir, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			downloadDir = fileutil.PathJoinSafe(userDir, "colbert", "tokenizers")
		}
		downloadOptions := colbert.NewDownloadOptions()
		downloadOptions.Logger = logger
		downloadOptions.Verbose = isatty.IsTerminal(os.Stderr.Fd())
		downloadOptions.AuthToken = os.Getenv("HF_TOKEN")
		tokenizerDir, err := colbert.DownloadTokenizer(modelName, downloadDir, downloadOptions)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(ctx.App.Writer, tokenizerDir)
		return err
	},
}

func newApp() *cli.App {
	return &cli.App{
		Name:     "colbert",
		Usage:    "Inspect and tensorize ColBERT validation triples",
		Commands: []*cli.Command{validateCommand, inspectCommand, shardsCommand, downloadCommand},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		logger.Fatal().Err(err).Msg("colbert failed")
	}
}
