package backends

import (
	"fmt"
	"math"
	"time"

	"github.com/knights-analytics/colbert/util/fileutil"
	"github.com/knights-analytics/colbert/util/safeconv"
)

type Tokenizer struct {
	RustTokenizer    *RustTokenizer
	GoTokenizer      *GoTokenizer
	TokenizerTimings *timings
	Destroy          func() error
	Runtime          string
}

type timings struct {
	NumCalls uint64
	TotalNS  uint64
}

// TokenizerStatistics summarises the Encode calls made on a tokenizer.
type TokenizerStatistics struct {
	TotalTime      time.Duration
	ExecutionCount uint64
	AvgQueryTime   time.Duration
}

// LoadTokenizer loads a huggingface tokenizer.json. path can be the file itself or a
// folder containing it, locally or on s3. backend is "GO" or "RUST".
func LoadTokenizer(path string, backend string) (*Tokenizer, error) {
	if path == "" {
		return nil, fmt.Errorf("tokenizer path is required")
	}
	isDir, err := fileutil.IsDir(path)
	if err != nil {
		return nil, fmt.Errorf("error checking tokenizer path %s: %w", path, err)
	}
	if isDir {
		path = fileutil.PathJoinSafe(path, "tokenizer.json")
	}
	tokenizerBytes, err := fileutil.ReadFileBytes(path)
	if err != nil {
		return nil, err
	}
	switch backend {
	case "RUST":
		return loadRustTokenizer(tokenizerBytes)
	case "GO":
		return loadGoTokenizer(tokenizerBytes)
	default:
		return nil, fmt.Errorf("runtime %s not recognized", backend)
	}
}

// Encode returns the ids of text with the tokenizer's special tokens added.
func (t *Tokenizer) Encode(text string) ([]int64, error) {
	start := time.Now()
	var ids []int64
	var err error
	switch t.Runtime {
	case "RUST":
		ids, err = encodeRust(t, text)
	case "GO":
		ids, err = encodeGo(t, text)
	default:
		err = fmt.Errorf("runtime %s not recognized", t.Runtime)
	}
	t.TokenizerTimings.NumCalls++
	t.TokenizerTimings.TotalNS += safeconv.DurationToU64(time.Since(start))
	return ids, err
}

// TokenID returns the vocabulary id of token.
func (t *Tokenizer) TokenID(token string) (int64, bool) {
	switch t.Runtime {
	case "RUST":
		return tokenIDRust(t, token)
	case "GO":
		return tokenIDGo(t, token)
	}
	return 0, false
}

func (t *Tokenizer) GetStatistics() TokenizerStatistics {
	return TokenizerStatistics{
		TotalTime:      safeconv.U64ToDuration(t.TokenizerTimings.TotalNS),
		ExecutionCount: t.TokenizerTimings.NumCalls,
		AvgQueryTime: time.Duration(float64(t.TokenizerTimings.TotalNS) /
			math.Max(1, float64(t.TokenizerTimings.NumCalls))),
	}
}
