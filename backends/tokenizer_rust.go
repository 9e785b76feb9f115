//go:build cgo && (RUST || ALL)

package backends

import (
	"errors"
	"fmt"

	"github.com/daulet/tokenizers"
	jsoniter "github.com/json-iterator/go"

	"github.com/knights-analytics/colbert/util/safeconv"
)

type RustTokenizer struct {
	Tokenizer *tokenizers.Tokenizer
	vocab     map[string]int64
}

// tokenizerVocab is the part of tokenizer.json needed for token to id lookups,
// which the rust bindings do not expose.
type tokenizerVocab struct {
	AddedTokens []struct {
		Content string `json:"content"`
		ID      int64  `json:"id"`
	} `json:"added_tokens"`
	Model struct {
		Vocab jsoniter.RawMessage `json:"vocab"`
	} `json:"model"`
}

func loadRustTokenizer(tokenizerBytes []byte) (*Tokenizer, error) {
	vocab, err := parseVocab(tokenizerBytes)
	if err != nil {
		return nil, err
	}
	tk, tkErr := tokenizers.FromBytes(tokenizerBytes)
	if tkErr != nil {
		return nil, tkErr
	}
	return &Tokenizer{Runtime: "RUST", RustTokenizer: &RustTokenizer{Tokenizer: tk, vocab: vocab}, TokenizerTimings: &timings{}, Destroy: func() error {
		return tk.Close()
	}}, nil
}

func parseVocab(tokenizerBytes []byte) (map[string]int64, error) {
	var parsed tokenizerVocab
	if err := jsoniter.Unmarshal(tokenizerBytes, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse tokenizer.json: %w", err)
	}
	vocab := map[string]int64{}
	// wordpiece and bpe store the vocabulary as an object, unigram as a list of [token, score]
	if len(parsed.Model.Vocab) > 0 && parsed.Model.Vocab[0] == '{' {
		if err := jsoniter.Unmarshal(parsed.Model.Vocab, &vocab); err != nil {
			return nil, fmt.Errorf("failed to parse tokenizer vocabulary: %w", err)
		}
	} else if len(parsed.Model.Vocab) > 0 {
		var entries [][]any
		if err := jsoniter.Unmarshal(parsed.Model.Vocab, &entries); err != nil {
			return nil, fmt.Errorf("failed to parse tokenizer vocabulary: %w", err)
		}
		for i, entry := range entries {
			if len(entry) == 0 {
				return nil, errors.New("empty tokenizer vocabulary entry")
			}
			if token, ok := entry[0].(string); ok {
				vocab[token] = int64(i)
			}
		}
	}
	for _, added := range parsed.AddedTokens {
		vocab[added.Content] = added.ID
	}
	return vocab, nil
}

func encodeRust(tk *Tokenizer, input string) ([]int64, error) {
	ids, _ := tk.RustTokenizer.Tokenizer.Encode(input, true)
	return safeconv.Uint32SliceToInt64Slice(ids), nil
}

func tokenIDRust(tk *Tokenizer, token string) (int64, bool) {
	id, ok := tk.RustTokenizer.vocab[token]
	return id, ok
}
