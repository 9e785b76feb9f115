package backends

import (
	"bytes"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"

	"github.com/knights-analytics/colbert/util/safeconv"
)

type GoTokenizer struct {
	Tokenizer *tokenizer.Tokenizer
}

func loadGoTokenizer(tokenizerBytes []byte) (*Tokenizer, error) {
	tk, tkErr := pretrained.FromReader(bytes.NewReader(tokenizerBytes))
	if tkErr != nil {
		return nil, tkErr
	}
	return &Tokenizer{Runtime: "GO", GoTokenizer: &GoTokenizer{Tokenizer: tk}, TokenizerTimings: &timings{}, Destroy: func() error {
		return nil
	}}, nil
}

func encodeGo(tk *Tokenizer, input string) ([]int64, error) {
	output, err := tk.GoTokenizer.Tokenizer.EncodeSingle(input, true)
	if err != nil {
		return nil, err
	}
	return safeconv.IntSliceToInt64Slice(output.Ids), nil
}

func tokenIDGo(tk *Tokenizer, token string) (int64, bool) {
	id, ok := tk.GoTokenizer.Tokenizer.TokenToId(token)
	return int64(id), ok
}
