package tokenization

import (
	"fmt"

	"gorgonia.org/tensor"
)

// QueryTokenizer encodes queries to exactly MaxLen tokens: [CLS] [Q] query... [SEP],
// padded with [MASK] tokens. The padding is masked out of the attention mask.
type QueryTokenizer struct {
	encoder  Encoder
	MaxLen   int
	markerID int64
	maskID   int64
}

func NewQueryTokenizer(encoder Encoder, maxLen int, marker string) (*QueryTokenizer, error) {
	if maxLen < 3 {
		return nil, fmt.Errorf("query maxlen must be at least 3, got %d", maxLen)
	}
	markerID, err := lookupToken(encoder, marker)
	if err != nil {
		return nil, err
	}
	maskID, err := lookupToken(encoder, maskToken)
	if err != nil {
		return nil, err
	}
	return &QueryTokenizer{encoder: encoder, MaxLen: maxLen, markerID: markerID, maskID: maskID}, nil
}

// Encode returns one row of MaxLen ids per query.
func (t *QueryTokenizer) Encode(queries []string) (Sequences, error) {
	rows := make([][]int64, len(queries))
	for i, query := range queries {
		ids, err := markedIDs(t.encoder, query, t.MaxLen, t.markerID)
		if err != nil {
			return Sequences{}, err
		}
		rows[i] = ids
	}
	return pad(rows, t.MaxLen, t.maskID), nil
}

// Tensorize is Encode packed into [len(queries), MaxLen] tensors.
func (t *QueryTokenizer) Tensorize(queries []string) (ids *tensor.Dense, mask *tensor.Dense, err error) {
	seqs, err := t.Encode(queries)
	if err != nil {
		return nil, nil, err
	}
	ids, mask = seqs.Tensors()
	return ids, mask, nil
}
