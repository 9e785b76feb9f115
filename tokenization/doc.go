package tokenization

import (
	"fmt"

	"gorgonia.org/tensor"
)

// DocTokenizer encodes passages as [CLS] [D] passage... [SEP], truncated to MaxLen and
// padded with [PAD] to the longest passage of the batch.
type DocTokenizer struct {
	encoder  Encoder
	MaxLen   int
	markerID int64
	padID    int64
}

func NewDocTokenizer(encoder Encoder, maxLen int, marker string) (*DocTokenizer, error) {
	if maxLen < 3 {
		return nil, fmt.Errorf("doc maxlen must be at least 3, got %d", maxLen)
	}
	markerID, err := lookupToken(encoder, marker)
	if err != nil {
		return nil, err
	}
	// vocabularies without a pad token pad with id 0
	padID, _ := encoder.TokenID(padToken)
	return &DocTokenizer{encoder: encoder, MaxLen: maxLen, markerID: markerID, padID: padID}, nil
}

// Encode returns one row per passage, all as wide as the longest encoded passage.
func (t *DocTokenizer) Encode(docs []string) (Sequences, error) {
	rows := make([][]int64, len(docs))
	width := 0
	for i, doc := range docs {
		ids, err := markedIDs(t.encoder, doc, t.MaxLen, t.markerID)
		if err != nil {
			return Sequences{}, err
		}
		rows[i] = ids
		width = max(width, len(ids))
	}
	return pad(rows, width, t.padID), nil
}

// Tensorize is Encode packed into [len(docs), longest] tensors.
func (t *DocTokenizer) Tensorize(docs []string) (ids *tensor.Dense, mask *tensor.Dense, err error) {
	seqs, err := t.Encode(docs)
	if err != nil {
		return nil, nil, err
	}
	ids, mask = seqs.Tensors()
	return ids, mask, nil
}
