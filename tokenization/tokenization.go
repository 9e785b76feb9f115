package tokenization

import (
	"fmt"

	"gorgonia.org/tensor"
)

// Encoder is the part of a tokenizer the query and document tokenizers need.
type Encoder interface {
	// Encode returns the token ids of text, including the special tokens the tokenizer adds
	// around a single sequence ([CLS] ... [SEP] for bert-like vocabularies).
	Encode(text string) ([]int64, error)
	// TokenID looks up the id of a single vocabulary token.
	TokenID(token string) (int64, bool)
}

const (
	maskToken = "[MASK]"
	padToken  = "[PAD]"
	// text is prefixed with a placeholder whose token is then overwritten by the marker
	markerPlaceholder = ". "
)

// Sequences holds a batch of token ids and the matching attention mask, one row per input.
type Sequences struct {
	IDs  [][]int64
	Mask [][]int64
}

// Len returns the number of rows.
func (s Sequences) Len() int {
	return len(s.IDs)
}

// Width returns the length of the rows, which are all padded to the same size.
func (s Sequences) Width() int {
	if len(s.IDs) == 0 {
		return 0
	}
	return len(s.IDs[0])
}

// Tensors packs the ids and the mask into two int64 tensors of shape [Len, Width].
func (s Sequences) Tensors() (ids *tensor.Dense, mask *tensor.Dense) {
	return denseOf(s.IDs), denseOf(s.Mask)
}

func denseOf(rows [][]int64) *tensor.Dense {
	width := 0
	if len(rows) > 0 {
		width = len(rows[0])
	}
	backing := make([]int64, 0, len(rows)*width)
	for _, row := range rows {
		backing = append(backing, row...)
	}
	return tensor.New(
		tensor.Of(tensor.Int64),
		tensor.WithShape(len(rows), width),
		tensor.WithBacking(backing),
	)
}

// markedIDs encodes text behind the placeholder, truncates it to maxLen keeping the
// closing special token, and writes markerID at position 1.
func markedIDs(encoder Encoder, text string, maxLen int, markerID int64) ([]int64, error) {
	ids, err := encoder.Encode(markerPlaceholder + text)
	if err != nil {
		return nil, err
	}
	if len(ids) < 2 {
		return nil, fmt.Errorf("tokenizer returned %d tokens for %q, expected at least 2", len(ids), text)
	}
	if len(ids) > maxLen {
		truncated := make([]int64, 0, maxLen)
		truncated = append(truncated, ids[:maxLen-1]...)
		ids = append(truncated, ids[len(ids)-1])
	}
	ids[1] = markerID
	return ids, nil
}

func lookupToken(encoder Encoder, token string) (int64, error) {
	id, ok := encoder.TokenID(token)
	if !ok {
		return 0, fmt.Errorf("token %s not found in tokenizer vocabulary", token)
	}
	return id, nil
}

// pad extends every row to width with padID, marking padded positions with 0 in the mask.
func pad(rows [][]int64, width int, padID int64) Sequences {
	out := Sequences{IDs: make([][]int64, len(rows)), Mask: make([][]int64, len(rows))}
	for i, row := range rows {
		ids := make([]int64, width)
		mask := make([]int64, width)
		for j := range width {
			if j < len(row) {
				ids[j] = row[j]
				mask[j] = 1
			} else {
				ids[j] = padID
			}
		}
		out.IDs[i] = ids
		out.Mask[i] = mask
	}
	return out
}
