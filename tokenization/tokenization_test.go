package tokenization

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func check(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err.Error())
	}
}

// whitespaceEncoder mimics a bert tokenizer on a tiny vocabulary: one token per word,
// wrapped in [CLS] and [SEP].
type whitespaceEncoder struct {
	vocab map[string]int64
	fail  bool
}

func newWhitespaceEncoder() *whitespaceEncoder {
	return &whitespaceEncoder{vocab: map[string]int64{
		"[PAD]":     0,
		"[unused0]": 1,
		"[unused1]": 2,
		"[UNK]":     100,
		"[CLS]":     101,
		"[SEP]":     102,
		"[MASK]":    103,
		".":         1012,
		"hello":     7592,
		"world":     2088,
		"short":     2460,
		"long":      2146,
		"passage":   6019,
	}}
}

func (e *whitespaceEncoder) Encode(text string) ([]int64, error) {
	if e.fail {
		return nil, errors.New("encode failed")
	}
	ids := []int64{e.vocab["[CLS]"]}
	for _, word := range strings.Fields(text) {
		id, ok := e.vocab[word]
		if !ok {
			id = e.vocab["[UNK]"]
		}
		ids = append(ids, id)
	}
	return append(ids, e.vocab["[SEP]"]), nil
}

func (e *whitespaceEncoder) TokenID(token string) (int64, bool) {
	id, ok := e.vocab[token]
	return id, ok
}

func int64Data(t *testing.T, dense *tensor.Dense) []int64 {
	t.Helper()
	data, ok := dense.Data().([]int64)
	require.True(t, ok, "tensor is not int64")
	return data
}

func TestQueryTokenizer(t *testing.T) {
	q, err := NewQueryTokenizer(newWhitespaceEncoder(), 8, "[unused0]")
	check(t, err)

	seqs, err := q.Encode([]string{"hello world", "hello"})
	check(t, err)
	assert.Equal(t, [][]int64{
		{101, 1, 7592, 2088, 102, 103, 103, 103},
		{101, 1, 7592, 102, 103, 103, 103, 103},
	}, seqs.IDs)
	assert.Equal(t, [][]int64{
		{1, 1, 1, 1, 1, 0, 0, 0},
		{1, 1, 1, 1, 0, 0, 0, 0},
	}, seqs.Mask)

	ids, mask, err := q.Tensorize([]string{"hello world"})
	check(t, err)
	assert.Equal(t, tensor.Shape{1, 8}, ids.Shape())
	assert.Equal(t, tensor.Shape{1, 8}, mask.Shape())
	assert.Equal(t, []int64{101, 1, 7592, 2088, 102, 103, 103, 103}, int64Data(t, ids))
}

func TestQueryTokenizerTruncates(t *testing.T) {
	q, err := NewQueryTokenizer(newWhitespaceEncoder(), 4, "[unused0]")
	check(t, err)
	seqs, err := q.Encode([]string{"hello world hello world"})
	check(t, err)
	assert.Equal(t, [][]int64{{101, 1, 7592, 102}}, seqs.IDs)
	assert.Equal(t, [][]int64{{1, 1, 1, 1}}, seqs.Mask)
}

func TestDocTokenizer(t *testing.T) {
	d, err := NewDocTokenizer(newWhitespaceEncoder(), 6, "[unused1]")
	check(t, err)

	seqs, err := d.Encode([]string{"hello", "hello world", "long long long long passage"})
	check(t, err)
	assert.Equal(t, 6, seqs.Width())
	assert.Equal(t, [][]int64{
		{101, 2, 7592, 102, 0, 0},
		{101, 2, 7592, 2088, 102, 0},
		{101, 2, 2146, 2146, 2146, 102},
	}, seqs.IDs)
	assert.Equal(t, [][]int64{
		{1, 1, 1, 1, 0, 0},
		{1, 1, 1, 1, 1, 0},
		{1, 1, 1, 1, 1, 1},
	}, seqs.Mask)

	ids, _, err := d.Tensorize([]string{"hello", "hello world"})
	check(t, err)
	assert.Equal(t, tensor.Shape{2, 5}, ids.Shape())
}

func TestMissingTokens(t *testing.T) {
	_, err := NewQueryTokenizer(newWhitespaceEncoder(), 8, "[Q]")
	assert.ErrorContains(t, err, "[Q]")
	_, err = NewDocTokenizer(newWhitespaceEncoder(), 8, "[D]")
	assert.ErrorContains(t, err, "[D]")

	noMask := newWhitespaceEncoder()
	delete(noMask.vocab, "[MASK]")
	_, err = NewQueryTokenizer(noMask, 8, "[unused0]")
	assert.ErrorContains(t, err, "[MASK]")

	_, err = NewQueryTokenizer(newWhitespaceEncoder(), 2, "[unused0]")
	assert.Error(t, err)
}

func TestTensorizeSingleTriple(t *testing.T) {
	encoder := newWhitespaceEncoder()
	q, err := NewQueryTokenizer(encoder, 6, "[unused0]")
	check(t, err)
	d, err := NewDocTokenizer(encoder, 10, "[unused1]")
	check(t, err)

	batches, err := TripleTensorizer(q, d)([]string{"hello"}, []string{"short passage"}, []string{"long"}, 1)
	check(t, err)
	require.Len(t, batches, 1)
	batch := batches[0]

	assert.Equal(t, tensor.Shape{2, 6}, batch.QueryIDs.Shape())
	assert.Equal(t, []int64{
		101, 1, 7592, 102, 103, 103,
		101, 1, 7592, 102, 103, 103,
	}, int64Data(t, batch.QueryIDs))
	assert.Equal(t, []int64{
		1, 1, 1, 1, 0, 0,
		1, 1, 1, 1, 0, 0,
	}, int64Data(t, batch.QueryMask))

	assert.Equal(t, tensor.Shape{2, 5}, batch.DocIDs.Shape())
	assert.Equal(t, []int64{
		101, 2, 2460, 6019, 102,
		101, 2, 2146, 102, 0,
	}, int64Data(t, batch.DocIDs))
	assert.Equal(t, []int64{
		1, 1, 1, 1, 1,
		1, 1, 1, 1, 0,
	}, int64Data(t, batch.DocMask))
}

func TestTensorizeOrdersByLongestPassage(t *testing.T) {
	encoder := newWhitespaceEncoder()
	q, err := NewQueryTokenizer(encoder, 4, "[unused0]")
	check(t, err)
	d, err := NewDocTokenizer(encoder, 10, "[unused1]")
	check(t, err)

	batches, err := TensorizeTriples(q, d,
		[]string{"hello", "world"},
		[]string{"long long long", "short"},
		[]string{"short", "short"},
		1,
	)
	check(t, err)
	require.Len(t, batches, 2)
	// the second triple has the shorter passages and comes first
	assert.Equal(t, []int64{101, 1, 2088, 102, 101, 1, 2088, 102}, int64Data(t, batches[0].QueryIDs))
	assert.Equal(t, []int64{101, 1, 7592, 102, 101, 1, 7592, 102}, int64Data(t, batches[1].QueryIDs))
	// documents keep the width of the longest passage of the whole call
	assert.Equal(t, tensor.Shape{2, 6}, batches[0].DocIDs.Shape())

	batches, err = TensorizeTriples(q, d,
		[]string{"hello", "world"},
		[]string{"long long long", "short"},
		[]string{"short", "passage"},
		2,
	)
	check(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, tensor.Shape{4, 4}, batches[0].QueryIDs.Shape())
	assert.Equal(t, []int64{
		101, 2, 2460, 102, 0, 0, // positive of "world"
		101, 2, 2146, 2146, 2146, 102, // positive of "hello"
		101, 2, 6019, 102, 0, 0, // negative of "world"
		101, 2, 2460, 102, 0, 0, // negative of "hello"
	}, int64Data(t, batches[0].DocIDs))
}

func TestTensorizeErrors(t *testing.T) {
	encoder := newWhitespaceEncoder()
	q, err := NewQueryTokenizer(encoder, 4, "[unused0]")
	check(t, err)
	d, err := NewDocTokenizer(encoder, 10, "[unused1]")
	check(t, err)

	_, err = TensorizeTriples(q, d, []string{"a"}, []string{"b", "c"}, []string{"d"}, 1)
	assert.Error(t, err)
	_, err = TensorizeTriples(q, d, []string{"a", "b", "c"}, []string{"a", "b", "c"}, []string{"a", "b", "c"}, 2)
	assert.Error(t, err)
	_, err = TensorizeTriples(q, d, []string{"a"}, []string{"b"}, []string{"c"}, 0)
	assert.Error(t, err)

	encoder.fail = true
	_, err = TensorizeTriples(q, d, []string{"a"}, []string{"b"}, []string{"c"}, 1)
	assert.EqualError(t, err, "encode failed")
}
