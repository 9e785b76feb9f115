package tokenization

import (
	"fmt"
	"slices"

	"gorgonia.org/tensor"
)

// TripleBatch holds the model inputs for bsize triples. The query rows are repeated twice so
// that row i of the queries lines up with the positive passage and row bsize+i with the
// negative one.
type TripleBatch struct {
	QueryIDs  *tensor.Dense // [2*bsize, query maxlen]
	QueryMask *tensor.Dense
	DocIDs    *tensor.Dense // [2*bsize, longest passage]
	DocMask   *tensor.Dense
}

// TensorizeTriples tokenizes the queries and the passages, orders the triples by the
// length of their longer passage and splits them into batches of bsize.
func TensorizeTriples(q *QueryTokenizer, d *DocTokenizer, queries, positives, negatives []string, bsize int) ([]TripleBatch, error) {
	n := len(queries)
	if len(positives) != n || len(negatives) != n {
		return nil, fmt.Errorf("got %d queries, %d positives and %d negatives", n, len(positives), len(negatives))
	}
	if bsize <= 0 {
		return nil, fmt.Errorf("bsize must be greater than 0, got %d", bsize)
	}
	if n%bsize != 0 {
		return nil, fmt.Errorf("%d triples cannot be split into batches of %d", n, bsize)
	}

	qSeqs, err := q.Encode(queries)
	if err != nil {
		return nil, err
	}
	dSeqs, err := d.Encode(slices.Concat(positives, negatives))
	if err != nil {
		return nil, err
	}

	maxLens := make([]int64, n)
	for i := range n {
		maxLens[i] = max(sum(dSeqs.Mask[i]), sum(dSeqs.Mask[n+i]))
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case maxLens[a] < maxLens[b]:
			return -1
		case maxLens[a] > maxLens[b]:
			return 1
		}
		return 0
	})

	batches := make([]TripleBatch, 0, n/bsize)
	for start := 0; start < n; start += bsize {
		var qBatch, dBatch Sequences
		for _, i := range order[start : start+bsize] {
			qBatch.IDs = append(qBatch.IDs, qSeqs.IDs[i])
			qBatch.Mask = append(qBatch.Mask, qSeqs.Mask[i])
			dBatch.IDs = append(dBatch.IDs, dSeqs.IDs[i])
			dBatch.Mask = append(dBatch.Mask, dSeqs.Mask[i])
		}
		for _, i := range order[start : start+bsize] {
			dBatch.IDs = append(dBatch.IDs, dSeqs.IDs[n+i])
			dBatch.Mask = append(dBatch.Mask, dSeqs.Mask[n+i])
		}
		qBatch.IDs = slices.Concat(qBatch.IDs, qBatch.IDs)
		qBatch.Mask = slices.Concat(qBatch.Mask, qBatch.Mask)

		var batch TripleBatch
		batch.QueryIDs, batch.QueryMask = qBatch.Tensors()
		batch.DocIDs, batch.DocMask = dBatch.Tensors()
		batches = append(batches, batch)
	}
	return batches, nil
}

// TripleTensorizer binds TensorizeTriples to a pair of tokenizers.
func TripleTensorizer(q *QueryTokenizer, d *DocTokenizer) func(queries, positives, negatives []string, bsize int) ([]TripleBatch, error) {
	return func(queries, positives, negatives []string, bsize int) ([]TripleBatch, error) {
		return TensorizeTriples(q, d, queries, positives, negatives, bsize)
	}
}

func sum(values []int64) int64 {
	var total int64
	for _, v := range values {
		total += v
	}
	return total
}
