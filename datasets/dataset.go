package datasets

import (
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/phuslu/log"

	"github.com/knights-analytics/colbert/util/fileutil"
)

// Triple is a (query, positive passage, negative passage) id triple.
type Triple struct {
	QueryID    int64
	PositiveID int64
	NegativeID int64
}

// ResolvedTriple is a Triple with its ids replaced by the query and passage texts.
type ResolvedTriple struct {
	Query    string `json:"query"`
	Positive string `json:"positive"`
	Negative string `json:"negative"`
}

// LoadTriples reads the triples file at path, keeping the lines whose zero based index
// modulo nranks equals rank. Lines outside the shard are skipped without being parsed.
// Each kept line must be a json array of exactly three integers.
func LoadTriples(logger *log.Logger, path string, rank, nranks int) ([]Triple, error) {
	logger.Info().Str("path", path).Int("rank", rank).Int("nranks", nranks).Msg("#> Loading valid triples...")

	var triples []Triple
	err := fileutil.ReadLines(path, func(lineIdx int, line []byte) error {
		if lineIdx%nranks != rank {
			return nil
		}
		var ids []int64
		if err := jsoniter.Unmarshal(line, &ids); err != nil {
			return newFormatError(path, lineIdx, "invalid triple: %w", err)
		}
		if len(ids) != 3 {
			return newFormatError(path, lineIdx, "expected 3 ids, got %d", len(ids))
		}
		triples = append(triples, Triple{QueryID: ids[0], PositiveID: ids[1], NegativeID: ids[2]})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return triples, nil
}

// LoadQueries reads a qid<TAB>query file. Repeated ids keep the last query.
func LoadQueries(logger *log.Logger, path string) (map[int64]string, error) {
	logger.Info().Str("path", path).Msg("#> Loading valid queries...")

	queries := map[int64]string{}
	err := fileutil.ReadLines(path, func(lineIdx int, line []byte) error {
		fields := strings.Split(strings.TrimSpace(string(line)), "\t")
		if len(fields) != 2 {
			return newFormatError(path, lineIdx, "expected 2 tab separated fields, got %d", len(fields))
		}
		qid, err := parseID(fields[0])
		if err != nil {
			return newFormatError(path, lineIdx, "invalid query id: %w", err)
		}
		queries[qid] = fields[1]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return queries, nil
}

// LoadCollection reads a pid<TAB>passage<TAB>title[<TAB>...] file into a map of
// pid to "title | passage". Fields after the title are ignored and repeated ids keep
// the last passage.
func LoadCollection(logger *log.Logger, path string) (map[int64]string, error) {
	logger.Info().Str("path", path).Msg("#> Loading collection...")

	collection := map[int64]string{}
	err := fileutil.ReadLines(path, func(lineIdx int, line []byte) error {
		fields := strings.Split(strings.TrimSpace(string(line)), "\t")
		if len(fields) < 3 {
			return newFormatError(path, lineIdx, "expected at least 3 tab separated fields, got %d", len(fields))
		}
		pid, err := parseID(fields[0])
		if err != nil {
			return newFormatError(path, lineIdx, "invalid passage id: %w", err)
		}
		collection[pid] = fields[2] + " | " + fields[1]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return collection, nil
}

func parseID(field string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(field), 10, 64)
}
