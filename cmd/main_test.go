package main

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knights-analytics/colbert/datasets"
)

const testTokenizer = "../testData/tokenizer"

const testQueries = "1\twhat is colbert\n2\thow are passages scored\n"

const testCollection = "10\tColBERT encodes queries and passages into token embeddings\tColBERT\n" +
	"11\tThe Eiffel Tower is in Paris\tEiffel Tower\n" +
	"12\tLate interaction scores passages with MaxSim\tScoring\n" +
	"13\tBananas are yellow\tFruit\n"

const testTriples = "[1, 10, 11]\n[2, 12, 13]\n[1, 10, 13]\n[2, 12, 11]\n[1, 10, 12]\n"

func check(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s", err.Error())
	}
}

func writeTestData(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	check(t, os.WriteFile(path.Join(dir, "queries.tsv"), []byte(testQueries), os.ModePerm))
	check(t, os.WriteFile(path.Join(dir, "collection.tsv"), []byte(testCollection), os.ModePerm))
	check(t, os.WriteFile(path.Join(dir, "triples.jsonl"), []byte(testTriples), os.ModePerm))
	return dir
}

func dataArgs(dir string) []string {
	return []string{
		fmt.Sprintf("--triples=%s", path.Join(dir, "triples.jsonl")),
		fmt.Sprintf("--queries=%s", path.Join(dir, "queries.tsv")),
		fmt.Sprintf("--collection=%s", path.Join(dir, "collection.tsv")),
	}
}

func run(t *testing.T, command string, args ...string) error {
	t.Helper()
	baseArgs := append(os.Args[0:1:1], command)
	return newApp().Run(append(baseArgs, args...))
}

func readOutput[T any](t *testing.T, outputFile string) []T {
	t.Helper()
	result, err := os.ReadFile(outputFile)
	check(t, err)
	var values []T
	for _, line := range bytes.Split(bytes.TrimSpace(result), []byte("\n")) {
		var value T
		check(t, json.Unmarshal(line, &value))
		values = append(values, value)
	}
	return values
}

func TestInspectCli(t *testing.T) {
	dir := writeTestData(t)
	outputFile := filepath.Join(dir, "inspect.jsonl")

	check(t, run(t, "inspect", append(dataArgs(dir), "--rank=1", "--nranks=2", fmt.Sprintf("--output=%s", outputFile))...))

	resolved := readOutput[datasets.ResolvedTriple](t, outputFile)
	assert.Equal(t, []datasets.ResolvedTriple{
		{
			Query:    "how are passages scored",
			Positive: "Scoring | Late interaction scores passages with MaxSim",
			Negative: "Fruit | Bananas are yellow",
		},
		{
			Query:    "how are passages scored",
			Positive: "Scoring | Late interaction scores passages with MaxSim",
			Negative: "Eiffel Tower | The Eiffel Tower is in Paris",
		},
	}, resolved)
}

func TestInspectCliMissingPassage(t *testing.T) {
	dir := writeTestData(t)
	check(t, os.WriteFile(path.Join(dir, "triples.jsonl"), []byte("[1, 10, 99]\n"), os.ModePerm))

	err := run(t, "inspect", append(dataArgs(dir), fmt.Sprintf("--output=%s", filepath.Join(dir, "out.jsonl")))...)
	assert.ErrorContains(t, err, "unknown passage id 99")

	err = run(t, "inspect", append(dataArgs(dir), "--strict", fmt.Sprintf("--output=%s", filepath.Join(dir, "out.jsonl")))...)
	assert.ErrorContains(t, err, "unknown passage id 99")
}

func TestInspectCliConfigFile(t *testing.T) {
	dir := writeTestData(t)
	config := fmt.Sprintf(`{"validTriples": %q, "validQueries": %q, "collection": %q, "rank": 0, "nranks": 5}`,
		path.Join(dir, "triples.jsonl"), path.Join(dir, "queries.tsv"), path.Join(dir, "collection.tsv"))
	configFile := path.Join(dir, "config.json")
	check(t, os.WriteFile(configFile, []byte(config), os.ModePerm))
	outputFile := filepath.Join(dir, "inspect.jsonl")

	check(t, run(t, "inspect", fmt.Sprintf("--config=%s", configFile), fmt.Sprintf("--output=%s", outputFile)))
	resolved := readOutput[datasets.ResolvedTriple](t, outputFile)
	require.Len(t, resolved, 1)
	assert.Equal(t, "what is colbert", resolved[0].Query)
}

func writeConfig(t *testing.T, dir string, extra string) string {
	t.Helper()
	config := fmt.Sprintf(`{"validTriples": %q, "validQueries": %q, "collection": %q, %s}`,
		path.Join(dir, "triples.jsonl"), path.Join(dir, "queries.tsv"), path.Join(dir, "collection.tsv"), extra)
	configFile := path.Join(dir, "config.json")
	check(t, os.WriteFile(configFile, []byte(config), os.ModePerm))
	return configFile
}

func TestInspectCliConfigWithShardFlag(t *testing.T) {
	dir := writeTestData(t)
	outputFile := filepath.Join(dir, "inspect.jsonl")

	// nranks comes from the config, rank from the flag
	configFile := writeConfig(t, dir, `"nranks": 2`)
	check(t, run(t, "inspect", fmt.Sprintf("--config=%s", configFile), "--rank=1", fmt.Sprintf("--output=%s", outputFile)))
	resolved := readOutput[datasets.ResolvedTriple](t, outputFile)
	require.Len(t, resolved, 2)
	assert.Equal(t, "how are passages scored", resolved[0].Query)

	// rank comes from the config, nranks from the flag
	configFile = writeConfig(t, dir, `"rank": 3`)
	check(t, run(t, "inspect", fmt.Sprintf("--config=%s", configFile), "--nranks=4", fmt.Sprintf("--output=%s", outputFile)))
	resolved = readOutput[datasets.ResolvedTriple](t, outputFile)
	require.Len(t, resolved, 1)
	assert.Equal(t, "how are passages scored", resolved[0].Query)
	assert.Equal(t, "Eiffel Tower | The Eiffel Tower is in Paris", resolved[0].Negative)

	configFile = writeConfig(t, dir, `"rank": 3`)
	err := run(t, "inspect", fmt.Sprintf("--config=%s", configFile), "--nranks=2", fmt.Sprintf("--output=%s", outputFile))
	assert.ErrorContains(t, err, "rank must be in [0, 2), got 3")
}

func TestInspectCliStrictFlagOverridesConfig(t *testing.T) {
	dir := writeTestData(t)
	check(t, os.WriteFile(path.Join(dir, "triples.jsonl"), []byte("[1, 10, 11]\n[1, 10, 99]\n"), os.ModePerm))
	outputFile := filepath.Join(dir, "inspect.jsonl")
	configFile := writeConfig(t, dir, `"strictReferences": true, "nranks": 2`)

	err := run(t, "inspect", fmt.Sprintf("--config=%s", configFile), fmt.Sprintf("--output=%s", outputFile))
	assert.ErrorContains(t, err, "unknown passage id 99")

	// the second triple is outside shard 0 so only the strict check sees it
	check(t, run(t, "inspect", fmt.Sprintf("--config=%s", configFile), "--strict=false", fmt.Sprintf("--output=%s", outputFile)))
	resolved := readOutput[datasets.ResolvedTriple](t, outputFile)
	require.Len(t, resolved, 1)
}

func TestShardsCli(t *testing.T) {
	dir := writeTestData(t)
	outputFile := filepath.Join(dir, "shards.jsonl")

	check(t, run(t, "shards", fmt.Sprintf("--triples=%s", path.Join(dir, "triples.jsonl")), "--nranks=3", fmt.Sprintf("--output=%s", outputFile)))

	shards := readOutput[shardOutput](t, outputFile)
	assert.Equal(t, []shardOutput{
		{Rank: 0, Triples: 2},
		{Rank: 1, Triples: 2},
		{Rank: 2, Triples: 1},
	}, shards)
}

func TestShardsCliMalformedTriple(t *testing.T) {
	dir := writeTestData(t)
	check(t, os.WriteFile(path.Join(dir, "triples.jsonl"), []byte("[1, 10, 11]\n[2, 12]\n"), os.ModePerm))

	err := run(t, "shards", fmt.Sprintf("--triples=%s", path.Join(dir, "triples.jsonl")), "--nranks=2", fmt.Sprintf("--output=%s", filepath.Join(dir, "out.jsonl")))
	assert.ErrorIs(t, err, datasets.ErrMalformedLine)
	assert.ErrorContains(t, err, "shard 1")
}

func TestValidateCli(t *testing.T) {
	dir := writeTestData(t)
	outputFile := filepath.Join(dir, "validate.jsonl")

	check(t, run(t, "validate", append(dataArgs(dir),
		fmt.Sprintf("--tokenizer=%s", testTokenizer),
		"--queryMaxlen=16",
		"--docMaxlen=8",
		fmt.Sprintf("--output=%s", outputFile))...))

	steps := readOutput[stepOutput](t, outputFile)
	require.Len(t, steps, strings.Count(testTriples, "\n"))
	for i, step := range steps {
		assert.Equal(t, i, step.Step)
		assert.Equal(t, []int{2, 16}, step.QueryShape)
		assert.Equal(t, 2, step.DocShape[0])
		assert.LessOrEqual(t, step.DocShape[1], 8)
		assert.LessOrEqual(t, step.PositiveTokens, int64(8))
		assert.LessOrEqual(t, step.NegativeTokens, int64(8))
		assert.Greater(t, step.QueryTokens, int64(3))
	}
}
