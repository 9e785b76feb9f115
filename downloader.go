//go:build !NODOWNLOAD

package colbert

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gomlx/go-huggingface/hub"
	"github.com/phuslu/log"

	"github.com/knights-analytics/colbert/util/fileutil"
)

// DownloadOptions is a struct of options that can be passed to DownloadTokenizer.
type DownloadOptions struct {
	Logger                *log.Logger
	AuthToken             string
	Branch                string
	MaxRetries            int
	RetryInterval         int
	ConcurrentConnections int
	Verbose               bool
}

// NewDownloadOptions creates new DownloadOptions struct with default values.
// Override the values to specify different download options.
func NewDownloadOptions() DownloadOptions {
	d := DownloadOptions{}
	d.Logger = &log.DefaultLogger
	d.Branch = "main"
	d.MaxRetries = 5
	d.RetryInterval = 5
	d.ConcurrentConnections = 5
	return d
}

// DownloadTokenizer downloads the tokenizer files of a huggingface model (tokenizer.json plus
// vocab and config files when present) into destination/<org>_<model> and returns that folder,
// which can be passed to options.WithTokenizer.
func DownloadTokenizer(modelName string, destination string, options DownloadOptions) (string, error) {
	modelP := modelName
	if strings.Contains(modelP, ":") {
		modelP = strings.Split(modelName, ":")[0]
	}
	tokenizerPath := path.Join(destination, strings.ReplaceAll(modelP, "/", "_"))

	repo := hub.New(modelName)
	if options.AuthToken != "" {
		repo = repo.WithAuth(options.AuthToken)
	}
	if options.ConcurrentConnections > 0 {
		repo.MaxParallelDownload = options.ConcurrentConnections
	}
	if options.Verbose {
		repo.Verbosity = 1
		repo.WithProgressBar(true)
	} else {
		repo.Verbosity = 0
		repo.WithProgressBar(false)
	}
	if options.Branch != "" {
		repo.WithRevision(options.Branch)
	}

	downloadFiles, err := listTokenizerFiles(repo, modelName, options)
	if err != nil {
		return "", err
	}
	if err = fileutil.CreateFile(tokenizerPath, true); err != nil {
		return "", err
	}

	for i := 0; i < options.MaxRetries; i++ {
		downloadPaths, downloadErr := repo.DownloadFiles(downloadFiles...)
		if downloadErr != nil {
			options.Logger.Warn().Err(downloadErr).Int("attempt", i+1).Int("maxRetries", options.MaxRetries).Msg("tokenizer download failed")
			time.Sleep(time.Duration(options.RetryInterval) * time.Second)
			continue
		}

		for j, downloadPath := range downloadPaths {
			truePath, symErr := filepath.EvalSymlinks(downloadPath)
			if symErr != nil {
				return "", symErr
			}
			copyErr := fileutil.CopyFile(context.Background(), truePath, fileutil.PathJoinSafe(tokenizerPath, path.Base(downloadFiles[j])))
			if copyErr != nil {
				return "", copyErr
			}
		}

		options.Logger.Info().Str("model", modelName).Str("path", tokenizerPath).Msg("tokenizer download completed")
		return tokenizerPath, nil
	}

	return "", fmt.Errorf("failed to download %s after %d attempts", modelName, options.MaxRetries)
}

func listTokenizerFiles(repo *hub.Repo, modelName string, options DownloadOptions) ([]string, error) {
	for i := 0; i < options.MaxRetries; i++ {
		err := repo.DownloadInfo(false)
		if err == nil {
			break
		}
		options.Logger.Warn().Err(err).Int("attempt", i+1).Int("maxRetries", options.MaxRetries).Msg("listing repo failed")
		if i+1 == options.MaxRetries {
			return nil, err
		}
		time.Sleep(time.Duration(options.RetryInterval) * time.Second)
	}

	tokenizerFile := ""
	var toDownload []string
	for fileName, err := range repo.IterFileNames() {
		if err != nil {
			return nil, err
		}
		switch filepath.Base(fileName) {
		case "tokenizer.json":
			tokenizerFile = fileName
		case "special_tokens_map.json", "tokenizer_config.json", "vocab.txt":
			toDownload = append(toDownload, fileName)
		}
	}
	if tokenizerFile == "" {
		return nil, fmt.Errorf("model %s does not have a tokenizer.json file", modelName)
	}
	return append(toDownload, tokenizerFile), nil
}
