package main

import (
	"os"
	"strings"

	"github.com/knights-analytics/colbert"
	"github.com/knights-analytics/colbert/util/fileutil"
)

// download the tokenizers used by the tests.

var tokenizers = []string{
	"KnightsAnalytics/all-MiniLM-L6-v2",
}

func main() {
	if ok, err := fileutil.FileExists("./models"); err == nil {
		if !ok {
			err = os.MkdirAll("./models", os.ModePerm)
			if err != nil {
				panic(err)
			}
		}
		for _, name := range tokenizers {
			if ok, err = fileutil.FileExists("./models/" + strings.ReplaceAll(name, "/", "_")); err == nil {
				if !ok {
					if _, dlErr := colbert.DownloadTokenizer(name, "./models", colbert.NewDownloadOptions()); dlErr != nil {
						panic(dlErr)
					}
				}
			} else {
				panic(err)
			}
		}
	} else {
		panic(err)
	}
}
