package fileutil

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/option"
	"github.com/viant/afs/option/content"
	_ "github.com/viant/afsc/s3"
)

var fileSystem = afs.New()

const partSize = 64 * 1024 * 1024

// LineHandler is called once per line by ReadLines. lineIdx is zero based and counts every
// line of the file, including the ones the handler decides to ignore.
type LineHandler func(lineIdx int, line []byte) error

func ReadFileBytes(filename string) (outBytes []byte, err error) {
	file, err := OpenFile(filename)
	if err != nil {
		return nil, err
	}
	defer func(file io.Closer) {
		err = errors.Join(err, CloseFile(file))
	}(file)

	outBytes, err = io.ReadAll(file)
	return outBytes, err
}

func CloseFile(file io.Closer) error {
	return file.Close()
}

func GetPathType(path string) string {
	if strings.HasPrefix(path, "s3://") {
		return "S3"
	}
	return "os"
}

func OpenFile(filename string) (io.ReadCloser, error) {
	reader, err := fileSystem.OpenURL(context.Background(), filename)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", filename, err)
	}
	return reader, nil
}

// ReadLine returns a single line (without the ending \n)
// from the input buffered reader.
// An error is returned if there is an error with the
// buffered reader.
// This function is needed to avoid the 65K char line limit.
func ReadLine(r *bufio.Reader) ([]byte, error) {
	var (
		isPrefix = true
		err      error
		line, ln []byte
	)
	for isPrefix && err == nil {
		line, isPrefix, err = r.ReadLine()
		ln = append(ln, line...)
	}
	return ln, err
}

// ReadLines opens filename, calls handler for every line in order and closes the file
// before returning. A trailing newline at the end of the file does not produce an extra
// empty line. The first handler error stops the read and is returned as is.
func ReadLines(filename string, handler LineHandler) (err error) {
	file, err := OpenFile(filename)
	if err != nil {
		return err
	}
	defer func(file io.Closer) {
		err = errors.Join(err, CloseFile(file))
	}(file)

	reader := bufio.NewReader(file)
	for lineIdx := 0; ; lineIdx++ {
		line, readErr := ReadLine(reader)
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("reading %s: %w", filename, readErr)
		}
		if handlerErr := handler(lineIdx, line); handlerErr != nil {
			return handlerErr
		}
	}
}

// CountLines returns the number of lines ReadLines would visit.
func CountLines(filename string) (int, error) {
	count := 0
	err := ReadLines(filename, func(int, []byte) error {
		count++
		return nil
	})
	return count, err
}

// PathJoinSafe wrapper around filepath.Join to ensure that paths are correctly constructed
// if the path is a normal OS path, just use filepath.Join
// if the path is S3, trim any trailing slashes and construct it manually from the components
// so that double slashes (e.g. s3://) are preserved.
func PathJoinSafe(elem ...string) string {
	var path string

	switch GetPathType(elem[0]) {
	case "S3":
		basePath := strings.TrimSuffix(elem[0], "/")
		path = basePath + "/" + filepath.Join(elem[1:]...)
	default:
		path = filepath.Join(elem...)
	}
	return path
}

func CopyFile(ctx context.Context, from string, to string) error {
	return fileSystem.Copy(ctx, from, to, option.NewSource(option.NewStream(partSize, 0)), option.NewDest(option.NewSkipChecksum(true)))
}

func CreateFile(fileName string, isDir bool) error {
	return fileSystem.Create(context.Background(), fileName, os.ModePerm, isDir)
}

func FileExists(filename string) (bool, error) {
	return fileSystem.Exists(context.Background(), filename)
}

// IsDir reports whether filename points at a directory.
func IsDir(filename string) (bool, error) {
	object, err := fileSystem.Object(context.Background(), filename)
	if err != nil {
		return false, err
	}
	return object.IsDir(), nil
}

func NewFileWriter(filename string, contentType string) (io.WriteCloser, error) {
	exists, err := FileExists(filename)
	if err != nil {
		return nil, err
	}
	if exists {
		err = fileSystem.Delete(context.Background(), filename)
		if err != nil {
			return nil, err
		}
	}
	if contentType != "" {
		return fileSystem.NewWriter(context.Background(), filename, 0o644, content.NewMeta(content.Type, contentType), option.NewSkipChecksum(true))
	}
	return fileSystem.NewWriter(context.Background(), filename, 0o644, option.NewSkipChecksum(true))
}
