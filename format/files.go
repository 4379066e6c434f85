package format

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

var partRegex = regexp.MustCompile(`^(?:(\w+)_)?part_(\d+)\.(\w+)$`)

// PartitionFileName names the n-th partition file. A non-empty prefix
// distinguishes encoders sharing an extension.
func PartitionFileName(prefix string, n int, ext string) string {
	if prefix == "" {
		return fmt.Sprintf("part_%d.%s", n, ext)
	}
	return fmt.Sprintf("%s_part_%d.%s", prefix, n, ext)
}

// FileNameFor names the n-th partition file written by w. Encoders other
// than the default for a format prefix their files.
func FileNameFor(w Writer, n int) string {
	prefix := ""
	if w.Format() == Parquet && w.Encoder() == EncoderArrow {
		prefix = EncoderArrow
	}
	return PartitionFileName(prefix, n, w.Format().Extension())
}

type partFile struct {
	path   string
	prefix string
	n      int
}

// ListPartitionFiles returns the files in dir with the extension of f,
// ordered by prefix and partition number. A missing dir has no files.
func ListPartitionFiles(dir string, f Format) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", dir)
	}

	suffix := "." + f.Extension()
	files := make([]partFile, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !strings.HasSuffix(entry.Name(), suffix) {
			continue
		}
		file := partFile{path: filepath.Join(dir, entry.Name()), prefix: entry.Name(), n: -1}
		if match := partRegex.FindStringSubmatch(entry.Name()); match != nil {
			file.prefix = match[1]
			file.n, _ = strconv.Atoi(match[2])
		}
		files = append(files, file)
	}

	slices.SortFunc(files, func(a, b partFile) bool {
		if a.prefix != b.prefix {
			return a.prefix < b.prefix
		}
		return a.n < b.n
	})

	paths := make([]string, 0, len(files))
	for _, file := range files {
		paths = append(paths, file.path)
	}
	return paths, nil
}
