package file

import (
	"bufio"
	"os"
	"strings"

	"conductor/internal/cerrors"
)

// ReadPathList reads a manifest file containing one input path per line and
// returns the listed paths in order. Blank lines and lines starting with '#'
// (after trimming) are skipped, so manifests can carry comments and
// separators. Used by the CLI to drive multi-file runs; files are processed
// strictly one after another.
func ReadPathList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, cerrors.FileAccess("cannot open file list "+path, err)
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, cerrors.FileAccess("read file list "+path, err)
	}
	return out, nil
}
