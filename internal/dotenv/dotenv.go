// Package dotenv loads KEY=VALUE pairs from an env file into the process
// environment. Variables already set win over file values.
package dotenv

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Load reads the file at path and applies its pairs. A missing file is not
// an error; a broken one is.
func Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read env file %q: %w", path, err)
	}

	for key, val := range parse(string(data)) {
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if err := os.Setenv(key, val); err != nil {
			return fmt.Errorf("set env %q from %q: %w", key, path, err)
		}
	}
	return nil
}

// parse extracts pairs, skipping comments, blank lines, and anything that
// is not KEY=VALUE. A leading "export " and single or double quotes around
// the value are stripped.
func parse(content string) map[string]string {
	pairs := make(map[string]string)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		pairs[key] = unquote(strings.TrimSpace(val))
	}
	return pairs
}

func unquote(val string) string {
	if len(val) < 2 {
		return val
	}
	if (val[0] == '"' && val[len(val)-1] == '"') || (val[0] == '\'' && val[len(val)-1] == '\'') {
		return val[1 : len(val)-1]
	}
	return val
}
