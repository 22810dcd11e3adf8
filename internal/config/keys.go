package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// loadKeysFile parses a BES-style keys file: one "Section.Key = value"
// assignment per line, "#" starting a comment, blank lines ignored.
// A missing path is not an error — every key still falls back through
// its environment variable and then its built-in default.
func loadKeysFile(path string) (map[string]string, error) {
	keys := make(map[string]string)
	if path == "" {
		return keys, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return keys, nil
		}
		return nil, fmt.Errorf("open keys file %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		idx := strings.Index(line, "=")
		if idx < 0 {
			return nil, fmt.Errorf("keys file %s:%d: missing '=' in %q", path, lineNo, line)
		}

		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		if key == "" {
			return nil, fmt.Errorf("keys file %s:%d: empty key", path, lineNo)
		}
		keys[key] = val
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read keys file %s: %w", path, err)
	}

	return keys, nil
}
