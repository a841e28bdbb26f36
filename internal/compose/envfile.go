package compose

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"
)

// RewriteEnvValue replaces the value of a single key in an env file, leaving
// every other line byte-for-byte untouched, and reports whether the key was
// found. A missing file or a missing key is not an error; the caller decides
// whether that deserves a warning.
func RewriteEnvValue(path, key, value string) (bool, error) {
	data, err := os.ReadFile(path) // #nosec G304 - env file inside the restore target
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read env file %q: %w", path, err)
	}

	var out bytes.Buffer
	found := false

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if !found && envLineHasKey(line, key) {
			fmt.Fprintf(&out, "%s=%s\n", key, value)
			found = true
			continue
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return false, fmt.Errorf("failed to scan env file %q: %w", path, err)
	}

	if !found {
		return false, nil
	}

	if err := os.WriteFile(path, out.Bytes(), 0600); err != nil {
		return false, fmt.Errorf("failed to write env file %q: %w", path, err)
	}
	return true, nil
}

// ReadEnvValue returns the value of a key in an env file, or "" when the file
// or the key does not exist.
func ReadEnvValue(path, key string) (string, error) {
	data, err := os.ReadFile(path) // #nosec G304 - env file inside the restore target
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read env file %q: %w", path, err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if envLineHasKey(line, key) {
			_, val, _ := strings.Cut(strings.TrimSpace(line), "=")
			return strings.TrimSpace(val), nil
		}
	}
	return "", scanner.Err()
}

func envLineHasKey(line, key string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return false
	}
	// Allow lines like: export KEY=...
	trimmed = strings.TrimPrefix(trimmed, "export ")
	k, _, ok := strings.Cut(trimmed, "=")
	return ok && strings.TrimSpace(k) == key
}
