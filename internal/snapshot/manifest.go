package snapshot

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Manifest is the backup_info.json payload at the archive root.
type Manifest struct {
	BackupDate      time.Time `json:"backup_date"`
	BackupVersion   string    `json:"backup_version"`
	Deployment      string    `json:"deployment"`
	CreatedBy       string    `json:"created_by"`
	SourceDirectory string    `json:"source_directory"`
	Files           []string  `json:"files"`
}

// WriteManifest writes backup_info.json into dir.
func WriteManifest(dir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), data, 0600); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// ReadManifest reads backup_info.json from dir.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile)) // #nosec G304 - archive scratch dir
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s missing", ErrArchiveCorrupt, ManifestFile)
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArchiveCorrupt, err)
	}

	if major(m.BackupVersion) != major(SchemaVersion) {
		return nil, fmt.Errorf("%w: archive version %s, tool supports %s",
			ErrIncompatibleArchive, m.BackupVersion, SchemaVersion)
	}

	return &m, nil
}

func major(version string) string {
	m, _, _ := strings.Cut(version, ".")
	return m
}

// WriteList writes one entry per line. An empty list still produces the file
// so restore can tell "no artifacts" from "truncated archive".
func WriteList(path string, entries []string) error {
	var b strings.Builder
	for _, entry := range entries {
		b.WriteString(entry)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// ReadList reads a newline-separated list, skipping blank lines.
func ReadList(path string) ([]string, error) {
	f, err := os.Open(path) // #nosec G304 - archive scratch dir
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s missing", ErrArchiveCorrupt, filepath.Base(path))
		}
		return nil, fmt.Errorf("failed to open %s: %w", filepath.Base(path), err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			fmt.Printf("Warning: failed to close %s: %v\n", filepath.Base(path), err)
		}
	}()

	var entries []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			entries = append(entries, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	return entries, nil
}
