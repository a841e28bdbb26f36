package snapshot

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
)

// ArchiveInfo is the metadata readable from a snapshot archive without
// extracting any image or volume data.
type ArchiveInfo struct {
	Manifest Manifest
	Images   []string
	Volumes  []string
	Config   []string
}

// Inspect streams through the archive and collects its manifest and
// artifact lists. Payload entries are skipped, so this stays cheap even for
// multi-gigabyte archives.
func Inspect(archivePath string) (*ArchiveInfo, error) {
	f, err := os.Open(archivePath) // #nosec G304 - user-supplied archive path
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			fmt.Printf("Warning: failed to close archive: %v\n", err)
		}
	}()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("%w: not a gzip stream: %v", ErrArchiveCorrupt, err)
	}
	defer func() {
		if err := gz.Close(); err != nil {
			fmt.Printf("Warning: failed to close gzip reader: %v\n", err)
		}
	}()

	info := &ArchiveInfo{}
	var sawManifest bool
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrArchiveCorrupt, err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		// Entry names are rooted at the backup directory, so only the
		// path below it matters.
		name := hdr.Name
		if i := strings.IndexByte(name, '/'); i >= 0 {
			name = name[i+1:]
		}

		switch {
		case name == ManifestFile:
			data, err := io.ReadAll(io.LimitReader(tr, 1<<20))
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrArchiveCorrupt, err)
			}
			if err := json.Unmarshal(data, &info.Manifest); err != nil {
				return nil, fmt.Errorf("%w: malformed manifest: %v", ErrArchiveCorrupt, err)
			}
			sawManifest = true
		case name == ImageListFile:
			info.Images, err = readLines(tr)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrArchiveCorrupt, err)
			}
		case name == VolumeListFile:
			info.Volumes, err = readLines(tr)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrArchiveCorrupt, err)
			}
		case strings.HasPrefix(name, ConfigDir+"/"):
			info.Config = append(info.Config, strings.TrimPrefix(name, ConfigDir+"/"))
		}
	}

	if !sawManifest {
		return nil, fmt.Errorf("%w: missing %s", ErrArchiveCorrupt, ManifestFile)
	}
	if major(info.Manifest.BackupVersion) != major(SchemaVersion) {
		return nil, fmt.Errorf("%w: archive version %s, tool supports %s",
			ErrIncompatibleArchive, info.Manifest.BackupVersion, SchemaVersion)
	}
	return info, nil
}

func readLines(r io.Reader) ([]string, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(r, 1<<20)); err != nil {
		return nil, err
	}
	var lines []string
	for _, line := range strings.Split(buf.String(), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

// DeploymentName derives the deployment name from an archive file name of
// the form <deployment>_backup_<timestamp>.tar.gz, or from a stored
// reference of the form <deployment>@<version>.
func DeploymentName(ref string) string {
	base := strings.TrimSuffix(path.Base(ref), ".tar.gz")
	if i := strings.Index(base, "_backup_"); i > 0 {
		return base[:i]
	}
	if name, _, ok := strings.Cut(base, "@"); ok && name != "" {
		return name
	}
	return base
}
