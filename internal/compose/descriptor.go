// Package compose reads compose-style deployment descriptors and derives
// the image and named-volume inventory of a deployment.
package compose

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	ErrDescriptorNotFound  = errors.New("deployment descriptor not found")
	ErrDescriptorMalformed = errors.New("invalid deployment descriptor")
)

// File represents a parsed deployment descriptor.
type File struct {
	Version  string                  `yaml:"version,omitempty"`
	Services map[string]Service      `yaml:"services"`
	Volumes  map[string]VolumeConfig `yaml:"volumes,omitempty"`
}

// Service is a single service declaration. Only the fields the snapshot
// tool cares about are mapped; everything else is carried verbatim in the
// config copy, not through this struct.
type Service struct {
	Image   string   `yaml:"image,omitempty"`
	Volumes []string `yaml:"volumes,omitempty"`
	EnvFile any      `yaml:"env_file,omitempty"`
}

// VolumeConfig is a top-level named volume declaration.
type VolumeConfig struct {
	Driver   string `yaml:"driver,omitempty"`
	External any    `yaml:"external,omitempty"`
	Name     string `yaml:"name,omitempty"`
}

// Inventory is the deduplicated, sorted set of artifacts a deployment
// references. It is rebuilt from the descriptor on every backup run; the
// copy packaged into the archive is what restore works from.
type Inventory struct {
	Images  []string
	Volumes []string
}

// Empty reports whether the inventory references no artifacts at all.
func (inv Inventory) Empty() bool {
	return len(inv.Images) == 0 && len(inv.Volumes) == 0
}

// descriptorNames are the file names probed by FindDescriptor, in
// preference order.
var descriptorNames = []string{
	"compose.yaml",
	"compose.yml",
	"docker-compose.yml",
	"docker-compose.yaml",
}

// FindDescriptor locates the deployment descriptor inside dir.
func FindDescriptor(dir string) (string, error) {
	for _, name := range descriptorNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: no compose file in %s", ErrDescriptorNotFound, dir)
}

// Load parses a deployment descriptor file.
//
// The descriptor is parsed structurally, so a service-level key that happens
// to be spelled "volumes" is never confused with the top-level volumes block.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path) // #nosec G304 - user-supplied descriptor path
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrDescriptorNotFound, path)
		}
		return nil, fmt.Errorf("failed to read descriptor: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDescriptorMalformed, err)
	}

	return &file, nil
}

// Inventory derives the image and named-volume inventory from the descriptor.
//
// A service mount "src:dst" counts as a named volume only when src is declared
// in the top-level volumes block; bind mounts and anonymous volumes are the
// archiver's config copy's problem, not the volume exporter's. An explicit
// name override in the volume declaration wins over the declared key.
func (f *File) Inventory() Inventory {
	imageSet := make(map[string]struct{})
	for _, svc := range f.Services {
		if svc.Image != "" {
			imageSet[svc.Image] = struct{}{}
		}
	}

	volumeSet := make(map[string]struct{})
	for name, def := range f.Volumes {
		resolved := name
		if def.Name != "" {
			resolved = def.Name
		}
		volumeSet[resolved] = struct{}{}
	}

	inv := Inventory{
		Images:  make([]string, 0, len(imageSet)),
		Volumes: make([]string, 0, len(volumeSet)),
	}
	for img := range imageSet {
		inv.Images = append(inv.Images, img)
	}
	for vol := range volumeSet {
		inv.Volumes = append(inv.Volumes, vol)
	}
	sort.Strings(inv.Images)
	sort.Strings(inv.Volumes)

	return inv
}

// MountSource returns the source part of a service volume mount spec and
// whether it refers to a declared named volume.
func (f *File) MountSource(spec string) (string, bool) {
	source, _, ok := strings.Cut(spec, ":")
	if !ok {
		source = spec
	}
	if strings.HasPrefix(source, "/") || strings.HasPrefix(source, ".") {
		return source, false
	}
	_, declared := f.Volumes[source]
	return source, declared
}
