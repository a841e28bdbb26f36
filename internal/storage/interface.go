// Package storage persists snapshot archives across local disk, S3, and
// GCS backends behind one interface.
package storage

import (
	"context"
	"io"
	"time"
)

// Archive is one stored snapshot archive plus its metadata sidecar.
type Archive struct {
	ID         string
	Metadata   ArchiveMetadata
	DataReader io.Reader
}

// ArchiveMetadata is the sidecar record stored next to every archive.
type ArchiveMetadata struct {
	ID          string    `json:"id"`
	Deployment  string    `json:"deployment"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
	CreatedBy   string    `json:"created_by,omitempty"`
	Version     string    `json:"version,omitempty"`
	ImageCount  int       `json:"image_count"`
	VolumeCount int       `json:"volume_count"`
	Encrypted   bool      `json:"encrypted,omitempty"`
	Description string    `json:"description,omitempty"`
}

// Backend stores and retrieves archives by ID. IDs are flat strings; the
// versioning scheme above them lives in Library.
type Backend interface {
	Store(ctx context.Context, archive *Archive) error
	Retrieve(ctx context.Context, id string) (*Archive, error)
	List(ctx context.Context) ([]ArchiveMetadata, error)
	Delete(ctx context.Context, id string) error
	Exists(ctx context.Context, id string) (bool, error)
}

type Config struct {
	Type  string
	Local *LocalConfig
	GCS   *GCSConfig
	S3    *S3Config
}

type LocalConfig struct {
	BasePath string
}

type GCSConfig struct {
	Bucket      string
	ProjectID   string
	Credentials string
}

type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}
