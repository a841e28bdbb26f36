package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalStorage keeps archives as <id>.tar.gz with a <id>.json metadata
// sidecar under one base directory.
type LocalStorage struct {
	basePath string
}

func NewLocalStorage(config *LocalConfig) (*LocalStorage, error) {
	if config.BasePath == "" {
		return nil, fmt.Errorf("base path is required for local storage")
	}

	if err := os.MkdirAll(config.BasePath, 0750); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &LocalStorage{
		basePath: config.BasePath,
	}, nil
}

func (l *LocalStorage) Store(ctx context.Context, archive *Archive) error {
	archivePath := filepath.Join(l.basePath, archive.ID)

	dataFile, err := os.Create(archivePath + ".tar.gz") // #nosec G304 - controlled storage path
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer func() {
		if err := dataFile.Close(); err != nil {
			fmt.Printf("Warning: failed to close data file: %v\n", err)
		}
	}()

	if _, err := io.Copy(dataFile, archive.DataReader); err != nil {
		if removeErr := os.Remove(archivePath + ".tar.gz"); removeErr != nil {
			fmt.Printf("Warning: failed to remove archive file: %v\n", removeErr)
		}
		return fmt.Errorf("failed to write archive data: %w", err)
	}

	metadataFile, err := os.Create(archivePath + ".json") // #nosec G304 - controlled storage path
	if err != nil {
		if removeErr := os.Remove(archivePath + ".tar.gz"); removeErr != nil {
			fmt.Printf("Warning: failed to remove archive file: %v\n", removeErr)
		}
		return fmt.Errorf("failed to create metadata file: %w", err)
	}
	defer func() {
		if err := metadataFile.Close(); err != nil {
			fmt.Printf("Warning: failed to close metadata file: %v\n", err)
		}
	}()

	if err := json.NewEncoder(metadataFile).Encode(archive.Metadata); err != nil {
		if removeErr := os.Remove(archivePath + ".tar.gz"); removeErr != nil {
			fmt.Printf("Warning: failed to remove archive file: %v\n", removeErr)
		}
		if removeErr := os.Remove(archivePath + ".json"); removeErr != nil {
			fmt.Printf("Warning: failed to remove metadata file: %v\n", removeErr)
		}
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	return nil
}

func (l *LocalStorage) Retrieve(ctx context.Context, id string) (*Archive, error) {
	archivePath := filepath.Join(l.basePath, id)

	metadataFile, err := os.Open(archivePath + ".json") // #nosec G304 - controlled storage path
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("archive not found: %s", id)
		}
		return nil, fmt.Errorf("failed to open metadata file: %w", err)
	}
	defer func() {
		if err := metadataFile.Close(); err != nil {
			fmt.Printf("Warning: failed to close metadata file: %v\n", err)
		}
	}()

	var metadata ArchiveMetadata
	if err := json.NewDecoder(metadataFile).Decode(&metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}

	dataFile, err := os.Open(archivePath + ".tar.gz") // #nosec G304 - controlled storage path
	if err != nil {
		return nil, fmt.Errorf("failed to open archive file: %w", err)
	}

	return &Archive{
		ID:         id,
		Metadata:   metadata,
		DataReader: dataFile,
	}, nil
}

func (l *LocalStorage) List(ctx context.Context) ([]ArchiveMetadata, error) {
	entries, err := os.ReadDir(l.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage directory: %w", err)
	}

	var archives []ArchiveMetadata
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".json" {
			metadataPath := filepath.Join(l.basePath, entry.Name())

			metadataFile, err := os.Open(metadataPath) // #nosec G304 - controlled storage path
			if err != nil {
				continue
			}

			var metadata ArchiveMetadata
			if err := json.NewDecoder(metadataFile).Decode(&metadata); err != nil {
				if closeErr := metadataFile.Close(); closeErr != nil {
					fmt.Printf("Warning: failed to close metadata file: %v\n", closeErr)
				}
				continue
			}
			if err := metadataFile.Close(); err != nil {
				fmt.Printf("Warning: failed to close metadata file: %v\n", err)
			}

			archives = append(archives, metadata)
		}
	}

	return archives, nil
}

func (l *LocalStorage) Delete(ctx context.Context, id string) error {
	archivePath := filepath.Join(l.basePath, id)

	if err := os.Remove(archivePath + ".tar.gz"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove archive file: %w", err)
	}

	if err := os.Remove(archivePath + ".json"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove metadata file: %w", err)
	}

	return nil
}

func (l *LocalStorage) Exists(ctx context.Context, id string) (bool, error) {
	archivePath := filepath.Join(l.basePath, id)

	if _, err := os.Stat(archivePath + ".json"); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check archive existence: %w", err)
	}

	return true, nil
}
