package snapshot

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// fakeImageStore keeps image blobs in memory and supports per-ref error
// injection.
type fakeImageStore struct {
	mu      sync.Mutex
	images  map[string][]byte
	pullErr map[string]error
	saveErr map[string]error
	loadErr error
	pulled  []string
	loaded  []string
}

func newFakeImageStore(refs ...string) *fakeImageStore {
	s := &fakeImageStore{
		images:  make(map[string][]byte),
		pullErr: make(map[string]error),
		saveErr: make(map[string]error),
	}
	for _, ref := range refs {
		s.images[ref] = []byte("image-blob:" + ref)
	}
	return s
}

func (s *fakeImageStore) PullImage(_ context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.pullErr[ref]; err != nil {
		return err
	}
	s.pulled = append(s.pulled, ref)
	s.images[ref] = []byte("image-blob:" + ref)
	return nil
}

func (s *fakeImageStore) SaveImage(_ context.Context, ref, destPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.saveErr[ref]; err != nil {
		return err
	}
	data, ok := s.images[ref]
	if !ok {
		return fmt.Errorf("no such image: %s", ref)
	}
	return os.WriteFile(destPath, data, 0600)
}

func (s *fakeImageStore) LoadImage(_ context.Context, tarPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return s.loadErr
	}
	if _, err := os.ReadFile(tarPath); err != nil { // #nosec G304
		return err
	}
	s.loaded = append(s.loaded, tarPath)
	return nil
}

// fakeVolumeStore keeps volume payloads in memory.
type fakeVolumeStore struct {
	mu        sync.Mutex
	data      map[string][]byte
	exportErr map[string]error
	importErr map[string]error
	ensured   []string
}

func newFakeVolumeStore(names ...string) *fakeVolumeStore {
	s := &fakeVolumeStore{
		data:      make(map[string][]byte),
		exportErr: make(map[string]error),
		importErr: make(map[string]error),
	}
	for _, name := range names {
		s.data[name] = []byte("volume-data:" + name)
	}
	return s
}

func (s *fakeVolumeStore) VolumeExists(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[name]
	return ok, nil
}

func (s *fakeVolumeStore) EnsureVolume(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensured = append(s.ensured, name)
	if _, ok := s.data[name]; !ok {
		s.data[name] = nil
	}
	return nil
}

func (s *fakeVolumeStore) ExportVolume(_ context.Context, name, destPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.exportErr[name]; err != nil {
		return err
	}
	data, ok := s.data[name]
	if !ok {
		return fmt.Errorf("no such volume: %s", name)
	}
	return os.WriteFile(destPath, data, 0600)
}

func (s *fakeVolumeStore) ImportVolume(_ context.Context, name, tarPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.importErr[name]; err != nil {
		return err
	}
	data, err := os.ReadFile(tarPath) // #nosec G304
	if err != nil {
		return err
	}
	s.data[name] = data
	return nil
}

// fakeController records orchestrator calls.
type fakeController struct {
	checkErr error
	upErr    error
	downErr  error
	upDirs   []string
	downDirs []string
}

func (c *fakeController) Check(context.Context) error {
	return c.checkErr
}

func (c *fakeController) Up(_ context.Context, dir string) error {
	if c.upErr != nil {
		return c.upErr
	}
	c.upDirs = append(c.upDirs, dir)
	return nil
}

func (c *fakeController) Down(_ context.Context, dir string) error {
	if c.downErr != nil {
		return c.downErr
	}
	c.downDirs = append(c.downDirs, dir)
	return nil
}
