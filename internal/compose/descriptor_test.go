package compose

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDescriptor(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docker-compose.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_NotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.ErrorIs(t, err, ErrDescriptorNotFound)
}

func TestLoad_Malformed(t *testing.T) {
	path := writeDescriptor(t, "services: [not: {valid")
	_, err := Load(path)
	require.ErrorIs(t, err, ErrDescriptorMalformed)
}

func TestInventory_DeduplicatesAndSorts(t *testing.T) {
	path := writeDescriptor(t, `
services:
  web:
    image: registry.example.com/app/web:1.2
    volumes:
      - web-data:/var/lib/web
  worker:
    image: registry.example.com/app/worker:1.2
    volumes:
      - web-data:/var/lib/web
  worker2:
    image: registry.example.com/app/worker:1.2
volumes:
  web-data:
`)
	file, err := Load(path)
	require.NoError(t, err)

	inv := file.Inventory()
	assert.Equal(t, []string{
		"registry.example.com/app/web:1.2",
		"registry.example.com/app/worker:1.2",
	}, inv.Images)
	assert.Equal(t, []string{"web-data"}, inv.Volumes)
}

func TestInventory_ServiceLevelVolumesKeyIsNotTopLevel(t *testing.T) {
	// A service key spelled "volumes" must not be mistaken for the
	// top-level named volume block.
	path := writeDescriptor(t, `
services:
  app:
    image: app:latest
    volumes:
      - ./config:/etc/app
      - app-state:/var/lib/app
volumes:
  app-state:
`)
	file, err := Load(path)
	require.NoError(t, err)

	inv := file.Inventory()
	assert.Equal(t, []string{"app-state"}, inv.Volumes)

	src, named := file.MountSource("./config:/etc/app")
	assert.Equal(t, "./config", src)
	assert.False(t, named)

	src, named = file.MountSource("app-state:/var/lib/app")
	assert.Equal(t, "app-state", src)
	assert.True(t, named)
}

func TestInventory_ExplicitVolumeNameOverride(t *testing.T) {
	path := writeDescriptor(t, `
services:
  db:
    image: postgres:16
    volumes:
      - db:/var/lib/postgresql/data
volumes:
  db:
    name: production_db_data
`)
	file, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"production_db_data"}, file.Inventory().Volumes)
}

func TestInventory_EmptyDeployment(t *testing.T) {
	path := writeDescriptor(t, "services: {}\n")
	file, err := Load(path)
	require.NoError(t, err)

	inv := file.Inventory()
	assert.True(t, inv.Empty())
	assert.Empty(t, inv.Images)
	assert.Empty(t, inv.Volumes)
}
