package compose

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRewriteEnvValue_ReplacesOnlyTargetLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(`# deployment settings
HOST_IP=10.0.0.5
DB_PASSWORD=secret
export APP_PORT=8080
`), 0600))

	found, err := RewriteEnvValue(path, "HOST_IP", "192.168.1.20")
	require.NoError(t, err)
	assert.True(t, found)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `# deployment settings
HOST_IP=192.168.1.20
DB_PASSWORD=secret
export APP_PORT=8080
`, string(data))
}

func TestRewriteEnvValue_MissingKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("DB_PASSWORD=secret\n"), 0600))

	found, err := RewriteEnvValue(path, "HOST_IP", "192.168.1.20")
	require.NoError(t, err)
	assert.False(t, found)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "DB_PASSWORD=secret\n", string(data))
}

func TestRewriteEnvValue_MissingFile(t *testing.T) {
	found, err := RewriteEnvValue(filepath.Join(t.TempDir(), ".env"), "HOST_IP", "x")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRewriteEnvValue_IgnoresCommentedKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("# HOST_IP=old\nHOST_IP=10.0.0.5\n"), 0600))

	found, err := RewriteEnvValue(path, "HOST_IP", "10.0.0.9")
	require.NoError(t, err)
	assert.True(t, found)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "# HOST_IP=old\nHOST_IP=10.0.0.9\n", string(data))
}

func TestReadEnvValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("HOST_IP=10.0.0.5\n"), 0600))

	val, err := ReadEnvValue(path, "HOST_IP")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", val)

	val, err = ReadEnvValue(path, "MISSING")
	require.NoError(t, err)
	assert.Equal(t, "", val)
}
