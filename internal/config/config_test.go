package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_FallsBackSilently(t *testing.T) {
	cfg := &Config{DataDir: "/data", Port: -1, IntervalMinutes: 0, SyncMode: "whenever"}
	cfg.Normalize()

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultIntervalMinutes, cfg.IntervalMinutes)
	assert.Equal(t, DefaultLibraryDir, cfg.LibraryDir)
	assert.Equal(t, DefaultSyncTag, cfg.SyncTag)
	assert.Equal(t, DefaultAPIBase, cfg.APIBase)
	assert.Equal(t, "manual", cfg.SyncMode)
	require.NoError(t, cfg.Validate())
}

func TestValidate_RequiresDataDir(t *testing.T) {
	cfg := &Config{}
	cfg.Normalize()
	assert.Error(t, cfg.Validate())
}

func TestSaveManagedEnv_MergesOverExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "managed.env")
	require.NoError(t, godotenv.Write(map[string]string{
		EnvAPIKey:  "original-key",
		EnvSyncTag: "bf",
	}, path))

	require.NoError(t, SaveManagedEnv(path, map[string]string{
		EnvSyncTag: "tosync",
		EnvAppPort: "9000",
	}))

	env, err := godotenv.Read(path)
	require.NoError(t, err)
	assert.Equal(t, "original-key", env[EnvAPIKey]) // untouched
	assert.Equal(t, "tosync", env[EnvSyncTag])
	assert.Equal(t, "9000", env[EnvAppPort])
}

func TestSaveManagedEnv_CreatesFileAndParent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "managed.env")
	require.NoError(t, SaveManagedEnv(path, map[string]string{EnvAppPort: "8090"}))

	env, err := godotenv.Read(path)
	require.NoError(t, err)
	assert.Equal(t, "8090", env[EnvAppPort])
}

func TestLoadEnvFile(t *testing.T) {
	// Missing file is not an error.
	require.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), "present.env")
	require.NoError(t, godotenv.Write(map[string]string{"SHELFSYNC_TEST_ONLY": "fromfile"}, path))
	t.Cleanup(func() { os.Unsetenv("SHELFSYNC_TEST_ONLY") })

	// Process env wins over the file.
	t.Setenv("SHELFSYNC_TEST_ONLY", "fromenv")
	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "fromenv", os.Getenv("SHELFSYNC_TEST_ONLY"))
}
