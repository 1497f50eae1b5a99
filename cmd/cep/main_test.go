package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestMaxRecordFlagOverridesConfigAndEnv exercises S8's config precedence
// rule through the real cobra flag surface rather than the bare loader API:
// an explicit --max-record must win over both the config file and the
// environment.
func TestMaxRecordFlagOverridesConfigAndEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CEP_MAX_RECORD", "10")

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("max_record: 100\n"), 0o644))

	rootCmd.SetArgs([]string{
		"stats",
		"--config", cfgPath,
		"--max-record", "999", // out of [1, 500): proves the flag, not the file's 100 or env's 10, reached the engine
		"--db", "flagtest",
	})
	err := rootCmd.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), "max_record")
}
