package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreSane(t *testing.T) {
	d := Defaults()
	require.Equal(t, 5*time.Second, d.RefreshInterval)
	require.Equal(t, 5, d.MaxFailedStartsPer10Min)
	require.True(t, d.RecycleAfterRun)
}

func TestBindFlagsAndFromFlagsRoundTrip(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--max-workers=42", "--canary-percent=0.25"}))

	s, err := FromFlags(fs)
	require.NoError(t, err)
	require.Equal(t, 42, s.MaxWorkers)
	require.Equal(t, 0.25, s.CanaryPercent)
}

func TestLoadYAMLMissingFileReturnsDefaults(t *testing.T) {
	s, err := LoadYAML(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, Defaults(), s)
}

func TestLoadYAMLOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_workers: 7\nrecycle_after_run: false\n"), 0o644))

	s, err := LoadYAML(path)
	require.NoError(t, err)
	require.Equal(t, 7, s.MaxWorkers)
	require.False(t, s.RecycleAfterRun)
	require.Equal(t, Defaults().RefreshInterval, s.RefreshInterval)
}
