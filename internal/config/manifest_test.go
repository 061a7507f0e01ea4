package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "venues.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadVenueManifest(t *testing.T) {
	path := writeManifest(t, `
oracle:
  base_url: http://oracle.internal:9000
venues:
  - address: venue-a
    initial_yield_bps: 300
    endpoint: http://venue-a.internal:9001
  - address: venue-b
    initial_yield_bps: 500
`)

	manifest, err := LoadVenueManifest(path)
	require.NoError(t, err)
	require.Equal(t, "http://oracle.internal:9000", manifest.Oracle.BaseURL)
	require.Len(t, manifest.Venues, 2)
	require.Equal(t, "venue-a", manifest.Venues[0].Address)
	require.Equal(t, uint64(300), manifest.Venues[0].InitialYieldBps)
	require.Equal(t, "http://venue-a.internal:9001", manifest.Venues[0].Endpoint)
	require.Empty(t, manifest.Venues[1].Endpoint)
}

func TestLoadVenueManifestRejectsDuplicates(t *testing.T) {
	path := writeManifest(t, `
venues:
  - address: venue-a
    initial_yield_bps: 300
  - address: venue-a
    initial_yield_bps: 500
`)

	_, err := LoadVenueManifest(path)
	require.ErrorContains(t, err, "twice")
}

func TestLoadVenueManifestRejectsEmptyAddress(t *testing.T) {
	path := writeManifest(t, `
venues:
  - address: ""
    initial_yield_bps: 300
`)

	_, err := LoadVenueManifest(path)
	require.ErrorContains(t, err, "empty address")
}

func TestLoadVenueManifestMissingFile(t *testing.T) {
	_, err := LoadVenueManifest(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadVenueManifestEnvOverridesOracle(t *testing.T) {
	path := writeManifest(t, `
oracle:
  base_url: http://oracle.internal:9000
venues:
  - address: venue-a
    initial_yield_bps: 300
`)

	prev := OracleBaseURL
	OracleBaseURL = "http://override.internal:9100"
	defer func() { OracleBaseURL = prev }()

	manifest, err := LoadVenueManifest(path)
	require.NoError(t, err)
	require.Equal(t, "http://override.internal:9100", manifest.Oracle.BaseURL)
}
