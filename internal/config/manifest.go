package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// VenueManifest is the YAML file describing the venue set to seed an empty
// engine with, plus per-venue endpoints for live mode.
type VenueManifest struct {
	Oracle struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"oracle"`
	Venues []ManifestVenue `yaml:"venues"`
}

// ManifestVenue is one venue entry in the manifest.
type ManifestVenue struct {
	Address         string `yaml:"address"`
	InitialYieldBps uint64 `yaml:"initial_yield_bps"`
	Endpoint        string `yaml:"endpoint"`
}

// LoadVenueManifest reads and validates the venue manifest at path. The
// ORACLE_BASE_URL environment variable, when set, overrides the manifest's
// oracle entry.
func LoadVenueManifest(path string) (*VenueManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read venue manifest %s: %w", path, err)
	}

	var manifest VenueManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse venue manifest %s: %w", path, err)
	}

	seen := make(map[string]struct{}, len(manifest.Venues))
	for i, v := range manifest.Venues {
		if v.Address == "" {
			return nil, fmt.Errorf("venue manifest entry %d has an empty address", i)
		}
		if _, dup := seen[v.Address]; dup {
			return nil, fmt.Errorf("venue manifest lists %s twice", v.Address)
		}
		seen[v.Address] = struct{}{}
	}

	if OracleBaseURL != "" {
		manifest.Oracle.BaseURL = OracleBaseURL
	}

	return &manifest, nil
}
