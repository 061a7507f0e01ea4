package config

import (
	"errors"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
)

// Engine modes. Sim wires in-memory venues and a static oracle; live talks to
// real venue and oracle endpoints over HTTP.
const (
	ModeSim  = "sim"
	ModeLive = "live"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// EngineMode selects how collaborators are wired: "sim" or "live".
	EngineMode string

	// VaultAccount is the account allowed to allocate and withdraw capital.
	VaultAccount string
	// AdminAccounts are the accounts allowed to run lifecycle operations.
	AdminAccounts []string

	// OracleBaseURL is the yield oracle endpoint, required in live mode.
	OracleBaseURL string
	// AssetEndpoint is the custody service endpoint, required in live mode.
	AssetEndpoint string
	// VenuesManifest is the path to the YAML venue manifest.
	VenuesManifest string

	// WebPort is the port for the read API and metrics server.
	WebPort string
	// KeeperSchedule is the cron expression driving periodic rebalance runs.
	// Empty disables the keeper.
	KeeperSchedule string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	EngineMode, err = getEnv("ENGINE_MODE")
	if err != nil {
		return err
	}
	if EngineMode != ModeSim && EngineMode != ModeLive {
		return errors.New("ENGINE_MODE must be \"sim\" or \"live\", got: " + EngineMode)
	}

	VaultAccount, err = getEnv("VAULT_ACCOUNT")
	if err != nil {
		return err
	}

	adminsRaw, err := getEnv("ADMIN_ACCOUNTS")
	if err != nil {
		return err
	}
	for _, admin := range strings.Split(adminsRaw, ",") {
		if trimmed := strings.TrimSpace(admin); trimmed != "" {
			AdminAccounts = append(AdminAccounts, trimmed)
		}
	}
	if len(AdminAccounts) == 0 {
		return errors.New("ADMIN_ACCOUNTS must list at least one account")
	}

	if EngineMode == ModeLive {
		OracleBaseURL, err = getEnv("ORACLE_BASE_URL")
		if err != nil {
			return err
		}
		AssetEndpoint, err = getEnv("ASSET_ENDPOINT")
		if err != nil {
			return err
		}
	} else {
		OracleBaseURL = getEnvOrDefault("ORACLE_BASE_URL", "")
		AssetEndpoint = getEnvOrDefault("ASSET_ENDPOINT", "")
	}

	VenuesManifest = getEnvOrDefault("VENUES_MANIFEST", "venues.yaml")
	WebPort = getEnvOrDefault("WEB_PORT", "8080")
	KeeperSchedule = getEnvOrDefault("KEEPER_SCHEDULE", "")

	log.Debug().
		Str("EngineMode", EngineMode).
		Str("VaultAccount", VaultAccount).
		Int("AdminAccounts", len(AdminAccounts)).
		Str("WebPort", WebPort).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvOrDefault retrieves a string environment variable, falling back to
// fallback when unset.
func getEnvOrDefault(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
