package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/urfave/cli/v2"
	"github.com/zalando/go-keyring"
)

const (
	keyFileName    = "groq_api_key"
	keyringService = "churnctl"
	keyringUser    = "groq_api_key"
	apiKeyEnvVar   = "GROQ_API_KEY"
)

var (
	apiKeyFlag = &cli.StringFlag{
		Name:  "key",
		Usage: "Groq API key (prompted for when omitted)",
	}

	authCmd = &cli.Command{
		Name:            "auth",
		HideHelpCommand: true,
		Usage:           "Store the Groq API key for the annotation service",
		Action:          cmdAuth,
		Flags: []cli.Flag{
			apiKeyFlag,
		},
	}
)

func cmdAuth(c *cli.Context) error {
	key := strings.TrimSpace(c.String(apiKeyFlag.Name))

	if key == "" {
		fmt.Print("Groq API key: ")
		if _, err := fmt.Scanln(&key); err != nil {
			return fmt.Errorf("reading user input: %w", err)
		}
		key = strings.TrimSpace(key)
	}

	if key == "" {
		return fmt.Errorf("API key required")
	}

	if err := saveAPIKey(key); err != nil {
		return fmt.Errorf("saving API key: %w", err)
	}

	fmt.Println("API key saved to OS keychain")
	return nil
}

func saveAPIKey(key string) error {
	if err := keyring.Set(keyringService, keyringUser, key); err != nil {
		slog.Warn("keychain unavailable, falling back to file", "error", err)
		return saveAPIKeyFile(key)
	}

	// Clean up legacy file if it exists
	legacyPath := path.Join(getHomeDir(), keyFileName)
	os.Remove(legacyPath)

	return nil
}

func getAPIKey() (string, error) {
	// Try keychain first
	key, err := keyring.Get(keyringService, keyringUser)
	if err == nil && key != "" {
		return key, nil
	}

	// Then the environment
	if key = strings.TrimSpace(os.Getenv(apiKeyEnvVar)); key != "" {
		return key, nil
	}

	// Fall back to file
	key, err = getAPIKeyFile()
	if err != nil {
		return "", err
	}

	// Migrate to keychain
	if migrateErr := keyring.Set(keyringService, keyringUser, key); migrateErr == nil {
		slog.Info("migrated API key from file to OS keychain")
		legacyPath := path.Join(getHomeDir(), keyFileName)
		os.Remove(legacyPath)
	}

	return key, nil
}

func saveAPIKeyFile(key string) error {
	keyPath := path.Join(getHomeDir(), keyFileName)
	return os.WriteFile(keyPath, []byte(key), 0600)
}

func getAPIKeyFile() (string, error) {
	keyPath := path.Join(getHomeDir(), keyFileName)
	b, err := os.ReadFile(keyPath)
	if err != nil {
		return "", fmt.Errorf("no API key found; run 'churnctl auth' or set %s: %w", apiKeyEnvVar, err)
	}
	return strings.TrimSpace(string(b)), nil
}
