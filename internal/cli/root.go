package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pendergraft/urlverifier/internal/validation"
	"github.com/pendergraft/urlverifier/pkg/client"
)

var (
	cfgFile string
	server  string
	apiKey  string
)

// Execute runs the CLI
func Execute(version string) error {
	rootCmd := &cobra.Command{
		Use:     "urlverifier",
		Short:   "On-chain URL verification CLI",
		Long:    `urlverifier submits URLs for on-chain verification and browses the verification history through a urlverifier server.`,
		Version: version,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: urlverifier.toml or uv.toml)")
	rootCmd.PersistentFlags().StringVar(&server, "server", "", "server URL (default from config)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key for authentication")

	rootCmd.AddCommand(createStatusCmd())
	rootCmd.AddCommand(createInitCmd())
	rootCmd.AddCommand(createVerifyCmd())
	rootCmd.AddCommand(createListCmd())
	rootCmd.AddCommand(createHistoryCmd())
	rootCmd.AddCommand(createSubmissionsCmd())
	rootCmd.AddCommand(createAuthCmd())
	rootCmd.AddCommand(createConfigCmd())

	return rootCmd.Execute()
}

// getServer returns the server URL from flag, env, config file, or default
func getServer() string {
	if server != "" {
		return server
	}
	if env := os.Getenv("URLVERIFIER_SERVER"); env != "" {
		return env
	}
	if config := loadProjectConfigSilent(); config != nil && config.Server != "" {
		return config.Server
	}
	return "http://localhost:8080"
}

// getAPIKey returns the API key from flag, env, or credentials file
func getAPIKey() string {
	if apiKey != "" {
		return apiKey
	}
	if env := os.Getenv("URLVERIFIER_API_KEY"); env != "" {
		return env
	}
	return getCredential(getServer())
}

// newClient returns a client for the effective server. When the project
// config sets min_version the server must report at least that version.
func newClient(ctx context.Context) (*client.Client, error) {
	c := client.New(getServer(), getAPIKey())

	config := loadProjectConfigSilent()
	if config == nil || config.MinVersion == "" {
		return c, nil
	}
	if err := checkServerVersion(ctx, c, config.MinVersion); err != nil {
		return nil, err
	}
	return c, nil
}

func checkServerVersion(ctx context.Context, c *client.Client, minimum string) error {
	health, err := c.Health(ctx)
	if err != nil {
		return fmt.Errorf("checking server version: %w", err)
	}
	ok, err := validation.AtLeast(health.Version, minimum)
	if err != nil {
		return fmt.Errorf("min_version: %w", err)
	}
	if !ok {
		return fmt.Errorf("server version %s is older than min_version %s", health.Version, minimum)
	}
	return nil
}
