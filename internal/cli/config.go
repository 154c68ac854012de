package cli

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/pendergraft/urlverifier/internal/verification/domain"
)

// projectConfigFiles is the search order for project config files
var projectConfigFiles = []string{"urlverifier.toml", "uv.toml"}

// ProjectConfig is the project-level TOML configuration
type ProjectConfig struct {
	Server     string `toml:"server"`
	MinVersion string `toml:"min_version,omitempty"`
	// Query is asked about every verified page unless --query is given.
	Query string `toml:"query,omitempty"`
	// Filter is the default category filter for history.
	Filter string `toml:"filter,omitempty"`
}

func createConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}

	cmd.AddCommand(createConfigInitCmd())
	cmd.AddCommand(createConfigShowCmd())

	return cmd
}

func createConfigInitCmd() *cobra.Command {
	var serverURL, minVersion, query string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create config file",
		Long: `Create a urlverifier.toml configuration file in the current directory.

EXAMPLES:
  urlverifier config init
  urlverifier config init --server https://verifier.example.com --min-version 1.0.0
  urlverifier config init --query "Does this page list a price?"
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(serverURL, minVersion, query, force)
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "server URL")
	cmd.Flags().StringVar(&minVersion, "min-version", "", "minimum server version")
	cmd.Flags().StringVar(&query, "query", "", "default question asked about verified pages")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")

	return cmd
}

func createConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow()
		},
	}
}

func runConfigInit(serverURL, minVersion, query string, force bool) error {
	configPath := "urlverifier.toml"

	for _, name := range projectConfigFiles {
		if _, err := os.Stat(name); err == nil && !force {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", name)
		}
	}

	f, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	defer f.Close()

	fmt.Fprintln(f, "# urlverifier project configuration")
	fmt.Fprintln(f)
	if err := toml.NewEncoder(f).Encode(ProjectConfig{
		Server:     serverURL,
		MinVersion: minVersion,
		Query:      query,
	}); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Created %s\n", configPath)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Run 'urlverifier status' to check the server")
	fmt.Println("  2. Run 'urlverifier auth login' if the server requires API keys")
	fmt.Println("  3. Run 'urlverifier verify https://example.com' to submit a URL")

	return nil
}

func runConfigShow() error {
	fmt.Println("Configuration sources (in order of precedence):")
	fmt.Println()

	fmt.Println("1. Command line flags")
	fmt.Println("   --server, --api-key, --config")
	fmt.Println()

	fmt.Println("2. Environment variables")
	if env := os.Getenv("URLVERIFIER_SERVER"); env != "" {
		fmt.Printf("   URLVERIFIER_SERVER=%s\n", env)
	} else {
		fmt.Println("   URLVERIFIER_SERVER=(not set)")
	}
	if env := os.Getenv("URLVERIFIER_API_KEY"); env != "" {
		fmt.Printf("   URLVERIFIER_API_KEY=%s\n", maskAPIKey(env))
	} else {
		fmt.Println("   URLVERIFIER_API_KEY=(not set)")
	}
	fmt.Println()

	fmt.Println("3. Project config (urlverifier.toml or uv.toml)")
	config, path, err := loadProjectConfig()
	switch {
	case os.IsNotExist(err):
		fmt.Println("   (not found)")
	case err != nil:
		fmt.Printf("   Error: %v\n", err)
	default:
		fmt.Printf("   Loaded from: %s\n", path)
		for _, kv := range [][2]string{
			{"server", config.Server},
			{"min_version", config.MinVersion},
			{"query", config.Query},
			{"filter", config.Filter},
		} {
			if kv[1] != "" {
				fmt.Printf("   %s: %s\n", kv[0], kv[1])
			}
		}
	}
	fmt.Println()

	fmt.Println("4. Credentials (~/.urlverifier/credentials)")
	creds, err := loadCredentials()
	switch {
	case os.IsNotExist(err):
		fmt.Println("   (not found)")
	case err != nil:
		fmt.Printf("   Error: %v\n", err)
	case len(creds.Servers) == 0:
		fmt.Println("   (no credentials stored)")
	default:
		for s, cred := range creds.Servers {
			fmt.Printf("   %s: %s\n", s, maskAPIKey(cred.APIKey))
		}
	}
	fmt.Println()

	fmt.Println("Effective configuration:")
	fmt.Printf("   Server:  %s\n", getServer())
	if key := getAPIKey(); key != "" {
		fmt.Printf("   API Key: %s\n", maskAPIKey(key))
	} else {
		fmt.Println("   API Key: (not set)")
	}

	return nil
}

// loadProjectConfig loads the project config from --config or the first
// matching file. It returns the config and the path it was loaded from.
func loadProjectConfig() (*ProjectConfig, string, error) {
	if cfgFile != "" {
		config, err := loadProjectConfigFromPath(cfgFile)
		return config, cfgFile, err
	}

	for _, name := range projectConfigFiles {
		if _, err := os.Stat(name); err == nil {
			config, err := loadProjectConfigFromPath(name)
			return config, name, err
		}
	}
	return nil, "", os.ErrNotExist
}

// loadProjectConfigFromPath decodes and checks a project config.
func loadProjectConfigFromPath(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config ProjectConfig
	meta, err := toml.Decode(string(data), &config)
	if err != nil {
		return nil, fmt.Errorf("parsing TOML: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		fmt.Fprintf(os.Stderr, "Warning: unknown keys in %s: %v\n", path, undecoded)
	}
	if config.Filter != "" {
		if _, err := domain.ParseFilter(config.Filter); err != nil {
			return nil, fmt.Errorf("filter: %w", err)
		}
	}

	return &config, nil
}

// loadProjectConfigSilent returns nil when no config exists and warns on
// parse failures.
func loadProjectConfigSilent() *ProjectConfig {
	config, _, err := loadProjectConfig()
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load project config: %v\n", err)
		}
		return nil
	}
	return config
}
