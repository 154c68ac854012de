package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/pendergraft/urlverifier/internal/auth"
	"github.com/pendergraft/urlverifier/pkg/client"
)

// Credentials maps server URLs to the API key used against them.
type Credentials struct {
	Servers map[string]ServerCredential `yaml:"servers"`
}

// ServerCredential is the key saved for one server. Name is the label the
// server reported for the key at login.
type ServerCredential struct {
	APIKey string `yaml:"api_key"`
	Name   string `yaml:"name,omitempty"`
}

func createAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage API keys for submitting verifications",
	}

	cmd.AddCommand(createAuthLoginCmd())
	cmd.AddCommand(createAuthLogoutCmd())
	cmd.AddCommand(createAuthStatusCmd())

	return cmd
}

func createAuthLoginCmd() *cobra.Command {
	var serverFlag, keyFlag string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Save an API key for a server",
		Long: `Check an API key against the server and save it to
~/.urlverifier/credentials (owner-only permissions).

Without --api-key the key is read from the terminal, or from stdin when
it is piped.

EXAMPLES:
  urlverifier auth login
  urlverifier auth login --server https://verifier.example.com
  echo "$KEY" | urlverifier auth login
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthLogin(serverFlag, keyFlag)
		},
	}

	cmd.Flags().StringVar(&serverFlag, "server", "", "server URL (default from config)")
	cmd.Flags().StringVar(&keyFlag, "api-key", "", "API key (prompts if not provided)")

	return cmd
}

func createAuthLogoutCmd() *cobra.Command {
	var serverFlag string
	var all bool

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthLogout(serverFlag, all)
		},
	}

	cmd.Flags().StringVar(&serverFlag, "server", "", "server URL (default from config)")
	cmd.Flags().BoolVar(&all, "all", false, "forget keys for every server")

	return cmd
}

func createAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List servers with a saved API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthStatus()
		},
	}
}

func runAuthLogin(serverURL, key string) error {
	if serverURL == "" {
		serverURL = getServer()
	}

	if key == "" {
		var err error
		if key, err = promptAPIKey(serverURL); err != nil {
			return err
		}
	}
	if key == "" {
		return errors.New("API key cannot be empty")
	}
	if !auth.WellFormed(key) {
		return fmt.Errorf("invalid API key: expected %s followed by 48 hex characters", auth.KeyPrefix)
	}

	fmt.Printf("Checking key with %s...\n", serverURL)
	info, err := validateAPIKey(serverURL, key)
	if err != nil {
		return err
	}

	if err := saveCredential(serverURL, ServerCredential{APIKey: key, Name: info.Name}); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	fmt.Printf("Saved key %s for %s\n", maskAPIKey(key), serverURL)
	if info.Auth != "api-key" {
		fmt.Println("The server does not require API keys at the moment.")
	}
	return nil
}

// promptAPIKey reads a key without echo from a terminal, or one line from
// piped stdin.
func promptAPIKey(serverURL string) (string, error) {
	fmt.Printf("API key for %s: ", serverURL)

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("failed to read API key: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read API key: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func runAuthLogout(serverURL string, all bool) error {
	if all {
		if err := os.Remove(credentialsFilePath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove credentials: %w", err)
		}
		fmt.Println("Removed all saved keys")
		return nil
	}

	if serverURL == "" {
		serverURL = getServer()
	}

	creds, err := loadCredentials()
	if errors.Is(err, fs.ErrNotExist) {
		fmt.Printf("No key saved for %s\n", serverURL)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load credentials: %w", err)
	}
	if _, ok := creds.Servers[serverURL]; !ok {
		fmt.Printf("No key saved for %s\n", serverURL)
		return nil
	}

	delete(creds.Servers, serverURL)
	if err := writeCredentials(creds); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	fmt.Printf("Removed key for %s\n", serverURL)
	return nil
}

func runAuthStatus() error {
	creds, err := loadCredentials()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load credentials: %w", err)
	}
	if creds == nil || len(creds.Servers) == 0 {
		fmt.Println("Not authenticated to any servers")
		fmt.Println("Run 'urlverifier auth login' to save an API key")
		return nil
	}

	servers := make([]string, 0, len(creds.Servers))
	for s := range creds.Servers {
		servers = append(servers, s)
	}
	slices.Sort(servers)

	fmt.Println("Authenticated servers:")
	t := newTable("SERVER", "NAME", "KEY")
	for _, s := range servers {
		cred := creds.Servers[s]
		t.add(s, orDash(cred.Name), maskAPIKey(cred.APIKey))
	}
	return t.render(os.Stdout)
}

func credentialsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".urlverifier"
	}
	return filepath.Join(home, ".urlverifier")
}

func credentialsFilePath() string {
	return filepath.Join(credentialsDir(), "credentials")
}

// loadCredentials reads the credentials file. A missing file is returned
// as an fs.ErrNotExist error.
func loadCredentials() (*Credentials, error) {
	data, err := os.ReadFile(credentialsFilePath())
	if err != nil {
		return nil, err
	}

	creds := &Credentials{}
	if err := yaml.Unmarshal(data, creds); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", credentialsFilePath(), err)
	}
	if creds.Servers == nil {
		creds.Servers = make(map[string]ServerCredential)
	}
	return creds, nil
}

func writeCredentials(creds *Credentials) error {
	if err := os.MkdirAll(credentialsDir(), 0700); err != nil {
		return err
	}
	data, err := yaml.Marshal(creds)
	if err != nil {
		return err
	}
	return os.WriteFile(credentialsFilePath(), data, 0600)
}

func saveCredential(serverURL string, cred ServerCredential) error {
	creds, err := loadCredentials()
	switch {
	case errors.Is(err, fs.ErrNotExist):
		creds = &Credentials{Servers: make(map[string]ServerCredential)}
	case err != nil:
		return err
	}

	creds.Servers[serverURL] = cred
	return writeCredentials(creds)
}

// getCredential returns the saved key for serverURL, or "".
func getCredential(serverURL string) string {
	creds, err := loadCredentials()
	if err != nil {
		return ""
	}
	return creds.Servers[serverURL].APIKey
}

// validateAPIKey asks the server whether it accepts key. A rejected key
// is an error; servers without auth accept any key.
func validateAPIKey(serverURL, key string) (*client.AuthInfo, error) {
	info, err := client.New(serverURL, key).CheckAuth(context.Background())
	if err != nil {
		if client.IsCode(err, "UNAUTHORIZED") {
			return nil, errors.New("invalid API key")
		}
		return nil, fmt.Errorf("failed to validate credentials: %w", err)
	}
	return info, nil
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:8] + "..." + key[len(key)-4:]
}
