package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pendergraft/urlverifier/internal/validation"
)

func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage API keys for write routes (AUTH_TYPE=api-key)",
	}

	cmd.AddCommand(newKeysCreateCmd())
	cmd.AddCommand(newKeysListCmd())
	cmd.AddCommand(newKeysRevokeCmd())

	return cmd
}

func newKeysCreateCmd() *cobra.Command {
	var name, outputFile string
	var quiet, show bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		Long: `Create a new API key for submitting verifications.

By default the key is written to a file in the current directory.
The key is only shown once and cannot be retrieved later.

EXAMPLES:
  urlverifier-server keys create --name ci
  urlverifier-server keys create --name ci --output /secure/path/key.txt
  urlverifier-server keys create --name ci --quiet | gh secret set URLVERIFIER_API_KEY
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeysCreate(cmd.Context(), name, outputFile, quiet, show)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "name/label for the key (required)")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "write key to file (default: ./urlverifier-key-{name}.txt)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "print only the key (for piping)")
	cmd.Flags().BoolVar(&show, "show", false, "display key on screen")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newKeysListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeysList(cmd.Context())
		},
	}
}

func newKeysRevokeCmd() *cobra.Command {
	var keyID string

	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke an API key",
		Long: `Revoke an API key. A unique prefix of at least 8 characters of the
ID shown by 'urlverifier-server keys list' is accepted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeysRevoke(cmd.Context(), keyID)
		},
	}

	cmd.Flags().StringVar(&keyID, "id", "", "key ID to revoke (required)")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}

func runKeysCreate(ctx context.Context, name, outputFile string, quiet, show bool) error {
	if err := validation.ValidateKeyName(name); err != nil {
		return err
	}

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	key, err := store.CreateAPIKey(ctx, name)
	if err != nil {
		return fmt.Errorf("creating API key: %w", err)
	}

	if quiet {
		fmt.Println(key)
		return nil
	}

	if show {
		fmt.Println("API key (save this, it cannot be retrieved later):")
		fmt.Println()
		fmt.Println("   ", key)
		fmt.Println()
		return nil
	}

	if outputFile == "" {
		outputFile = fmt.Sprintf("./urlverifier-key-%s.txt", strings.ReplaceAll(name, " ", "-"))
	}
	if dir := filepath.Dir(outputFile); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("creating directory: %w", err)
		}
	}
	if err := os.WriteFile(outputFile, []byte(key+"\n"), 0600); err != nil {
		return fmt.Errorf("writing key to file: %w", err)
	}

	fmt.Printf("API key created: %s\n", name)
	fmt.Printf("   Written to: %s (mode 0600)\n", outputFile)
	fmt.Println()
	fmt.Println("   Usage:")
	fmt.Println("     export URLVERIFIER_API_KEY=$(cat", outputFile+")")
	fmt.Println("     urlverifier verify https://example.com")

	return nil
}

func runKeysList(ctx context.Context) error {
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	keys, err := store.ListAPIKeys(ctx)
	if err != nil {
		return fmt.Errorf("listing API keys: %w", err)
	}

	if len(keys) == 0 {
		fmt.Println("No API keys found")
		fmt.Println()
		fmt.Println(`Create one with: urlverifier-server keys create --name "my-key"`)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCREATED\tLAST USED")
	for _, k := range keys {
		lastUsed := k.LastUsedAt
		if lastUsed == "" {
			lastUsed = "never"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", shortID(k.ID), k.Name, k.CreatedAt, lastUsed)
	}
	return w.Flush()
}

func runKeysRevoke(ctx context.Context, keyID string) error {
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	keys, err := store.ListAPIKeys(ctx)
	if err != nil {
		return fmt.Errorf("listing API keys: %w", err)
	}

	var matches []string
	for _, k := range keys {
		if k.ID == keyID || (len(keyID) >= 8 && strings.HasPrefix(k.ID, keyID)) {
			matches = append(matches, k.ID)
		}
	}

	switch len(matches) {
	case 0:
		return fmt.Errorf("key not found: %s", keyID)
	case 1:
	default:
		return fmt.Errorf("key id %s is ambiguous (%d matches)", keyID, len(matches))
	}

	if err := store.RevokeAPIKey(ctx, matches[0]); err != nil {
		return fmt.Errorf("revoking API key: %w", err)
	}

	fmt.Printf("API key revoked: %s\n", matches[0])
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8] + "..."
	}
	return id
}
