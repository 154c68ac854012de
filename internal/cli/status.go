package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pendergraft/urlverifier/pkg/client"
)

func createStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the server's chain session",
		Long: `Show which network and contract the server uses and whether its
chain session is initialized.

EXAMPLES:
  urlverifier status
  urlverifier status --server https://verifier.example.com --json
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd.Context())
			if err != nil {
				return err
			}
			status, err := c.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}
			if jsonOutput {
				return printJSON(os.Stdout, status)
			}
			printStatus(os.Stdout, getServer(), status)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func createInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the server's chain session",
		Long: `Ask the server to create its account and connect to the GenLayer node.

Running it again replaces the session. Submissions fail with
NOT_INITIALIZED until this has succeeded once.
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd.Context())
		},
	}

	return cmd
}

func runInit(ctx context.Context) error {
	c, err := newClient(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Initializing chain session on %s...\n", getServer())
	status, err := c.Initialize(ctx)
	if err != nil {
		if client.IsCode(err, "SETUP_REQUIRED") {
			return fmt.Errorf("server has no contract configured: set CONTRACT_ADDRESS on the server")
		}
		return fmt.Errorf("initialization failed: %w", err)
	}

	fmt.Println("Initialized")
	printStatus(os.Stdout, getServer(), status)
	return nil
}

func printStatus(w io.Writer, serverURL string, s *client.Status) {
	fmt.Fprintf(w, "Server:      %s\n", serverURL)
	fmt.Fprintf(w, "Network:     %s (chain %d, %s)\n", s.ChainName, s.ChainID, s.Network)
	fmt.Fprintf(w, "RPC:         %s\n", s.RPCURL)
	if s.ContractConfigured {
		fmt.Fprintf(w, "Contract:    %s\n", s.ContractAddress)
	} else {
		fmt.Fprintln(w, "Contract:    not configured")
	}
	if s.Initialized {
		fmt.Fprintf(w, "Session:     initialized (account %s)\n", s.Account)
	} else {
		fmt.Fprintln(w, "Session:     not initialized (run 'urlverifier init')")
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
