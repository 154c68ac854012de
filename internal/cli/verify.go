package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pendergraft/urlverifier/internal/validation"
	"github.com/pendergraft/urlverifier/pkg/client"
)

func createVerifyCmd() *cobra.Command {
	var query string
	var force bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "verify <url>",
		Short: "Submit a URL for on-chain verification",
		Long: `Submit a URL to the verifier contract and wait for the transaction to be
accepted. Optionally ask a question about the page content.

The wait can take a couple of minutes. If it runs out, the verification
may still be recorded later; check 'urlverifier history --url <url>'.

EXAMPLES:
  urlverifier verify https://example.com
  urlverifier verify https://example.com/pricing --query "Is there a free tier?"
  urlverifier verify https://example.com --force
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("query") {
				if config := loadProjectConfigSilent(); config != nil {
					query = config.Query
				}
			}
			return runVerify(cmd.Context(), args[0], query, force, jsonOutput)
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "question to answer about the page (default from config)")
	cmd.Flags().BoolVar(&force, "force", false, "re-verify even if the contract has a recent result")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func runVerify(ctx context.Context, target, query string, force, jsonOutput bool) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return errors.New("url cannot be empty")
	}
	if err := validation.CheckTargetURL(target); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	c, err := newClient(ctx)
	if err != nil {
		return err
	}

	if !jsonOutput {
		fmt.Printf("Submitting %s...\n", target)
		if query != "" {
			fmt.Printf("Query: %s\n", query)
		}
		fmt.Println("Waiting for the transaction to be accepted (this can take a few minutes)")
	}

	resp, err := c.Submit(ctx, client.SubmitRequest{URL: target, Query: query, ForceRefresh: force})
	if err != nil {
		return submitError(err)
	}

	if jsonOutput {
		return printJSON(os.Stdout, resp)
	}

	fmt.Printf("Verification %s\n", resp.Status)
	fmt.Printf("  Transaction: %s\n", resp.TxHash)
	fmt.Printf("  Submission:  %s\n", resp.SubmissionID)
	fmt.Printf("  Checks:      %d\n", resp.Attempts)
	if resp.Message != "" {
		fmt.Println(resp.Message)
	}
	return nil
}

// submitError turns server error codes into actionable messages.
func submitError(err error) error {
	switch {
	case client.IsCode(err, "CONFIRMATION_TIMEOUT"):
		return fmt.Errorf("transaction not accepted in time; it may still be recorded, check 'urlverifier submissions' later: %w", err)
	case client.IsCode(err, "NOT_INITIALIZED"):
		return fmt.Errorf("server chain session is not initialized, run 'urlverifier init' first: %w", err)
	case client.IsCode(err, "SETUP_REQUIRED"):
		return fmt.Errorf("server has no contract configured: %w", err)
	case client.IsCode(err, "UNAUTHORIZED"):
		return fmt.Errorf("server rejected the API key, run 'urlverifier auth login': %w", err)
	case client.IsCode(err, "RATE_LIMIT_EXCEEDED"):
		return fmt.Errorf("too many submissions, try again shortly: %w", err)
	default:
		return fmt.Errorf("verification failed: %w", err)
	}
}
