package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pendergraft/urlverifier/pkg/client"
)

func createSubmissionsCmd() *cobra.Command {
	var query client.SubmissionQuery
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "submissions [id]",
		Short: "List submissions made through the server",
		Long: `List the server's submission journal, newest first, or show one
submission by id.

A timed_out submission was sent but not confirmed in time; it may still be
recorded by the contract.

EXAMPLES:
  urlverifier submissions
  urlverifier submissions --state timed_out
  urlverifier submissions --url https://example.com --limit 5
  urlverifier submissions 3f2a6c1e-8d4b-4c2a-9e1f-0b5d7a9c2e41
`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return showSubmission(cmd.Context(), args[0], jsonOutput)
			}
			return listSubmissions(cmd.Context(), query, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&query.State, "state", "", "filter by state (pending, confirmed, timed_out, failed, rejected)")
	cmd.Flags().StringVar(&query.URL, "url", "", "filter by submitted URL")
	cmd.Flags().IntVar(&query.Limit, "limit", 20, "number of items to show")
	cmd.Flags().StringVar(&query.Cursor, "cursor", "", "continue from a previous page")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func listSubmissions(ctx context.Context, query client.SubmissionQuery, jsonOutput bool) error {
	c, err := newClient(ctx)
	if err != nil {
		return err
	}

	resp, err := c.Submissions(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to list submissions: %w", err)
	}

	if jsonOutput {
		return printJSON(os.Stdout, resp)
	}
	return renderSubmissions(os.Stdout, resp)
}

func renderSubmissions(w io.Writer, list *client.SubmissionList) error {
	if len(list.Data) == 0 {
		fmt.Fprintln(w, "No submissions found")
		return nil
	}

	t := newTable("ID", "STATE", "URL", "TX", "CHECKS", "CREATED").limit(2, urlWidth)
	for _, s := range list.Data {
		t.add(shortID(s.ID), s.State, s.URL, orDash(shortHash(s.TxHash)), fmt.Sprint(s.Attempts), s.CreatedAt.Local().Format(time.DateTime))
	}
	if err := t.render(w); err != nil {
		return err
	}

	if list.Pagination.HasMore {
		fmt.Fprintf(w, "\n(showing %d submissions, more with --cursor %s)\n", len(list.Data), list.Pagination.NextCursor)
	}
	return nil
}

func showSubmission(ctx context.Context, id string, jsonOutput bool) error {
	c, err := newClient(ctx)
	if err != nil {
		return err
	}

	s, err := c.Submission(ctx, id)
	if err != nil {
		if client.IsCode(err, "NOT_FOUND") {
			return fmt.Errorf("submission %s not found", id)
		}
		return fmt.Errorf("failed to get submission: %w", err)
	}

	if jsonOutput {
		return printJSON(os.Stdout, s)
	}
	printSubmission(os.Stdout, s)
	return nil
}

func printSubmission(w io.Writer, s *client.Submission) {
	fmt.Fprintf(w, "ID:          %s\n", s.ID)
	fmt.Fprintf(w, "URL:         %s\n", s.URL)
	if s.Query != "" {
		fmt.Fprintf(w, "Query:       %s\n", s.Query)
	}
	fmt.Fprintf(w, "Force:       %t\n", s.ForceRefresh)
	fmt.Fprintf(w, "State:       %s\n", s.State)
	fmt.Fprintf(w, "Transaction: %s\n", orDash(s.TxHash))
	fmt.Fprintf(w, "Checks:      %d\n", s.Attempts)
	fmt.Fprintf(w, "Contract:    %s\n", s.Contract)
	fmt.Fprintf(w, "Created:     %s\n", s.CreatedAt.Local().Format(time.DateTime))
	if s.CompletedAt != nil {
		fmt.Fprintf(w, "Completed:   %s\n", s.CompletedAt.Local().Format(time.DateTime))
	}
	if s.Error != "" {
		fmt.Fprintf(w, "Error:       %s\n", s.Error)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func shortHash(h string) string {
	if len(h) > 14 {
		return h[:10] + "…" + h[len(h)-4:]
	}
	return h
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
