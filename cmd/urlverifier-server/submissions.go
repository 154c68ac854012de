package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pendergraft/urlverifier/internal/storage"
)

func newSubmissionsCmd() *cobra.Command {
	var state, url string
	var limit int

	cmd := &cobra.Command{
		Use:   "submissions",
		Short: "List journaled submissions straight from storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmissions(cmd.Context(), storage.SubmissionFilter{State: state, URL: url}, limit)
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "filter by state (pending, confirmed, timed_out, failed)")
	cmd.Flags().StringVar(&url, "url", "", "filter by submitted URL")
	cmd.Flags().IntVar(&limit, "limit", storage.DefaultPageSize, "maximum rows")

	return cmd
}

func runSubmissions(ctx context.Context, filter storage.SubmissionFilter, limit int) error {
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	page, err := store.ListSubmissions(ctx, filter, storage.PaginationParams{Limit: limit})
	if err != nil {
		return fmt.Errorf("listing submissions: %w", err)
	}

	if len(page.Data) == 0 {
		fmt.Println("No submissions found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATE\tURL\tTX\tATTEMPTS\tCREATED")
	for _, s := range page.Data {
		tx := s.TxHash
		if tx == "" {
			tx = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n", shortID(s.ID), s.State, s.URL, tx, s.Attempts, s.CreatedAt)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if page.HasMore {
		fmt.Printf("\n(more rows; raise --limit)\n")
	}
	return nil
}
