package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/pendergraft/urlverifier/internal/verification/domain"
	"github.com/pendergraft/urlverifier/pkg/client"
)

// Display caps for the free-text columns.
const (
	urlWidth    = 48
	answerWidth = 40
)

type listOptions struct {
	client.ViewOptions
	JSON bool
}

func createListCmd() *cobra.Command {
	var opts listOptions

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the latest verifications",
		Long: `Show a short overview of recent verifications: up to three accessible,
one inaccessible and one page where the requested content was not found.

EXAMPLES:
  urlverifier list
  urlverifier list --url https://example.com
  urlverifier list --offline
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.View = string(domain.ViewSummary)
			return runList(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.URL, "url", "", "expand the first record for this URL")
	cmd.Flags().BoolVar(&opts.Offline, "offline", false, "show the last stored snapshot instead of reading the chain")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "output as JSON")

	return cmd
}

func createHistoryCmd() *cobra.Command {
	var opts listOptions

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse all verifications",
		Long: `List every verification, most recent first, optionally narrowed by
category and a case-insensitive search over url, query, answer and analysis.

Filters: all, accessible, inaccessible, no-content.

EXAMPLES:
  urlverifier history
  urlverifier history --filter inaccessible
  urlverifier history --search pricing
  urlverifier history --url https://example.com/pricing
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("filter") {
				if config := loadProjectConfigSilent(); config != nil && config.Filter != "" {
					opts.Filter = config.Filter
				}
			}
			if _, err := domain.ParseFilter(opts.Filter); err != nil {
				return err
			}
			opts.View = string(domain.ViewAll)
			return runList(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", string(domain.FilterAll), "category filter (default from config)")
	cmd.Flags().StringVarP(&opts.Search, "search", "s", "", "search text")
	cmd.Flags().StringVar(&opts.URL, "url", "", "expand the first record for this URL")
	cmd.Flags().BoolVar(&opts.Offline, "offline", false, "show the last stored snapshot instead of reading the chain")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "output as JSON")

	return cmd
}

func runList(ctx context.Context, opts listOptions) error {
	c, err := newClient(ctx)
	if err != nil {
		return err
	}

	view, err := c.Verifications(ctx, opts.ViewOptions)
	if err != nil {
		if client.IsCode(err, "NOT_FOUND") && opts.Offline {
			return fmt.Errorf("no stored snapshot yet; run without --offline first")
		}
		return fmt.Errorf("failed to get verifications: %w", err)
	}

	if opts.JSON {
		return printJSON(os.Stdout, view)
	}
	return renderView(os.Stdout, view, opts.URL)
}

// renderView prints the table, the stats and, when requested is found, the
// expanded record.
func renderView(w io.Writer, view *client.View, requested string) error {
	if view.Source == string(domain.SourceSnapshot) {
		fmt.Fprintf(w, "Offline snapshot from %s\n\n", view.FetchedAt.Local().Format(time.DateTime))
	}

	if len(view.Data) == 0 {
		switch {
		case view.Search != "":
			fmt.Fprintf(w, "No verifications match %q\n", view.Search)
		case view.Filter != "" && view.Filter != string(domain.FilterAll):
			fmt.Fprintf(w, "No %s verifications\n", view.Filter)
		default:
			fmt.Fprintln(w, "No verifications yet")
		}
		printStats(w, view.Stats)
		return nil
	}

	highlighted := -1
	if view.Highlight != nil {
		highlighted = view.Highlight.Index
	}

	t := newTable("", "STATUS", "URL", "CODE", "ANSWER", "VERIFIED").
		limit(2, urlWidth).
		limit(4, answerWidth)
	for i, r := range view.Data {
		marker := ""
		if i == highlighted {
			marker = ">"
		}
		t.add(marker, string(categoryOf(r)), r.URL, statusCode(r), answerText(r), when(r))
	}
	if err := t.render(w); err != nil {
		return err
	}

	fmt.Fprintln(w)
	printStats(w, view.Stats)

	if highlighted >= 0 && highlighted < len(view.Data) {
		fmt.Fprintln(w)
		printRecord(w, view.Data[highlighted])
	} else if requested != "" {
		fmt.Fprintf(w, "\nNo record for %s in this view\n", requested)
	}
	return nil
}

func printStats(w io.Writer, s client.Stats) {
	fmt.Fprintf(w, "%d total: %d accessible, %d inaccessible, %d no content\n",
		s.Total, s.Accessible, s.Inaccessible, s.NoContent)
}

// printRecord is the expanded view of one verification.
func printRecord(w io.Writer, r client.Record) {
	fmt.Fprintf(w, "URL:         %s\n", r.URL)
	fmt.Fprintf(w, "Status:      %s\n", categoryOf(r))
	fmt.Fprintf(w, "Verified:    %s\n", when(r))
	fmt.Fprintf(w, "HTTP status: %s\n", statusCode(r))
	if r.ErrorMessage != "" {
		fmt.Fprintf(w, "Error:       %s\n", r.ErrorMessage)
	}
	if r.Query != "" {
		fmt.Fprintf(w, "Query:       %s\n", r.Query)
		found := "no"
		if r.ContentFound != nil && *r.ContentFound {
			found = "yes"
		}
		fmt.Fprintf(w, "Found:       %s\n", found)
	}
	if a := domain.Record(r).Answer(); a != "" {
		fmt.Fprintf(w, "Answer:      %s\n", a)
	}
	if r.Analysis != "" {
		fmt.Fprintf(w, "Analysis:\n  %s\n", clean(r.Analysis))
	}
}

func categoryOf(r client.Record) domain.Category {
	return domain.Categorize(domain.Record(r))
}

func statusCode(r client.Record) string {
	if r.StatusCode == 0 {
		return "-"
	}
	return strconv.Itoa(r.StatusCode)
}

func answerText(r client.Record) string {
	if a := domain.Record(r).Answer(); a != "" {
		return a
	}
	if r.ErrorMessage != "" {
		return r.ErrorMessage
	}
	return "-"
}

// when renders the record time, or the raw value if it does not parse.
func when(r client.Record) string {
	t := domain.Record(r).Time()
	if t.Unix() == 0 {
		if r.Timestamp == "" {
			return "-"
		}
		return r.Timestamp
	}
	return t.Local().Format(time.DateTime)
}
