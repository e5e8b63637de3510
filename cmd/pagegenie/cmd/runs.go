package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	perrors "github.com/Aman-CERP/pagegenie/internal/errors"
	"github.com/Aman-CERP/pagegenie/internal/store"
)

const defaultRunsLimit = 20

func newRunsCmd() *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "runs [RUN_ID]",
		Short: "Show recent chat runs",
		Long: `List the most recent chat runs, newest first, or show one run in full:
its status, stage timings, retrieved chunks and answer preview.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runRunShow(cmd.Context(), cmd.OutOrStdout(), args[0], jsonOutput)
			}
			return runRunsList(cmd.Context(), cmd.OutOrStdout(), limit, jsonOutput)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", defaultRunsLimit, "Number of runs to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func openRuns() (*store.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return openStore(cfg)
}

func runRunsList(ctx context.Context, out io.Writer, limit int, jsonOutput bool) error {
	if limit < 1 {
		return perrors.ValidationError(fmt.Sprintf("limit must be positive, got %d", limit), nil)
	}
	db, err := openRuns()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	runs, err := db.ListRuns(ctx, limit)
	if err != nil {
		return perrors.StoreError("failed to list runs", err)
	}

	if jsonOutput {
		if runs == nil {
			runs = []store.RunRecord{}
		}
		return encodeIndented(out, runs)
	}
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(out, "No runs recorded.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tMETHOD\tPAGE\tCHUNKS\tWHEN\tQUESTION")
	_, _ = fmt.Fprintln(w, "--\t------\t------\t----\t------\t----\t--------")
	for _, r := range runs {
		status := r.Status
		if r.ErrorCode != "" {
			status += " " + r.ErrorCode
		}
		page := r.PageSlug
		if page == "" {
			page = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			r.ID, status, r.RetrievalMethod, page, len(r.ChunkRefs),
			formatTimeAgo(r.CreatedAt), oneLine(r.Question, 60))
	}
	return w.Flush()
}

func runRunShow(ctx context.Context, out io.Writer, id string, jsonOutput bool) error {
	db, err := openRuns()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	r, err := db.Run(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return perrors.ValidationError(fmt.Sprintf("no run %q", id), err).
			WithSuggestion("List run IDs with: pagegenie runs")
	}
	if err != nil {
		return perrors.StoreError("failed to read run", err)
	}

	if jsonOutput {
		return encodeIndented(out, r)
	}

	_, _ = fmt.Fprintf(out, "Run:       %s\n", r.ID)
	_, _ = fmt.Fprintf(out, "Status:    %s\n", r.Status)
	if r.ErrorCode != "" {
		_, _ = fmt.Fprintf(out, "Error:     [%s] %s\n", r.ErrorCode, r.ErrorMessage)
	}
	_, _ = fmt.Fprintf(out, "Question:  %s\n", r.Question)
	_, _ = fmt.Fprintf(out, "Method:    %s\n", r.RetrievalMethod)
	if r.PageSlug != "" {
		_, _ = fmt.Fprintf(out, "Page:      %s\n", r.PageSlug)
	}
	if r.Saved {
		saved := "yes"
		if r.VersionLabel != "" {
			saved += ", previous archived as " + r.VersionLabel
		}
		_, _ = fmt.Fprintf(out, "Saved:     %s\n", saved)
	}
	if r.Warning != "" {
		_, _ = fmt.Fprintf(out, "Warning:   %s\n", r.Warning)
	}
	for _, t := range stageTimes(r.Timings) {
		_, _ = fmt.Fprintf(out, "  %-9s %.1fms\n", t.Name, t.MS)
	}
	if len(r.ChunkRefs) > 0 {
		refs := make([]string, len(r.ChunkRefs))
		for i, ref := range r.ChunkRefs {
			refs[i] = ref.String()
		}
		_, _ = fmt.Fprintf(out, "Chunks:    %s\n", strings.Join(refs, ", "))
	}
	_, _ = fmt.Fprintf(out, "Started:   %s\n", r.CreatedAt.Format("2006-01-02 15:04:05"))
	if r.AnswerPreview != "" {
		_, _ = fmt.Fprintf(out, "\n%s\n", r.AnswerPreview)
	}
	return nil
}

func encodeIndented(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// oneLine collapses whitespace and truncates s to n runes.
func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
