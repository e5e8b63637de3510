package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	perrors "github.com/Aman-CERP/pagegenie/internal/errors"
	"github.com/Aman-CERP/pagegenie/internal/ingest"
	"github.com/Aman-CERP/pagegenie/internal/store"
	"github.com/Aman-CERP/pagegenie/internal/ui"
	"github.com/Aman-CERP/pagegenie/internal/versions"
)

func newVersionsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "versions [SLUG]",
		Short: "List pages or a page's versions",
		Long: `Without arguments, list every stored page. With a slug, list that page's
versions: current first, then archived versions newest first.

Examples:
  pagegenie versions
  pagegenie versions home
  pagegenie versions show home v2
  pagegenie versions restore home v2`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runPagesList(cmd.Context(), cmd.OutOrStdout())
			}
			return runVersionsList(cmd.Context(), cmd.OutOrStdout(), args[0], jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	cmd.AddCommand(newVersionsShowCmd())
	cmd.AddCommand(newVersionsRestoreCmd())

	return cmd
}

func newVersionsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show SLUG [LABEL]",
		Short: "Print the HTML of one version",
		Long:  `Print the HTML of one version of a page. LABEL defaults to "current".`,
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			label := store.CurrentLabel
			if len(args) == 2 {
				label = args[1]
			}
			return runVersionsShow(cmd.Context(), cmd.OutOrStdout(), args[0], label)
		},
	}
}

func newVersionsRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore SLUG LABEL",
		Short: "Publish an archived version as current",
		Long: `Publish the content of an archived version as the page's current
content. The content being replaced is archived like any other publish,
so a restore can itself be undone.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersionsRestore(cmd.Context(), cmd.OutOrStdout(), args[0], args[1])
		},
	}
}

// openReader opens the store for read-only version access.
func openReader() (*versions.Manager, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	db, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	return versions.NewManager(db, nil, nil, versions.Config{}), func() { _ = db.Close() }, nil
}

func checkSlug(slug string) error {
	if !ingest.ValidSlug(slug) {
		return perrors.New(perrors.ErrCodeInvalidSlug, fmt.Sprintf("invalid page slug %q", slug), nil).
			WithSuggestion("Slugs are letters, digits, '-' and '_', starting with a letter or digit")
	}
	return nil
}

func runPagesList(ctx context.Context, out io.Writer) error {
	mgr, closeFn, err := openReader()
	if err != nil {
		return err
	}
	defer closeFn()

	slugs, err := mgr.Slugs(ctx)
	if err != nil {
		return err
	}
	if len(slugs) == 0 {
		_, _ = fmt.Fprintln(out, "No pages stored.")
		_, _ = fmt.Fprintln(out, "")
		_, _ = fmt.Fprintln(out, "Add pages/<slug>.html and run: pagegenie ingest")
		return nil
	}
	for _, slug := range slugs {
		_, _ = fmt.Fprintln(out, slug)
	}
	return nil
}

func runVersionsList(ctx context.Context, out io.Writer, slug string, jsonOutput bool) error {
	if err := checkSlug(slug); err != nil {
		return err
	}
	mgr, closeFn, err := openReader()
	if err != nil {
		return err
	}
	defer closeFn()

	infos, err := mgr.History(ctx, slug)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Slug     string              `json:"slug"`
			Versions []store.VersionInfo `json:"versions"`
		}{slug, infos})
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "LABEL\tSIZE\tSAVED")
	_, _ = fmt.Fprintln(w, "-----\t----\t-----")
	for _, v := range infos {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", v.Label, ui.FormatBytes(int64(v.Size)), formatTimeAgo(v.CreatedAt))
	}
	return w.Flush()
}

func runVersionsShow(ctx context.Context, out io.Writer, slug, label string) error {
	if err := checkSlug(slug); err != nil {
		return err
	}
	mgr, closeFn, err := openReader()
	if err != nil {
		return err
	}
	defer closeFn()

	content, err := mgr.Get(ctx, slug, label)
	if err != nil {
		return err
	}
	_, err = io.WriteString(out, content)
	return err
}

func runVersionsRestore(ctx context.Context, out io.Writer, slug, label string) error {
	if err := checkSlug(slug); err != nil {
		return err
	}
	if label == store.CurrentLabel {
		return perrors.ValidationError("restore needs an archived label such as v2", nil)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(ctx, cfg, appOptions{lock: true})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	content, err := a.versions.Get(ctx, slug, label)
	if err != nil {
		return err
	}
	res, err := a.versions.Publish(ctx, slug, content)
	if err != nil {
		return err
	}

	msg := fmt.Sprintf("Restored %s of %s as current", label, slug)
	if res.Archived != "" {
		msg += fmt.Sprintf("; previous content archived as %s", res.Archived)
	}
	_, _ = fmt.Fprintln(out, msg+".")
	if w := res.Warning(); w != "" {
		_, _ = fmt.Fprintf(out, "Warning: %s\n", w)
	}
	return nil
}

// formatTimeAgo formats a time as a human-readable "time ago" string.
func formatTimeAgo(t time.Time) string {
	d := time.Since(t)

	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		mins := int(d.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case d < 24*time.Hour:
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case d < 7*24*time.Hour:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("Jan 2, 2006")
	}
}
