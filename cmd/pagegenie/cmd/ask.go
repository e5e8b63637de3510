package cmd

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/pagegenie/internal/pipeline"
	"github.com/Aman-CERP/pagegenie/internal/store"
	"github.com/Aman-CERP/pagegenie/internal/ui"
)

type askOptions struct {
	page       string
	method     string
	selected   string
	system     string
	jsonOutput bool
	noColor    bool
}

func newAskCmd() *cobra.Command {
	var opts askOptions

	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Run one chat request from the terminal",
		Long: `Run one chat request through retrieval, reranking and generation and
print its progress. With --page, an answer that is a full HTML document
replaces the page and the previous content is archived.

Prefix the message with "image:" to generate an image instead.`,
		Example: `  pagegenie ask "What does the pricing page promise?"
  pagegenie ask --page home "Change the title to Welcome"
  pagegenie ask --json --method vector "shipping times"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd.Context(), cmd.OutOrStdout(), strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.page, "page", "p", "", "Page slug the request edits")
	cmd.Flags().StringVarP(&opts.method, "method", "m", "", "Retrieval method: vector or hybrid")
	cmd.Flags().StringVar(&opts.selected, "selected", "", "HTML of the element the request focuses on")
	cmd.Flags().StringVar(&opts.system, "system", "", "Replace the default system context")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print events as JSON lines")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	return cmd
}

func runAsk(ctx context.Context, out io.Writer, message string, opts askOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(ctx, cfg, appOptions{lock: true})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if _, err := a.syncPages(ctx, nil); err != nil {
		return err
	}

	var sink pipeline.Sink
	if opts.jsonOutput {
		enc := json.NewEncoder(out)
		sink = func(ev pipeline.Event) {
			_ = enc.Encode(struct {
				Event string `json:"event"`
				Data  any    `json:"data"`
			}{ev.Name, ev.Data})
		}
	} else {
		sink = printerSink(ui.NewAskPrinter(out, opts.noColor || ui.DetectNoColor()))
	}

	_, err = a.pipeline.Run(ctx, pipeline.Request{
		Message:         message,
		PageSlug:        opts.page,
		RetrievalMethod: opts.method,
		SelectedHTML:    opts.selected,
		SystemContext:   opts.system,
	}, sink)
	if err != nil {
		// The error event already described the failure.
		return silent(err)
	}
	return nil
}

// printerSink renders pipeline events with p.
func printerSink(p *ui.AskPrinter) pipeline.Sink {
	return func(ev pipeline.Event) {
		switch data := ev.Data.(type) {
		case pipeline.PhasePayload:
			p.Phase(data.Name)
		case pipeline.RetrievedPayload:
			p.Retrieved(data.NumChunks, data.Timings.RetrieveMS)
		case pipeline.ErrorPayload:
			p.Error(data.Code, data.Message)
		case pipeline.DonePayload:
			p.Done(ui.AskSummary{
				Answer:  data.Answer,
				Saved:   data.Saved,
				Method:  data.RetrievalMethod,
				Version: data.Version,
				Warning: data.Warning,
				RunID:   data.RunID,
				Timings: stageTimes(data.Timings),
			})
		}
	}
}

// stageTimes lists the recorded stage durations in pipeline order.
func stageTimes(t store.StageTimings) []ui.StageTime {
	var out []ui.StageTime
	for _, st := range []struct {
		name string
		ms   *float64
	}{
		{"embed", t.EmbedMS},
		{"retrieve", t.RetrieveMS},
		{"rerank", t.RerankMS},
		{"generate", t.GenerateMS},
	} {
		if st.ms != nil {
			out = append(out, ui.StageTime{Name: st.name, MS: *st.ms})
		}
	}
	return out
}
