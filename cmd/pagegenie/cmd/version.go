package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/pagegenie/pkg/version"
)

func newVersionCmd() *cobra.Command {
	var jsonOutput, shortOutput bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long: `Print the pagegenie version, git commit, build date and platform, and the
User-Agent sent to the OpenAI and Cohere APIs.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			info := version.GetInfo()
			switch {
			case shortOutput:
				_, err := fmt.Fprintln(out, info.Version)
				return err
			case jsonOutput:
				return encodeIndented(out, info)
			}
			_, _ = fmt.Fprintln(out, info.String())
			_, err := fmt.Fprintf(out, "user-agent: %s\n", info.UserAgent)
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")
	cmd.Flags().BoolVar(&shortOutput, "short", false, "Output only the version number")

	return cmd
}
