package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/dval/internal/adapters/report"
	"go.trai.ch/dval/internal/app"
)

func (c *CLI) newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Valuate the dataset described by the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			asJSON, _ := cmd.Flags().GetBool("json")
			top, _ := cmd.Flags().GetInt("top")
			trace, _ := cmd.Flags().GetBool("trace")

			format := report.FormatTable
			if asJSON {
				format = report.FormatJSON
			}

			return c.app.Run(cmd.Context(), app.RunOptions{
				ConfigPath: configPath,
				Format:     format,
				Top:        top,
				Trace:      trace,
			})
		},
	}
	cmd.Flags().StringP("config", "c", ".", "Path to dval.yaml or the directory containing it")
	cmd.Flags().Bool("json", false, "Print the report as JSON")
	cmd.Flags().IntP("top", "n", 0, "Only report the n most valuable points")
	cmd.Flags().Bool("trace", false, "Write OpenTelemetry spans to stderr")
	return cmd
}
