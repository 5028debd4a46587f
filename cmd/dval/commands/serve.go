package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/dval/internal/app"
	"go.trai.ch/dval/internal/core/domain"
)

func (c *CLI) newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the shared result cache daemon",
		Long: "Run the shared result cache daemon. With --worker the daemon also evaluates the " +
			"utility configured in dval.yaml for runs using the remote executor.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			listen, _ := cmd.Flags().GetString("listen")
			worker, _ := cmd.Flags().GetBool("worker")
			metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
			idle, _ := cmd.Flags().GetDuration("idle-timeout")

			if worker && configPath == "" {
				configPath = "."
			}

			return c.app.Serve(cmd.Context(), app.ServeOptions{
				ConfigPath:  configPath,
				Listen:      listen,
				Worker:      worker,
				MetricsAddr: metricsAddr,
				IdleTimeout: idle,
			})
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to dval.yaml; required with --worker (defaults to .)")
	cmd.Flags().StringP("listen", "l", domain.DefaultDaemonAddress, "Address to serve gRPC on")
	cmd.Flags().Bool("worker", false, "Also serve utility evaluations")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address")
	cmd.Flags().Duration("idle-timeout", 0, "Stop after this long without requests (0 disables)")
	return cmd
}
