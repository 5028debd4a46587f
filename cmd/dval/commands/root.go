// Package commands implements the CLI commands for dval.
package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.trai.ch/dval/internal/app"
	"go.trai.ch/dval/internal/build"
	"go.trai.ch/dval/internal/core/ports"
)

// CLI represents the command line interface for dval.
type CLI struct {
	app     Application
	logger  ports.Logger
	rootCmd *cobra.Command
}

// Application represents the application logic interface.
type Application interface {
	Run(ctx context.Context, opts app.RunOptions) error
	Serve(ctx context.Context, opts app.ServeOptions) error
	ClearCache(ctx context.Context, configPath string) error
	PruneCache(ctx context.Context, configPath string) (int, error)
}

// Option configures a CLI.
type Option func(*CLI)

// WithLogger lets the global logging flags reconfigure log.
func WithLogger(log ports.Logger) Option {
	return func(c *CLI) {
		c.logger = log
	}
}

// logSettings is implemented by loggers whose format can be changed at runtime.
type logSettings interface {
	SetJSON(enable bool)
	SetQuiet(quiet bool)
}

// New creates a new CLI instance with the given app.
func New(a Application, opts ...Option) *CLI {
	rootCmd := &cobra.Command{
		Use:           "dval",
		Short:         "Estimate the value of every point in a dataset",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       build.Version,
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"{{.Name}} version {{.Version}} (commit: %s, date: %s)\n",
		build.Commit,
		build.Date,
	))
	rootCmd.InitDefaultVersionFlag()
	rootCmd.Flags().Lookup("version").Usage = "Print the application version"

	rootCmd.InitDefaultHelpFlag()
	rootCmd.Flags().Lookup("help").Usage = "Show help for command"

	rootCmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Only log warnings and errors")

	c := &CLI{
		app:     a,
		rootCmd: rootCmd,
	}
	for _, opt := range opts {
		opt(c)
	}

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, _ []string) {
		settings, ok := c.logger.(logSettings)
		if !ok {
			return
		}
		jsonLogs, _ := cmd.Flags().GetBool("log-json")
		quiet, _ := cmd.Flags().GetBool("quiet")
		settings.SetJSON(jsonLogs)
		settings.SetQuiet(quiet)
	}

	rootCmd.AddCommand(c.newRunCmd())
	rootCmd.AddCommand(c.newServeCmd())
	rootCmd.AddCommand(c.newCacheCmd())
	rootCmd.AddCommand(c.newVersionCmd())

	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOutput sets the output and error streams for the root command. Used for testing.
func (c *CLI) SetOutput(out, err io.Writer) {
	c.rootCmd.SetOut(out)
	c.rootCmd.SetErr(err)
}
