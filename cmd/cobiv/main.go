package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"cobiv/internal/logging"
	"cobiv/internal/startup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// cli carries state shared by the subcommands.
type cli struct {
	cfgFile string
	config  *startup.Config
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:           "cobiv",
		Short:         "Catalog, filter and browse image collections",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			config, err := startup.LoadConfig(c.cfgFile)
			if err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			logging.SetOutputFile(config.LogFile)
			c.config = config
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (default is $HOME/.cobiv/cobiv.yml)")

	rootCmd.AddCommand(newInitCmd(c))
	rootCmd.AddCommand(newUpdateDBCmd(c))
	rootCmd.AddCommand(newShellCmd(c))
	rootCmd.AddCommand(newExecCmd(c))
	rootCmd.AddCommand(newThumbsCmd(c))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// withApp opens the application for one subcommand run.
func (c *cli) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := openApp(ctx, c.config, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			info := startup.GetBuildInfo()
			fmt.Fprintf(cmd.OutOrStdout(), "cobiv %s (%s) built %s with %s %s/%s\n",
				info.Version, info.Commit, info.BuildTime, info.GoVersion, info.OS, info.Arch)
		},
	}
}
