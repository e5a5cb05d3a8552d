package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"cobiv/internal/database"
	"cobiv/internal/indexer"
	"cobiv/internal/logging"
	"cobiv/internal/startup"
)

func newInitCmd(c *cli) *cobra.Command {
	var flat bool

	cmd := &cobra.Command{
		Use:   "init [repository]",
		Short: "Create the default catalog and register a repository",
		Long: `Create the default catalog if it does not exist and register a repository
under it. Without an argument the configured repository is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo := c.config.Repository
			if len(args) == 1 {
				repo = args[0]
			}
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				if err := initCatalog(ctx, a.db, repo, !flat); err != nil {
					return err
				}
				repos, err := a.db.Repositories(ctx)
				if err != nil {
					return err
				}
				for _, r := range repos {
					fmt.Fprintf(cmd.OutOrStdout(), "%d %s recursive=%v\n", r.ID, r.Path, r.Recursive)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&flat, "flat", false, "do not descend into subdirectories")
	return cmd
}

func newUpdateDBCmd(c *cli) *cobra.Command {
	var vacuum bool

	cmd := &cobra.Command{
		Use:   "updatedb",
		Short: "Synchronize the catalog with its repositories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				stop := context.AfterFunc(ctx, a.indexer.Cancel)
				defer stop()

				startup.LogSyncStarted()
				result, err := a.indexer.Sync(ctx)
				startup.LogSyncFinished(result.Added, result.Removed, result.Failed, result.Duration)

				out := cmd.OutOrStdout()
				switch {
				case errors.Is(err, indexer.ErrCancelled):
					fmt.Fprintln(out, "sync cancelled")
					return nil
				case err != nil:
					return err
				}

				fmt.Fprintf(out, "%d added, %d removed, %d failed in %v\n",
					result.Added, result.Removed, result.Failed, result.Duration.Round(time.Millisecond))

				if vacuum && result.Changed() {
					if err := a.db.Vacuum(ctx); err != nil {
						return fmt.Errorf("vacuum failed: %w", err)
					}
					logging.Info("Catalog compacted")
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&vacuum, "vacuum", false, "compact the catalog after a sync that changed it")
	return cmd
}

func newShellCmd(c *cli) *cobra.Command {
	var prompt string

	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Read commands from standard input",
		Long: `Read one command per line from standard input and run it against the
working set, which starts as the whole catalog. "quit" or end of input exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				if _, err := a.session.Search(ctx); err != nil {
					return err
				}
				a.cache.Start()

				out := cmd.OutOrStdout()
				scanner := bufio.NewScanner(cmd.InOrStdin())
				for {
					fmt.Fprint(out, prompt)
					if !scanner.Scan() {
						break
					}
					if ctx.Err() != nil {
						return nil
					}

					line := strings.TrimSpace(scanner.Text())
					switch line {
					case "":
						continue
					case "quit", "exit":
						return nil
					}

					if err := a.registry.Execute(ctx, line); err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
					}
				}
				return scanner.Err()
			})
		},
	}

	cmd.Flags().StringVar(&prompt, "prompt", "cobiv> ", "prompt printed before each line")
	return cmd
}

func newExecCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "exec <command line>...",
		Short: "Run commands against the whole catalog",
		Long: `Run each argument as one command line, in order, against a working set
that starts as the whole catalog. The first failing command stops the run.`,
		Example: `  cobiv exec "search tag:holiday ext:jpg" "sort -size" "page 20"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				if _, err := a.session.Search(ctx); err != nil {
					return err
				}
				for _, line := range args {
					if err := a.registry.Execute(ctx, line); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newThumbsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "thumbs",
		Short: "Generate missing thumbnails for every cataloged file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				set, err := a.db.NamedSet(ctx, database.DefaultSetName)
				if errors.Is(err, database.ErrNotFound) {
					fmt.Fprintln(cmd.OutOrStdout(), "catalog is empty, run updatedb first")
					return nil
				}
				if err != nil {
					return err
				}

				keys, err := a.db.SetFileKeys(ctx, set)
				if err != nil {
					return err
				}

				a.reporter.Start("Generating thumbnails")
				a.reporter.SetMax(len(keys))
				defer a.reporter.Stop()

				done := 0
				for _, key := range keys {
					if ctx.Err() != nil {
						break
					}
					rec, err := a.db.File(ctx, key)
					if err != nil {
						logging.Warn("Skipping file %d: %v", key, err)
						a.reporter.Tick()
						continue
					}
					a.cache.Get(key, rec.Name)
					a.reporter.Tick()
					done++
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%d of %d thumbnails ready in %s\n", done, len(keys), a.cache.Dir())
				return nil
			})
		},
	}
}
