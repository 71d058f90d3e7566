package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/media-catalog-crawler/internal/server"
)

// newCrawlCmd creates the 'crawl' subcommand, which crawls one directory tree in-process
// and prints the final counters.
func newCrawlCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "crawl <url>",
		Short: "Crawls a directory listing once and exits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := server.Build(ctx, cfg)
			if err != nil {
				return fmt.Errorf("build application: %w", err)
			}
			defer func() {
				if cerr := app.Close(context.WithoutCancel(ctx)); cerr != nil {
					zap.L().Warn("close application failed", zap.Error(cerr))
				}
			}()

			job, err := app.Crawl(ctx, args[0], userID)
			if err != nil {
				return err
			}
			c := job.Counters
			fmt.Fprintf(cmd.OutOrStdout(),
				"crawl %s %s: found=%d processed=%d successful=%d errors=%d\n",
				job.ID, job.Status, c.FilesFound, c.FilesProcessed, c.FilesSuccessful, c.FilesWithErrors)
			if job.ErrorMessage != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "error: %s\n", job.ErrorMessage)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "cli", "user id recorded on the crawl")
	return cmd
}
