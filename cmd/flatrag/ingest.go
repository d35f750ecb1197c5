package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	dombatch "github.com/kailas-cloud/flatrag/internal/domain/batch"
)

func newIngestCmd(opts *options) *cobra.Command {
	var watchDir string

	cmd := &cobra.Command{
		Use:   "ingest <topic> [files...]",
		Short: "Chunk, embed and store documents under a topic",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			topic, files := args[0], args[1:]
			if len(files) == 0 && watchDir == "" {
				return fmt.Errorf("nothing to ingest: pass files or --watch <dir>")
			}

			eng, logger, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			defer eng.Close()

			ctx := cmd.Context()
			if len(files) > 0 {
				results, err := eng.IngestAll(ctx, topic, files)
				if err != nil {
					return err
				}
				for _, r := range results {
					if r.Status() == dombatch.StatusOK {
						fmt.Fprintf(cmd.OutOrStdout(), "ok     %s (%d chunks)\n", r.Path(), r.Chunks())
					} else {
						fmt.Fprintf(cmd.ErrOrStderr(), "error  %s: %v\n", r.Path(), r.Err())
					}
				}
				if n := dombatch.Failed(results); n > 0 && watchDir == "" {
					return fmt.Errorf("%d of %d documents failed", n, len(results))
				}
			}

			if watchDir == "" {
				return nil
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			logger.Info("Watching for changes", zap.String("dir", watchDir), zap.String("topic", topic))
			return eng.Watch(ctx, topic, watchDir)
		},
	}
	cmd.Flags().StringVar(&watchDir, "watch", "", "keep the topic in sync with documents in this directory")
	return cmd
}
