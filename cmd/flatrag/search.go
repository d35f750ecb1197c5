package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/flatrag/internal/domain/search/filter"
)

// splitArgs separates positional arguments from the filter arguments after "--".
// Both "--filter expr" and "--filter=expr" are accepted after the dash.
func splitArgs(cmd *cobra.Command, args []string) ([]string, filter.Set, []error) {
	dash := cmd.ArgsLenAtDash()
	if dash < 0 {
		return args, nil, nil
	}
	set, diags := filter.ParseArgs(args[dash:], filter.DefaultFlag)
	return args[:dash], set, diags
}

// questionArgs extracts topic and question; the question may span several arguments.
func questionArgs(cmd *cobra.Command, args []string, logger *zap.Logger) (string, string, filter.Set, error) {
	positional, filters, diags := splitArgs(cmd, args)
	for _, d := range diags {
		logger.Warn("Dropped malformed filter", zap.Error(d))
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", d)
	}
	if len(positional) < 2 {
		return "", "", nil, fmt.Errorf("usage: %s", cmd.UseLine())
	}
	return positional[0], strings.Join(positional[1:], " "), filters, nil
}

func newSearchCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "search <topic> <question> [-- --filter expr ...]",
		Short: "Print the ranked chunks of a topic for a question as JSON",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, logger, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			defer eng.Close()

			topic, question, filters, err := questionArgs(cmd, args, logger)
			if err != nil {
				return err
			}

			chunks, err := eng.Search(cmd.Context(), topic, question, filters)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), chunks)
		},
	}
}

func newQueryCmd(opts *options) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "query <topic> <question> [--raw] [-- --filter expr ...]",
		Short: "Answer a question from a topic",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, logger, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			defer eng.Close()

			topic, question, filters, err := questionArgs(cmd, args, logger)
			if err != nil {
				return err
			}

			if raw {
				res, err := eng.QueryRaw(cmd.Context(), topic, question, filters)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			}

			answer, err := eng.Query(cmd.Context(), topic, question, filters)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), answer)
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print chunks, prompt and response as JSON")
	return cmd
}

func newTopicsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "topics",
		Short: "List stored topics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, logger, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			defer eng.Close()

			topics, err := eng.Topics(cmd.Context())
			if err != nil {
				return err
			}
			for _, t := range topics {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
			return nil
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
