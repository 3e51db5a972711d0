package main

import (
	"errors"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oicur0t/tracex/internal/filter"
	"github.com/oicur0t/tracex/internal/loader"
	"github.com/oicur0t/tracex/internal/reader"
	"github.com/oicur0t/tracex/pkg/models"
)

func newDumpCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump FILE",
		Short: "Print every record, with records lost to wrapping reconstructed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runDump(cmd, args[0])
		},
	}
	cmd.Flags().StringP("output", "o", "text", "Output format (text, json, yaml)")
	cmd.Flags().StringSlice("level", nil, "Only show these levels")
	return cmd
}

func (a *app) runDump(cmd *cobra.Command, path string) error {
	ctx := cmd.Context()
	flt, err := filter.New(a.cfg.Filters)
	if err != nil {
		return err
	}

	rd, err := reader.Open(ctx, path, reader.Options{
		Logger:   a.logger,
		Password: a.passwordPrompter(),
	})
	if err != nil {
		return err
	}
	defer rd.Close()

	sessions, err := loader.New(a.logger).Collect(ctx, rd)
	if err != nil {
		if !errors.Is(err, reader.ErrCorruptPreamble) {
			return err
		}
		a.logger.Warn("Stopped at corrupt session", zap.String("file", path), zap.Error(err))
	}
	flt.Apply(rd.Registry())

	p := newPrinter(cmd.OutOrStdout(), a.cfg.Output, filepath.Base(path))
	for _, s := range sessions {
		shown := make([]*models.Record, 0, len(s.Records))
		for _, rec := range s.Records {
			if flt.Allows(rec) {
				shown = append(shown, rec)
			}
		}
		if err := p.Print(shown); err != nil {
			return err
		}
	}
	return p.Close()
}
