package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/oicur0t/tracex/internal/reader"
)

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info FILE",
		Short: "Show the file header and per-session statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runInfo(cmd, args[0])
		},
	}
}

func (a *app) runInfo(cmd *cobra.Command, path string) error {
	ctx := cmd.Context()
	rd, err := reader.Open(ctx, path, reader.Options{
		Logger:   a.logger,
		Password: a.passwordPrompter(),
	})
	if err != nil {
		return err
	}
	defer rd.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "File:            %s\n", filepath.Base(path))
	fmt.Fprintf(out, "Format version:  %d\n", rd.Version())
	fmt.Fprintf(out, "Size:            %s\n", humanize.IBytes(uint64(rd.Size())))

	for {
		sess, err := rd.NextSession(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if errors.Is(err, reader.ErrCorruptPreamble) {
				fmt.Fprintf(out, "\nCorrupt session preamble, remaining sessions skipped\n")
				break
			}
			return err
		}
		for sess.Next() {
		}
		writeSessionInfo(out, sess)
	}

	reg := rd.Registry()
	fmt.Fprintf(out, "\nThreads: %d  Thread names: %d  Loggers: %d  Methods: %d\n",
		len(reg.Threads()), len(reg.ThreadNames()), len(reg.Loggers()), len(reg.Methods()))
	return nil
}

func writeSessionInfo(out io.Writer, sess *reader.Session) {
	info := sess.Info()
	st := sess.Stats()
	fmt.Fprintf(out, "\nSession %d\n", info.Index)
	if info.ProducerVersion != "" {
		fmt.Fprintf(out, "  Producer:        %s\n", info.ProducerVersion)
	}
	fmt.Fprintf(out, "  Opened:          %s (%s)\n", info.OpenTimeUTC.Format(timeLayout), humanize.Time(info.OpenTimeUTC))
	fmt.Fprintf(out, "  Local time:      %s %s\n", info.OpenTimeLocal.Format(timeLayout), info.TimeZone())
	fmt.Fprintf(out, "  Max size:        %s\n", humanize.IBytes(uint64(info.SizeCap())))
	if info.ThreadIDOffset != 0 {
		fmt.Fprintf(out, "  Thread offset:   %d\n", info.ThreadIDOffset)
	}
	fmt.Fprintf(out, "  Records:         %s\n", humanize.Comma(st.RecordsRead))
	fmt.Fprintf(out, "  Last number:     %d\n", st.LastNumber)
	if !st.LastTime.IsZero() {
		fmt.Fprintf(out, "  Last time:       %s\n", st.LastTime.Format(timeLayout))
	}
	fmt.Fprintf(out, "  Levels:          %s\n", st.LevelsFound)
	fmt.Fprintf(out, "  Threads:         %d\n", st.Threads)
	fmt.Fprintf(out, "  Circular:        %t\n", st.CircularStarted)
	if st.CircularStarted {
		fmt.Fprintf(out, "  Lost (wrapped):  %s\n", humanize.Comma(st.LostViaWrapping()))
		fmt.Fprintf(out, "  Missing entries: %d\n", len(sess.MissingEntryRecords()))
		fmt.Fprintf(out, "  Missing exits:   %d\n", len(sess.MissingExitRecords()))
	}
	if st.IndexFallback {
		fmt.Fprintf(out, "  Index area:      inconsistent, read from start of circular part\n")
	}
	fmt.Fprintf(out, "  Stopped:         %s\n", sess.Stop())
	fmt.Fprintf(out, "  Decode time:     %s\n", st.Elapsed)
}
